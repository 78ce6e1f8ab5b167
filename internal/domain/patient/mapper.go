package patient

import "time"

// ToResponse copies a patient into its wire shape. A nil patient maps to nil.
func ToResponse(p *Patient) *PatientResponse {
	if p == nil {
		return nil
	}
	return &PatientResponse{
		ID:                  p.ID,
		MedicalRecordNumber: p.MedicalRecordNumber,
		FirstName:           p.FirstName,
		LastName:            p.LastName,
		DateOfBirth:         p.DateOfBirth,
		Gender:              p.Gender,
		Address:             addressToDTO(p.Address),
		ContactInfo:         contactToDTO(p.ContactInfo),
		EmergencyContacts:   emergencyContactsToDTO(p.EmergencyContacts),
		InsuranceInfo:       insuranceToDTO(p.InsuranceInfo),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

// ToResponses preserves order and count. A nil slice maps to nil.
func ToResponses(ps []*Patient) []*PatientResponse {
	if ps == nil {
		return nil
	}
	out := make([]*PatientResponse, len(ps))
	for i, p := range ps {
		out[i] = ToResponse(p)
	}
	return out
}

// FromCreateRequest builds a new patient with createdAt and updatedAt both
// set to now. The identifier is left for the repository to assign.
func FromCreateRequest(req *CreatePatientRequest, now time.Time) *Patient {
	if req == nil {
		return nil
	}
	return &Patient{
		MedicalRecordNumber: req.MedicalRecordNumber,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		DateOfBirth:         req.DateOfBirth,
		Gender:              req.Gender,
		Address:             addressFromDTO(req.Address),
		ContactInfo:         contactFromDTO(req.ContactInfo),
		EmergencyContacts:   emergencyContactsFromDTO(req.EmergencyContacts),
		InsuranceInfo:       insuranceFromDTO(req.InsuranceInfo),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// ApplyUpdate overwrites every mutable field of p from req and stamps
// updatedAt. ID and CreatedAt are left alone. Either side nil is a no-op.
func ApplyUpdate(req *UpdatePatientRequest, p *Patient, now time.Time) {
	if req == nil || p == nil {
		return
	}
	p.MedicalRecordNumber = req.MedicalRecordNumber
	p.FirstName = req.FirstName
	p.LastName = req.LastName
	p.DateOfBirth = req.DateOfBirth
	p.Gender = req.Gender
	p.Address = addressFromDTO(req.Address)
	p.ContactInfo = contactFromDTO(req.ContactInfo)
	p.EmergencyContacts = emergencyContactsFromDTO(req.EmergencyContacts)
	p.InsuranceInfo = insuranceFromDTO(req.InsuranceInfo)
	p.UpdatedAt = now
}

func addressToDTO(a *Address) *AddressDTO {
	if a == nil {
		return nil
	}
	return &AddressDTO{Street: a.Street, City: a.City, State: a.State, ZipCode: a.ZipCode, Country: a.Country}
}

func addressFromDTO(a *AddressDTO) *Address {
	if a == nil {
		return nil
	}
	return &Address{Street: a.Street, City: a.City, State: a.State, ZipCode: a.ZipCode, Country: a.Country}
}

func contactToDTO(c *ContactInfo) *ContactInfoDTO {
	if c == nil {
		return nil
	}
	return &ContactInfoDTO{
		PhoneNumber:            c.PhoneNumber,
		Email:                  c.Email,
		AlternativePhoneNumber: c.AlternativePhoneNumber,
	}
}

func contactFromDTO(c *ContactInfoDTO) *ContactInfo {
	if c == nil {
		return nil
	}
	return &ContactInfo{
		PhoneNumber:            c.PhoneNumber,
		Email:                  c.Email,
		AlternativePhoneNumber: c.AlternativePhoneNumber,
	}
}

func emergencyContactsToDTO(in []EmergencyContact) []EmergencyContactDTO {
	if in == nil {
		return nil
	}
	out := make([]EmergencyContactDTO, len(in))
	for i, ec := range in {
		out[i] = EmergencyContactDTO{
			Name:         ec.Name,
			Relationship: ec.Relationship,
			PhoneNumber:  ec.PhoneNumber,
			Email:        ec.Email,
			Address:      addressToDTO(ec.Address),
		}
	}
	return out
}

func emergencyContactsFromDTO(in []EmergencyContactDTO) []EmergencyContact {
	if in == nil {
		return nil
	}
	out := make([]EmergencyContact, len(in))
	for i, ec := range in {
		out[i] = EmergencyContact{
			Name:         ec.Name,
			Relationship: ec.Relationship,
			PhoneNumber:  ec.PhoneNumber,
			Email:        ec.Email,
			Address:      addressFromDTO(ec.Address),
		}
	}
	return out
}

func insuranceToDTO(in *InsuranceInfo) *InsuranceInfoDTO {
	if in == nil {
		return nil
	}
	return &InsuranceInfoDTO{
		Provider:         in.Provider,
		PolicyNumber:     in.PolicyNumber,
		GroupNumber:      in.GroupNumber,
		PolicyHolderName: in.PolicyHolderName,
		EffectiveDate:    in.EffectiveDate,
		ExpirationDate:   copyDate(in.ExpirationDate),
		CoverageType:     in.CoverageType,
	}
}

func insuranceFromDTO(in *InsuranceInfoDTO) *InsuranceInfo {
	if in == nil {
		return nil
	}
	return &InsuranceInfo{
		Provider:         in.Provider,
		PolicyNumber:     in.PolicyNumber,
		GroupNumber:      in.GroupNumber,
		PolicyHolderName: in.PolicyHolderName,
		EffectiveDate:    in.EffectiveDate,
		ExpirationDate:   copyDate(in.ExpirationDate),
		CoverageType:     in.CoverageType,
	}
}

func copyDate(d *Date) *Date {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// clone returns a deep copy so callers cannot alias stored state.
func (p *Patient) clone() *Patient {
	if p == nil {
		return nil
	}
	c := *p
	if p.Address != nil {
		a := *p.Address
		c.Address = &a
	}
	if p.ContactInfo != nil {
		ci := *p.ContactInfo
		c.ContactInfo = &ci
	}
	if p.EmergencyContacts != nil {
		c.EmergencyContacts = make([]EmergencyContact, len(p.EmergencyContacts))
		for i, ec := range p.EmergencyContacts {
			c.EmergencyContacts[i] = ec
			if ec.Address != nil {
				a := *ec.Address
				c.EmergencyContacts[i].Address = &a
			}
		}
	}
	if p.InsuranceInfo != nil {
		ins := *p.InsuranceInfo
		ins.ExpirationDate = copyDate(p.InsuranceInfo.ExpirationDate)
		c.InsuranceInfo = &ins
	}
	return &c
}
