package patient

import (
	"sync"
	"time"
)

func addressDTO() *AddressDTO {
	return &AddressDTO{
		Street:  "123 Main St",
		City:    "Springfield",
		State:   "IL",
		ZipCode: "62701",
		Country: "USA",
	}
}

func createRequest(mrn, email, phone string) *CreatePatientRequest {
	exp := NewDate(2099, time.December, 31)
	return &CreatePatientRequest{
		MedicalRecordNumber: mrn,
		FirstName:           "John",
		LastName:            "Doe",
		DateOfBirth:         NewDate(1980, time.January, 15),
		Gender:              "Male",
		Address:             addressDTO(),
		ContactInfo: &ContactInfoDTO{
			PhoneNumber: phone,
			Email:       email,
		},
		EmergencyContacts: []EmergencyContactDTO{{
			Name:         "Jane Doe",
			Relationship: "Spouse",
			PhoneNumber:  "+1-555-0100",
			Email:        "jane.doe@example.com",
			Address:      addressDTO(),
		}},
		InsuranceInfo: &InsuranceInfoDTO{
			Provider:         "Acme Health",
			PolicyNumber:     "POL-001",
			PolicyHolderName: "John Doe",
			EffectiveDate:    NewDate(2020, time.January, 1),
			ExpirationDate:   &exp,
			CoverageType:     "PPO",
		},
	}
}

// updateFrom builds a full-replace request carrying the same values as req.
func updateFrom(req *CreatePatientRequest) *UpdatePatientRequest {
	return &UpdatePatientRequest{
		MedicalRecordNumber: req.MedicalRecordNumber,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		DateOfBirth:         req.DateOfBirth,
		Gender:              req.Gender,
		Address:             req.Address,
		ContactInfo:         req.ContactInfo,
		EmergencyContacts:   req.EmergencyContacts,
		InsuranceInfo:       req.InsuranceInfo,
	}
}

// fixedClock returns the same instant until advanced.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{t: time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
