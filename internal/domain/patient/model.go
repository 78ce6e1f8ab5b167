package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient maps to the patient table. Address and contact fields are stored
// inline as address_* and contact columns; emergency contacts and insurance
// are stored as JSONB documents. scanPatient reads them by position.
type Patient struct {
	ID                  uuid.UUID          `json:"id"`
	MedicalRecordNumber string             `json:"medicalRecordNumber"`
	FirstName           string             `json:"firstName"`
	LastName            string             `json:"lastName"`
	DateOfBirth         Date               `json:"dateOfBirth"`
	Gender              string             `json:"gender"`
	Address             *Address           `json:"address"`
	ContactInfo         *ContactInfo       `json:"contactInfo"`
	EmergencyContacts   []EmergencyContact `json:"emergencyContacts"`
	InsuranceInfo       *InsuranceInfo     `json:"insuranceInfo"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

type ContactInfo struct {
	PhoneNumber            string `json:"phoneNumber"`
	Email                  string `json:"email"`
	AlternativePhoneNumber string `json:"alternativePhoneNumber"`
}

type EmergencyContact struct {
	Name         string   `json:"name"`
	Relationship string   `json:"relationship"`
	PhoneNumber  string   `json:"phoneNumber"`
	Email        string   `json:"email"`
	Address      *Address `json:"address"`
}

type InsuranceInfo struct {
	Provider         string `json:"provider"`
	PolicyNumber     string `json:"policyNumber"`
	GroupNumber      string `json:"groupNumber"`
	PolicyHolderName string `json:"policyHolderName"`
	EffectiveDate    Date   `json:"effectiveDate"`
	ExpirationDate   *Date  `json:"expirationDate"`
	CoverageType     string `json:"coverageType"`
}

// email returns the contact email, or "" when no contact info is attached.
func (p *Patient) email() string {
	if p.ContactInfo == nil {
		return ""
	}
	return p.ContactInfo.Email
}

func (p *Patient) phone() string {
	if p.ContactInfo == nil {
		return ""
	}
	return p.ContactInfo.PhoneNumber
}
