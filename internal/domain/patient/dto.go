package patient

import (
	"time"

	"github.com/google/uuid"
)

// Wire shapes. Sub-structure DTOs are shared by requests and responses.

type AddressDTO struct {
	Street  string `json:"street" validate:"notblank,max=100"`
	City    string `json:"city" validate:"notblank,max=50"`
	State   string `json:"state" validate:"notblank,max=50"`
	ZipCode string `json:"zipCode" validate:"notblank,max=20"`
	Country string `json:"country" validate:"notblank,max=50"`
}

type ContactInfoDTO struct {
	PhoneNumber            string `json:"phoneNumber" validate:"notblank,phone"`
	Email                  string `json:"email" validate:"notblank,email,max=100"`
	AlternativePhoneNumber string `json:"alternativePhoneNumber" validate:"omitempty,phone"`
}

type EmergencyContactDTO struct {
	Name         string      `json:"name" validate:"notblank,max=100"`
	Relationship string      `json:"relationship" validate:"notblank,max=50"`
	PhoneNumber  string      `json:"phoneNumber" validate:"notblank,phone"`
	Email        string      `json:"email" validate:"notblank,email,max=100"`
	Address      *AddressDTO `json:"address" validate:"required"`
}

type InsuranceInfoDTO struct {
	Provider         string `json:"provider" validate:"notblank,max=100"`
	PolicyNumber     string `json:"policyNumber" validate:"notblank,max=50"`
	GroupNumber      string `json:"groupNumber" validate:"max=50"`
	PolicyHolderName string `json:"policyHolderName" validate:"notblank,max=100"`
	EffectiveDate    Date   `json:"effectiveDate" validate:"required"`
	ExpirationDate   *Date  `json:"expirationDate" validate:"omitempty,future"`
	CoverageType     string `json:"coverageType" validate:"notblank,max=50"`
}

type CreatePatientRequest struct {
	MedicalRecordNumber string                `json:"medicalRecordNumber" validate:"notblank,recordnumber"`
	FirstName           string                `json:"firstName" validate:"notblank,max=100"`
	LastName            string                `json:"lastName" validate:"notblank,max=100"`
	DateOfBirth         Date                  `json:"dateOfBirth" validate:"required,past"`
	Gender              string                `json:"gender" validate:"notblank,max=20"`
	Address             *AddressDTO           `json:"address" validate:"required"`
	ContactInfo         *ContactInfoDTO       `json:"contactInfo" validate:"required"`
	EmergencyContacts   []EmergencyContactDTO `json:"emergencyContacts" validate:"omitempty,dive"`
	InsuranceInfo       *InsuranceInfoDTO     `json:"insuranceInfo" validate:"omitempty"`
}

// UpdatePatientRequest replaces every mutable field of a patient. ID is
// optional in the body; when present it must match the path identifier.
type UpdatePatientRequest struct {
	ID                  string                `json:"id,omitempty"`
	MedicalRecordNumber string                `json:"medicalRecordNumber" validate:"notblank,recordnumber"`
	FirstName           string                `json:"firstName" validate:"notblank,max=100"`
	LastName            string                `json:"lastName" validate:"notblank,max=100"`
	DateOfBirth         Date                  `json:"dateOfBirth" validate:"required,past"`
	Gender              string                `json:"gender" validate:"notblank,max=20"`
	Address             *AddressDTO           `json:"address" validate:"required"`
	ContactInfo         *ContactInfoDTO       `json:"contactInfo" validate:"required"`
	EmergencyContacts   []EmergencyContactDTO `json:"emergencyContacts" validate:"omitempty,dive"`
	InsuranceInfo       *InsuranceInfoDTO     `json:"insuranceInfo" validate:"omitempty"`
}

type PatientResponse struct {
	ID                  uuid.UUID             `json:"id"`
	MedicalRecordNumber string                `json:"medicalRecordNumber"`
	FirstName           string                `json:"firstName"`
	LastName            string                `json:"lastName"`
	DateOfBirth         Date                  `json:"dateOfBirth"`
	Gender              string                `json:"gender"`
	Address             *AddressDTO           `json:"address"`
	ContactInfo         *ContactInfoDTO       `json:"contactInfo"`
	EmergencyContacts   []EmergencyContactDTO `json:"emergencyContacts"`
	InsuranceInfo       *InsuranceInfoDTO     `json:"insuranceInfo"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt"`
}
