package patient

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestToResponse_Nil(t *testing.T) {
	if ToResponse(nil) != nil {
		t.Error("expected nil response for nil patient")
	}
	if ToResponses(nil) != nil {
		t.Error("expected nil list for nil input")
	}
}

func TestFromCreateRequest_SetsTimestamps(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := FromCreateRequest(createRequest("MRN12345", "john@example.com", "+1-555-1234"), now)

	if p.ID != uuid.Nil {
		t.Error("expected id to be left for the repository")
	}
	if !p.CreatedAt.Equal(now) || !p.UpdatedAt.Equal(now) {
		t.Errorf("expected createdAt = updatedAt = now, got %v / %v", p.CreatedAt, p.UpdatedAt)
	}
	if p.ContactInfo.Email != "john@example.com" {
		t.Errorf("expected email copied, got %s", p.ContactInfo.Email)
	}
	if len(p.EmergencyContacts) != 1 || p.EmergencyContacts[0].Address.City != "Springfield" {
		t.Errorf("unexpected emergency contacts: %+v", p.EmergencyContacts)
	}
	if p.InsuranceInfo == nil || p.InsuranceInfo.ExpirationDate == nil {
		t.Fatal("expected insurance with expiration date")
	}
}

func TestFromCreateRequest_NilSubStructures(t *testing.T) {
	req := createRequest("MRN12345", "john@example.com", "+1-555-1234")
	req.EmergencyContacts = nil
	req.InsuranceInfo = nil

	p := FromCreateRequest(req, time.Now())
	if p.EmergencyContacts != nil {
		t.Error("expected nil emergency contacts")
	}
	if p.InsuranceInfo != nil {
		t.Error("expected nil insurance")
	}

	resp := ToResponse(p)
	if resp.EmergencyContacts != nil || resp.InsuranceInfo != nil {
		t.Error("expected nil sub-structures to stay nil in the response")
	}
}

func TestApplyUpdate(t *testing.T) {
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p := FromCreateRequest(createRequest("MRN12345", "john@example.com", "+1-555-1234"), created)
	p.ID = uuid.New()
	id := p.ID

	upd := updateFrom(createRequest("MRN99999", "new@example.com", "+1-555-9999"))
	upd.FirstName = "Johnny"
	later := created.Add(time.Hour)
	ApplyUpdate(upd, p, later)

	if p.ID != id {
		t.Error("id must not change")
	}
	if !p.CreatedAt.Equal(created) {
		t.Error("createdAt must not change")
	}
	if !p.UpdatedAt.Equal(later) {
		t.Errorf("expected updatedAt %v, got %v", later, p.UpdatedAt)
	}
	if p.MedicalRecordNumber != "MRN99999" || p.FirstName != "Johnny" || p.ContactInfo.Email != "new@example.com" {
		t.Errorf("expected every mutable field overwritten, got %+v", p)
	}
}

func TestApplyUpdate_NilIsNoop(t *testing.T) {
	p := &Patient{FirstName: "John"}
	ApplyUpdate(nil, p, time.Now())
	if p.FirstName != "John" || !p.UpdatedAt.IsZero() {
		t.Error("nil request must not touch the patient")
	}
	ApplyUpdate(&UpdatePatientRequest{FirstName: "X"}, nil, time.Now())
}

func TestToResponses_PreservesOrder(t *testing.T) {
	a := &Patient{ID: uuid.New(), MedicalRecordNumber: "MRN-A"}
	b := &Patient{ID: uuid.New(), MedicalRecordNumber: "MRN-B"}

	out := ToResponses([]*Patient{a, b})
	if len(out) != 2 {
		t.Fatalf("expected 2, got %d", len(out))
	}
	if out[0].ID != a.ID || out[1].ID != b.ID {
		t.Error("expected order preserved")
	}
	if empty := ToResponses([]*Patient{}); empty == nil || len(empty) != 0 {
		t.Error("expected empty, non-nil list for empty input")
	}
}

func TestMapping_RoundTrip(t *testing.T) {
	req := createRequest("MRN12345", "john@example.com", "+1-555-1234")
	p := FromCreateRequest(req, time.Now())
	resp := ToResponse(p)

	if resp.MedicalRecordNumber != req.MedicalRecordNumber ||
		!resp.DateOfBirth.Equal(req.DateOfBirth) ||
		*resp.Address != *req.Address ||
		*resp.ContactInfo != *req.ContactInfo {
		t.Errorf("round trip changed values: %+v", resp)
	}
	if resp.InsuranceInfo.PolicyNumber != "POL-001" || !resp.InsuranceInfo.ExpirationDate.Equal(*req.InsuranceInfo.ExpirationDate) {
		t.Errorf("insurance not preserved: %+v", resp.InsuranceInfo)
	}
}

func TestClone_IsDeep(t *testing.T) {
	p := FromCreateRequest(createRequest("MRN12345", "john@example.com", "+1-555-1234"), time.Now())
	c := p.clone()
	c.Address.City = "Elsewhere"
	c.ContactInfo.Email = "other@example.com"
	c.EmergencyContacts[0].Address.City = "Elsewhere"
	*c.InsuranceInfo.ExpirationDate = NewDate(2000, 1, 1)

	if p.Address.City != "Springfield" || p.ContactInfo.Email != "john@example.com" {
		t.Error("clone aliases address or contact info")
	}
	if p.EmergencyContacts[0].Address.City != "Springfield" {
		t.Error("clone aliases emergency contact address")
	}
	if p.InsuranceInfo.ExpirationDate.Equal(NewDate(2000, 1, 1)) {
		t.Error("clone aliases insurance expiration")
	}
}
