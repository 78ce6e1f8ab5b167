package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ExistenceChecker is the read-only surface the uniqueness rules run against.
type ExistenceChecker interface {
	ExistsByID(ctx context.Context, id uuid.UUID) (bool, error)
	ExistsByMRN(ctx context.Context, mrn string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
}

// Candidate holds the unique keys of a record about to be written.
type Candidate struct {
	MRN   string
	Email string
	Phone string
}

func candidateOf(p *Patient) Candidate {
	return Candidate{MRN: p.MedicalRecordNumber, Email: p.email(), Phone: p.phone()}
}

// CheckCreate rejects a candidate whose record number, email or phone is
// already taken. Checks run in that order and stop at the first hit.
func CheckCreate(ctx context.Context, ex ExistenceChecker, c Candidate) error {
	return checkKeys(ctx, ex, c, nil)
}

// CheckUpdate rejects a candidate for current only on keys that actually
// change and collide with another patient. current must be the stored
// record; a nil current means the target does not exist.
func CheckUpdate(ctx context.Context, ex ExistenceChecker, current *Patient, id uuid.UUID, c Candidate) error {
	if current == nil {
		return ErrNotFoundByID(id.String())
	}
	cur := candidateOf(current)
	return checkKeys(ctx, ex, c, &cur)
}

// CheckDelete requires that the target exists.
func CheckDelete(ctx context.Context, ex ExistenceChecker, id uuid.UUID) error {
	ok, err := ex.ExistsByID(ctx, id)
	if err != nil {
		return storageErr("delete", err)
	}
	if !ok {
		return ErrNotFoundByID(id.String())
	}
	return nil
}

func checkKeys(ctx context.Context, ex ExistenceChecker, c Candidate, cur *Candidate) error {
	rules := []struct {
		candidate string
		current   string
		exists    func(context.Context, string) (bool, error)
		conflict  func(string) *Error
	}{
		{c.MRN, "", ex.ExistsByMRN, ErrDuplicateMRN},
		{c.Email, "", ex.ExistsByEmail, ErrDuplicateEmail},
		{c.Phone, "", ex.ExistsByPhone, ErrDuplicatePhone},
	}
	if cur != nil {
		rules[0].current, rules[1].current, rules[2].current = cur.MRN, cur.Email, cur.Phone
	}

	for _, r := range rules {
		if cur != nil && r.candidate == r.current {
			continue
		}
		taken, err := r.exists(ctx, r.candidate)
		if err != nil {
			return storageErr("conflict check", err)
		}
		if taken {
			return r.conflict(r.candidate)
		}
	}
	return nil
}

// storageErr keeps classified errors intact and wraps everything else as a
// database failure.
func storageErr(op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrDatabase(op, err)
}
