package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence gateway for patients. Lookups that miss
// return an *Error of KindNotFound; writes that break a uniqueness
// constraint return the matching duplicate kind.
type Repository interface {
	ExistenceChecker
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	// List returns every patient ordered by creation time.
	List(ctx context.Context) ([]*Patient, error)
	// Create assigns p.ID when it is unset.
	Create(ctx context.Context, p *Patient) error
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
}
