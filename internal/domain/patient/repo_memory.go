package patient

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memoryRepo struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Patient
	order   []uuid.UUID
	byMRN   map[string]uuid.UUID
	byEmail map[string]uuid.UUID
	byPhone map[string]uuid.UUID
}

// NewMemoryRepo returns a Repository held in process memory. It enforces the
// same uniqueness constraints as the PostgreSQL schema.
func NewMemoryRepo() Repository {
	return &memoryRepo{
		byID:    make(map[uuid.UUID]*Patient),
		byMRN:   make(map[string]uuid.UUID),
		byEmail: make(map[string]uuid.UUID),
		byPhone: make(map[string]uuid.UUID),
	}
}

func (r *memoryRepo) ExistsByID(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok, nil
}

func (r *memoryRepo) ExistsByMRN(_ context.Context, mrn string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byMRN[mrn]
	return ok, nil
}

func (r *memoryRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[email]
	return ok, nil
}

func (r *memoryRepo) ExistsByPhone(_ context.Context, phone string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byPhone[phone]
	return ok, nil
}

func (r *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFoundByID(id.String())
	}
	return p.clone(), nil
}

func (r *memoryRepo) GetByMRN(_ context.Context, mrn string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byMRN[mrn]
	if !ok {
		return nil, ErrNotFoundByMRN(mrn)
	}
	return r.byID[id].clone(), nil
}

func (r *memoryRepo) List(_ context.Context) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Patient, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out, nil
}

func (r *memoryRepo) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if err := r.checkUniqueLocked(p); err != nil {
		return err
	}
	r.byID[p.ID] = p.clone()
	r.order = append(r.order, p.ID)
	r.indexLocked(p)
	return nil
}

func (r *memoryRepo) Update(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[p.ID]
	if !ok {
		return ErrNotFoundByID(p.ID.String())
	}
	if err := r.checkUniqueLocked(p); err != nil {
		return err
	}
	r.unindexLocked(old)
	r.byID[p.ID] = p.clone()
	r.indexLocked(p)
	return nil
}

func (r *memoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[id]
	if !ok {
		return ErrNotFoundByID(id.String())
	}
	r.unindexLocked(old)
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// checkUniqueLocked fails when a key of p is held by a different patient.
func (r *memoryRepo) checkUniqueLocked(p *Patient) error {
	if owner, ok := r.byMRN[p.MedicalRecordNumber]; ok && owner != p.ID {
		return ErrDuplicateMRN(p.MedicalRecordNumber)
	}
	if e := p.email(); e != "" {
		if owner, ok := r.byEmail[e]; ok && owner != p.ID {
			return ErrDuplicateEmail(e)
		}
	}
	if ph := p.phone(); ph != "" {
		if owner, ok := r.byPhone[ph]; ok && owner != p.ID {
			return ErrDuplicatePhone(ph)
		}
	}
	return nil
}

func (r *memoryRepo) indexLocked(p *Patient) {
	r.byMRN[p.MedicalRecordNumber] = p.ID
	if e := p.email(); e != "" {
		r.byEmail[e] = p.ID
	}
	if ph := p.phone(); ph != "" {
		r.byPhone[ph] = p.ID
	}
}

func (r *memoryRepo) unindexLocked(p *Patient) {
	delete(r.byMRN, p.MedicalRecordNumber)
	if e := p.email(); e != "" {
		delete(r.byEmail, e)
	}
	if ph := p.phone(); ph != "" {
		delete(r.byPhone, ph)
	}
}
