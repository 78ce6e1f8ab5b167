package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pm/patient-service/internal/platform/telemetry"
)

// Metric names recorded by the service.
const (
	MetricCreated   = "patient.created"
	MetricUpdated   = "patient.updated"
	MetricDeleted   = "patient.deleted"
	MetricRetrieved = "patient.retrieved"

	MetricCreateTime = "patient.create.time"
	MetricUpdateTime = "patient.update.time"
	MetricGetTime    = "patient.get.time"
)

// Cache is an optional read-through store for single-patient lookups.
// Fill must not replace an existing entry, and Invalidate must leave a
// marker that keeps later fills out for a while, so a read that raced a
// write cannot cache the row the write replaced.
type Cache interface {
	Get(ctx context.Context, key string, dst interface{}) (bool, error)
	Fill(ctx context.Context, key string, v interface{}) (bool, error)
	Invalidate(ctx context.Context, keys ...string) error
}

// TxRunner runs fn so that every repository call made with the ctx it
// receives shares one transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type directRunner struct{}

func (directRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Service struct {
	repo    Repository
	tx      TxRunner
	cache   Cache
	metrics telemetry.Recorder
	logger  zerolog.Logger
	now     func() time.Time
}

type Option func(*Service)

func WithTxRunner(tx TxRunner) Option {
	return func(s *Service) { s.tx = tx }
}

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithMetrics(r telemetry.Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source used for createdAt and updatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		tx:      directRunner{},
		metrics: telemetry.Nop{},
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stamp returns the current instant at the precision PostgreSQL stores.
func (s *Service) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Service) Create(ctx context.Context, req *CreatePatientRequest) (*PatientResponse, error) {
	defer s.observe(ctx, MetricCreateTime, time.Now())
	if req == nil {
		return nil, ErrValidation("Request body is required", nil)
	}
	s.logger.Info().Str("mrn", req.MedicalRecordNumber).Msg("creating patient")

	p := FromCreateRequest(req, s.stamp())
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := CheckCreate(ctx, s.repo, candidateOf(p)); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, p); err != nil {
			return storageErr("create", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("create", err)
	}

	s.metrics.IncCounter(ctx, MetricCreated)
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient created")
	return ToResponse(p), nil
}

// GetByID resolves a patient by its string identifier. An identifier that
// is not a UUID cannot name a patient and is reported as not found.
func (s *Service) GetByID(ctx context.Context, rawID string) (*PatientResponse, error) {
	defer s.observe(ctx, MetricGetTime, time.Now())
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, s.fail("get", ErrNotFoundByID(rawID))
	}

	var p Patient
	if s.cacheGet(ctx, cacheKey(id), &p) {
		s.metrics.IncCounter(ctx, MetricRetrieved)
		return ToResponse(&p), nil
	}

	found, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.fail("get", storageErr("get", err))
	}
	s.cacheFill(ctx, cacheKey(id), found)

	s.metrics.IncCounter(ctx, MetricRetrieved)
	return ToResponse(found), nil
}

func (s *Service) GetByMRN(ctx context.Context, mrn string) (*PatientResponse, error) {
	defer s.observe(ctx, MetricGetTime, time.Now())
	found, err := s.repo.GetByMRN(ctx, mrn)
	if err != nil {
		return nil, s.fail("get", storageErr("get", err))
	}
	s.metrics.IncCounter(ctx, MetricRetrieved)
	return ToResponse(found), nil
}

// List returns every patient in creation order. No patients is an empty,
// non-nil slice.
func (s *Service) List(ctx context.Context) ([]*PatientResponse, error) {
	defer s.observe(ctx, MetricGetTime, time.Now())
	ps, err := s.repo.List(ctx)
	if err != nil {
		return nil, s.fail("list", storageErr("list", err))
	}
	out := ToResponses(ps)
	if out == nil {
		out = []*PatientResponse{}
	}
	s.metrics.IncCounter(ctx, MetricRetrieved)
	return out, nil
}

// Update replaces every mutable field of the patient. When the body carries
// an id it must name the same patient as rawID.
func (s *Service) Update(ctx context.Context, rawID string, req *UpdatePatientRequest) (*PatientResponse, error) {
	defer s.observe(ctx, MetricUpdateTime, time.Now())
	if req == nil {
		return nil, ErrValidation("Request body is required", nil)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, s.fail("update", ErrNotFoundByID(rawID))
	}
	if req.ID != "" {
		bodyID, err := uuid.Parse(req.ID)
		if err != nil || bodyID != id {
			return nil, s.fail("update", ErrValidation("Path ID and request body ID must match",
				map[string]string{"id": "ID must match the path identifier"}))
		}
	}
	s.logger.Info().Str("patient_id", id.String()).Msg("updating patient")

	var updated *Patient
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, id)
		if err != nil && KindOf(err) != KindNotFound {
			return storageErr("update", err)
		}

		if current == nil {
			return CheckUpdate(ctx, s.repo, nil, id, Candidate{})
		}

		next := current.clone()
		ApplyUpdate(req, next, s.nextStamp(current.UpdatedAt))
		if err := CheckUpdate(ctx, s.repo, current, id, candidateOf(next)); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, next); err != nil {
			return storageErr("update", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, s.fail("update", err)
	}
	s.cacheEvict(ctx, id)

	s.metrics.IncCounter(ctx, MetricUpdated)
	s.logger.Info().Str("patient_id", id.String()).Msg("patient updated")
	return ToResponse(updated), nil
}

// nextStamp keeps updatedAt strictly increasing even when the clock has
// not advanced past the previous write.
func (s *Service) nextStamp(prev time.Time) time.Time {
	ts := s.stamp()
	if !ts.After(prev) {
		ts = prev.Add(time.Microsecond)
	}
	return ts
}

func (s *Service) Delete(ctx context.Context, rawID string) error {
	id, err := uuid.Parse(rawID)
	if err != nil {
		return s.fail("delete", ErrNotFoundByID(rawID))
	}
	s.logger.Info().Str("patient_id", id.String()).Msg("deleting patient")

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := CheckDelete(ctx, s.repo, id); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, id); err != nil {
			return storageErr("delete", err)
		}
		return nil
	})
	if err != nil {
		return s.fail("delete", err)
	}
	s.cacheEvict(ctx, id)

	s.metrics.IncCounter(ctx, MetricDeleted)
	s.logger.Info().Str("patient_id", id.String()).Msg("patient deleted")
	return nil
}

// fail classifies err, logs it at the level its kind deserves and returns
// it as an *Error.
func (s *Service) fail(op string, err error) error {
	e := storageErr(op, err).(*Error)
	switch e.Kind {
	case KindNotFound, KindValidation, KindAlreadyExists,
		KindDuplicateMRN, KindDuplicateEmail, KindDuplicatePhone:
		s.logger.Warn().Str("op", op).Str("error_code", e.ErrorCode()).Msg(e.Message)
	default:
		s.logger.Error().Err(e).Str("op", op).Str("error_code", e.ErrorCode()).Msg("patient operation failed")
	}
	return e
}

func (s *Service) observe(ctx context.Context, name string, start time.Time) {
	s.metrics.ObserveDuration(ctx, name, time.Since(start))
}

func cacheKey(id uuid.UUID) string { return "id:" + id.String() }

// Cache failures never fail a request; they only cost a round trip.

func (s *Service) cacheGet(ctx context.Context, key string, dst *Patient) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("patient cache read failed")
		return false
	}
	return ok
}

func (s *Service) cacheFill(ctx context.Context, key string, p *Patient) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Fill(ctx, key, p); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("patient cache write failed")
	}
}

func (s *Service) cacheEvict(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cacheKey(id)); err != nil {
		s.logger.Warn().Err(err).Str("patient_id", id.String()).Msg("patient cache evict failed")
	}
}
