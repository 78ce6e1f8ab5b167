package patient

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pm/patient-service/internal/platform/cache"
)

type recordingMetrics struct {
	mu        sync.Mutex
	counters  map[string]int
	durations map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counters: map[string]int{}, durations: map[string]int{}}
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name]++
}

func (m *recordingMetrics) ObserveDuration(_ context.Context, name string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations[name]++
}

type countingRunner struct{ runs int }

func (r *countingRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.runs++
	return fn(ctx)
}

// failingRepo wraps a repository and fails every call to List and Create.
type failingRepo struct {
	Repository
	err error
}

func (f *failingRepo) List(context.Context) ([]*Patient, error) { return nil, f.err }

func (f *failingRepo) Create(context.Context, *Patient) error { return f.err }

func newTestService(opts ...Option) (*Service, *fixedClock) {
	clock := newFixedClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewService(NewMemoryRepo(), opts...), clock
}

func TestService_Create(t *testing.T) {
	metrics := newRecordingMetrics()
	runner := &countingRunner{}
	svc, clock := newTestService(WithMetrics(metrics), WithTxRunner(runner))
	ctx := context.Background()

	resp, err := svc.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ID == uuid.Nil {
		t.Error("expected id to be assigned")
	}
	if !resp.CreatedAt.Equal(clock.Now()) || !resp.UpdatedAt.Equal(resp.CreatedAt) {
		t.Errorf("expected both timestamps at %v, got %v / %v", clock.Now(), resp.CreatedAt, resp.UpdatedAt)
	}
	if runner.runs != 1 {
		t.Errorf("expected one transaction, got %d", runner.runs)
	}
	if metrics.counters[MetricCreated] != 1 || metrics.durations[MetricCreateTime] != 1 {
		t.Errorf("unexpected metrics: %v %v", metrics.counters, metrics.durations)
	}

	second, err := svc.Create(ctx, createRequest("MRN67890", "jane@example.com", "+1-555-5678"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID == resp.ID {
		t.Error("expected distinct ids")
	}
}

func TestService_Create_Duplicates(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	if _, err := svc.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		name string
		req  *CreatePatientRequest
		want Kind
	}{
		{"mrn", createRequest("MRN12345", "other@example.com", "+1-555-0000"), KindDuplicateMRN},
		{"email", createRequest("MRN00000", "john@example.com", "+1-555-0000"), KindDuplicateEmail},
		{"phone", createRequest("MRN00000", "other@example.com", "+1-555-1234"), KindDuplicatePhone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.req)
			if KindOf(err) != tt.want {
				t.Fatalf("expected %s, got %v", tt.want.Code(), err)
			}
		})
	}

	list, _ := svc.List(ctx)
	if len(list) != 1 {
		t.Errorf("expected rejected creates to leave one patient, got %d", len(list))
	}
}

func TestService_Create_NilRequest(t *testing.T) {
	svc, _ := newTestService()
	if _, err := svc.Create(context.Background(), nil); KindOf(err) != KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_Create_StorageFailure(t *testing.T) {
	repo := &failingRepo{Repository: NewMemoryRepo(), err: errors.New("connection reset")}
	svc := NewService(repo)

	_, err := svc.Create(context.Background(), createRequest("MRN12345", "john@example.com", "+1-555-1234"))
	if KindOf(err) != KindDatabase {
		t.Fatalf("expected DATABASE_ERROR, got %v", err)
	}
	if _, err := svc.List(context.Background()); KindOf(err) != KindDatabase {
		t.Fatalf("expected DATABASE_ERROR from list, got %v", err)
	}
}

func TestService_Get(t *testing.T) {
	metrics := newRecordingMetrics()
	svc, _ := newTestService(WithMetrics(metrics))
	ctx := context.Background()
	created, _ := svc.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234"))

	byID, err := svc.GetByID(ctx, created.ID.String())
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	byMRN, err := svc.GetByMRN(ctx, "MRN12345")
	if err != nil {
		t.Fatalf("get by mrn: %v", err)
	}
	if byID.ID != created.ID || byMRN.ID != created.ID {
		t.Error("expected lookups to return the created patient")
	}
	if metrics.counters[MetricRetrieved] != 2 {
		t.Errorf("expected 2 retrievals, got %d", metrics.counters[MetricRetrieved])
	}
}

func TestService_Get_NotFound(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for _, id := range []string{uuid.NewString(), "not-a-uuid", ""} {
		if _, err := svc.GetByID(ctx, id); KindOf(err) != KindNotFound {
			t.Errorf("%q: expected not found, got %v", id, err)
		}
	}
	_, err := svc.GetByMRN(ctx, "MRN00000")
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.Error() != "Patient with medicalRecordNumber: MRN00000 not found" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestService_List_Empty(t *testing.T) {
	svc, _ := newTestService()
	list, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %v", list)
	}
}

func TestService_Update(t *testing.T) {
	metrics := newRecordingMetrics()
	svc, clock := newTestService(WithMetrics(metrics))
	ctx := context.Background()
	created, _ := svc.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234"))

	clock.Advance(time.Minute)
	req := updateFrom(createRequest("MRN12345", "john@example.com", "+1-555-1234"))
	req.FirstName = "Johnny"
	req.ID = created.ID.String()

	updated, err := svc.Update(ctx, created.ID.String(), req)
	if err != nil {
		t.Fatalf("self-values must not conflict: %v", err)
	}
	if updated.FirstName != "Johnny" {
		t.Errorf("expected first name updated, got %s", updated.FirstName)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("createdAt must not change")
	}
	if !updated.UpdatedAt.Equal(clock.Now()) {
		t.Errorf("expected updatedAt %v, got %v", clock.Now(), updated.UpdatedAt)
	}
	if metrics.counters[MetricUpdated] != 1 || metrics.durations[MetricUpdateTime] != 1 {
		t.Errorf("unexpected metrics: %v", metrics.counters)
	}
}

func TestService_Update_StrictlyIncreasingTimestamps(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, _ := svc.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234"))
	req := updateFrom(createRequest("MRN12345", "john@example.com", "+1-555-1234"))

	prev := created.UpdatedAt
	for i := 0; i < 3; i++ {
		got, err := svc.Update(ctx, created.ID.String(), req)
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if !got.UpdatedAt.After(prev) {
			t.Fatalf("update %d: updatedAt %v not after %v", i, got.UpdatedAt, prev)
		}
		prev = got.UpdatedAt
	}
}

func TestService_Update_ConflictLeavesTargetUnchanged(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	a, _ := svc.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234"))
	if _, err := svc.Create(ctx, createRequest("MRN67890", "jane@example.com", "+1-555-5678")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := updateFrom(createRequest("MRN67890", "john@example.com", "+1-555-1234"))
	req.FirstName = "Changed"
	if _, err := svc.Update(ctx, a.ID.String(), req); KindOf(err) != KindDuplicateMRN {
		t.Fatalf("expected duplicate mrn, got %v", err)
	}

	after, _ := svc.GetByID(ctx, a.ID.String())
	if after.MedicalRecordNumber != "MRN12345" || after.FirstName != "John" || !after.UpdatedAt.Equal(a.UpdatedAt) {
		t.Errorf("target was modified: %+v", after)
	}
}

func TestService_Update_Errors(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	created, _ := svc.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234"))
	req := updateFrom(createRequest("MRN12345", "john@example.com", "+1-555-1234"))

	if _, err := svc.Update(ctx, uuid.NewString(), req); KindOf(err) != KindNotFound {
		t.Errorf("expected not found for missing id, got %v", err)
	}
	if _, err := svc.Update(ctx, "bogus", req); KindOf(err) != KindNotFound {
		t.Errorf("expected not found for malformed id, got %v", err)
	}
	if _, err := svc.Update(ctx, created.ID.String(), nil); KindOf(err) != KindValidation {
		t.Errorf("expected validation error for nil request, got %v", err)
	}

	req.ID = uuid.NewString()
	_, err := svc.Update(ctx, created.ID.String(), req)
	if KindOf(err) != KindValidation {
		t.Fatalf("expected validation error for id mismatch, got %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Fields["id"] == "" {
		t.Errorf("expected id field error, got %+v", err)
	}
}

func TestService_Delete(t *testing.T) {
	metrics := newRecordingMetrics()
	svc, _ := newTestService(WithMetrics(metrics))
	ctx := context.Background()
	created, _ := svc.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234"))

	if err := svc.Delete(ctx, created.ID.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetByID(ctx, created.ID.String()); KindOf(err) != KindNotFound {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := svc.Delete(ctx, created.ID.String()); KindOf(err) != KindNotFound {
		t.Errorf("expected not found on repeated delete, got %v", err)
	}
	if err := svc.Delete(ctx, "bogus"); KindOf(err) != KindNotFound {
		t.Errorf("expected not found for malformed id, got %v", err)
	}
	if metrics.counters[MetricDeleted] != 1 {
		t.Errorf("expected one delete counted, got %d", metrics.counters[MetricDeleted])
	}
}

func newRedisCache(t *testing.T) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.New(client, "patient:", time.Minute), mr
}

func TestService_CacheReadThroughAndEviction(t *testing.T) {
	c, mr := newRedisCache(t)
	svc, _ := newTestService(WithCache(c))
	ctx := context.Background()
	created, _ := svc.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234"))
	key := "patient:id:" + created.ID.String()

	if _, err := svc.GetByID(ctx, created.ID.String()); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatal("expected patient cached after first read")
	}

	cached, err := svc.GetByID(ctx, created.ID.String())
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if cached.MedicalRecordNumber != "MRN12345" || !cached.DateOfBirth.Equal(created.DateOfBirth) {
		t.Errorf("cached value differs: %+v", cached)
	}

	req := updateFrom(createRequest("MRN12345", "john@example.com", "+1-555-1234"))
	req.FirstName = "Johnny"
	if _, err := svc.Update(ctx, created.ID.String(), req); err != nil {
		t.Fatalf("update: %v", err)
	}
	if v, _ := mr.Get(key); v != cache.Tombstone {
		t.Errorf("expected update to tombstone the cached entry, got %q", v)
	}
	got, _ := svc.GetByID(ctx, created.ID.String())
	if got.FirstName != "Johnny" {
		t.Errorf("expected fresh value after update, got %s", got.FirstName)
	}

	if err := svc.Delete(ctx, created.ID.String()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if v, _ := mr.Get(key); v != cache.Tombstone {
		t.Errorf("expected delete to tombstone the cached entry, got %q", v)
	}
	if _, err := svc.GetByID(ctx, created.ID.String()); KindOf(err) != KindNotFound {
		t.Errorf("expected not found after delete, got %v", err)
	}
}

// pausingRepo holds the first GetByID after its storage read until release
// is closed, so a write can commit in between.
type pausingRepo struct {
	Repository
	once    sync.Once
	reached chan struct{}
	release chan struct{}
}

func newPausingRepo(r Repository) *pausingRepo {
	return &pausingRepo{Repository: r, reached: make(chan struct{}), release: make(chan struct{})}
}

func (r *pausingRepo) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.Repository.GetByID(ctx, id)
	r.once.Do(func() {
		close(r.reached)
		<-r.release
	})
	return p, err
}

func TestService_CacheFillCannotResurrectAfterWrite(t *testing.T) {
	tests := []struct {
		name  string
		write func(ctx context.Context, svc *Service, id string) error
		check func(t *testing.T, resp *PatientResponse, err error)
	}{
		{
			name: "delete",
			write: func(ctx context.Context, svc *Service, id string) error {
				return svc.Delete(ctx, id)
			},
			check: func(t *testing.T, resp *PatientResponse, err error) {
				if KindOf(err) != KindNotFound {
					t.Errorf("expected not found after delete, got %+v, %v", resp, err)
				}
			},
		},
		{
			name: "update",
			write: func(ctx context.Context, svc *Service, id string) error {
				req := updateFrom(createRequest("MRN12345", "john@example.com", "+1-555-1234"))
				req.FirstName = "Johnny"
				_, err := svc.Update(ctx, id, req)
				return err
			},
			check: func(t *testing.T, resp *PatientResponse, err error) {
				if err != nil {
					t.Fatalf("get: %v", err)
				}
				if resp.FirstName != "Johnny" {
					t.Errorf("expected updated record, got %s", resp.FirstName)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newRedisCache(t)
			mem := NewMemoryRepo()
			ctx := context.Background()
			seed := NewService(mem)
			created, err := seed.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234"))
			if err != nil {
				t.Fatalf("seed: %v", err)
			}
			id := created.ID.String()

			gate := newPausingRepo(mem)
			svc := NewService(gate, WithCache(c))

			readerDone := make(chan error, 1)
			go func() {
				_, err := svc.GetByID(ctx, id)
				readerDone <- err
			}()

			<-gate.reached
			if err := tt.write(ctx, svc, id); err != nil {
				t.Fatalf("write: %v", err)
			}
			close(gate.release)
			if err := <-readerDone; err != nil {
				t.Fatalf("racing read: %v", err)
			}

			resp, err := svc.GetByID(ctx, id)
			tt.check(t, resp, err)
		})
	}
}

func TestService_CacheFailureIsIgnored(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.New(client, "patient:", time.Minute)
	svc, _ := newTestService(WithCache(c))
	ctx := context.Background()
	created, _ := svc.Create(ctx, createRequest("MRN12345", "john@example.com", "+1-555-1234"))

	mr.Close()
	got, err := svc.GetByID(ctx, created.ID.String())
	if err != nil {
		t.Fatalf("expected cache outage to be tolerated, got %v", err)
	}
	if got.ID != created.ID {
		t.Error("expected patient from the repository")
	}
}
