package dispute

import (
	"context"
	"errors"
	"math"
	"sort"
	"testing"
	"time"

	"disputedesk/db"
)

func validParams() CreateParams {
	return CreateParams{
		Title:         "Billing error",
		Category:      "finance",
		DisputeAmount: 49.99,
		Status:        "open",
		UserID:        "u1",
		DisputeDate:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestService_CreateValidation(t *testing.T) {
	cases := []struct {
		name  string
		mut   func(*CreateParams)
		field string
	}{
		{"missing title", func(p *CreateParams) { p.Title = "  " }, "title"},
		{"missing category", func(p *CreateParams) { p.Category = "" }, "category"},
		{"missing status", func(p *CreateParams) { p.Status = "" }, "status"},
		{"missing user", func(p *CreateParams) { p.UserID = "" }, "userId"},
		{"missing date", func(p *CreateParams) { p.DisputeDate = time.Time{} }, "disputeDate"},
		{"nan amount", func(p *CreateParams) { p.DisputeAmount = math.NaN() }, "disputeAmount"},
		{"infinite amount", func(p *CreateParams) { p.DisputeAmount = math.Inf(1) }, "disputeAmount"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			svc := NewService(store, nil)

			p := validParams()
			tc.mut(&p)
			_, err := svc.Create(context.Background(), p)

			var verr *db.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
			if store.creates != 0 {
				t.Fatalf("store must not be called on invalid input")
			}
		})
	}
}

func TestService_CreateNormalizes(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	p := validParams()
	p.Title = "  Billing error  "
	p.DisputeDate = time.Date(2024, 1, 1, 12, 0, 0, 123456789, time.FixedZone("CET", 3600))

	rec, err := svc.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Title != "Billing error" {
		t.Fatalf("expected trimmed title, got %q", rec.Title)
	}
	want := time.Date(2024, 1, 1, 11, 0, 0, 123456000, time.UTC)
	if !rec.DisputeDate.Equal(want) || rec.DisputeDate.Location() != time.UTC {
		t.Fatalf("expected %s, got %s", want, rec.DisputeDate)
	}
	if !rec.CreatedAt.Equal(rec.UpdatedAt) {
		t.Fatalf("expected createdAt == updatedAt, got %s vs %s", rec.CreatedAt, rec.UpdatedAt)
	}
}

func TestService_UpdateValidation(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	rec, _ := svc.Create(context.Background(), validParams())

	if _, err := svc.Update(context.Background(), rec.ID, UpdateParams{}); !errors.Is(err, db.ErrValidation) {
		t.Fatalf("expected validation error for empty patch, got %v", err)
	}

	blank := " "
	if _, err := svc.Update(context.Background(), rec.ID, UpdateParams{Status: &blank}); !errors.Is(err, db.ErrValidation) {
		t.Fatalf("expected validation error for blank status, got %v", err)
	}

	nan := math.NaN()
	if _, err := svc.Update(context.Background(), rec.ID, UpdateParams{DisputeAmount: &nan}); !errors.Is(err, db.ErrValidation) {
		t.Fatalf("expected validation error for NaN amount, got %v", err)
	}

	if store.updates != 0 {
		t.Fatalf("store must not be called on invalid patch")
	}
}

func TestService_UpdateRefreshesUpdatedAt(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	rec, _ := svc.Create(context.Background(), validParams())

	status := "resolved"
	updated, err := svc.Update(context.Background(), rec.ID, UpdateParams{Status: &status})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != "resolved" {
		t.Fatalf("expected status resolved, got %q", updated.Status)
	}
	if !updated.UpdatedAt.After(rec.UpdatedAt) {
		t.Fatalf("expected updatedAt to advance: %s -> %s", rec.UpdatedAt, updated.UpdatedAt)
	}
	if updated.ID != rec.ID || !updated.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("id and createdAt must not change: %+v vs %+v", rec, updated)
	}
}

func TestService_NotFound(t *testing.T) {
	svc := NewService(newFakeStore(), nil)
	ctx := context.Background()

	if _, err := svc.Get(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get: expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Get(ctx, 0); !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("get zero id: expected db.ErrNotFound, got %v", err)
	}
	title := "x"
	if _, err := svc.Update(ctx, 42, UpdateParams{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update: expected ErrNotFound, got %v", err)
	}
	if err := svc.Delete(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("delete: expected ErrNotFound, got %v", err)
	}
}

func TestService_DeletePurgesEvidenceFiles(t *testing.T) {
	store := newFakeStore()
	blobs := &fakeBlobs{failOn: "evidence/b.pdf"}
	svc := NewService(store, nil, WithBlobRemover(blobs))

	rec, _ := svc.Create(context.Background(), validParams())
	store.evidence[rec.ID] = []string{"evidence/a.pdf", "evidence/b.pdf", "evidence/c.png"}

	if err := svc.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	sort.Strings(blobs.deleted)
	if len(blobs.deleted) != 3 {
		t.Fatalf("expected every path to be attempted, got %v", blobs.deleted)
	}
	if _, err := svc.Get(context.Background(), rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected dispute to be gone, got %v", err)
	}
}

func TestService_ListFilter(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)

	if _, err := svc.List(context.Background(), ListFilter{}); !errors.Is(err, db.ErrValidation) {
		t.Fatalf("expected validation error without user, got %v", err)
	}
	if _, err := svc.List(context.Background(), ListFilter{UserID: "u1", Offset: -1}); !errors.Is(err, db.ErrValidation) {
		t.Fatalf("expected validation error for negative offset, got %v", err)
	}

	if _, err := svc.List(context.Background(), ListFilter{UserID: "u1", Limit: 10_000}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if store.lastFilter.Limit != MaxListLimit {
		t.Fatalf("expected limit clamped to %d, got %d", MaxListLimit, store.lastFilter.Limit)
	}

	if _, err := svc.List(context.Background(), ListFilter{UserID: "u1"}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if store.lastFilter.Limit != DefaultListLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultListLimit, store.lastFilter.Limit)
	}
}

func TestService_TimeoutBoundsStoreCalls(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil, WithTimeout(50*time.Millisecond))

	if _, err := svc.Get(context.Background(), 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !store.hadDeadline {
		t.Fatal("expected store call to carry a deadline")
	}
}

type fakeStore struct {
	records     map[int64]Record
	evidence    map[int64][]string
	nextID      int64
	clock       time.Time
	creates     int
	updates     int
	lastFilter  ListFilter
	hadDeadline bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		records:  make(map[int64]Record),
		evidence: make(map[int64][]string),
		nextID:   1,
		clock:    time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeStore) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func (f *fakeStore) Create(_ context.Context, p CreateParams) (Record, error) {
	f.creates++
	now := f.tick()
	rec := Record{
		ID:                 f.nextID,
		Title:              p.Title,
		Category:           p.Category,
		Location:           p.Location,
		Description:        p.Description,
		DisputeAmount:      p.DisputeAmount,
		ExpectedResolution: p.ExpectedResolution,
		OtherPartyName:     p.OtherPartyName,
		OtherPartyContact:  p.OtherPartyContact,
		DisputeDate:        p.DisputeDate,
		Status:             p.Status,
		UserID:             p.UserID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	f.nextID++
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeStore) Get(ctx context.Context, id int64) (Record, error) {
	_, f.hadDeadline = ctx.Deadline()
	rec, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) Update(_ context.Context, id int64, p UpdateParams) (Record, error) {
	f.updates++
	rec, ok := f.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	if p.IfUpdatedAt != nil && !p.IfUpdatedAt.Equal(rec.UpdatedAt) {
		return Record{}, ErrConflict
	}
	if p.Title != nil {
		rec.Title = *p.Title
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.DisputeAmount != nil {
		rec.DisputeAmount = *p.DisputeAmount
	}
	rec.UpdatedAt = f.tick()
	f.records[id] = rec
	return rec, nil
}

func (f *fakeStore) Delete(_ context.Context, id int64) (DeleteResult, error) {
	if _, ok := f.records[id]; !ok {
		return DeleteResult{}, ErrNotFound
	}
	delete(f.records, id)
	paths := f.evidence[id]
	delete(f.evidence, id)
	return DeleteResult{EvidencePaths: paths}, nil
}

func (f *fakeStore) List(_ context.Context, filter ListFilter) ([]Record, error) {
	f.lastFilter = filter
	out := []Record{}
	for _, rec := range f.records {
		if rec.UserID == filter.UserID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeBlobs struct {
	deleted []string
	failOn  string
}

func (f *fakeBlobs) Delete(_ context.Context, path string) error {
	f.deleted = append(f.deleted, path)
	if path == f.failOn {
		return errors.New("storage offline")
	}
	return nil
}
