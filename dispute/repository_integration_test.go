package dispute

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"disputedesk/db"
	"disputedesk/test/infra"
)

var shared *infra.Shared

func TestMain(m *testing.M) {
	ctx := context.Background()
	if os.Getenv("SKIP_INTEGRATION") == "" {
		shared = infra.StartShared(ctx)
	}
	code := m.Run()
	shared.Close(ctx)
	os.Exit(code)
}

func newIntegrationService(t *testing.T) (*Service, *pgxpool.Pool) {
	t.Helper()
	pool := shared.Pool(t)
	return NewService(NewRepository(pool), nil, WithTimeout(5*time.Second)), pool
}

func TestRepository_CreateGetRoundTrip(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()

	in := CreateParams{
		Title:              "Billing error",
		Category:           "finance",
		Location:           "Berlin",
		Description:        "Charged twice for March",
		DisputeAmount:      49.99,
		ExpectedResolution: "Refund the duplicate charge",
		OtherPartyName:     "ACME Telecom",
		OtherPartyContact:  "billing@acme.example",
		DisputeDate:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:             "open",
		UserID:             "u1",
	}

	created, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID <= 0 {
		t.Fatalf("expected generated id, got %d", created.ID)
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("expected createdAt == updatedAt, got %s / %s", created.CreatedAt, created.UpdatedAt)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != in.Title || got.Category != in.Category || got.Location != in.Location ||
		got.Description != in.Description || got.DisputeAmount != in.DisputeAmount ||
		got.ExpectedResolution != in.ExpectedResolution || got.OtherPartyName != in.OtherPartyName ||
		got.OtherPartyContact != in.OtherPartyContact || !got.DisputeDate.Equal(in.DisputeDate) ||
		got.Status != in.Status || got.UserID != in.UserID {
		t.Fatalf("round trip mismatch:\n in: %+v\ngot: %+v", in, got)
	}

	second, err := svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if second.ID == created.ID {
		t.Fatalf("expected unique ids, both %d", second.ID)
	}
}

func TestRepository_UpdateAdvancesUpdatedAt(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	prev := created
	for _, status := range []string{"in_review", "escalated", "closed"} {
		s := status
		updated, err := svc.Update(ctx, created.ID, UpdateParams{Status: &s})
		if err != nil {
			t.Fatalf("update to %s: %v", status, err)
		}
		if !updated.UpdatedAt.After(prev.UpdatedAt) {
			t.Fatalf("updatedAt did not advance: %s -> %s", prev.UpdatedAt, updated.UpdatedAt)
		}
		if updated.ID != created.ID || !updated.CreatedAt.Equal(created.CreatedAt) {
			t.Fatalf("id/createdAt changed: %+v", updated)
		}
		if updated.Status != status || updated.Title != created.Title {
			t.Fatalf("unexpected record after update: %+v", updated)
		}
		prev = updated
	}

	amount := 10.5
	updated, err := svc.Update(ctx, created.ID, UpdateParams{DisputeAmount: &amount})
	if err != nil {
		t.Fatalf("update amount: %v", err)
	}
	if updated.DisputeAmount != 10.5 || updated.Status != "closed" {
		t.Fatalf("partial update touched other fields: %+v", updated)
	}
}

func TestRepository_UpdateMissing(t *testing.T) {
	svc, _ := newIntegrationService(t)

	title := "ghost"
	_, err := svc.Update(context.Background(), 999_999, UpdateParams{Title: &title})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	stale := time.Now()
	_, err = svc.Update(context.Background(), 999_999, UpdateParams{Title: &title, IfUpdatedAt: &stale})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound with precondition on missing row, got %v", err)
	}
}

func TestRepository_OptimisticConcurrency(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, validParams())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := "claimed"
			expected := created.UpdatedAt
			_, err := svc.Update(ctx, created.ID, UpdateParams{Status: &status, IfUpdatedAt: &expected})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, db.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != writers-1 {
		t.Fatalf("expected exactly one winner, got wins=%d conflicts=%d", wins, conflicts)
	}
}

func TestRepository_DeleteCascadesEvidence(t *testing.T) {
	svc, pool := newIntegrationService(t)
	ctx := context.Background()

	keep, err := svc.Create(ctx, validParams())
	if err != nil {
		t.Fatalf("create keep: %v", err)
	}
	doomed, err := svc.Create(ctx, validParams())
	if err != nil {
		t.Fatalf("create doomed: %v", err)
	}

	insertEvidence(t, pool, doomed.ID, "evidence/receipt.pdf", true)
	insertEvidence(t, pool, doomed.ID, "", false)
	insertEvidence(t, pool, doomed.ID, "other/secret.txt", false)
	insertEvidence(t, pool, keep.ID, "evidence/other.pdf", true)

	blobs := &fakeBlobs{}
	svc.blobs = blobs
	if err := svc.Delete(ctx, doomed.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if len(blobs.deleted) != 1 || blobs.deleted[0] != "evidence/receipt.pdf" {
		t.Fatalf("expected only the uploaded file to be purged, got %v", blobs.deleted)
	}
	if n := countEvidence(t, pool, doomed.ID); n != 0 {
		t.Fatalf("expected cascade to remove evidence, %d left", n)
	}
	if n := countEvidence(t, pool, keep.ID); n != 1 {
		t.Fatalf("expected unrelated evidence to survive, got %d", n)
	}
	if _, err := svc.Get(ctx, doomed.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(ctx, doomed.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestRepository_ListOrderingAndFilters(t *testing.T) {
	svc, _ := newIntegrationService(t)
	ctx := context.Background()

	var ids []int64
	for _, c := range []struct{ user, category, status string }{
		{"u1", "finance", "open"},
		{"u1", "housing", "open"},
		{"u2", "finance", "open"},
		{"u1", "finance", "closed"},
	} {
		p := validParams()
		p.UserID, p.Category, p.Status = c.user, c.category, c.status
		rec, err := svc.Create(ctx, p)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, rec.ID)
	}

	all, err := svc.List(ctx, ListFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 disputes for u1, got %d", len(all))
	}
	if all[0].ID != ids[3] || all[1].ID != ids[1] || all[2].ID != ids[0] {
		t.Fatalf("expected newest first, got %d %d %d", all[0].ID, all[1].ID, all[2].ID)
	}

	finance, err := svc.List(ctx, ListFilter{UserID: "u1", Category: "finance", Status: "open"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(finance) != 1 || finance[0].ID != ids[0] {
		t.Fatalf("unexpected filtered result: %+v", finance)
	}

	page, err := svc.List(ctx, ListFilter{UserID: "u1", Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].ID != ids[1] {
		t.Fatalf("unexpected page: %+v", page)
	}

	none, err := svc.List(ctx, ListFilter{UserID: "nobody"})
	if err != nil {
		t.Fatalf("list empty: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no disputes, got %d", len(none))
	}
}

func TestRepository_RunsInsideCallerTransaction(t *testing.T) {
	_, pool := newIntegrationService(t)
	ctx := context.Background()

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	rec, err := NewRepository(tx).Create(ctx, validParams())
	if err != nil {
		t.Fatalf("create in tx: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	if _, err := NewRepository(pool).Get(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected rolled back dispute to be absent, got %v", err)
	}
}

func insertEvidence(t *testing.T, pool *pgxpool.Pool, disputeID int64, path string, stored bool) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO evidence (dispute_id, file_path, file_name, file_type, file_size, stored) VALUES ($1, $2, 'receipt.pdf', 'application/pdf', 2048, $3)`,
		disputeID, path, stored)
	if err != nil {
		t.Fatalf("seed evidence: %v", err)
	}
}

func countEvidence(t *testing.T, pool *pgxpool.Pool, disputeID int64) int {
	t.Helper()
	var n int
	if err := pool.QueryRow(context.Background(), `SELECT COUNT(*) FROM evidence WHERE dispute_id = $1`, disputeID).Scan(&n); err != nil {
		t.Fatalf("count evidence: %v", err)
	}
	return n
}
