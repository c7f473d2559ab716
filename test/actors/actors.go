// Package actors drives concurrent load against the dispute and evidence
// services for the stress test.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"disputedesk/db"
	"disputedesk/dispute"
	"disputedesk/evidence"
)

const UserID = "stress-user"

// Live tracks dispute ids that were created and not yet deleted by an actor.
type Live struct {
	mu  sync.Mutex
	ids []int64
}

func (l *Live) Add(id int64) {
	l.mu.Lock()
	l.ids = append(l.ids, id)
	l.mu.Unlock()
}

func (l *Live) Pick(rng *rand.Rand) (int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.ids) == 0 {
		return 0, false
	}
	return l.ids[rng.Intn(len(l.ids))], true
}

func (l *Live) Remove(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, v := range l.ids {
		if v == id {
			l.ids[i] = l.ids[len(l.ids)-1]
			l.ids = l.ids[:len(l.ids)-1]
			return
		}
	}
}

// Env is shared by every actor.
type Env struct {
	Disputes *dispute.Service
	Evidence *evidence.Service
	Live     *Live
	Stop     <-chan struct{}
	// Tolerate reports errors that are expected while chaos is injected.
	Tolerate func(error) bool
}

func (e Env) stopped(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		return true, ctx.Err()
	case <-e.Stop:
		return true, nil
	default:
		return false, nil
	}
}

func (e Env) unexpected(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return false
		}
	}
	return e.Tolerate == nil || !e.Tolerate(err)
}

func NewDispute(ctx context.Context, svc *dispute.Service, rng *rand.Rand) (dispute.Record, error) {
	return svc.Create(ctx, dispute.CreateParams{
		Title:         fmt.Sprintf("stress %d", rng.Int63()),
		Category:      []string{"finance", "delivery", "service"}[rng.Intn(3)],
		DisputeAmount: float64(rng.Intn(100_000)) / 100,
		DisputeDate:   time.Now().UTC(),
		Status:        "open",
		UserID:        UserID,
	})
}

// Updater races compare-and-swap updates on shared disputes. A successful
// update must move UpdatedAt strictly forward.
func Updater(ctx context.Context, env Env, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	statuses := []string{"open", "in_review", "resolved"}
	for {
		if done, err := env.stopped(ctx); done {
			return err
		}
		id, ok := env.Live.Pick(rng)
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		cur, err := env.Disputes.Get(ctx, id)
		if err != nil {
			if env.unexpected(err, db.ErrNotFound) {
				return fmt.Errorf("updater get %d: %w", id, err)
			}
			continue
		}

		status := statuses[rng.Intn(len(statuses))]
		before := cur.UpdatedAt
		next, err := env.Disputes.Update(ctx, id, dispute.UpdateParams{Status: &status, IfUpdatedAt: &before})
		switch {
		case err == nil:
			if !next.UpdatedAt.After(before) {
				return fmt.Errorf("updater: dispute %d updatedAt did not advance: %s -> %s", id, before, next.UpdatedAt)
			}
			if !next.CreatedAt.Equal(cur.CreatedAt) {
				return fmt.Errorf("updater: dispute %d createdAt changed", id)
			}
		case env.unexpected(err, db.ErrConflict, db.ErrNotFound):
			return fmt.Errorf("updater update %d: %w", id, err)
		}
		time.Sleep(time.Duration(5+rng.Intn(15)) * time.Millisecond)
	}
}

// Attacher adds evidence to disputes that may be deleted concurrently.
func Attacher(ctx context.Context, env Env, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	for {
		if done, err := env.stopped(ctx); done {
			return err
		}
		id, ok := env.Live.Pick(rng)
		if !ok {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		_, err := env.Evidence.Create(ctx, evidence.CreateParams{
			DisputeID: id,
			FilePath:  fmt.Sprintf("evidence/%d.bin", rng.Int63()),
			FileName:  "capture.bin",
			FileType:  "application/octet-stream",
			FileSize:  rng.Int63n(1 << 20),
		})
		if err != nil && env.unexpected(err, db.ErrForeignKeyViolation) {
			return fmt.Errorf("attacher %d: %w", id, err)
		}
		time.Sleep(time.Duration(5+rng.Intn(20)) * time.Millisecond)
	}
}

// Churner deletes disputes and creates replacements so the live set keeps
// moving under the other actors.
func Churner(ctx context.Context, env Env, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	for {
		if done, err := env.stopped(ctx); done {
			return err
		}
		if id, ok := env.Live.Pick(rng); ok && rng.Intn(2) == 0 {
			env.Live.Remove(id)
			if err := env.Disputes.Delete(ctx, id); err != nil && env.unexpected(err, db.ErrNotFound) {
				return fmt.Errorf("churner delete %d: %w", id, err)
			}
		}
		rec, err := NewDispute(ctx, env.Disputes, rng)
		if err != nil {
			if env.unexpected(err) {
				return fmt.Errorf("churner create: %w", err)
			}
		} else {
			env.Live.Add(rec.ID)
		}
		time.Sleep(time.Duration(20+rng.Intn(40)) * time.Millisecond)
	}
}

// Lister checks that listings stay ordered newest first while rows change.
func Lister(ctx context.Context, env Env, seed int64) error {
	rng := rand.New(rand.NewSource(seed))
	for {
		if done, err := env.stopped(ctx); done {
			return err
		}
		records, err := env.Disputes.List(ctx, dispute.ListFilter{UserID: UserID, Limit: dispute.MaxListLimit})
		if err != nil {
			if env.unexpected(err) {
				return fmt.Errorf("lister: %w", err)
			}
			continue
		}
		for i := 1; i < len(records); i++ {
			prev, cur := records[i-1], records[i]
			if cur.CreatedAt.After(prev.CreatedAt) || (cur.CreatedAt.Equal(prev.CreatedAt) && cur.ID > prev.ID) {
				return fmt.Errorf("lister: order broken at %d: %d before %d", i, prev.ID, cur.ID)
			}
		}
		time.Sleep(time.Duration(30+rng.Intn(50)) * time.Millisecond)
	}
}
