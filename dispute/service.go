package dispute

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store is the persistence contract the service relies on.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	Update(ctx context.Context, id int64, p UpdateParams) (Record, error)
	Delete(ctx context.Context, id int64) (DeleteResult, error)
	List(ctx context.Context, f ListFilter) ([]Record, error)
}

// BlobRemover deletes stored evidence files. It is optional.
type BlobRemover interface {
	Delete(ctx context.Context, path string) error
}

// Service validates input and bounds every store call with a timeout.
type Service struct {
	store   Store
	blobs   BlobRemover
	timeout time.Duration
	logger  *zap.Logger
}

type Option func(*Service)

// WithBlobRemover purges the files of cascaded evidence after a delete.
func WithBlobRemover(b BlobRemover) Option {
	return func(s *Service) { s.blobs = b }
}

// WithTimeout bounds each store call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

func NewService(store Store, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

func (s *Service) Create(ctx context.Context, p CreateParams) (Record, error) {
	p.normalize()
	if err := p.Validate(); err != nil {
		return Record{}, fmt.Errorf("dispute: create: %w", err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	rec, err := s.store.Create(ctx, p)
	if err != nil {
		return Record{}, err
	}
	s.logger.Info("dispute created", zap.Int64("dispute_id", rec.ID), zap.String("user_id", rec.UserID))
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Record, error) {
	if id <= 0 {
		return Record{}, ErrNotFound
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.store.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, id int64, p UpdateParams) (Record, error) {
	if id <= 0 {
		return Record{}, ErrNotFound
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return Record{}, fmt.Errorf("dispute: update: %w", err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	rec, err := s.store.Update(ctx, id, p)
	if err != nil {
		return Record{}, err
	}
	s.logger.Debug("dispute updated", zap.Int64("dispute_id", id), zap.Time("updated_at", rec.UpdatedAt))
	return rec, nil
}

// Delete removes the dispute and its evidence. Stored files of the removed
// evidence are purged afterwards; purge failures are logged, not returned.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}

	storeCtx, cancel := s.bound(ctx)
	res, err := s.store.Delete(storeCtx, id)
	cancel()
	if err != nil {
		return err
	}

	s.logger.Info("dispute deleted",
		zap.Int64("dispute_id", id),
		zap.Int("evidence_removed", len(res.EvidencePaths)),
	)
	if s.blobs == nil {
		return nil
	}
	for _, path := range res.EvidencePaths {
		if err := s.blobs.Delete(ctx, path); err != nil {
			s.logger.Warn("purge evidence file", zap.Int64("dispute_id", id), zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

// List returns the user's disputes ordered by creation time, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Record, error) {
	if err := f.normalize(); err != nil {
		return nil, fmt.Errorf("dispute: list: %w", err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.store.List(ctx, f)
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
