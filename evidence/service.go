package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"disputedesk/db"
)

// ErrNoContent means the evidence has metadata but no stored file.
var ErrNoContent = fmt.Errorf("evidence: no stored file: %w", db.ErrNotFound)

type Store interface {
	Create(ctx context.Context, p CreateParams) (Record, error)
	Get(ctx context.Context, id int64) (Record, error)
	Update(ctx context.Context, id int64, p UpdateParams) (Record, error)
	Delete(ctx context.Context, id int64) (Record, error)
	ListByDispute(ctx context.Context, disputeID int64) ([]Record, error)
}

// Blobs stores evidence file bytes.
type Blobs interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (path string, size int64, err error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
}

type Service struct {
	store   Store
	blobs   Blobs
	timeout time.Duration
	logger  *zap.Logger
}

// NewService builds the evidence service. blobs may be nil when only metadata
// is managed; Upload and Open then fail.
func NewService(store Store, blobs Blobs, timeout time.Duration, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, blobs: blobs, timeout: timeout, logger: logger}
}

// Create registers metadata for a file stored elsewhere. The row is never
// marked stored, so its FilePath is not read or purged from blob storage.
func (s *Service) Create(ctx context.Context, p CreateParams) (Record, error) {
	p.normalize()
	p.Stored = false
	if err := p.Validate(); err != nil {
		return Record{}, fmt.Errorf("evidence: create: %w", err)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	rec, err := s.store.Create(ctx, p)
	if err != nil {
		return Record{}, err
	}
	s.logger.Info("evidence registered",
		zap.Int64("evidence_id", rec.ID),
		zap.Int64("dispute_id", rec.DisputeID),
		zap.String("file_type", rec.FileType),
	)
	return rec, nil
}

// Upload writes the body to blob storage and records its metadata. If the
// metadata cannot be stored the blob is removed again.
func (s *Service) Upload(ctx context.Context, p UploadParams) (Record, error) {
	if s.blobs == nil {
		return Record{}, errors.New("evidence: upload: no blob storage configured")
	}
	if p.Body == nil {
		return Record{}, fmt.Errorf("evidence: upload: %w", db.Invalid("file", "is required"))
	}

	params := CreateParams{
		DisputeID: p.DisputeID,
		FileName:  cleanName(p.FileName),
	}
	params.FileType = detectType(params.FileName, p.FileType)
	// Size is unknown until the body is stored; validate everything else first.
	if err := params.Validate(); err != nil {
		return Record{}, fmt.Errorf("evidence: upload: %w", err)
	}

	path, size, err := s.blobs.Put(ctx, params.FileName, params.FileType, p.Body)
	if err != nil {
		return Record{}, fmt.Errorf("evidence: store file: %w", err)
	}
	params.FilePath = path
	params.FileSize = size
	params.Stored = true

	storeCtx, cancel := s.bound(ctx)
	rec, err := s.store.Create(storeCtx, params)
	cancel()
	if err != nil {
		if derr := s.blobs.Delete(ctx, path); derr != nil {
			s.logger.Warn("remove orphaned upload", zap.String("path", path), zap.Error(derr))
		}
		return Record{}, err
	}

	s.logger.Info("evidence uploaded",
		zap.Int64("evidence_id", rec.ID),
		zap.Int64("dispute_id", rec.DisputeID),
		zap.Int64("file_size", rec.FileSize),
	)
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

// Open returns the record and a reader over its stored bytes. The caller
// closes the reader.
func (s *Service) Open(ctx context.Context, id int64) (Record, io.ReadCloser, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return Record{}, nil, err
	}
	if !rec.Stored {
		return Record{}, nil, ErrNoContent
	}
	if s.blobs == nil {
		return Record{}, nil, errors.New("evidence: open: no blob storage configured")
	}
	body, err := s.blobs.Open(ctx, rec.FilePath)
	if err != nil {
		return Record{}, nil, fmt.Errorf("evidence: open %d: %w", id, err)
	}
	return rec, body, nil
}

func (s *Service) Update(ctx context.Context, id int64, p UpdateParams) (Record, error) {
	if id <= 0 {
		return Record{}, ErrNotFound
	}
	p.normalize()
	if err := p.Validate(); err != nil {
		return Record{}, fmt.Errorf("evidence: update: %w", err)
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	if p.FilePath != nil || p.FileSize != nil {
		rec, err := s.store.Get(ctx, id)
		if err != nil {
			return Record{}, err
		}
		if rec.Stored {
			return Record{}, fmt.Errorf("evidence: update: %w", db.Invalid("filePath", "is fixed for an uploaded file"))
		}
	}
	return s.store.Update(ctx, id, p)
}

// Delete removes the metadata row, then the stored file. A failed file purge
// is logged and does not fail the call.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrNotFound
	}

	storeCtx, cancel := s.bound(ctx)
	rec, err := s.store.Delete(storeCtx, id)
	cancel()
	if err != nil {
		return err
	}

	s.logger.Info("evidence deleted", zap.Int64("evidence_id", id), zap.Int64("dispute_id", rec.DisputeID))
	if rec.Stored && s.blobs != nil {
		if err := s.blobs.Delete(ctx, rec.FilePath); err != nil {
			s.logger.Warn("purge evidence file", zap.Int64("evidence_id", id), zap.String("path", rec.FilePath), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) ListByDispute(ctx context.Context, disputeID int64) ([]Record, error) {
	if disputeID <= 0 {
		return []Record{}, nil
	}
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.store.ListByDispute(ctx, disputeID)
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
