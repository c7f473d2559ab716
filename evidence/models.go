package evidence

import "io"

// Record mirrors the evidence table. This store only keeps metadata. When
// Stored is set the bytes were uploaded through Service.Upload and live in
// blob storage under FilePath; otherwise FilePath is an opaque reference the
// client registered and is never resolved against blob storage.
type Record struct {
	ID        int64
	FilePath  string
	FileName  string
	FileType  string
	FileSize  int64
	DisputeID int64
	Stored    bool
}

type CreateParams struct {
	DisputeID int64
	FilePath  string
	FileName  string
	FileType  string
	FileSize  int64
	Stored    bool
}

// UpdateParams changes metadata only; an evidence row never moves to another
// dispute. FilePath and FileSize of a stored upload are fixed.
type UpdateParams struct {
	FilePath *string
	FileName *string
	FileType *string
	FileSize *int64
}

// UploadParams streams a file into blob storage and registers it.
type UploadParams struct {
	DisputeID int64
	FileName  string
	FileType  string
	Body      io.Reader
}
