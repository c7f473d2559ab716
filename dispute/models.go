package dispute

import "time"

// Record mirrors the disputes table. Status is free-form text; no workflow is
// attached to it.
type Record struct {
	ID                 int64
	Title              string
	Category           string
	Location           string
	Description        string
	DisputeAmount      float64
	ExpectedResolution string
	OtherPartyName     string
	OtherPartyContact  string
	DisputeDate        time.Time
	Status             string
	UserID             string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CreateParams carries the user supplied fields of a new dispute.
type CreateParams struct {
	Title              string
	Category           string
	Location           string
	Description        string
	DisputeAmount      float64
	ExpectedResolution string
	OtherPartyName     string
	OtherPartyContact  string
	DisputeDate        time.Time
	Status             string
	UserID             string
}

// UpdateParams is a partial update: nil fields are left untouched.
// When IfUpdatedAt is set the update only applies if the stored UpdatedAt
// still equals it.
type UpdateParams struct {
	Title              *string
	Category           *string
	Location           *string
	Description        *string
	DisputeAmount      *float64
	ExpectedResolution *string
	OtherPartyName     *string
	OtherPartyContact  *string
	DisputeDate        *time.Time
	Status             *string

	IfUpdatedAt *time.Time
}

// ListFilter selects the disputes of one user. Status and Category are
// optional equality filters.
type ListFilter struct {
	UserID   string
	Status   string
	Category string
	Limit    int
	Offset   int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// DeleteResult reports what a delete removed. EvidencePaths holds the blob
// keys of uploaded evidence removed by the cascade; registered references are
// not included.
type DeleteResult struct {
	EvidencePaths []string
}
