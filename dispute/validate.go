package dispute

import (
	"math"
	"strings"
	"time"

	"disputedesk/db"
)

func (p *CreateParams) normalize() {
	p.Title = strings.TrimSpace(p.Title)
	p.Category = strings.TrimSpace(p.Category)
	p.Location = strings.TrimSpace(p.Location)
	p.Description = strings.TrimSpace(p.Description)
	p.ExpectedResolution = strings.TrimSpace(p.ExpectedResolution)
	p.OtherPartyName = strings.TrimSpace(p.OtherPartyName)
	p.OtherPartyContact = strings.TrimSpace(p.OtherPartyContact)
	p.Status = strings.TrimSpace(p.Status)
	p.UserID = strings.TrimSpace(p.UserID)
	p.DisputeDate = storedTime(p.DisputeDate)
}

// Validate checks the required fields. Optional text fields may be empty.
func (p CreateParams) Validate() error {
	switch {
	case p.Title == "":
		return db.Invalid("title", "is required")
	case p.Category == "":
		return db.Invalid("category", "is required")
	case p.Status == "":
		return db.Invalid("status", "is required")
	case p.UserID == "":
		return db.Invalid("userId", "is required")
	case p.DisputeDate.IsZero():
		return db.Invalid("disputeDate", "is required")
	}
	return validAmount(p.DisputeAmount)
}

func (p *UpdateParams) normalize() {
	for _, s := range []*string{
		p.Title, p.Category, p.Location, p.Description,
		p.ExpectedResolution, p.OtherPartyName, p.OtherPartyContact, p.Status,
	} {
		if s != nil {
			*s = strings.TrimSpace(*s)
		}
	}
	if p.DisputeDate != nil {
		d := storedTime(*p.DisputeDate)
		p.DisputeDate = &d
	}
}

// Validate rejects empty patches and blanking of required fields.
func (p UpdateParams) Validate() error {
	if p.empty() {
		return db.Invalid("update", "has no fields")
	}
	required := []struct {
		field string
		value *string
	}{
		{"title", p.Title},
		{"category", p.Category},
		{"status", p.Status},
	}
	for _, r := range required {
		if r.value != nil && *r.value == "" {
			return db.Invalid(r.field, "must not be empty")
		}
	}
	if p.DisputeDate != nil && p.DisputeDate.IsZero() {
		return db.Invalid("disputeDate", "must not be zero")
	}
	if p.DisputeAmount != nil {
		return validAmount(*p.DisputeAmount)
	}
	return nil
}

func (p UpdateParams) empty() bool {
	return p.Title == nil && p.Category == nil && p.Location == nil &&
		p.Description == nil && p.DisputeAmount == nil && p.ExpectedResolution == nil &&
		p.OtherPartyName == nil && p.OtherPartyContact == nil && p.DisputeDate == nil &&
		p.Status == nil
}

func (f *ListFilter) normalize() error {
	f.UserID = strings.TrimSpace(f.UserID)
	if f.UserID == "" {
		return db.Invalid("userId", "is required")
	}
	if f.Offset < 0 {
		return db.Invalid("offset", "must not be negative")
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	return nil
}

func validAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return db.Invalid("disputeAmount", "must be a finite number")
	}
	return nil
}

// storedTime matches the precision Postgres keeps for timestamptz.
func storedTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}
