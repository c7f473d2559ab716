package main

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/samber/lo"

	"disputedesk/db"
	"disputedesk/dispute"
	"disputedesk/evidence"
	"disputedesk/market"
)

// dateValue accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
type dateValue struct{ time.Time }

func (d *dateValue) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return db.Invalid("disputeDate", "must be a string")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		d.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return db.Invalid("disputeDate", "must be RFC 3339 or YYYY-MM-DD")
}

type createDisputeRequest struct {
	Title              string    `json:"title"`
	Category           string    `json:"category"`
	Location           string    `json:"location"`
	Description        string    `json:"description"`
	DisputeAmount      *float64  `json:"disputeAmount"`
	ExpectedResolution string    `json:"expectedResolution"`
	OtherPartyName     string    `json:"otherPartyName"`
	OtherPartyContact  string    `json:"otherPartyContact"`
	DisputeDate        dateValue `json:"disputeDate"`
	Status             string    `json:"status"`
}

func (r createDisputeRequest) params(userID string) (dispute.CreateParams, error) {
	if r.DisputeAmount == nil {
		return dispute.CreateParams{}, db.Invalid("disputeAmount", "is required")
	}
	return dispute.CreateParams{
		Title:              r.Title,
		Category:           r.Category,
		Location:           r.Location,
		Description:        r.Description,
		DisputeAmount:      *r.DisputeAmount,
		ExpectedResolution: r.ExpectedResolution,
		OtherPartyName:     r.OtherPartyName,
		OtherPartyContact:  r.OtherPartyContact,
		DisputeDate:        r.DisputeDate.Time,
		Status:             r.Status,
		UserID:             userID,
	}, nil
}

type updateDisputeRequest struct {
	Title              *string    `json:"title"`
	Category           *string    `json:"category"`
	Location           *string    `json:"location"`
	Description        *string    `json:"description"`
	DisputeAmount      *float64   `json:"disputeAmount"`
	ExpectedResolution *string    `json:"expectedResolution"`
	OtherPartyName     *string    `json:"otherPartyName"`
	OtherPartyContact  *string    `json:"otherPartyContact"`
	DisputeDate        *dateValue `json:"disputeDate"`
	Status             *string    `json:"status"`
	IfUpdatedAt        *time.Time `json:"ifUpdatedAt"`
}

func (r updateDisputeRequest) params() dispute.UpdateParams {
	p := dispute.UpdateParams{
		Title:              r.Title,
		Category:           r.Category,
		Location:           r.Location,
		Description:        r.Description,
		DisputeAmount:      r.DisputeAmount,
		ExpectedResolution: r.ExpectedResolution,
		OtherPartyName:     r.OtherPartyName,
		OtherPartyContact:  r.OtherPartyContact,
		Status:             r.Status,
		IfUpdatedAt:        r.IfUpdatedAt,
	}
	if r.DisputeDate != nil {
		p.DisputeDate = &r.DisputeDate.Time
	}
	return p
}

type disputeResponse struct {
	ID                 int64     `json:"id"`
	Title              string    `json:"title"`
	Category           string    `json:"category"`
	Location           string    `json:"location"`
	Description        string    `json:"description"`
	DisputeAmount      float64   `json:"disputeAmount"`
	ExpectedResolution string    `json:"expectedResolution"`
	OtherPartyName     string    `json:"otherPartyName"`
	OtherPartyContact  string    `json:"otherPartyContact"`
	DisputeDate        time.Time `json:"disputeDate"`
	Status             string    `json:"status"`
	UserID             string    `json:"userId"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func newDisputeResponse(r dispute.Record) disputeResponse {
	return disputeResponse{
		ID:                 r.ID,
		Title:              r.Title,
		Category:           r.Category,
		Location:           r.Location,
		Description:        r.Description,
		DisputeAmount:      r.DisputeAmount,
		ExpectedResolution: r.ExpectedResolution,
		OtherPartyName:     r.OtherPartyName,
		OtherPartyContact:  r.OtherPartyContact,
		DisputeDate:        r.DisputeDate,
		Status:             r.Status,
		UserID:             r.UserID,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

type createEvidenceRequest struct {
	FilePath string `json:"filePath"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

type updateEvidenceRequest struct {
	FilePath *string `json:"filePath"`
	FileName *string `json:"fileName"`
	FileType *string `json:"fileType"`
	FileSize *int64  `json:"fileSize"`
}

func (r updateEvidenceRequest) params() evidence.UpdateParams {
	return evidence.UpdateParams(r)
}

type evidenceResponse struct {
	ID        int64  `json:"id"`
	FilePath  string `json:"filePath"`
	FileName  string `json:"fileName"`
	FileType  string `json:"fileType"`
	FileSize  int64  `json:"fileSize"`
	DisputeID int64  `json:"disputeId"`
	Stored    bool   `json:"stored"`
}

func newEvidenceResponse(r evidence.Record) evidenceResponse {
	return evidenceResponse(r)
}

type marketRateResponse struct {
	Category       string  `json:"category"`
	Location       string  `json:"location"`
	KnownCategory  bool    `json:"knownCategory"`
	KnownLocation  bool    `json:"knownLocation"`
	BaseRate       float64 `json:"baseRate"`
	LocationFactor float64 `json:"locationFactor"`
	MaterialShare  float64 `json:"materialCostShare"`
	AdjustedRate   float64 `json:"adjustedRate"`
	MinRate        float64 `json:"minMarketRate"`
	MaxRate        float64 `json:"maxMarketRate"`
	Currency       string  `json:"currency"`
	Unit           string  `json:"unit"`
	DisputeAmount  float64 `json:"disputeAmount"`
	Position       string  `json:"position"`
	Deviation      float64 `json:"deviation"`
}

func newMarketRateResponse(a market.Assessment) marketRateResponse {
	return marketRateResponse{
		Category:       a.Category,
		Location:       a.Location,
		KnownCategory:  a.KnownCategory,
		KnownLocation:  a.KnownLocation,
		BaseRate:       a.BaseRate,
		LocationFactor: a.LocationFactor,
		MaterialShare:  a.MaterialShare,
		AdjustedRate:   a.AdjustedRate,
		MinRate:        a.MinRate,
		MaxRate:        a.MaxRate,
		Currency:       market.Currency,
		Unit:           market.Unit,
		DisputeAmount:  a.Amount,
		Position:       string(a.Position),
		Deviation:      a.Deviation,
	}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func disputeList(records []dispute.Record) listResponse[disputeResponse] {
	items := lo.Map(records, func(r dispute.Record, _ int) disputeResponse {
		return newDisputeResponse(r)
	})
	return listResponse[disputeResponse]{Items: items, Count: len(items)}
}

func evidenceList(records []evidence.Record) listResponse[evidenceResponse] {
	items := lo.Map(records, func(r evidence.Record, _ int) evidenceResponse {
		return newEvidenceResponse(r)
	})
	return listResponse[evidenceResponse]{Items: items, Count: len(items)}
}
