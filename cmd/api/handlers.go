package main

import (
	"errors"
	"fmt"
	"mime"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"disputedesk/db"
	"disputedesk/dispute"
	"disputedesk/evidence"
	"disputedesk/market"
)

func (s *Server) handleCreateDispute(c *fiber.Ctx) error {
	var req createDisputeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	params, err := req.params(currentUser(c))
	if err != nil {
		return err
	}
	rec, err := s.disputes.Create(c.UserContext(), params)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(newDisputeResponse(rec))
}

func (s *Server) handleListDisputes(c *fiber.Ctx) error {
	records, err := s.disputes.List(c.UserContext(), dispute.ListFilter{
		UserID:   currentUser(c),
		Status:   c.Query("status"),
		Category: c.Query("category"),
		Limit:    c.QueryInt("limit", 0),
		Offset:   c.QueryInt("offset", 0),
	})
	if err != nil {
		return err
	}
	return c.JSON(disputeList(records))
}

func (s *Server) handleGetDispute(c *fiber.Ctx) error {
	rec, err := s.ownedDispute(c)
	if err != nil {
		return err
	}
	return c.JSON(newDisputeResponse(rec))
}

func (s *Server) handleUpdateDispute(c *fiber.Ctx) error {
	rec, err := s.ownedDispute(c)
	if err != nil {
		return err
	}
	var req updateDisputeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := s.disputes.Update(c.UserContext(), rec.ID, req.params())
	if err != nil {
		return err
	}
	return c.JSON(newDisputeResponse(updated))
}

func (s *Server) handleDeleteDispute(c *fiber.Ctx) error {
	rec, err := s.ownedDispute(c)
	if err != nil {
		return err
	}
	if err := s.disputes.Delete(c.UserContext(), rec.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleMarketRate(c *fiber.Ctx) error {
	rec, err := s.ownedDispute(c)
	if err != nil {
		return err
	}
	return c.JSON(newMarketRateResponse(market.Assess(rec.Category, rec.Location, rec.DisputeAmount)))
}

func (s *Server) handleListEvidence(c *fiber.Ctx) error {
	rec, err := s.ownedDispute(c)
	if err != nil {
		return err
	}
	records, err := s.evidence.ListByDispute(c.UserContext(), rec.ID)
	if err != nil {
		return err
	}
	return c.JSON(evidenceList(records))
}

// handleCreateEvidence takes either a multipart upload in the "file" field or
// a JSON body registering a file kept elsewhere. Registered files have no
// downloadable content.
func (s *Server) handleCreateEvidence(c *fiber.Ctx) error {
	owner, err := s.ownedDispute(c)
	if err != nil {
		return err
	}

	mediaType, _, _ := mime.ParseMediaType(c.Get(fiber.HeaderContentType))
	if mediaType == fiber.MIMEMultipartForm {
		return s.uploadEvidence(c, owner.ID)
	}

	var req createEvidenceRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	rec, err := s.evidence.Create(c.UserContext(), evidence.CreateParams{
		DisputeID: owner.ID,
		FilePath:  req.FilePath,
		FileName:  req.FileName,
		FileType:  req.FileType,
		FileSize:  req.FileSize,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(newEvidenceResponse(rec))
}

func (s *Server) uploadEvidence(c *fiber.Ctx, disputeID int64) error {
	file, err := c.FormFile("file")
	if err != nil {
		return db.Invalid("file", "is required")
	}
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	rec, err := s.evidence.Upload(c.UserContext(), evidence.UploadParams{
		DisputeID: disputeID,
		FileName:  file.Filename,
		FileType:  file.Header.Get(fiber.HeaderContentType),
		Body:      src,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(newEvidenceResponse(rec))
}

func (s *Server) handleGetEvidence(c *fiber.Ctx) error {
	rec, err := s.ownedEvidence(c)
	if err != nil {
		return err
	}
	return c.JSON(newEvidenceResponse(rec))
}

func (s *Server) handleEvidenceContent(c *fiber.Ctx) error {
	owned, err := s.ownedEvidence(c)
	if err != nil {
		return err
	}
	rec, body, err := s.evidence.Open(c.UserContext(), owned.ID)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, rec.FileType)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": rec.FileName}))
	size := -1
	if rec.FileSize > 0 {
		size = int(rec.FileSize)
	}
	// fasthttp closes the body once it has been sent.
	return c.SendStream(body, size)
}

func (s *Server) handleUpdateEvidence(c *fiber.Ctx) error {
	rec, err := s.ownedEvidence(c)
	if err != nil {
		return err
	}
	var req updateEvidenceRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	updated, err := s.evidence.Update(c.UserContext(), rec.ID, req.params())
	if err != nil {
		return err
	}
	return c.JSON(newEvidenceResponse(updated))
}

func (s *Server) handleDeleteEvidence(c *fiber.Ctx) error {
	rec, err := s.ownedEvidence(c)
	if err != nil {
		return err
	}
	if err := s.evidence.Delete(c.UserContext(), rec.ID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ownedDispute loads the dispute named by :id. Disputes of other users are
// reported as missing.
func (s *Server) ownedDispute(c *fiber.Ctx) (dispute.Record, error) {
	id, err := pathID(c)
	if err != nil {
		return dispute.Record{}, err
	}
	rec, err := s.disputes.Get(c.UserContext(), id)
	if err != nil {
		return dispute.Record{}, err
	}
	if rec.UserID != currentUser(c) {
		s.logger.Debug("dispute owned by another user", zap.Int64("dispute_id", id))
		return dispute.Record{}, dispute.ErrNotFound
	}
	return rec, nil
}

func (s *Server) ownedEvidence(c *fiber.Ctx) (evidence.Record, error) {
	id, err := pathID(c)
	if err != nil {
		return evidence.Record{}, err
	}
	rec, err := s.evidence.Get(c.UserContext(), id)
	if err != nil {
		return evidence.Record{}, err
	}
	parent, err := s.disputes.Get(c.UserContext(), rec.DisputeID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return evidence.Record{}, evidence.ErrNotFound
		}
		return evidence.Record{}, err
	}
	if parent.UserID != currentUser(c) {
		return evidence.Record{}, evidence.ErrNotFound
	}
	return rec, nil
}

func pathID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, db.Invalid("id", "must be a positive integer")
	}
	return id, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		var verr *db.ValidationError
		if errors.As(err, &verr) {
			return verr
		}
		if errors.Is(err, fiber.ErrUnprocessableEntity) {
			return fiber.NewError(fiber.StatusUnsupportedMediaType, "expected a JSON body")
		}
		return fiber.NewError(fiber.StatusBadRequest, "malformed JSON body")
	}
	return nil
}
