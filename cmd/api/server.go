package main

import (
	"context"
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"disputedesk/config"
	"disputedesk/db"
	"disputedesk/dispute"
	"disputedesk/evidence"
	"disputedesk/storage"
)

type disputeService interface {
	Create(ctx context.Context, p dispute.CreateParams) (dispute.Record, error)
	Get(ctx context.Context, id int64) (dispute.Record, error)
	Update(ctx context.Context, id int64, p dispute.UpdateParams) (dispute.Record, error)
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f dispute.ListFilter) ([]dispute.Record, error)
}

type evidenceService interface {
	Create(ctx context.Context, p evidence.CreateParams) (evidence.Record, error)
	Upload(ctx context.Context, p evidence.UploadParams) (evidence.Record, error)
	Get(ctx context.Context, id int64) (evidence.Record, error)
	Open(ctx context.Context, id int64) (evidence.Record, io.ReadCloser, error)
	Update(ctx context.Context, id int64, p evidence.UpdateParams) (evidence.Record, error)
	Delete(ctx context.Context, id int64) error
	ListByDispute(ctx context.Context, disputeID int64) ([]evidence.Record, error)
}

type tokenVerifier interface {
	Verify(token string) (string, error)
}

// pinger reports database reachability for the health check.
type pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	disputes disputeService
	evidence evidenceService
	tokens   tokenVerifier
	db       pinger
	logger   *zap.Logger
}

func (s *Server) App(cfg config.ServerConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "disputedesk",
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.MaxUploadBytes,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	app.Use(recover.New())
	app.Use(requestID())
	app.Use(requestLogger(s.logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,PATCH,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api/v1", requireUser(s.tokens, s.logger))

	disputes := api.Group("/disputes")
	disputes.Post("", s.handleCreateDispute)
	disputes.Get("", s.handleListDisputes)
	disputes.Get("/:id", s.handleGetDispute)
	disputes.Patch("/:id", s.handleUpdateDispute)
	disputes.Delete("/:id", s.handleDeleteDispute)
	disputes.Get("/:id/evidence", s.handleListEvidence)
	disputes.Post("/:id/evidence", s.handleCreateEvidence)
	disputes.Get("/:id/market-rate", s.handleMarketRate)

	ev := api.Group("/evidence")
	ev.Get("/:id", s.handleGetEvidence)
	ev.Get("/:id/content", s.handleEvidenceContent)
	ev.Patch("/:id", s.handleUpdateEvidence)
	ev.Delete("/:id", s.handleDeleteEvidence)

	return app
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.db != nil {
		if err := s.db.Ping(c.UserContext()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unavailable"})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleError maps store error kinds onto HTTP status codes. Internal errors
// are logged and reported without detail.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	body := fiber.Map{"error": err.Error()}

	var verr *db.ValidationError
	if errors.As(err, &verr) {
		body["error"] = verr.Error()
		body["field"] = verr.Field
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Any("request_id", c.Locals(localRequestID)),
			zap.Error(err),
		)
		body["error"] = "internal server error"
	}
	return c.Status(code).JSON(body)
}

func statusFor(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, db.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, db.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, db.ErrConflict),
		errors.Is(err, db.ErrForeignKeyViolation),
		errors.Is(err, db.ErrConstraintViolation):
		return fiber.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
