package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

const (
	maxImageSize = 10 * 1024 * 1024 // 10MB

	// upper bound for ?wait=true requests
	defaultWaitLimit = 2 * time.Minute
)

var validImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// SessionService is the kiosk session API consumed by the handlers.
type SessionService interface {
	StartRecognition(ctx context.Context) (domain.SessionView, error)
	StartEnrollment(ctx context.Context, label string) (domain.SessionView, error)
	Get(id uuid.UUID) (domain.SessionView, error)
	Cancel(id uuid.UUID) error
	PushFrame(id uuid.UUID, data []byte) error
	Wait(ctx context.Context, id uuid.UUID) (domain.SessionView, error)
}

// SessionHandler handles recognition and enrollment sessions
type SessionHandler struct {
	service   SessionService
	logger    *slog.Logger
	waitLimit time.Duration
}

func NewSessionHandler(service SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		service:   service,
		logger:    logger,
		waitLimit: defaultWaitLimit,
	}
}

// EnrollmentRequest body for POST /v1/sessions/enrollment
type EnrollmentRequest struct {
	Label string `json:"label"`
}

// StartRecognition POST /v1/sessions/recognition
func (h *SessionHandler) StartRecognition(c *fiber.Ctx) error {
	view, err := h.service.StartRecognition(c.UserContext())
	if err != nil {
		return err
	}
	return h.respond(c, view)
}

// StartEnrollment POST /v1/sessions/enrollment
func (h *SessionHandler) StartEnrollment(c *fiber.Ctx) error {
	var req EnrollmentRequest
	if err := c.BodyParser(&req); err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	view, err := h.service.StartEnrollment(c.UserContext(), req.Label)
	if err != nil {
		return err
	}
	return h.respond(c, view)
}

// respond returns 202 with the running session, or blocks until the
// terminal outcome when the caller asked for ?wait=true.
func (h *SessionHandler) respond(c *fiber.Ctx, view domain.SessionView) error {
	if !c.QueryBool("wait") {
		return c.Status(fiber.StatusAccepted).JSON(view)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.waitLimit)
	defer cancel()

	final, err := h.service.Wait(ctx, view.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.Status(fiber.StatusAccepted).JSON(final)
		}
		return err
	}
	return c.JSON(final)
}

// Get GET /v1/sessions/:id
func (h *SessionHandler) Get(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	view, err := h.service.Get(id)
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// Cancel DELETE /v1/sessions/:id
func (h *SessionHandler) Cancel(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	if err := h.service.Cancel(id); err != nil {
		return err
	}

	view, err := h.service.Get(id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(view)
}

// PushFrame POST /v1/sessions/:id/frames - either a multipart "image" field
// or the raw image as the request body.
func (h *SessionHandler) PushFrame(c *fiber.Ctx) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	var data []byte
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		data, err = extractAndValidateImage(c)
		if err != nil {
			return err
		}
	} else {
		body := c.Body()
		if len(body) == 0 || len(body) > maxImageSize {
			return domain.ErrInvalidImage
		}
		// fasthttp reuses the body buffer after the handler returns
		data = append([]byte(nil), body...)
	}

	if err := h.service.PushFrame(id, data); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func sessionID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, domain.ErrSessionNotFound.WithError(err)
	}
	return id, nil
}

// extractAndValidateImage extracts and validates the image from multipart form
func extractAndValidateImage(c *fiber.Ctx) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, domain.ErrValidationFailed.WithError(err)
	}

	if file.Size > maxImageSize || file.Size == 0 {
		return nil, domain.ErrInvalidImage
	}

	contentType := file.Header.Get("Content-Type")
	if !validImageTypes[contentType] {
		return nil, domain.ErrInvalidImage
	}

	f, err := file.Open()
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	defer func() {
		_ = f.Close()
	}()

	imageBytes, err := io.ReadAll(f)
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}

	return imageBytes, nil
}
