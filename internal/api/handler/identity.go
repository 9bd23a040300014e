package handler

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// IdentityService administers the enrolled gallery
type IdentityService interface {
	ListIdentities() []domain.Identity
	DeleteIdentity(ctx context.Context, label string) error
}

type IdentityHandler struct {
	service IdentityService
	logger  *slog.Logger
}

func NewIdentityHandler(service IdentityService, logger *slog.Logger) *IdentityHandler {
	return &IdentityHandler{service: service, logger: logger}
}

// ListIdentitiesResponse response for GET /v1/identities
type ListIdentitiesResponse struct {
	Identities []domain.Identity `json:"identities"`
	Count      int               `json:"count"`
}

// List GET /v1/identities
func (h *IdentityHandler) List(c *fiber.Ctx) error {
	ids := h.service.ListIdentities()
	if ids == nil {
		ids = []domain.Identity{}
	}
	return c.JSON(ListIdentitiesResponse{Identities: ids, Count: len(ids)})
}

// Delete DELETE /v1/identities/:label
func (h *IdentityHandler) Delete(c *fiber.Ctx) error {
	label, err := url.PathUnescape(c.Params("label"))
	if err != nil {
		return domain.ErrInvalidLabel.WithError(err)
	}

	if err := h.service.DeleteIdentity(c.UserContext(), label); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
