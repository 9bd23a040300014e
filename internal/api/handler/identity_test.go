package handler

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/totem/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

type MockIdentityService struct {
	mock.Mock
}

func (m *MockIdentityService) ListIdentities() []domain.Identity {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Identity)
}

func (m *MockIdentityService) DeleteIdentity(ctx context.Context, label string) error {
	return m.Called(ctx, label).Error(0)
}

func newIdentityApp(svc IdentityService) *fiber.App {
	h := NewIdentityHandler(svc, testLogger())

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(testLogger())})
	app.Get("/v1/identities", h.List)
	app.Delete("/v1/identities/:label", h.Delete)
	return app
}

func TestIdentityHandler_List(t *testing.T) {
	now := time.Now().UTC()

	t.Run("with identities", func(t *testing.T) {
		svc := new(MockIdentityService)
		svc.On("ListIdentities").Return([]domain.Identity{
			{Label: "alice", CreatedAt: now, UpdatedAt: now},
			{Label: "bob", CreatedAt: now, UpdatedAt: now},
		})

		resp, err := newIdentityApp(svc).Test(httptest.NewRequest("GET", "/v1/identities", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		body := decode[ListIdentitiesResponse](t, resp.Body)
		assert.Equal(t, 2, body.Count)
		assert.Equal(t, "alice", body.Identities[0].Label)
	})

	t.Run("empty gallery renders an empty list", func(t *testing.T) {
		svc := new(MockIdentityService)
		svc.On("ListIdentities").Return(nil)

		resp, err := newIdentityApp(svc).Test(httptest.NewRequest("GET", "/v1/identities", nil))
		require.NoError(t, err)

		body := decode[map[string]any](t, resp.Body)
		assert.Equal(t, []any{}, body["identities"])
	})
}

func TestIdentityHandler_Delete(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		label      string
		err        error
		wantStatus int
	}{
		{name: "deleted", path: "alice", label: "alice", wantStatus: 204},
		{name: "escaped label", path: "ana%20maria", label: "ana maria", wantStatus: 204},
		{name: "unknown", path: "zed", label: "zed", err: domain.ErrIdentityNotFound, wantStatus: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockIdentityService)
			svc.On("DeleteIdentity", mock.Anything, tt.label).Return(tt.err)

			resp, err := newIdentityApp(svc).Test(httptest.NewRequest("DELETE", "/v1/identities/"+tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			svc.AssertExpectations(t)
		})
	}
}
