package docs

import (
	"github.com/go-swagno/swagno"
	"github.com/go-swagno/swagno/components/endpoint"
	"github.com/go-swagno/swagno/components/http/response"
	"github.com/go-swagno/swagno/components/mime"
	"github.com/go-swagno/swagno/components/parameter"
)

// RecognitionResultData is the terminal outcome of a recognition session
type RecognitionResultData struct {
	Outcome    string  `json:"outcome" example:"CONFIRMED"`
	Label      string  `json:"label,omitempty" example:"alice"`
	Distance   float64 `json:"distance,omitempty" example:"0.31"`
	Confidence float64 `json:"confidence,omitempty" example:"0.69"`
	Reason     string  `json:"reason,omitempty" example:""`
	Ticks      int     `json:"ticks" example:"7"`
	ElapsedNs  int64   `json:"elapsed_ns" example:"1250000000"`
}

// EnrollmentResultData is the terminal outcome of an enrollment session
type EnrollmentResultData struct {
	Outcome          string `json:"outcome" example:"DONE"`
	Label            string `json:"label" example:"carol"`
	SamplesCollected int    `json:"samples_collected" example:"5"`
	Reason           string `json:"reason,omitempty" example:""`
	Ticks            int    `json:"ticks" example:"42"`
	ElapsedNs        int64  `json:"elapsed_ns" example:"6100000000"`
}

// SessionResponse is the live view of a recognition or enrollment session
type SessionResponse struct {
	ID               string                 `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	Kind             string                 `json:"kind" example:"recognition"`
	Phase            string                 `json:"phase" example:"CONFIRMING"`
	Label            string                 `json:"label,omitempty" example:"alice"`
	Streak           int                    `json:"streak" example:"2"`
	SamplesCollected int                    `json:"samples_collected" example:"0"`
	StartedAt        string                 `json:"started_at" example:"2024-01-01T00:00:00Z"`
	FinishedAt       string                 `json:"finished_at,omitempty" example:"2024-01-01T00:00:02Z"`
	Recognition      *RecognitionResultData `json:"recognition,omitempty"`
	Enrollment       *EnrollmentResultData  `json:"enrollment,omitempty"`
}

// EnrollmentRequestBody is the JSON body for starting an enrollment
type EnrollmentRequestBody struct {
	Label string `json:"label" example:"carol"`
}

// IdentityData is one enrolled identity
type IdentityData struct {
	Label     string `json:"label" example:"alice"`
	CreatedAt string `json:"created_at" example:"2024-01-01T00:00:00Z"`
	UpdatedAt string `json:"updated_at" example:"2024-01-01T00:00:00Z"`
}

// ListIdentitiesData is the response for GET /v1/identities
type ListIdentitiesData struct {
	Identities []IdentityData `json:"identities"`
	Count      int            `json:"count" example:"1"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Code    string `json:"code" example:"VALIDATION_FAILED"`
	Message string `json:"message" example:"Request validation failed"`
	Detail  string `json:"detail,omitempty" example:""`
}

// EmptyResponse represents no content response (202/204)
type EmptyResponse struct{}

// HealthData is returned by /health and /ready
type HealthData struct {
	Status  string            `json:"status" example:"ok"`
	Version string            `json:"version,omitempty" example:"v1.0.0"`
	Checks  map[string]string `json:"checks,omitempty"`
}

var (
	errUnauthorized = response.New(ErrorResponse{Code: "UNAUTHORIZED", Message: "Invalid or missing API key"}, "401", "Unauthorized")
	errRateLimited  = response.New(ErrorResponse{Code: "RATE_LIMIT_EXCEEDED", Message: "Too many requests"}, "429", "Too Many Requests")
	errInternal     = response.New(ErrorResponse{Code: "INTERNAL_ERROR", Message: "An unexpected error occurred"}, "500", "Internal Server Error")
	errNotFound     = response.New(ErrorResponse{Code: "SESSION_NOT_FOUND", Message: "Session not found or expired"}, "404", "Not Found")
	errInProgress   = response.New(ErrorResponse{Code: "SESSION_IN_PROGRESS", Message: "Another session is already using the camera"}, "409", "Conflict")
	errFinished     = response.New(ErrorResponse{Code: "SESSION_FINISHED", Message: "Session already reached a terminal state"}, "409", "Conflict")
	errNoSource     = response.New(ErrorResponse{Code: "NO_FRAME_SOURCE", Message: "Camera frame source is unavailable"}, "412", "Precondition Failed")
)

func sessionIDParam() *parameter.Parameter {
	return parameter.StrParam("id", parameter.Path, parameter.WithDescription("Session ID (uuid)"))
}

func waitParam() *parameter.Parameter {
	return parameter.StrParam("wait", parameter.Query, parameter.WithDescription("Block until the session reaches a terminal outcome (true/false)"))
}

func NewSwagger() *swagno.Swagger {
	sw := swagno.New(swagno.Config{
		Title:       "Totem Kiosk API",
		Version:     "v1.0.0",
		Description: "Biometric confirmation kiosk: streak-confirmed face recognition and multi-sample enrollment against a local gallery",
		Host:        "localhost:3000",
		Path:        "/v1",
	})

	security := []map[string][]string{{"ApiKeyAuth": {}}}

	endpoints := []*endpoint.EndPoint{
		// Sessions

		// POST /v1/sessions/recognition
		endpoint.New(
			endpoint.POST,
			"/sessions/recognition",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Start a recognition session"),
			endpoint.WithDescription("Claims the camera and runs the confirmation state machine until a label is confirmed on consecutive frames, the timeout elapses, or the session is cancelled."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(waitParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "202", "Session started"),
				response.New(SessionResponse{}, "200", "Terminal outcome (wait=true)"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errInProgress,
				response.New(ErrorResponse{Code: "NO_IDENTITIES", Message: "No enrolled identities, register a face first"}, "412", "Precondition Failed"),
				response.New(ErrorResponse{Code: "NO_FACE_PROVIDER", Message: "Face detector is unavailable"}, "412", "Precondition Failed"),
				errNoSource,
				errRateLimited,
				errInternal,
			}),
			endpoint.WithSecurity(security),
		),

		// POST /v1/sessions/enrollment
		endpoint.New(
			endpoint.POST,
			"/sessions/enrollment",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Start an enrollment session"),
			endpoint.WithDescription("Collects spaced, stable single-face samples for the label in the JSON body ({\"label\": \"carol\"}). The first sample becomes the reference embedding once all samples are captured."),
			endpoint.WithConsume([]mime.MIME{mime.JSON}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(waitParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{Kind: "enrollment", Phase: "STABILIZING", Label: "carol"}, "202", "Session started"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(ErrorResponse{Code: "BAD_REQUEST", Message: "Invalid request"}, "400", "Bad Request"),
				errUnauthorized,
				errInProgress,
				errNoSource,
				response.New(ErrorResponse{Code: "INVALID_LABEL", Message: "Identity label must be a non-empty name without path separators"}, "422", "Unprocessable Entity"),
				errRateLimited,
				errInternal,
			}),
			endpoint.WithSecurity(security),
		),

		// GET /v1/sessions/:id
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Get a session"),
			endpoint.WithDescription("Returns the current phase, streak or sample count, and the terminal result once available. Finished sessions are kept for a limited time."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "200", "Session state"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errNotFound,
				errInternal,
			}),
			endpoint.WithSecurity(security),
		),

		// DELETE /v1/sessions/:id
		endpoint.New(
			endpoint.DELETE,
			"/sessions/{id}",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Cancel a session"),
			endpoint.WithDescription("Requests cancellation. The session ends as CANCELLED on its next tick; enrollment samples are discarded."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(SessionResponse{}, "202", "Cancellation requested"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errNotFound,
				errFinished,
				errInternal,
			}),
			endpoint.WithSecurity(security),
		),

		// POST /v1/sessions/:id/frames
		endpoint.New(
			endpoint.POST,
			"/sessions/{id}/frames",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Push a camera frame"),
			endpoint.WithDescription("Feeds one frame to a push-mode session, either as a multipart 'image' field or as the raw request body. A full buffer drops the oldest frame."),
			endpoint.WithConsume([]mime.MIME{mime.MIME("multipart/form-data"), mime.MIME("image/jpeg"), mime.MIME("image/png")}),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "202", "Frame accepted"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errNotFound,
				errFinished,
				response.New(ErrorResponse{Code: "INVALID_IMAGE", Message: "Invalid image format or corrupted file"}, "422", "Unprocessable Entity"),
				response.New(ErrorResponse{Code: "VALIDATION_FAILED", Message: "Session reads frames from the camera"}, "422", "Unprocessable Entity"),
				errRateLimited,
				errInternal,
			}),
			endpoint.WithSecurity(security),
		),

		// GET /v1/sessions/:id/ws
		endpoint.New(
			endpoint.GET,
			"/sessions/{id}/ws",
			endpoint.WithTags("Sessions"),
			endpoint.WithSummary("Stream session events"),
			endpoint.WithDescription("WebSocket upgrade. Emits session.started, session.progress, enrollment.sample_accepted and session.finished. Binary messages are pushed as frames. Browsers may pass the key as the 'token' query parameter."),
			endpoint.WithParams(sessionIDParam()),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "101", "Switching Protocols"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "UPGRADE_REQUIRED", Message: "WebSocket upgrade required"}, "426", "Upgrade Required"),
			}),
			endpoint.WithSecurity(security),
		),

		// Identities

		// GET /v1/identities
		endpoint.New(
			endpoint.GET,
			"/identities",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("List enrolled identities"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(ListIdentitiesData{}, "200", "Gallery contents"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				errRateLimited,
				errInternal,
			}),
			endpoint.WithSecurity(security),
		),

		// DELETE /v1/identities/:label
		endpoint.New(
			endpoint.DELETE,
			"/identities/{label}",
			endpoint.WithTags("Identities"),
			endpoint.WithSummary("Delete an identity"),
			endpoint.WithDescription("Removes the label from the gallery, the persisted encodings and the sample archive."),
			endpoint.WithParams(
				parameter.StrParam("label", parameter.Path, parameter.WithDescription("Identity label")),
			),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(EmptyResponse{}, "204", "Identity deleted"),
			}),
			endpoint.WithErrors([]response.Response{
				errUnauthorized,
				response.New(ErrorResponse{Code: "IDENTITY_NOT_FOUND", Message: "Identity not found"}, "404", "Not Found"),
				errRateLimited,
				errInternal,
			}),
			endpoint.WithSecurity(security),
		),

		// Operations

		// GET /health
		endpoint.New(
			endpoint.GET,
			"/health",
			endpoint.WithTags("Operations"),
			endpoint.WithSummary("Liveness probe"),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthData{}, "200", "Process is up"),
			}),
		),

		// GET /ready
		endpoint.New(
			endpoint.GET,
			"/ready",
			endpoint.WithTags("Operations"),
			endpoint.WithSummary("Readiness probe"),
			endpoint.WithDescription("Probes the database and the blob store."),
			endpoint.WithProduce([]mime.MIME{mime.JSON}),
			endpoint.WithSuccessfulReturns([]response.Response{
				response.New(HealthData{Status: "ready"}, "200", "All dependencies reachable"),
			}),
			endpoint.WithErrors([]response.Response{
				response.New(HealthData{Status: "not_ready"}, "503", "A dependency is unreachable"),
			}),
		),
	}

	sw.AddEndpoints(endpoints)

	return sw
}
