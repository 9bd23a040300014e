package face

import (
	"fmt"

	"github.com/saturnino-fabrica-de-software/totem/internal/config"
	"github.com/saturnino-fabrica-de-software/totem/internal/provider"
	"github.com/saturnino-fabrica-de-software/totem/internal/provider/deepface"
	"github.com/saturnino-fabrica-de-software/totem/internal/provider/mock"
)

// ProviderType defines supported face recognition provider types
type ProviderType string

const (
	// ProviderTypeDeepFace is the DeepFace sidecar used on real kiosks
	ProviderTypeDeepFace ProviderType = "deepface"
	// ProviderTypeMock is the scripted provider for tests and demos
	ProviderTypeMock ProviderType = "mock"
)

// NewFaceProvider creates a FaceProvider instance based on configuration
//
// Environment variables:
//   - PROVIDER_TYPE: "deepface" or "mock" (default: "deepface")
//   - DEEPFACE_URL: DeepFace API URL (default: "http://localhost:5000")
//   - DEEPFACE_MODEL / DEEPFACE_DETECTOR: model and detector backend names
func NewFaceProvider(cfg *config.Config) (provider.FaceProvider, error) {
	providerType := ProviderType(cfg.ProviderType)

	switch providerType {
	case ProviderTypeMock:
		return mock.New(), nil

	case ProviderTypeDeepFace, "":
		return createDeepFaceProvider(cfg), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s (supported: %s, %s)",
			cfg.ProviderType, ProviderTypeDeepFace, ProviderTypeMock)
	}
}

// createDeepFaceProvider creates a DeepFace provider instance
func createDeepFaceProvider(cfg *config.Config) provider.FaceProvider {
	deepfaceConfig := deepface.DefaultConfig()

	if cfg.DeepFaceURL != "" {
		deepfaceConfig.BaseURL = cfg.DeepFaceURL
	}
	if cfg.DeepFaceModel != "" {
		deepfaceConfig.Model = cfg.DeepFaceModel
	}
	if cfg.DeepFaceDetector != "" {
		deepfaceConfig.Detector = cfg.DeepFaceDetector
	}

	return deepface.NewProvider(deepfaceConfig)
}
