package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Server
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENV" default:"development"`

	// Database (optional, empty disables postgres)
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Security (optional, empty disables kiosk auth)
	KioskAPIKeyHash string `envconfig:"KIOSK_API_KEY_HASH"`

	// Provider
	ProviderType     string `envconfig:"PROVIDER_TYPE" default:"deepface"`
	DeepFaceURL      string `envconfig:"DEEPFACE_URL" default:"http://localhost:5000"`
	DeepFaceModel    string `envconfig:"DEEPFACE_MODEL" default:"Facenet512"`
	DeepFaceDetector string `envconfig:"DEEPFACE_DETECTOR" default:"retinaface"`

	// Matching
	DistanceMetric       string  `envconfig:"DISTANCE_METRIC" default:"euclidean"`
	RecognitionTolerance float64 `envconfig:"RECOGNITION_TOLERANCE" default:"0.5"`
	EnrollmentTolerance  float64 `envconfig:"ENROLLMENT_TOLERANCE" default:"0.5"`

	// Recognition
	RequiredStreak     int           `envconfig:"REQUIRED_STREAK" default:"5"`
	RecognitionTimeout time.Duration `envconfig:"RECOGNITION_TIMEOUT" default:"30s"`

	// Enrollment
	TargetSamples      int           `envconfig:"TARGET_SAMPLES" default:"5"`
	StabilityStreak    int           `envconfig:"STABILITY_STREAK" default:"3"`
	MinCaptureInterval time.Duration `envconfig:"MIN_CAPTURE_INTERVAL" default:"2s"`
	EnrollmentTimeout  time.Duration `envconfig:"ENROLLMENT_TIMEOUT" default:"0s"`

	// Frames
	FrameRate         float64 `envconfig:"FRAME_RATE" default:"10"`
	FrameSource       string  `envconfig:"FRAME_SOURCE" default:"push"`
	CameraSnapshotURL string  `envconfig:"CAMERA_SNAPSHOT_URL"`
	FrameDir          string  `envconfig:"FRAME_DIR"`

	// Storage
	StoreBackend   string `envconfig:"STORE_BACKEND" default:"local"`
	StoreDir       string `envconfig:"STORE_DIR" default:"encodings"`
	ArchiveSamples bool   `envconfig:"ARCHIVE_SAMPLES" default:"false"`

	// S3
	S3Bucket  string `envconfig:"S3_BUCKET"`
	S3Prefix  string `envconfig:"S3_PREFIX"`
	AWSRegion string `envconfig:"AWS_REGION" default:"us-east-1"`

	// MinIO
	MinIOEndpoint  string `envconfig:"MINIO_ENDPOINT"`
	MinIOAccessKey string `envconfig:"MINIO_ACCESS_KEY"`
	MinIOSecretKey string `envconfig:"MINIO_SECRET_KEY"`
	MinIOUseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`

	// Outcome webhook (optional, empty URL disables it)
	WebhookURL         string   `envconfig:"WEBHOOK_URL"`
	WebhookSecret      string   `envconfig:"WEBHOOK_SECRET"`
	WebhookEvents      []string `envconfig:"WEBHOOK_EVENTS"`
	WebhookMaxAttempts int      `envconfig:"WEBHOOK_MAX_ATTEMPTS" default:"5"`
}

const (
	FrameSourcePush      = "push"
	FrameSourceSnapshot  = "snapshot"
	FrameSourceDirectory = "directory"

	StoreBackendLocal    = "local"
	StoreBackendPostgres = "postgres"
	StoreBackendS3       = "s3"
	StoreBackendMinIO    = "minio"
)

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the values envconfig cannot check on its own.
func (c *Config) Validate() error {
	switch {
	case c.RequiredStreak < 1:
		return fmt.Errorf("REQUIRED_STREAK must be >= 1, got %d", c.RequiredStreak)
	case c.TargetSamples < 1:
		return fmt.Errorf("TARGET_SAMPLES must be >= 1, got %d", c.TargetSamples)
	case c.StabilityStreak < 1:
		return fmt.Errorf("STABILITY_STREAK must be >= 1, got %d", c.StabilityStreak)
	case c.RecognitionTolerance < 0:
		return fmt.Errorf("RECOGNITION_TOLERANCE must be >= 0, got %v", c.RecognitionTolerance)
	case c.EnrollmentTolerance < 0:
		return fmt.Errorf("ENROLLMENT_TOLERANCE must be >= 0, got %v", c.EnrollmentTolerance)
	case c.RecognitionTimeout <= 0:
		return fmt.Errorf("RECOGNITION_TIMEOUT must be positive, got %s", c.RecognitionTimeout)
	case c.EnrollmentTimeout < 0:
		return fmt.Errorf("ENROLLMENT_TIMEOUT must be >= 0, got %s", c.EnrollmentTimeout)
	case c.MinCaptureInterval < 0:
		return fmt.Errorf("MIN_CAPTURE_INTERVAL must be >= 0, got %s", c.MinCaptureInterval)
	case c.FrameRate < 0:
		return fmt.Errorf("FRAME_RATE must be >= 0, got %v", c.FrameRate)
	case c.WebhookURL != "" && c.WebhookMaxAttempts < 1:
		return fmt.Errorf("WEBHOOK_MAX_ATTEMPTS must be >= 1, got %d", c.WebhookMaxAttempts)
	}

	switch c.DistanceMetric {
	case "euclidean", "cosine":
	default:
		return fmt.Errorf("unknown DISTANCE_METRIC %q", c.DistanceMetric)
	}

	switch c.FrameSource {
	case FrameSourcePush:
	case FrameSourceSnapshot:
		if c.CameraSnapshotURL == "" {
			return fmt.Errorf("CAMERA_SNAPSHOT_URL is required for snapshot frame source")
		}
	case FrameSourceDirectory:
		if c.FrameDir == "" {
			return fmt.Errorf("FRAME_DIR is required for directory frame source")
		}
	default:
		return fmt.Errorf("unknown FRAME_SOURCE %q", c.FrameSource)
	}

	switch c.StoreBackend {
	case StoreBackendLocal:
	case StoreBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres store backend")
		}
	case StoreBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for s3 store backend")
		}
	case StoreBackendMinIO:
		if c.MinIOEndpoint == "" || c.S3Bucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and S3_BUCKET are required for minio store backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
