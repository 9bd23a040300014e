package service

import (
	"context"
	"fmt"
	"time"

	"github.com/saturnino-fabrica-de-software/totem/internal/config"
	"github.com/saturnino-fabrica-de-software/totem/internal/distance"
	"github.com/saturnino-fabrica-de-software/totem/internal/frame"
	"github.com/saturnino-fabrica-de-software/totem/internal/session"
)

const (
	defaultSessionTTL = 5 * time.Minute
	snapshotTimeout   = 5 * time.Second
)

// Config holds the session parameters of one kiosk.
type Config struct {
	Recognition         session.RecognitionConfig
	Enrollment          session.EnrollmentConfig
	Metric              distance.Metric
	EnrollmentTolerance float64
	FrameRate           float64
	ArchiveSamples      bool
	SessionTTL          time.Duration
	Provider            string
}

// ConfigFrom maps the process configuration onto the service.
func ConfigFrom(cfg *config.Config) (Config, error) {
	metric, err := distance.ParseMetric(cfg.DistanceMetric)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Recognition: session.RecognitionConfig{
			RequiredStreak: cfg.RequiredStreak,
			Timeout:        cfg.RecognitionTimeout,
		},
		Enrollment: session.EnrollmentConfig{
			TargetSamples:      cfg.TargetSamples,
			StabilityStreak:    cfg.StabilityStreak,
			MinCaptureInterval: cfg.MinCaptureInterval,
			Timeout:            cfg.EnrollmentTimeout,
		},
		Metric:              metric,
		EnrollmentTolerance: cfg.EnrollmentTolerance,
		FrameRate:           cfg.FrameRate,
		ArchiveSamples:      cfg.ArchiveSamples,
		SessionTTL:          defaultSessionTTL,
		Provider:            cfg.ProviderType,
	}, nil
}

// SourceFactory opens the camera for a new session.
type SourceFactory func(ctx context.Context) (frame.Source, error)

// NewSourceFactory returns the factory for the configured frame source. Push
// mode returns nil: each session then gets its own ChannelSource fed by the client.
func NewSourceFactory(kind, snapshotURL, dir string) (SourceFactory, error) {
	switch kind {
	case config.FrameSourcePush, "":
		return nil, nil
	case config.FrameSourceSnapshot:
		return func(ctx context.Context) (frame.Source, error) {
			src := frame.NewSnapshotSource(snapshotURL, snapshotTimeout)
			if err := src.Ping(ctx); err != nil {
				_ = src.Close()
				return nil, fmt.Errorf("camera %s: %w", snapshotURL, err)
			}
			return src, nil
		}, nil
	case config.FrameSourceDirectory:
		return func(_ context.Context) (frame.Source, error) {
			src, err := frame.NewDirSource(dir)
			if err != nil {
				return nil, err
			}
			return src, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown frame source: %s", kind)
	}
}
