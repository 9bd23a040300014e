// Package match turns one frame into at most one identity candidate.
package match

import (
	"context"
	"log/slog"

	"github.com/saturnino-fabrica-de-software/totem/internal/distance"
	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
	"github.com/saturnino-fabrica-de-software/totem/internal/provider"
)

// Gallery is the read side of the embedding store.
type Gallery interface {
	Nearest(emb domain.Embedding, dist distance.Func) (domain.MatchCandidate, bool)
	Len() int
}

// Evaluator runs detection and embedding on a frame and compares every face
// against the gallery.
type Evaluator struct {
	faces      provider.FaceProvider
	gallery    Gallery
	dist       distance.Func
	tolerance  float64
	frameCheck func([]byte) error
	logger     *slog.Logger
}

type Option func(*Evaluator)

// WithFrameCheck rejects frames before they reach the provider, e.g. with
// frame.Validate for camera-backed deployments.
func WithFrameCheck(check func([]byte) error) Option {
	return func(e *Evaluator) { e.frameCheck = check }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

func NewEvaluator(faces provider.FaceProvider, gallery Gallery, metric distance.Metric, tolerance float64, opts ...Option) *Evaluator {
	e := &Evaluator{
		faces:     faces,
		gallery:   gallery,
		dist:      metric.Func(),
		tolerance: tolerance,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "match_evaluator")
	return e
}

// Evaluate returns the globally closest (face, identity) pair in the frame,
// or nil when there is no face, the gallery is empty, or the closest pair is
// farther than the tolerance. Sensor faults also yield nil.
func (e *Evaluator) Evaluate(ctx context.Context, frame []byte) *domain.MatchCandidate {
	if e.gallery.Len() == 0 {
		return nil
	}

	faces, ok := e.describe(ctx, frame)
	if !ok {
		return nil
	}

	var best *domain.MatchCandidate
	for _, f := range faces {
		c, found := e.gallery.Nearest(f.Embedding, e.dist)
		if !found {
			continue
		}
		if best == nil || c.Distance < best.Distance {
			best = &c
		}
	}

	if best == nil || best.Distance > e.tolerance {
		return nil
	}
	return best
}

// Observation is what enrollment needs from a frame: how many faces were
// seen and, when exactly one, its embedding and region.
type Observation struct {
	Faces     int
	Embedding domain.Embedding
	Region    provider.BoundingBox
}

// Single reports whether exactly one face was present.
func (o Observation) Single() bool {
	return o.Faces == 1 && len(o.Embedding) > 0
}

// Observe describes the frame without consulting the gallery. A sensor fault
// is reported as zero faces.
func (e *Evaluator) Observe(ctx context.Context, frame []byte) Observation {
	faces, ok := e.describe(ctx, frame)
	if !ok {
		return Observation{}
	}

	obs := Observation{Faces: len(faces)}
	if len(faces) == 1 {
		obs.Embedding = faces[0].Embedding
		obs.Region = faces[0].BoundingBox
	}
	return obs
}

// Tolerance returns the acceptance threshold.
func (e *Evaluator) Tolerance() float64 {
	return e.tolerance
}

func (e *Evaluator) describe(ctx context.Context, frame []byte) ([]provider.DescribedFace, bool) {
	if e.frameCheck != nil {
		if err := e.frameCheck(frame); err != nil {
			e.logger.Warn("frame rejected", "error", err)
			return nil, false
		}
	}

	faces, err := provider.Describe(ctx, e.faces, frame)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("face provider failed", "error", err)
		}
		return nil, false
	}
	return faces, true
}
