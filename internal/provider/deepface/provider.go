package deepface

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
	"github.com/saturnino-fabrica-de-software/totem/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels
)

// Provider implements provider.FaceProvider using DeepFace API
type Provider struct {
	client *Client
}

// NewProvider creates a new DeepFace provider
func NewProvider(config Config) *Provider {
	return &Provider{
		client: NewClient(config),
	}
}

// DescribeFaces detects faces and returns them with their embeddings in a
// single /represent round trip.
func (p *Provider) DescribeFaces(ctx context.Context, frame []byte) ([]provider.DescribedFace, error) {
	resp, err := p.client.Represent(ctx, base64.StdEncoding.EncodeToString(frame))
	if err != nil {
		return nil, fmt.Errorf("represent: %w", err)
	}

	faces := make([]provider.DescribedFace, 0, len(resp.Results))
	for _, result := range resp.Results {
		if len(result.Embedding) == 0 {
			return nil, ErrNoFaceInResponse
		}
		faces = append(faces, provider.DescribedFace{
			DetectedFace: toDetectedFace(result),
			Embedding:    domain.Embedding(result.Embedding),
		})
	}

	return faces, nil
}

// DetectFaces detects faces in the image
func (p *Provider) DetectFaces(ctx context.Context, frame []byte) ([]provider.DetectedFace, error) {
	described, err := p.DescribeFaces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	faces := make([]provider.DetectedFace, 0, len(described))
	for _, d := range described {
		faces = append(faces, d.DetectedFace)
	}
	return faces, nil
}

// Embed re-runs /represent and returns the embedding of the result that
// overlaps face the most. DeepFace has no region-scoped endpoint.
func (p *Provider) Embed(ctx context.Context, frame []byte, face provider.DetectedFace) (domain.Embedding, error) {
	described, err := p.DescribeFaces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	best, bestIoU := -1, 0.0
	for i, d := range described {
		if iou := intersectionOverUnion(d.BoundingBox, face.BoundingBox); iou > bestIoU {
			best, bestIoU = i, iou
		}
	}
	if best < 0 {
		return nil, ErrNoMatchingRegion
	}

	return described[best].Embedding, nil
}

func toDetectedFace(result RepresentResult) provider.DetectedFace {
	// Calculate confidence based on face area (larger faces = more reliable detection)
	faceArea := float64(result.FacialArea.W * result.FacialArea.H)

	confidence := calculateConfidence(faceArea)
	if result.FaceConfidence != nil {
		confidence = *result.FaceConfidence
	}

	return provider.DetectedFace{
		BoundingBox: provider.BoundingBox{
			X:      float64(result.FacialArea.X),
			Y:      float64(result.FacialArea.Y),
			Width:  float64(result.FacialArea.W),
			Height: float64(result.FacialArea.H),
		},
		Confidence:   confidence,
		QualityScore: calculateQuality(faceArea),
	}
}

// calculateConfidence estimates confidence based on face area
// Older DeepFace releases don't return confidence, so we estimate based on face size
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5 // Low confidence for very small faces
	}
	// Scale from 0.7 to 0.99 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

// calculateQuality estimates quality score based on face area
func calculateQuality(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.4 // Low quality for very small faces
	}
	// Scale from 0.6 to 0.95 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.6 + (normalized * 0.35)
}

func intersectionOverUnion(a, b provider.BoundingBox) float64 {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.X+a.Width, b.X+b.Width)
	y2 := math.Min(a.Y+a.Height, b.Y+b.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	inter := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

var (
	_ provider.FaceProvider = (*Provider)(nil)
	_ provider.Describer    = (*Provider)(nil)
)
