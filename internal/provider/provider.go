package provider

import (
	"context"
	"fmt"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// FaceProvider is the detector/encoder capability consumed by the kiosk.
type FaceProvider interface {
	// DetectFaces returns one entry per face found in the frame.
	DetectFaces(ctx context.Context, frame []byte) ([]DetectedFace, error)

	// Embed computes the embedding of the face inside region of frame.
	Embed(ctx context.Context, frame []byte, face DetectedFace) (domain.Embedding, error)
}

// Describer is implemented by providers that detect and embed in one call.
// Describe prefers it over DetectFaces followed by one Embed per face.
type Describer interface {
	DescribeFaces(ctx context.Context, frame []byte) ([]DescribedFace, error)
}

// DetectedFace represents a detected face in the image
type DetectedFace struct {
	BoundingBox  BoundingBox `json:"bounding_box"`
	Confidence   float64     `json:"confidence"`
	QualityScore float64     `json:"quality_score"`
}

// DescribedFace is a detected face together with its embedding.
type DescribedFace struct {
	DetectedFace
	Embedding domain.Embedding `json:"-"`
}

// BoundingBox represents the face area in the image, in pixels
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns the box area.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// Describe detects all faces in frame and embeds each of them.
func Describe(ctx context.Context, p FaceProvider, frame []byte) ([]DescribedFace, error) {
	if d, ok := p.(Describer); ok {
		return d.DescribeFaces(ctx, frame)
	}

	faces, err := p.DetectFaces(ctx, frame)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	described := make([]DescribedFace, 0, len(faces))
	for _, f := range faces {
		emb, err := p.Embed(ctx, frame, f)
		if err != nil {
			return nil, fmt.Errorf("embed face: %w", err)
		}
		described = append(described, DescribedFace{DetectedFace: f, Embedding: emb})
	}

	return described, nil
}
