package domain

import (
	"fmt"
	"strings"
	"time"
)

// Embedding is a fixed-length face descriptor produced by the configured
// encoder. Embeddings are only comparable to embeddings of the same encoder.
type Embedding []float64

// Clone returns a copy that does not share the backing array.
func (e Embedding) Clone() Embedding {
	if e == nil {
		return nil
	}
	out := make(Embedding, len(e))
	copy(out, e)
	return out
}

// Identity is one enrolled person: a unique label and its reference embedding.
type Identity struct {
	Label     string    `json:"label"`
	Embedding Embedding `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MatchCandidate is the best (label, distance) pair found in a single frame.
// It lives for one evaluation cycle and is never persisted.
type MatchCandidate struct {
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

// Confidence mirrors the kiosk display value: 1 - distance.
func (m MatchCandidate) Confidence() float64 {
	return 1 - m.Distance
}

// NormalizeLabel trims the label and rejects values that cannot be used as
// a file or object name in the embedding store.
func NormalizeLabel(label string) (string, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return "", ErrInvalidLabel.WithError(fmt.Errorf("label is required"))
	}
	if strings.ContainsAny(label, `/\`) || label == "." || label == ".." {
		return "", ErrInvalidLabel.WithError(fmt.Errorf("label %q contains path separators", label))
	}
	if strings.HasPrefix(label, ".") {
		return "", ErrInvalidLabel.WithError(fmt.Errorf("label %q must not start with a dot", label))
	}
	if len(label) > 255 {
		return "", ErrInvalidLabel.WithError(fmt.Errorf("label exceeds 255 characters"))
	}
	return label, nil
}
