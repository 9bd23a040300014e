// Package mock implements a deterministic provider.FaceProvider for tests and
// local development without a detector service.
//
// Frames whose bytes are valid UTF-8 are read as a scene script: a comma
// separated list of face tokens, each producing one face whose embedding is
// derived from the token's hash. A token may carry a "~d" suffix that shifts
// the embedding by exactly d in euclidean distance, e.g. "alice~0.3".
// An empty script has no faces and a script starting with "!" makes the
// detector fail. Any other (binary) frame is treated as one face whose
// embedding is derived from the frame's hash.
package mock

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
	"github.com/saturnino-fabrica-de-software/totem/internal/provider"
)

// EmbeddingDimension matches the 128-d dlib face encoder.
const EmbeddingDimension = 128

// ErrDetectorFailure is returned for frames scripted to fail.
var ErrDetectorFailure = errors.New("mock detector failure")

// Provider implementa provider.FaceProvider para testes e desenvolvimento
type Provider struct{}

// New cria uma nova instância do MockProvider
func New() *Provider {
	return &Provider{}
}

// DescribeFaces parses the scene and returns faces laid out left to right.
func (p *Provider) DescribeFaces(ctx context.Context, frame []byte) ([]provider.DescribedFace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !utf8.Valid(frame) {
		return []provider.DescribedFace{{
			DetectedFace: faceAt(0),
			Embedding:    generateEmbedding(frame),
		}}, nil
	}

	script := strings.TrimSpace(string(frame))
	if script == "" {
		return nil, nil
	}
	if strings.HasPrefix(script, "!") {
		return nil, fmt.Errorf("%w: %s", ErrDetectorFailure, strings.TrimPrefix(script, "!"))
	}

	tokens := strings.Split(script, ",")
	faces := make([]provider.DescribedFace, 0, len(tokens))
	for i, tok := range tokens {
		emb, err := parseToken(strings.TrimSpace(tok))
		if err != nil {
			return nil, err
		}
		faces = append(faces, provider.DescribedFace{DetectedFace: faceAt(i), Embedding: emb})
	}

	return faces, nil
}

// DetectFaces simula detecção de faces
func (p *Provider) DetectFaces(ctx context.Context, frame []byte) ([]provider.DetectedFace, error) {
	described, err := p.DescribeFaces(ctx, frame)
	if err != nil {
		return nil, err
	}

	faces := make([]provider.DetectedFace, len(described))
	for i, d := range described {
		faces[i] = d.DetectedFace
	}
	return faces, nil
}

// Embed returns the embedding of the face whose slot contains the region.
func (p *Provider) Embed(ctx context.Context, frame []byte, face provider.DetectedFace) (domain.Embedding, error) {
	described, err := p.DescribeFaces(ctx, frame)
	if err != nil {
		return nil, err
	}

	for _, d := range described {
		if d.BoundingBox.X == face.BoundingBox.X {
			return d.Embedding, nil
		}
	}
	return nil, fmt.Errorf("no face at x=%.0f", face.BoundingBox.X)
}

// EmbeddingFor returns the embedding the provider produces for a face token.
func EmbeddingFor(token string) domain.Embedding {
	return generateEmbedding([]byte(token))
}

func parseToken(tok string) (domain.Embedding, error) {
	if tok == "" {
		return nil, fmt.Errorf("empty face token")
	}

	name, shift, found := strings.Cut(tok, "~")
	emb := generateEmbedding([]byte(name))
	if !found {
		return emb, nil
	}

	d, err := strconv.ParseFloat(shift, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid shift in token %q: %w", tok, err)
	}
	emb[0] += d
	return emb, nil
}

func faceAt(slot int) provider.DetectedFace {
	return provider.DetectedFace{
		BoundingBox: provider.BoundingBox{
			X:      float64(slot * 200),
			Y:      40,
			Width:  160,
			Height: 160,
		},
		Confidence:   0.99,
		QualityScore: 0.95,
	}
}

// generateEmbedding gera embedding determinístico baseado no hash da imagem
func generateEmbedding(data []byte) domain.Embedding {
	hash := sha256.Sum256(data)
	embedding := make(domain.Embedding, EmbeddingDimension)
	hashLen := len(hash)

	for i := 0; i < EmbeddingDimension; i++ {
		// mix the index in so that the 32 hash bytes do not repeat every 32 dims
		idx := i % hashLen
		//nolint:gosec // idx is always < hashLen due to modulo operation
		embedding[i] = (float64(hash[idx]^byte(i*31))/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

var (
	_ provider.FaceProvider = (*Provider)(nil)
	_ provider.Describer    = (*Provider)(nil)
)
