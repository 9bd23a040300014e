package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

type mockFaceProvider struct {
	mock.Mock
}

func (m *mockFaceProvider) DetectFaces(ctx context.Context, frame []byte) ([]DetectedFace, error) {
	args := m.Called(ctx, frame)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]DetectedFace), args.Error(1)
}

func (m *mockFaceProvider) Embed(ctx context.Context, frame []byte, face DetectedFace) (domain.Embedding, error) {
	args := m.Called(ctx, frame, face)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Embedding), args.Error(1)
}

type describingProvider struct {
	mockFaceProvider
	faces []DescribedFace
}

func (d *describingProvider) DescribeFaces(_ context.Context, _ []byte) ([]DescribedFace, error) {
	return d.faces, nil
}

func TestDescribe_FallsBackToDetectAndEmbed(t *testing.T) {
	p := &mockFaceProvider{}
	faceA := DetectedFace{BoundingBox: BoundingBox{X: 1, Width: 10, Height: 10}}
	faceB := DetectedFace{BoundingBox: BoundingBox{X: 20, Width: 10, Height: 10}}

	p.On("DetectFaces", mock.Anything, mock.Anything).Return([]DetectedFace{faceA, faceB}, nil)
	p.On("Embed", mock.Anything, mock.Anything, faceA).Return(domain.Embedding{1, 0}, nil)
	p.On("Embed", mock.Anything, mock.Anything, faceB).Return(domain.Embedding{0, 1}, nil)

	got, err := Describe(context.Background(), p, []byte("frame"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Embedding{1, 0}, got[0].Embedding)
	assert.Equal(t, domain.Embedding{0, 1}, got[1].Embedding)
	p.AssertExpectations(t)
}

func TestDescribe_PropagatesErrors(t *testing.T) {
	p := &mockFaceProvider{}
	p.On("DetectFaces", mock.Anything, mock.Anything).Return(nil, errors.New("detector down"))

	_, err := Describe(context.Background(), p, []byte("frame"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detect faces")
}

func TestDescribe_UsesDescriber(t *testing.T) {
	p := &describingProvider{faces: []DescribedFace{{Embedding: domain.Embedding{0.5}}}}

	got, err := Describe(context.Background(), p, []byte("frame"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	p.AssertNotCalled(t, "DetectFaces", mock.Anything, mock.Anything)
}

func TestBoundingBox_Area(t *testing.T) {
	assert.Equal(t, 200.0, BoundingBox{Width: 10, Height: 20}.Area())
}
