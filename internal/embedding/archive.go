package embedding

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/saturnino-fabrica-de-software/totem/internal/blobstore"
)

const samplesPrefix = "samples/"

// SampleArchive keeps the face crops accepted during enrollment as
// "samples/<label>/face_<n>.jpg".
type SampleArchive struct {
	blobs blobstore.Store
}

func NewSampleArchive(blobs blobstore.Store) *SampleArchive {
	return &SampleArchive{blobs: blobs}
}

func sampleName(label string, n int) string {
	return path.Join(samplesPrefix, label, fmt.Sprintf("face_%d.jpg", n))
}

// Replace drops the label's previous samples and writes the new ones, numbered from 1.
func (a *SampleArchive) Replace(ctx context.Context, label string, crops [][]byte) error {
	if err := a.Delete(ctx, label); err != nil {
		return err
	}

	for i, crop := range crops {
		if err := a.blobs.Put(ctx, sampleName(label, i+1), crop); err != nil {
			return fmt.Errorf("archive sample %d: %w", i+1, err)
		}
	}
	return nil
}

// Delete removes every archived sample of the label.
func (a *SampleArchive) Delete(ctx context.Context, label string) error {
	names, err := a.blobs.List(ctx, samplesPrefix+label+"/")
	if err != nil {
		return fmt.Errorf("list samples: %w", err)
	}
	for _, name := range names {
		if err := a.blobs.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete sample %s: %w", name, err)
		}
	}
	return nil
}

// Labels returns each archived label with its sample names in order.
func (a *SampleArchive) Labels(ctx context.Context) (map[string][]string, error) {
	names, err := a.blobs.List(ctx, samplesPrefix)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}

	out := make(map[string][]string)
	for _, name := range names {
		label, file, ok := strings.Cut(strings.TrimPrefix(name, samplesPrefix), "/")
		if !ok || label == "" || strings.Contains(file, "/") {
			continue
		}
		out[label] = append(out[label], name)
	}
	return out, nil
}

// Get reads one archived sample.
func (a *SampleArchive) Get(ctx context.Context, name string) ([]byte, error) {
	return a.blobs.Get(ctx, name)
}
