package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/saturnino-fabrica-de-software/totem/internal/provider"
)

// SeedFromArchive rebuilds missing gallery entries from archived face images:
// for each label without an identity, the first image in which a face is
// detected becomes its reference embedding. Returns the number of labels seeded.
func SeedFromArchive(ctx context.Context, store *Store, archive *SampleArchive, faces provider.FaceProvider, logger *slog.Logger) (int, error) {
	byLabel, err := archive.Labels(ctx)
	if err != nil {
		return 0, err
	}

	labels := make([]string, 0, len(byLabel))
	for label := range byLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	seeded := 0
	for _, label := range labels {
		if _, exists := store.Get(label); exists {
			continue
		}

		for _, name := range byLabel[label] {
			data, err := archive.Get(ctx, name)
			if err != nil {
				logger.Warn("cannot read sample", "sample", name, "error", err)
				continue
			}

			described, err := provider.Describe(ctx, faces, data)
			if err != nil {
				logger.Warn("cannot describe sample", "sample", name, "error", err)
				continue
			}
			if len(described) == 0 {
				continue
			}

			if _, err := store.Commit(ctx, label, described[0].Embedding); err != nil {
				return seeded, fmt.Errorf("seed %s: %w", label, err)
			}
			logger.Info("identity seeded from archive", "label", label, "sample", name)
			seeded++
			break
		}
	}

	return seeded, nil
}
