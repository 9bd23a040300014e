package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/totem/internal/blobstore"
	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

const (
	encodingExt = ".json"
	// loadConcurrency bounds parallel reads when loading from object storage
	loadConcurrency = 8
)

// BlobPersister keeps one "<label>.json" file per identity at the root of a blob store.
type BlobPersister struct {
	blobs  blobstore.Store
	logger *slog.Logger
}

func NewBlobPersister(blobs blobstore.Store, logger *slog.Logger) *BlobPersister {
	return &BlobPersister{
		blobs:  blobs,
		logger: logger.With("component", "blob_persister"),
	}
}

func encodingName(label string) string {
	return label + encodingExt
}

// LoadAll reads every encoding file concurrently. Unreadable or corrupt files
// are logged and skipped so one bad file does not take the kiosk down.
func (p *BlobPersister) LoadAll(ctx context.Context) ([]domain.Identity, error) {
	names, err := p.blobs.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list encodings: %w", err)
	}

	var (
		mu         sync.Mutex
		identities []domain.Identity
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)

	for _, name := range names {
		if strings.Contains(name, "/") || !strings.HasSuffix(name, encodingExt) {
			continue
		}

		g.Go(func() error {
			data, err := p.blobs.Get(gctx, name)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				p.logger.Warn("skipping unreadable encoding", "file", name, "error", err)
				return nil
			}

			var id domain.Identity
			if err := json.Unmarshal(data, &id); err != nil || len(id.Embedding) == 0 {
				p.logger.Warn("skipping corrupt encoding", "file", name, "error", err)
				return nil
			}
			if id.Label == "" {
				id.Label = strings.TrimSuffix(name, encodingExt)
			}

			mu.Lock()
			identities = append(identities, id)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.logger.Info("encodings loaded", "count", len(identities))
	return identities, nil
}

func (p *BlobPersister) Save(ctx context.Context, identity domain.Identity) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	return p.blobs.Put(ctx, encodingName(identity.Label), data)
}

func (p *BlobPersister) Delete(ctx context.Context, label string) error {
	return p.blobs.Delete(ctx, encodingName(label))
}

var _ Persister = (*BlobPersister)(nil)
