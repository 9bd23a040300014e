// Package embedding holds the kiosk's identity gallery: one reference
// embedding per label, shared by every session.
package embedding

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/totem/internal/distance"
	"github.com/saturnino-fabrica-de-software/totem/internal/domain"
)

// Persister keeps the gallery across restarts.
type Persister interface {
	LoadAll(ctx context.Context) ([]domain.Identity, error)
	Save(ctx context.Context, identity domain.Identity) error
	Delete(ctx context.Context, label string) error
}

// Store is read-many/write-rare: lookups share a read lock, commits take the
// write lock only to swap the entry in after it has been persisted.
type Store struct {
	mu         sync.RWMutex
	identities map[string]domain.Identity

	// serializes commit/delete so persistence order matches memory order
	writeMu   sync.Mutex
	persister Persister
	now       func() time.Time
}

// NewStore creates an empty store. A nil persister keeps the gallery in memory only.
func NewStore(persister Persister) *Store {
	return &Store{
		identities: make(map[string]domain.Identity),
		persister:  persister,
		now:        time.Now,
	}
}

// Load replaces the in-memory gallery with the persisted one.
func (s *Store) Load(ctx context.Context) (int, error) {
	if s.persister == nil {
		return s.Len(), nil
	}

	loaded, err := s.persister.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load identities: %w", err)
	}

	identities := make(map[string]domain.Identity, len(loaded))
	for _, id := range loaded {
		identities[id.Label] = id
	}

	s.mu.Lock()
	s.identities = identities
	s.mu.Unlock()

	return len(identities), nil
}

// Nearest returns the identity closest to emb. Ties go to the smaller label
// so results do not depend on map order. ok is false for an empty gallery.
func (s *Store) Nearest(emb domain.Embedding, dist distance.Func) (candidate domain.MatchCandidate, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := math.Inf(1)
	for label, id := range s.identities {
		d := dist(emb, id.Embedding)
		if d < best || (d == best && ok && label < candidate.Label) {
			best = d
			candidate = domain.MatchCandidate{Label: label, Distance: d}
			ok = true
		}
	}
	return candidate, ok
}

// Commit stores emb as the reference embedding for label, overwriting any
// previous enrollment. The entry becomes visible only after it is persisted.
func (s *Store) Commit(ctx context.Context, label string, emb domain.Embedding) (domain.Identity, error) {
	label, err := domain.NormalizeLabel(label)
	if err != nil {
		return domain.Identity{}, err
	}
	if len(emb) == 0 {
		return domain.Identity{}, domain.ErrValidationFailed.WithError(fmt.Errorf("empty embedding"))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now().UTC()
	identity := domain.Identity{
		Label:     label,
		Embedding: emb.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, exists := s.Get(label); exists {
		identity.CreatedAt = prev.CreatedAt
	}

	if s.persister != nil {
		if err := s.persister.Save(ctx, identity); err != nil {
			return domain.Identity{}, fmt.Errorf("persist identity %s: %w", label, err)
		}
	}

	s.mu.Lock()
	s.identities[label] = identity
	s.mu.Unlock()

	return identity, nil
}

// Delete removes a label from the gallery and its persisted copy.
func (s *Store) Delete(ctx context.Context, label string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, exists := s.Get(label); !exists {
		return domain.ErrIdentityNotFound
	}

	if s.persister != nil {
		if err := s.persister.Delete(ctx, label); err != nil {
			return fmt.Errorf("delete identity %s: %w", label, err)
		}
	}

	s.mu.Lock()
	delete(s.identities, label)
	s.mu.Unlock()

	return nil
}

// Get returns a copy of the identity for label.
func (s *Store) Get(label string) (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.identities[label]
	if !ok {
		return domain.Identity{}, false
	}
	id.Embedding = id.Embedding.Clone()
	return id, true
}

// List returns all identities sorted by label, without embeddings.
func (s *Store) List() []domain.Identity {
	s.mu.RLock()
	out := make([]domain.Identity, 0, len(s.identities))
	for _, id := range s.identities {
		id.Embedding = nil
		out = append(out, id)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities)
}
