package migrationapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/google/uuid"
)

// Writer turns a canonical entity into an outcome. One Writer serves one run.
type Writer interface {
	Write(ctx context.Context, runID uuid.UUID, entity crm.Entity) (migration.Outcome, error)
}

// WriterFor returns the writer for a run. The choice is made once per run.
func WriterFor(dryRun bool, resolver *IdempotencyResolver, store migration.RecordStore) Writer {
	if dryRun {
		return NewSimulatingWriter(resolver)
	}
	return NewCommittingWriter(resolver, store)
}

// seenSet tracks keys already handled in the current run
type seenSet map[migration.MappingKey]struct{}

func (s seenSet) has(k migration.MappingKey) bool {
	_, ok := s[k]
	return ok
}

func (s seenSet) add(k migration.MappingKey) {
	s[k] = struct{}{}
}

// classify derives the outcome of writing content with fingerprint fp
func classify(res Resolution, fp string) migration.Outcome {
	switch {
	case !res.Existing:
		return migration.OutcomeCreated
	case res.Fingerprint == fp:
		return migration.OutcomeSkipped
	default:
		return migration.OutcomeUpdated
	}
}

// CommittingWriter persists entities and their mappings
type CommittingWriter struct {
	resolver *IdempotencyResolver
	store    migration.RecordStore
	seen     seenSet
}

// NewCommittingWriter creates a CommittingWriter
func NewCommittingWriter(resolver *IdempotencyResolver, store migration.RecordStore) *CommittingWriter {
	return &CommittingWriter{resolver: resolver, store: store, seen: make(seenSet)}
}

// Write resolves, classifies and commits entity. A write conflict caused by
// a concurrent writer is retried once after resolving again.
func (w *CommittingWriter) Write(ctx context.Context, runID uuid.UUID, entity crm.Entity) (migration.Outcome, error) {
	key := migration.KeyFor(entity)
	if w.seen.has(key) {
		return migration.OutcomeSkipped, nil
	}
	fp, err := entity.Fingerprint()
	if err != nil {
		return migration.OutcomeFailed, err
	}
	links, err := resolveLinks(ctx, w.resolver, key, entity)
	if err != nil {
		return migration.OutcomeFailed, err
	}

	for attempt := 1; ; attempt++ {
		res, err := w.resolver.Resolve(ctx, key)
		if err != nil {
			return migration.OutcomeFailed, err
		}
		outcome := classify(res, fp)
		if outcome == migration.OutcomeSkipped {
			w.seen.add(key)
			return outcome, nil
		}

		err = w.store.Commit(ctx, migration.RecordWrite{
			Key:         key,
			InternalID:  res.InternalID,
			Fingerprint: fp,
			RunID:       runID,
			Entity:      entity,
			Links:       links,
			Existing:    res.Existing,
		})
		var conflict *migration.WriteConflictError
		if errors.As(err, &conflict) && attempt == 1 {
			continue
		}
		if err != nil {
			return migration.OutcomeFailed, err
		}
		w.seen.add(key)
		return outcome, nil
	}
}

// resolveLinks looks up the internal ids of referenced records. References
// that were never migrated are left out.
func resolveLinks(ctx context.Context, resolver *IdempotencyResolver, key migration.MappingKey, entity crm.Entity) (migration.Links, error) {
	refs := entity.References()
	if len(refs) == 0 {
		return nil, nil
	}
	links := make(migration.Links, len(refs))
	for _, ref := range refs {
		id, ok, err := resolver.Lookup(ctx, migration.MappingKey{
			OrgID:      key.OrgID,
			Source:     key.Source,
			Kind:       ref.Kind,
			ExternalID: ref.ExternalID,
		})
		if err != nil {
			return nil, fmt.Errorf("link %s %q: %w", ref.Kind, ref.ExternalID, err)
		}
		if ok {
			links[ref.Kind] = id
		}
	}
	return links, nil
}

// SimulatingWriter classifies entities exactly like CommittingWriter
// without mutating anything.
type SimulatingWriter struct {
	resolver *IdempotencyResolver
	seen     seenSet
}

// NewSimulatingWriter creates a SimulatingWriter
func NewSimulatingWriter(resolver *IdempotencyResolver) *SimulatingWriter {
	return &SimulatingWriter{resolver: resolver, seen: make(seenSet)}
}

// Write reports what CommittingWriter would do
func (w *SimulatingWriter) Write(ctx context.Context, _ uuid.UUID, entity crm.Entity) (migration.Outcome, error) {
	key := migration.KeyFor(entity)
	if w.seen.has(key) {
		return migration.OutcomeSkipped, nil
	}
	fp, err := entity.Fingerprint()
	if err != nil {
		return migration.OutcomeFailed, err
	}
	if _, err := resolveLinks(ctx, w.resolver, key, entity); err != nil {
		return migration.OutcomeFailed, err
	}
	res, err := w.resolver.Resolve(ctx, key)
	if err != nil {
		return migration.OutcomeFailed, err
	}
	w.seen.add(key)
	return classify(res, fp), nil
}
