package migrationapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/crmigrate/backend/internal/domain/crm"
	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/google/uuid"
)

// memStore is an in-memory MappingRepository and RecordStore
type memStore struct {
	mu       sync.Mutex
	mappings map[migration.MappingKey]migration.ExternalIDMapping
	entities map[uuid.UUID]crm.Entity
	links    map[uuid.UUID]migration.Links
	commits  int
	// conflictOnce makes the next Commit of a new mapping lose a race
	conflictOnce bool
	findErr      error
	commitErr    func(w migration.RecordWrite) error
}

func newMemStore() *memStore {
	return &memStore{
		mappings: make(map[migration.MappingKey]migration.ExternalIDMapping),
		entities: make(map[uuid.UUID]crm.Entity),
		links:    make(map[uuid.UUID]migration.Links),
	}
}

func (s *memStore) FindByKey(_ context.Context, key migration.MappingKey) (*migration.ExternalIDMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	m, ok := s.mappings[key]
	if !ok {
		return nil, migration.ErrMappingNotFound
	}
	return &m, nil
}

func (s *memStore) Commit(_ context.Context, w migration.RecordWrite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		if err := s.commitErr(w); err != nil {
			return err
		}
	}
	if s.conflictOnce && !w.Existing {
		s.conflictOnce = false
		winner := uuid.New()
		s.mappings[w.Key] = migration.ExternalIDMapping{Key: w.Key, InternalID: winner, Fingerprint: "concurrent"}
		return &migration.WriteConflictError{Key: w.Key, Allocated: w.InternalID, Stored: winner}
	}
	existing, ok := s.mappings[w.Key]
	firstRun := w.RunID
	if ok {
		firstRun = existing.FirstRunID
	}
	s.mappings[w.Key] = migration.ExternalIDMapping{
		Key:         w.Key,
		InternalID:  w.InternalID,
		Fingerprint: w.Fingerprint,
		FirstRunID:  firstRun,
		LastRunID:   w.RunID,
	}
	s.entities[w.InternalID] = w.Entity
	if len(w.Links) > 0 {
		s.links[w.InternalID] = w.Links
	}
	s.commits++
	return nil
}

func (s *memStore) mappingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mappings)
}

func (s *memStore) commitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// memRunRepo is an in-memory RunRepository
type memRunRepo struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]migration.Run
	finalized int
	createErr error
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[uuid.UUID]migration.Run)}
}

func (r *memRunRepo) Create(_ context.Context, run *migration.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.runs[run.ID] = *run
	return nil
}

func (r *memRunRepo) Finalize(_ context.Context, run *migration.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.runs[run.ID]
	if !ok {
		return migration.ErrRunNotFound
	}
	if stored.Status.IsTerminal() {
		return migration.ErrRunAlreadyFinalized
	}
	r.runs[run.ID] = *run
	r.finalized++
	return nil
}

func (r *memRunRepo) FindByID(_ context.Context, orgID, id uuid.UUID) (*migration.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok || run.OrgID != orgID {
		return nil, migration.ErrRunNotFound
	}
	return &run, nil
}

func (r *memRunRepo) ListByOrg(_ context.Context, orgID uuid.UUID, limit int) ([]*migration.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*migration.Run
	for _, run := range r.runs {
		if run.OrgID == orgID && len(out) < limit {
			run := run
			out = append(out, &run)
		}
	}
	return out, nil
}

func (r *memRunRepo) get(id uuid.UUID) migration.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

func (r *memRunRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

// fakeContact is the payload scriptedAdapter understands
type fakeContact struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
	// Contact links a property to its owner
	Contact string `json:"contact,omitempty"`
	Street  string `json:"street,omitempty"`
}

func contactRecord(id, name string) migration.ProviderRecord {
	return payloadRecord(crm.KindContact, fakeContact{ID: id, Name: name})
}

func payloadRecord(kind crm.EntityKind, c fakeContact) migration.ProviderRecord {
	payload, _ := json.Marshal(c)
	return migration.ProviderRecord{
		Source:     migration.SourceJobNimbus,
		Kind:       kind,
		ExternalID: c.ID,
		Payload:    payload,
	}
}

// scriptedAdapter serves preset pages per kind
type scriptedAdapter struct {
	mu    sync.Mutex
	pages map[crm.EntityKind][]*migration.Page
	// fetchErr fails every fetch of a kind
	fetchErr map[crm.EntityKind]error
	// block makes FetchPage wait for context cancellation
	block   bool
	fetches map[crm.EntityKind]int
	tokens  []migration.PageToken
}

func newScriptedAdapter() *scriptedAdapter {
	return &scriptedAdapter{
		pages:    make(map[crm.EntityKind][]*migration.Page),
		fetchErr: make(map[crm.EntityKind]error),
		fetches:  make(map[crm.EntityKind]int),
	}
}

// withRecords serves records of kind as a single final page
func (a *scriptedAdapter) withRecords(kind crm.EntityKind, records ...migration.ProviderRecord) *scriptedAdapter {
	a.pages[kind] = []*migration.Page{{Records: records, Done: true}}
	return a
}

func (a *scriptedAdapter) withPages(kind crm.EntityKind, pages ...*migration.Page) *scriptedAdapter {
	a.pages[kind] = pages
	return a
}

func (a *scriptedAdapter) Source() migration.Source { return migration.SourceJobNimbus }

func (a *scriptedAdapter) FetchPage(ctx context.Context, _ migration.Credentials, kind crm.EntityKind, token migration.PageToken) (*migration.Page, error) {
	a.mu.Lock()
	a.fetches[kind]++
	a.tokens = append(a.tokens, token)
	err := a.fetchErr[kind]
	pages := a.pages[kind]
	block := a.block
	a.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	// the token is the page index, so every run starts from the first page
	n := 0
	if token != "" {
		var convErr error
		if n, convErr = strconv.Atoi(string(token)); convErr != nil {
			return nil, fmt.Errorf("bad page token %q: %w", token, convErr)
		}
	}
	if n >= len(pages) {
		return &migration.Page{Done: true}, nil
	}
	return pages[n], nil
}

func (a *scriptedAdapter) Map(record migration.ProviderRecord, orgID uuid.UUID) (crm.Entity, error) {
	var in fakeContact
	if err := json.Unmarshal(record.Payload, &in); err != nil {
		return nil, &migration.RecordMappingError{Kind: record.Kind, ExternalID: record.ExternalID, Err: fmt.Errorf("%w: %v", migration.ErrMalformedRecord, err)}
	}
	if in.Deleted {
		return nil, nil
	}
	ref := crm.ExternalRef{OrgID: orgID, Source: string(migration.SourceJobNimbus), ExternalID: record.ExternalID}
	switch record.Kind {
	case crm.KindContact:
		return &crm.Contact{Ref: ref, DisplayName: in.Name, Email: in.Email}, nil
	case crm.KindProperty:
		return &crm.Property{Ref: ref, Name: in.Name, Address: crm.Address{Street: in.Street}, ContactExternalID: in.Contact}, nil
	}
	return nil, fmt.Errorf("%w: %s", migration.ErrUnsupportedKind, record.Kind)
}

func (a *scriptedAdapter) fetchCount(kind crm.EntityKind) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches[kind]
}

// recordingArchive captures stored reports
type recordingArchive struct {
	mu     sync.Mutex
	stored map[uuid.UUID][]migration.MigrationError
	err    error
}

func (a *recordingArchive) Store(_ context.Context, run *migration.Run, errs []migration.MigrationError) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	if a.stored == nil {
		a.stored = make(map[uuid.UUID][]migration.MigrationError)
	}
	a.stored[run.ID] = errs
	return fmt.Sprintf("migrations/%s/%s.json", run.OrgID, run.ID), nil
}

// recordingMetrics counts recorded measurements
type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[migration.Outcome]int
	runs     []migration.RunStatus
}

func (m *recordingMetrics) RecordOutcome(_ context.Context, _ migration.Source, _ crm.EntityKind, outcome migration.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[migration.Outcome]int)
	}
	m.outcomes[outcome]++
}

func (m *recordingMetrics) RecordRun(_ context.Context, _ migration.Source, status migration.RunStatus, _ bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, status)
}

// failingLock rejects every call
type failingLock struct{}

var errLockBackend = errors.New("lock backend unavailable")

func (failingLock) Acquire(context.Context, uuid.UUID, string, time.Duration) (bool, error) {
	return false, errLockBackend
}

func (failingLock) Release(context.Context, uuid.UUID, string) error { return errLockBackend }

func (failingLock) ForceUnlock(context.Context, uuid.UUID) (bool, error) {
	return false, errLockBackend
}
