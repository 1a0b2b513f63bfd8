package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/soaringjerry/Footprint/internal/models"
	"github.com/soaringjerry/Footprint/internal/services"
)

type memoryStore struct {
	mu           sync.RWMutex
	identities   map[string]*models.Identity // by id
	emailIndex   map[string]string           // email -> id
	profiles     map[string]*models.Principal
	readings     map[string][]*models.UsageReading // by principal, insertion order
	readingIndex map[string]struct{}               // principal|period
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		identities:   map[string]*models.Identity{},
		emailIndex:   map[string]string{},
		profiles:     map[string]*models.Principal{},
		readings:     map[string][]*models.UsageReading{},
		readingIndex: map[string]struct{}{},
	}
}

// NewMemoryStore returns an in-process Store.
func NewMemoryStore() Store { return newMemoryStore() }

func readingKey(principalID, period string) string { return principalID + "|" + period }

func cloneReading(r *models.UsageReading) *models.UsageReading {
	c := *r
	c.Attachments = make(map[models.Category]string, len(r.Attachments))
	for k, v := range r.Attachments {
		c.Attachments[k] = v
	}
	return &c
}

func (s *memoryStore) CreateIdentity(ctx context.Context, id *models.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == nil {
		return errors.New("identity required")
	}
	email := strings.ToLower(id.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emailIndex[email]; ok {
		return fmt.Errorf("%w: %s", services.ErrDuplicateIdentity, email)
	}
	c := *id
	c.Email = email
	c.PassHash = append([]byte(nil), id.PassHash...)
	s.identities[c.ID] = &c
	s.emailIndex[email] = c.ID
	return nil
}

func (s *memoryStore) FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[strings.ToLower(email)]
	if !ok {
		return nil, nil
	}
	c := *s.identities[id]
	return &c, nil
}

func (s *memoryStore) DeleteIdentity(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ident, ok := s.identities[id]; ok {
		delete(s.emailIndex, ident.Email)
		delete(s.identities, id)
	}
	return nil
}

func (s *memoryStore) CreateProfile(ctx context.Context, p *models.Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.ID]; ok {
		return fmt.Errorf("profile %s already exists", p.ID)
	}
	s.profiles[p.ID] = p.Clone()
	return nil
}

func (s *memoryStore) FindProfileByPrincipalID(ctx context.Context, id string, variant models.AccountType) (*models.Principal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok || p.Type != variant {
		return nil, nil
	}
	return p.Clone(), nil
}

func (s *memoryStore) DeleteProfile(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, id)
	return nil
}

func (s *memoryStore) AppendDependent(ctx context.Context, id string, dep models.Dependent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return fmt.Errorf("profile %s not found", id)
	}
	if p.Type != models.AccountIndividual {
		return models.ErrVariantMismatch
	}
	next := p.Clone()
	next.Individual.Dependents = append(next.Individual.Dependents, dep)
	s.profiles[id] = next
	return nil
}

func (s *memoryStore) CreateReading(ctx context.Context, r *models.UsageReading) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r == nil {
		return errors.New("reading required")
	}
	key := readingKey(r.PrincipalID, r.PeriodKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.readingIndex[key]; ok {
		return services.ErrDuplicateReading
	}
	s.readingIndex[key] = struct{}{}
	s.readings[r.PrincipalID] = append(s.readings[r.PrincipalID], cloneReading(r))
	return nil
}

func (s *memoryStore) FindReadingsByPrincipal(ctx context.Context, principalID string) ([]*models.UsageReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.UsageReading, 0, len(s.readings[principalID]))
	for _, r := range s.readings[principalID] {
		out = append(out, cloneReading(r))
	}
	return out, nil
}

func (s *memoryStore) FindReading(ctx context.Context, principalID, period string) (*models.UsageReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.readings[principalID] {
		if r.PeriodKey == period {
			return cloneReading(r), nil
		}
	}
	return nil, nil
}

// Snapshot is the on-disk form of the memory store. It is also the import
// format for moving data into SQLite.
type Snapshot struct {
	SavedAt    time.Time              `json:"saved_at"`
	Identities []*models.Identity     `json:"identities"`
	Profiles   []*models.Principal    `json:"profiles"`
	Readings   []*models.UsageReading `json:"readings"`
}

// MemoryStoreSnapshot copies the contents of a store made by NewMemoryStore
// or NewMemoryStoreFromPath. Other stores yield nil.
func MemoryStoreSnapshot(st Store) *Snapshot {
	s, ok := st.(*memoryStore)
	if !ok {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := &Snapshot{SavedAt: time.Now().UTC()}
	for _, id := range s.identities {
		c := *id
		snap.Identities = append(snap.Identities, &c)
	}
	for _, p := range s.profiles {
		snap.Profiles = append(snap.Profiles, p.Clone())
	}
	for _, rs := range s.readings {
		for _, r := range rs {
			snap.Readings = append(snap.Readings, cloneReading(r))
		}
	}
	sort.Slice(snap.Identities, func(i, j int) bool { return snap.Identities[i].ID < snap.Identities[j].ID })
	sort.Slice(snap.Profiles, func(i, j int) bool { return snap.Profiles[i].ID < snap.Profiles[j].ID })
	sort.SliceStable(snap.Readings, func(i, j int) bool { return snap.Readings[i].CreatedAt.Before(snap.Readings[j].CreatedAt) })
	return snap
}

// LoadSnapshot reads a snapshot file.
func LoadSnapshot(path string) (*Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// CopySnapshot writes every record of snap into dst in dependency order.
func CopySnapshot(ctx context.Context, snap *Snapshot, dst Store) error {
	for _, id := range snap.Identities {
		if id != nil {
			if err := dst.CreateIdentity(ctx, id); err != nil {
				return fmt.Errorf("copy identity %s: %w", id.ID, err)
			}
		}
	}
	for _, p := range snap.Profiles {
		if p != nil {
			if err := dst.CreateProfile(ctx, p); err != nil {
				return fmt.Errorf("copy profile %s: %w", p.ID, err)
			}
		}
	}
	for _, r := range snap.Readings {
		if r != nil {
			if err := dst.CreateReading(ctx, r); err != nil {
				return fmt.Errorf("copy reading %s: %w", r.ID, err)
			}
		}
	}
	return nil
}

// NewMemoryStoreFromPath restores a memory store from a snapshot file. A
// missing file yields an empty store.
func NewMemoryStoreFromPath(path string) (Store, error) {
	s := newMemoryStore()
	if path == "" {
		return s, nil
	}
	snap, err := LoadSnapshot(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := CopySnapshot(context.Background(), snap, s); err != nil {
		return nil, err
	}
	return s, nil
}

// SaveMemoryStore writes the store to path atomically.
func SaveMemoryStore(st Store, path string) error {
	snap := MemoryStoreSnapshot(st)
	if snap == nil {
		return errors.New("not a memory store")
	}
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
