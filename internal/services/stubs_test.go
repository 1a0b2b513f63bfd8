package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/soaringjerry/Footprint/internal/models"
)

var discardLogger = zerolog.New(io.Discard)

// stubStore implements every collaborator interface in memory and counts
// calls so tests can assert that nothing was touched.
type stubStore struct {
	mu         sync.Mutex
	calls      int
	identities map[string]*models.Identity // by email
	profiles   map[string]*models.Principal
	readings   []*models.UsageReading
	files      map[string][]byte

	staleFind         bool
	failCreateProfile error
	failDeleteIdent   error
	failCreateReading error
	failFindReading   error
	failUploadPrefix  string
	failUploadErr     error
	blockUpload       bool
}

func newStubStore() *stubStore {
	return &stubStore{
		identities: map[string]*models.Identity{},
		profiles:   map[string]*models.Principal{},
		files:      map[string][]byte{},
	}
}

func (s *stubStore) hit() {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
}

func (s *stubStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubStore) CreateIdentity(_ context.Context, id *models.Identity) error {
	s.hit()
	key := strings.ToLower(id.Email)
	if _, ok := s.identities[key]; ok {
		return ErrDuplicateIdentity
	}
	cp := *id
	s.identities[key] = &cp
	return nil
}

func (s *stubStore) FindIdentityByEmail(_ context.Context, email string) (*models.Identity, error) {
	s.hit()
	if s.staleFind {
		return nil, nil
	}
	if id, ok := s.identities[strings.ToLower(email)]; ok {
		cp := *id
		return &cp, nil
	}
	return nil, nil
}

func (s *stubStore) DeleteIdentity(_ context.Context, id string) error {
	s.hit()
	if s.failDeleteIdent != nil {
		return s.failDeleteIdent
	}
	for k, v := range s.identities {
		if v.ID == id {
			delete(s.identities, k)
		}
	}
	return nil
}

func (s *stubStore) CreateProfile(_ context.Context, p *models.Principal) error {
	s.hit()
	if s.failCreateProfile != nil {
		return s.failCreateProfile
	}
	s.profiles[p.ID] = p.Clone()
	return nil
}

func (s *stubStore) FindProfileByPrincipalID(_ context.Context, id string, variant models.AccountType) (*models.Principal, error) {
	s.hit()
	p, ok := s.profiles[id]
	if !ok || p.Type != variant {
		return nil, nil
	}
	return p.Clone(), nil
}

func (s *stubStore) DeleteProfile(_ context.Context, id string) error {
	s.hit()
	delete(s.profiles, id)
	return nil
}

func (s *stubStore) AppendDependent(_ context.Context, id string, dep models.Dependent) error {
	s.hit()
	p, ok := s.profiles[id]
	if !ok || p.Individual == nil {
		return errors.New("no individual profile")
	}
	p.Individual.Dependents = append(p.Individual.Dependents, dep)
	return nil
}

func (s *stubStore) CreateReading(_ context.Context, r *models.UsageReading) error {
	s.hit()
	if s.failCreateReading != nil {
		return s.failCreateReading
	}
	for _, x := range s.readings {
		if x.PrincipalID == r.PrincipalID && x.PeriodKey == r.PeriodKey {
			return ErrDuplicateReading
		}
	}
	cp := *r
	s.readings = append(s.readings, &cp)
	return nil
}

func (s *stubStore) FindReadingsByPrincipal(_ context.Context, principalID string) ([]*models.UsageReading, error) {
	s.hit()
	var out []*models.UsageReading
	for _, r := range s.readings {
		if r.PrincipalID == principalID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *stubStore) FindReading(_ context.Context, principalID, period string) (*models.UsageReading, error) {
	s.hit()
	if s.failFindReading != nil {
		return nil, s.failFindReading
	}
	for _, r := range s.readings {
		if r.PrincipalID == principalID && r.PeriodKey == period {
			return r, nil
		}
	}
	return nil, nil
}

func (s *stubStore) Upload(ctx context.Context, path string, blob models.Blob) error {
	s.hit()
	if s.blockUpload {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.failUploadPrefix != "" && strings.HasPrefix(path, s.failUploadPrefix) {
		return s.failUploadErr
	}
	s.mu.Lock()
	s.files[path] = append([]byte(nil), blob.Data...)
	s.mu.Unlock()
	return nil
}

func (s *stubStore) Delete(_ context.Context, path string) error {
	s.hit()
	s.mu.Lock()
	delete(s.files, path)
	s.mu.Unlock()
	return nil
}

func (s *stubStore) Exists(_ context.Context, path string) (bool, error) {
	s.hit()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[path]
	return ok, nil
}

var (
	_ IdentityStore   = (*stubStore)(nil)
	_ ProfileStore    = (*stubStore)(nil)
	_ ReadingStore    = (*stubStore)(nil)
	_ AttachmentStore = (*stubStore)(nil)
)
