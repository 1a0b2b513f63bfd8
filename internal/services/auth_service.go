package services

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/soaringjerry/Footprint/internal/models"
)

type TokenSigner func(principalID, sessionID string, accountType models.AccountType, ttl time.Duration) (string, error)

type AuthService struct {
	identities  IdentityStore
	profiles    ProfileStore
	files       AttachmentStore
	sessions    *SessionRegistry
	logger      zerolog.Logger
	now         func() time.Time
	idGen       func(prefix string, n int) string
	signToken   TokenSigner
	tokenTTL    time.Duration
	callTimeout time.Duration
	hashCost    int
}

type AuthResult struct {
	Token     string
	SessionID string
	Principal *models.Principal
	ExpiresAt time.Time
}

type IndividualSignup struct {
	Email    string
	Password string
	Profile  models.Individual
}

type OrganizationSignup struct {
	Email    string
	Password string
	Profile  models.Organization
	Document *models.Blob
}

func NewAuthService(identities IdentityStore, profiles ProfileStore, files AttachmentStore, sessions *SessionRegistry, signer TokenSigner, logger zerolog.Logger) *AuthService {
	return &AuthService{
		identities:  identities,
		profiles:    profiles,
		files:       files,
		sessions:    sessions,
		logger:      logger.With().Str("component", "auth").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		idGen:       func(prefix string, n int) string { return prefix + shortID(n) },
		signToken:   signer,
		tokenTTL:    30 * 24 * time.Hour,
		callTimeout: defaultCallTimeout,
		hashCost:    bcrypt.DefaultCost,
	}
}

func (s *AuthService) TokenTTL() time.Duration { return s.tokenTTL }

func (s *AuthService) SetTokenTTL(d time.Duration) {
	if d > 0 {
		s.tokenTTL = d
	}
}

func (s *AuthService) SetCallTimeout(d time.Duration) { s.callTimeout = d }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount registers credentials and returns the new principal id.
func (s *AuthService) CreateAccount(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	var f fieldErrors
	validateCredentials(&f, email, password)
	if err := f.err(); err != nil {
		return "", err
	}
	var existing *models.Identity
	err := withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var ferr error
		existing, ferr = s.identities.FindIdentityByEmail(ctx, email)
		return ferr
	})
	if err != nil {
		return "", storeFailure("find identity", err)
	}
	if existing != nil {
		return "", NewConflictError("email already registered")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", err
	}
	id := &models.Identity{ID: s.idGen("u", 12), Email: email, PassHash: hash, CreatedAt: s.now()}
	err = withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		return s.identities.CreateIdentity(ctx, id)
	})
	if errors.Is(err, ErrDuplicateIdentity) {
		return "", NewConflictError("email already registered")
	}
	if err != nil {
		return "", storeFailure("create identity", err)
	}
	return id.ID, nil
}

// Authenticate checks credentials and returns the principal id.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", NewValidationError("email", "password")
	}
	var id *models.Identity
	err := withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var ferr error
		id, ferr = s.identities.FindIdentityByEmail(ctx, email)
		return ferr
	})
	if err != nil {
		return "", storeFailure("find identity", err)
	}
	if id == nil {
		return "", NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(id.PassHash, []byte(password)); err != nil {
		return "", NewUnauthorizedError("invalid credentials")
	}
	return id.ID, nil
}

// Deauthenticate closes the session. It is safe to call more than once.
func (s *AuthService) Deauthenticate(sessionID string) {
	s.sessions.Close(sessionID)
}

// SignupIndividual creates the account and its profile. If the profile cannot
// be stored the account is deleted again.
func (s *AuthService) SignupIndividual(ctx context.Context, req IndividualSignup) (*models.Principal, error) {
	req.Profile.Email = normalizeEmail(req.Email)
	var f fieldErrors
	validateCredentials(&f, req.Profile.Email, req.Password)
	f = append(f, validateIndividual(req.Profile, s.now())...)
	if err := f.err(); err != nil {
		return nil, err
	}
	id, err := s.CreateAccount(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	p := models.NewIndividualPrincipal(id, req.Profile)
	if err := s.storeProfile(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("principal_id", id).Str("account_type", string(p.Type)).Msg("signup complete")
	return p, nil
}

// SignupOrganization creates the account, its profile and stores the
// registration document. Any failure after the account exists undoes the
// steps already taken.
func (s *AuthService) SignupOrganization(ctx context.Context, req OrganizationSignup) (*models.Principal, error) {
	req.Profile.Email = normalizeEmail(req.Email)
	var f fieldErrors
	validateCredentials(&f, req.Profile.Email, req.Password)
	f = append(f, validateOrganization(req.Profile)...)
	f.check("file", validBlob(req.Document))
	if err := f.err(); err != nil {
		return nil, err
	}
	id, err := s.CreateAccount(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	docPath := path.Join("files", id, "registration", SanitizeFilename(req.Document.Filename))
	req.Profile.RegistrationDocument = docPath
	p := models.NewOrganizationPrincipal(id, req.Profile)
	if err := s.storeProfile(ctx, p); err != nil {
		return nil, err
	}

	err = withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		return s.files.Upload(ctx, docPath, *req.Document)
	})
	if err != nil {
		cause := storeFailure("upload registration document", err)
		return nil, s.compensate(id, cause,
			func(ctx context.Context) error { return s.files.Delete(ctx, docPath) },
			func(ctx context.Context) error { return s.profiles.DeleteProfile(ctx, id) },
		)
	}
	s.logger.Info().Str("principal_id", id).Str("account_type", string(p.Type)).Msg("signup complete")
	return p, nil
}

func (s *AuthService) storeProfile(ctx context.Context, p *models.Principal) error {
	err := withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		return s.profiles.CreateProfile(ctx, p)
	})
	if err == nil {
		return nil
	}
	return s.compensate(p.ID, storeFailure("create profile", err))
}

// compensate runs the given undo steps and then deletes the identity. It uses
// a fresh context so that a cancelled request still cleans up. Undo failures
// are logged and joined to cause; an identity that cannot be deleted stays
// orphaned.
func (s *AuthService) compensate(principalID string, cause error, undo ...func(context.Context) error) error {
	ctx := context.Background()
	log := s.logger.With().Str("principal_id", principalID).Logger()
	log.Warn().Err(cause).Msg("signup failed, rolling back")

	errs := []error{cause}
	for _, step := range undo {
		if err := withTimeout(ctx, s.callTimeout, step); err != nil {
			log.Error().Err(err).Msg("signup rollback step failed")
			errs = append(errs, err)
		}
	}
	err := withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		return s.identities.DeleteIdentity(ctx, principalID)
	})
	if err != nil {
		log.Error().Err(err).Msg("could not delete identity, account is orphaned")
		errs = append(errs, err)
	}
	if len(errs) == 1 {
		return cause
	}
	return errors.Join(errs...)
}

// Login authenticates and loads the profile of the requested account type.
// Credentials without such a profile are rejected.
func (s *AuthService) Login(ctx context.Context, email, password string, variant models.AccountType) (*AuthResult, error) {
	if !variant.Valid() {
		return nil, NewValidationError("account_type")
	}
	id, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	var p *models.Principal
	err = withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var ferr error
		p, ferr = s.profiles.FindProfileByPrincipalID(ctx, id, variant)
		return ferr
	})
	if err != nil {
		return nil, storeFailure("find profile", err)
	}
	if p == nil {
		return nil, NewUnauthorizedError("user does not exist")
	}
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	expiresAt := s.now().Add(s.tokenTTL)
	sid, _ := s.sessions.Open(p, expiresAt)
	token, err := s.signToken(p.ID, sid, p.Type, s.tokenTTL)
	if err != nil {
		s.sessions.Close(sid)
		return nil, err
	}
	s.logger.Info().Str("principal_id", p.ID).Str("account_type", string(p.Type)).Msg("login")
	return &AuthResult{Token: token, SessionID: sid, Principal: p, ExpiresAt: expiresAt}, nil
}

// Logout closes the session; repeated calls are harmless.
func (s *AuthService) Logout(sessionID string) {
	s.Deauthenticate(sessionID)
}
