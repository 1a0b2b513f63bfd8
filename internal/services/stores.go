package services

import (
	"context"

	"github.com/soaringjerry/Footprint/internal/models"
)

// IdentityStore persists credentials for the identity provider.
type IdentityStore interface {
	CreateIdentity(ctx context.Context, id *models.Identity) error
	// FindIdentityByEmail returns nil, nil when no identity matches.
	FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	DeleteIdentity(ctx context.Context, id string) error
}

// ProfileStore persists principal profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *models.Principal) error
	// FindProfileByPrincipalID returns nil, nil when the principal has no
	// profile of the requested variant.
	FindProfileByPrincipalID(ctx context.Context, id string, variant models.AccountType) (*models.Principal, error)
	DeleteProfile(ctx context.Context, id string) error
	AppendDependent(ctx context.Context, id string, dep models.Dependent) error
}

// ReadingStore persists monthly usage readings.
type ReadingStore interface {
	// CreateReading returns ErrDuplicateReading when the principal already
	// has a reading for the period.
	CreateReading(ctx context.Context, r *models.UsageReading) error
	FindReadingsByPrincipal(ctx context.Context, principalID string) ([]*models.UsageReading, error)
	// FindReading returns nil, nil when nothing was submitted for the period.
	FindReading(ctx context.Context, principalID, period string) (*models.UsageReading, error)
}

// AttachmentStore keeps uploaded documents under slash-separated paths.
type AttachmentStore interface {
	Upload(ctx context.Context, path string, blob models.Blob) error
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}
