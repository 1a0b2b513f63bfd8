package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/soaringjerry/Footprint/internal/models"
)

type ProfileService struct {
	profiles    ProfileStore
	logger      zerolog.Logger
	now         func() time.Time
	callTimeout time.Duration
}

func NewProfileService(profiles ProfileStore, logger zerolog.Logger) *ProfileService {
	return &ProfileService{
		profiles:    profiles,
		logger:      logger.With().Str("component", "profiles").Logger(),
		now:         time.Now,
		callTimeout: defaultCallTimeout,
	}
}

func (s *ProfileService) SetCallTimeout(d time.Duration) { s.callTimeout = d }

// AddDependent appends a family member to the signed-in individual and
// publishes the updated principal on the session.
func (s *ProfileService) AddDependent(ctx context.Context, sess *Session, dep models.Dependent) (*models.Principal, error) {
	p := sess.Get()
	if err := p.Validate(); err != nil {
		return nil, NewUnauthorizedError("sign in required")
	}
	if p.Type != models.AccountIndividual {
		return nil, NewForbiddenError("only individual accounts have dependents")
	}
	if err := validateDependent(dep, s.now()).err(); err != nil {
		return nil, err
	}
	err := withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		return s.profiles.AppendDependent(ctx, p.ID, dep)
	})
	if err != nil {
		return nil, storeFailure("append dependent", err)
	}
	next := p.Clone()
	next.Individual.Dependents = append(next.Individual.Dependents, dep)
	sess.Set(next)
	s.logger.Info().Str("principal_id", p.ID).Int("dependents", len(next.Individual.Dependents)).Msg("dependent added")
	return next, nil
}

// Summary is the personal information card shown on the dashboard.
type Summary struct {
	AccountType models.AccountType  `json:"account_type"`
	Name        string              `json:"name"`
	Address     string              `json:"address"`
	Email       string              `json:"email"`
	Phone       string              `json:"phone"`
	DateOfBirth *models.DateOfBirth `json:"date_of_birth,omitempty"`
	NationalID  string              `json:"national_id,omitempty"`
	ProductType string              `json:"product_type,omitempty"`
	Dependents  int                 `json:"dependents,omitempty"`
}

func SummaryOf(p *models.Principal) Summary {
	a := p.Address()
	parts := make([]string, 0, 2)
	for _, v := range []string{a.FullAddress, a.Region} {
		if strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
	}
	out := Summary{
		AccountType: p.Type,
		Name:        p.DisplayName(),
		Address:     strings.Join(parts, ", "),
		Email:       p.Email(),
		Phone:       p.Phone(),
	}
	switch p.Type {
	case models.AccountIndividual:
		dob := p.Individual.DateOfBirth
		out.DateOfBirth = &dob
		out.NationalID = p.Individual.NationalID
		out.Dependents = len(p.Individual.Dependents)
	case models.AccountOrganization:
		out.ProductType = p.Organization.ProductType
	}
	return out
}
