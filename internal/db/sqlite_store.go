package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/soaringjerry/Footprint/internal/api"
	"github.com/soaringjerry/Footprint/internal/models"
	"github.com/soaringjerry/Footprint/internal/services"
)

const timeLayout = time.RFC3339Nano

type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (and creates) the database file at path.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=on", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

func NewSQLiteStore(db *sql.DB, logger zerolog.Logger) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("apply sqlite pragma %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db, logger: logger.With().Str("component", "sqlite").Logger()}, nil
}

func NewStore(db *sql.DB, logger zerolog.Logger) (api.Store, error) {
	return NewSQLiteStore(db, logger)
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (s *SQLiteStore) CreateIdentity(ctx context.Context, id *models.Identity) error {
	if id == nil {
		return errors.New("identity required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (id, email, pass_hash, created_at) VALUES (?, ?, ?, ?)`,
		id.ID, strings.ToLower(id.Email), id.PassHash, id.CreatedAt.UTC().Format(timeLayout))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", services.ErrDuplicateIdentity, strings.ToLower(id.Email))
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	var (
		id      models.Identity
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, pass_hash, created_at FROM identities WHERE email = ?`,
		strings.ToLower(email)).Scan(&id.ID, &id.Email, &id.PassHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select identity: %w", err)
	}
	id.CreatedAt = parseTime(created)
	return &id, nil
}

func (s *SQLiteStore) DeleteIdentity(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return nil
}

func encodeProfile(p *models.Principal) (string, error) {
	var (
		b   []byte
		err error
	)
	switch p.Type {
	case models.AccountIndividual:
		b, err = json.Marshal(p.Individual)
	case models.AccountOrganization:
		b, err = json.Marshal(p.Organization)
	default:
		return "", models.ErrUnknownAccountType
	}
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}
	return string(b), nil
}

func decodeProfile(id string, t models.AccountType, payload string) (*models.Principal, error) {
	switch t {
	case models.AccountIndividual:
		var ind models.Individual
		if err := json.Unmarshal([]byte(payload), &ind); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", id, err)
		}
		return models.NewIndividualPrincipal(id, ind), nil
	case models.AccountOrganization:
		var org models.Organization
		if err := json.Unmarshal([]byte(payload), &org); err != nil {
			return nil, fmt.Errorf("decode profile %s: %w", id, err)
		}
		return models.NewOrganizationPrincipal(id, org), nil
	}
	return nil, models.ErrUnknownAccountType
}

func (s *SQLiteStore) CreateProfile(ctx context.Context, p *models.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	payload, err := encodeProfile(p)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (principal_id, account_type, payload, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, string(p.Type), payload, now, now)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindProfileByPrincipalID(ctx context.Context, id string, variant models.AccountType) (*models.Principal, error) {
	var t, payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT account_type, payload FROM profiles WHERE principal_id = ?`, id).Scan(&t, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	if models.AccountType(t) != variant {
		return nil, nil
	}
	return decodeProfile(id, variant, payload)
}

func (s *SQLiteStore) DeleteProfile(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE principal_id = ?`, id); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}

// AppendDependent rewrites the profile payload inside one transaction.
func (s *SQLiteStore) AppendDependent(ctx context.Context, id string, dep models.Dependent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var t, payload string
	err = tx.QueryRowContext(ctx, `SELECT account_type, payload FROM profiles WHERE principal_id = ?`, id).Scan(&t, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("profile %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("select profile: %w", err)
	}
	if models.AccountType(t) != models.AccountIndividual {
		return models.ErrVariantMismatch
	}
	p, err := decodeProfile(id, models.AccountIndividual, payload)
	if err != nil {
		return err
	}
	p.Individual.Dependents = append(p.Individual.Dependents, dep)
	next, err := encodeProfile(p)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE profiles SET payload = ?, updated_at = ? WHERE principal_id = ?`,
		next, time.Now().UTC().Format(timeLayout), id); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) CreateReading(ctx context.Context, r *models.UsageReading) error {
	if r == nil {
		return errors.New("reading required")
	}
	atts, err := json.Marshal(r.Attachments)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO readings (id, principal_id, account_type, period_key, electric, gas, fuel, avg_miles, estimate_lbs, attachments, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.PrincipalID, string(r.AccountType), r.PeriodKey,
		r.Usage.Electric.String(), r.Usage.Gas.String(), r.Usage.Fuel.String(), r.Usage.AvgMiles.String(),
		r.EstimateLbs.String(), string(atts), r.CreatedAt.UTC().Format(timeLayout))
	if isUniqueViolation(err) {
		return fmt.Errorf("insert reading %s: %w", r.PeriodKey, services.ErrDuplicateReading)
	}
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

const readingColumns = `id, principal_id, account_type, period_key, electric, gas, fuel, avg_miles, estimate_lbs, attachments, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReading(row rowScanner) (*models.UsageReading, error) {
	var (
		r                  models.UsageReading
		t, atts, created   string
		e, g, f, m, estLbs string
	)
	if err := row.Scan(&r.ID, &r.PrincipalID, &t, &r.PeriodKey, &e, &g, &f, &m, &estLbs, &atts, &created); err != nil {
		return nil, err
	}
	var err error
	parse := func(v string) decimal.Decimal {
		d, perr := decimal.NewFromString(v)
		if perr != nil && err == nil {
			err = fmt.Errorf("reading %s: bad decimal %q: %w", r.ID, v, perr)
		}
		return d
	}
	r.AccountType = models.AccountType(t)
	r.Usage = models.Usage{Electric: parse(e), Gas: parse(g), Fuel: parse(f), AvgMiles: parse(m)}
	r.EstimateLbs = parse(estLbs)
	if err != nil {
		return nil, err
	}
	r.Attachments = map[models.Category]string{}
	if strings.TrimSpace(atts) != "" {
		if err := json.Unmarshal([]byte(atts), &r.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments of %s: %w", r.ID, err)
		}
	}
	r.CreatedAt = parseTime(created)
	return &r, nil
}

func (s *SQLiteStore) FindReadingsByPrincipal(ctx context.Context, principalID string) ([]*models.UsageReading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+readingColumns+` FROM readings WHERE principal_id = ? ORDER BY created_at, rowid`, principalID)
	if err != nil {
		return nil, fmt.Errorf("select readings: %w", err)
	}
	defer rows.Close()
	var out []*models.UsageReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) FindReading(ctx context.Context, principalID, period string) (*models.UsageReading, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+readingColumns+` FROM readings WHERE principal_id = ? AND period_key = ?`, principalID, period)
	r, err := scanReading(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select reading: %w", err)
	}
	return r, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
