package services

import (
	"context"
	"errors"
	"path"
	"time"

	"github.com/rs/zerolog"

	"github.com/soaringjerry/Footprint/internal/models"
)

// SubmissionState is the outcome of a submission for one principal and period.
type SubmissionState string

const (
	StateNotSubmitted       SubmissionState = "not_submitted"
	StateSubmitted          SubmissionState = "submitted"
	StateFailed             SubmissionState = "failed"
	StatePartiallyPersisted SubmissionState = "partially_persisted"
	StateCancelled          SubmissionState = "cancelled"
)

// Attachments maps each category to the bill uploaded for it.
type Attachments map[models.Category]*models.Blob

// attachmentFields names the form field of each category's bill.
var attachmentFields = map[models.Category]string{
	models.CategoryElectricity: "electricityBill",
	models.CategoryGas:         "gasBill",
	models.CategoryFuel:        "fuelBill",
	models.CategoryCar:         "carBill",
}

// AttachmentField returns the form field name used for c.
func AttachmentField(c models.Category) string { return attachmentFields[c] }

// SubmitResult is always returned by Submit. State tells the caller which
// branch to take; the error carries the details.
type SubmitResult struct {
	State    SubmissionState
	Period   string
	Reading  *models.UsageReading
	Uploaded []models.Category
	Pending  []models.Category
}

type SubmissionService struct {
	readings    ReadingStore
	files       AttachmentStore
	logger      zerolog.Logger
	now         func() time.Time
	idGen       func() string
	callTimeout time.Duration
}

func NewSubmissionService(readings ReadingStore, files AttachmentStore, logger zerolog.Logger) *SubmissionService {
	return &SubmissionService{
		readings:    readings,
		files:       files,
		logger:      logger.With().Str("component", "submissions").Logger(),
		now:         time.Now,
		idGen:       func() string { return "r" + shortID(12) },
		callTimeout: defaultCallTimeout,
	}
}

// SetCallTimeout bounds every store call made by the service. Zero disables
// the bound.
func (s *SubmissionService) SetCallTimeout(d time.Duration) { s.callTimeout = d }

// SetClock replaces the time source used to derive period keys.
func (s *SubmissionService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CurrentPeriod is the period key a submission made now would use.
func (s *SubmissionService) CurrentPeriod() string { return PeriodKey(s.now()) }

// AttachmentPath is where a bill is stored. Paths are unique per principal,
// period and category.
func AttachmentPath(principalID, period string, c models.Category, filename string) string {
	return path.Join("files", principalID, PeriodPathSegment(period), string(c), SanitizeFilename(filename))
}

func validateSubmission(in ReadingInput, files Attachments) (models.Usage, error) {
	u, bad := ParseUsage(in)
	for _, c := range models.Categories {
		if !validBlob(files[c]) {
			bad = append(bad, attachmentFields[c])
		}
	}
	if len(bad) > 0 {
		return models.Usage{}, NewValidationError(bad...)
	}
	return u, nil
}

// Submit validates, estimates and records one monthly reading, then uploads
// its four bills in order. Validation happens before any store call. Once
// the reading is written it is never rolled back: an upload failure leaves
// the result in StatePartiallyPersisted and the missing bills can be sent
// again with ReuploadAttachment.
func (s *SubmissionService) Submit(ctx context.Context, p *models.Principal, in ReadingInput, files Attachments) (*SubmitResult, error) {
	res := &SubmitResult{State: StateFailed}
	if err := p.Validate(); err != nil {
		return res, NewUnauthorizedError("sign in required")
	}
	usage, err := validateSubmission(in, files)
	if err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		res.State = StateCancelled
		return res, NewCancelledError("submit", err)
	}

	now := s.now()
	period := PeriodKey(now)
	res.Period = period
	log := s.logger.With().Str("principal_id", p.ID).Str("period", period).Logger()

	var existing *models.UsageReading
	err = withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var ferr error
		existing, ferr = s.readings.FindReading(ctx, p.ID, period)
		return ferr
	})
	if err != nil {
		return s.failed(res, storeFailure("find reading", err))
	}
	if existing != nil {
		log.Info().Msg("duplicate submission rejected")
		return res, NewDuplicateSubmissionError(period)
	}

	reading := &models.UsageReading{
		ID:          s.idGen(),
		PrincipalID: p.ID,
		AccountType: p.Type,
		PeriodKey:   period,
		Usage:       usage,
		EstimateLbs: Estimate(usage),
		Attachments: make(map[models.Category]string, len(models.Categories)),
		CreatedAt:   now.UTC(),
	}
	for _, c := range models.Categories {
		reading.Attachments[c] = AttachmentPath(p.ID, period, c, files[c].Filename)
	}

	err = withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		return s.readings.CreateReading(ctx, reading)
	})
	if errors.Is(err, ErrDuplicateReading) {
		log.Info().Msg("duplicate submission rejected by store")
		return res, NewDuplicateSubmissionError(period)
	}
	if err != nil {
		return s.failed(res, storeFailure("create reading", err))
	}
	res.Reading = reading

	for i, c := range models.Categories {
		err := withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
			return s.files.Upload(ctx, reading.Attachments[c], *files[c])
		})
		if err != nil {
			res.State = StatePartiallyPersisted
			res.Pending = append([]models.Category(nil), models.Categories[i:]...)
			log.Error().Err(err).
				Str("reading_id", reading.ID).
				Str("category", string(c)).
				Msg("attachment upload failed after reading was saved")
			return res, NewPartialFailureError(res.Uploaded, res.Pending, err)
		}
		res.Uploaded = append(res.Uploaded, c)
	}

	res.State = StateSubmitted
	log.Info().Str("reading_id", reading.ID).Str("estimate_lbs", reading.EstimateLbs.String()).Msg("reading submitted")
	return res, nil
}

func (s *SubmissionService) failed(res *SubmitResult, err error) (*SubmitResult, error) {
	if HasCode(err, ErrorCancelled) {
		res.State = StateCancelled
	}
	return res, err
}

// Status reports whether p has submitted for the current period. A reading
// whose bills are not all stored counts as partially persisted.
func (s *SubmissionService) Status(ctx context.Context, p *models.Principal) (SubmissionState, *models.UsageReading, error) {
	if err := p.Validate(); err != nil {
		return StateNotSubmitted, nil, NewUnauthorizedError("sign in required")
	}
	period := PeriodKey(s.now())
	var r *models.UsageReading
	err := withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var ferr error
		r, ferr = s.readings.FindReading(ctx, p.ID, period)
		return ferr
	})
	if err != nil {
		return StateNotSubmitted, nil, storeFailure("find reading", err)
	}
	if r == nil {
		return StateNotSubmitted, nil, nil
	}
	missing, err := s.missingAttachments(ctx, r)
	if err != nil {
		return StateSubmitted, r, err
	}
	if len(missing) > 0 {
		return StatePartiallyPersisted, r, nil
	}
	return StateSubmitted, r, nil
}

func (s *SubmissionService) missingAttachments(ctx context.Context, r *models.UsageReading) ([]models.Category, error) {
	var missing []models.Category
	for _, c := range models.Categories {
		p, ok := r.Attachments[c]
		if !ok || p == "" {
			missing = append(missing, c)
			continue
		}
		var exists bool
		err := withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
			var eerr error
			exists, eerr = s.files.Exists(ctx, p)
			return eerr
		})
		if err != nil {
			return nil, storeFailure("stat attachment", err)
		}
		if !exists {
			missing = append(missing, c)
		}
	}
	return missing, nil
}

// History returns every reading of p grouped by year.
func (s *SubmissionService) History(ctx context.Context, p *models.Principal) (models.SubmissionHistory, error) {
	if err := p.Validate(); err != nil {
		return nil, NewUnauthorizedError("sign in required")
	}
	var rs []*models.UsageReading
	err := withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var ferr error
		rs, ferr = s.readings.FindReadingsByPrincipal(ctx, p.ID)
		return ferr
	})
	if err != nil {
		return nil, storeFailure("list readings", err)
	}
	return GroupByYear(rs)
}

// ReuploadAttachment stores a bill again at the path recorded on the reading
// for period. The reading itself is not modified.
func (s *SubmissionService) ReuploadAttachment(ctx context.Context, p *models.Principal, period string, c models.Category, blob *models.Blob) (*models.UsageReading, error) {
	if err := p.Validate(); err != nil {
		return nil, NewUnauthorizedError("sign in required")
	}
	var bad fieldErrors
	if _, _, err := ParsePeriodKey(period); err != nil {
		bad = append(bad, "period")
	}
	bad.check("category", c.Valid())
	if c.Valid() {
		bad.check(attachmentFields[c], validBlob(blob))
	}
	if err := bad.err(); err != nil {
		return nil, err
	}

	var r *models.UsageReading
	err := withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		var ferr error
		r, ferr = s.readings.FindReading(ctx, p.ID, period)
		return ferr
	})
	if err != nil {
		return nil, storeFailure("find reading", err)
	}
	if r == nil {
		return nil, NewNotFoundError("no submission for " + period)
	}
	dst := r.Attachments[c]
	if dst == "" {
		dst = AttachmentPath(p.ID, period, c, blob.Filename)
	}
	err = withTimeout(ctx, s.callTimeout, func(ctx context.Context) error {
		return s.files.Upload(ctx, dst, *blob)
	})
	if err != nil {
		return nil, storeFailure("upload attachment", err)
	}
	s.logger.Info().Str("principal_id", p.ID).Str("period", period).Str("category", string(c)).Msg("attachment re-uploaded")
	return r, nil
}
