package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/soaringjerry/Footprint/internal/middleware"
	"github.com/soaringjerry/Footprint/internal/models"
	"github.com/soaringjerry/Footprint/internal/services"
	"github.com/soaringjerry/Footprint/internal/utils"
)

func readingInput(get func(string) string) services.ReadingInput {
	return services.ReadingInput{
		ElectricUsage:  get("electricUsage"),
		GasUsage:       get("gasUsage"),
		FuelUsage:      get("fuelUsage"),
		AvgMilesDriven: get("avgMilesDriven"),
	}
}

// GET /api/estimate?electricUsage=&gasUsage=&fuelUsage=&avgMilesDriven=
func (rt *Router) handleEstimate(w http.ResponseWriter, r *http.Request) {
	in := readingInput(r.URL.Query().Get)
	est, ready, err := services.PreviewEstimate(in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := map[string]any{"ready": ready}
	if ready {
		out["estimate_lbs"] = est
	} else {
		out["message"] = utils.T(middleware.LocaleFromContext(r.Context()), "estimate.incomplete")
	}
	writeJSON(w, http.StatusOK, out)
}

type statusResponse struct {
	Period  string                   `json:"period"`
	State   services.SubmissionState `json:"state"`
	Reading *models.UsageReading     `json:"reading,omitempty"`
	Message string                   `json:"message"`
}

func stateMessage(state services.SubmissionState) string {
	switch state {
	case services.StateSubmitted:
		return "submission.done"
	case services.StatePartiallyPersisted:
		return "submission.partial"
	}
	return "submission.open"
}

func (rt *Router) currentStatus(r *http.Request, p *models.Principal) (statusResponse, error) {
	state, reading, err := rt.submissions.Status(r.Context(), p)
	if err != nil {
		return statusResponse{}, err
	}
	return statusResponse{
		Period:  rt.submissions.CurrentPeriod(),
		State:   state,
		Reading: reading,
		Message: utils.T(middleware.LocaleFromContext(r.Context()), stateMessage(state)),
	}, nil
}

// GET /api/submissions/current
func (rt *Router) handleCurrent(w http.ResponseWriter, r *http.Request) {
	sess, _, _ := middleware.SessionFromContext(r.Context())
	st, err := rt.currentStatus(r, sess.Get())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// POST /api/submissions (multipart: four usage fields and four bills)
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, _, _ := middleware.SessionFromContext(r.Context())
	if err := parseMultipart(w, r, rt.maxUpload); err != nil {
		writeError(w, r, err)
		return
	}
	files := services.Attachments{}
	for _, c := range models.Categories {
		b, err := formBlob(r, services.AttachmentField(c))
		if err != nil {
			writeError(w, r, err)
			return
		}
		files[c] = b
	}
	res, err := rt.submissions.Submit(r.Context(), sess.Get(), readingInput(func(k string) string { return formValue(r, k) }), files)
	if rt.metrics != nil {
		var est *decimal.Decimal
		if res.Reading != nil {
			est = &res.Reading.EstimateLbs
		}
		rt.metrics.ObserveSubmission(string(res.State), est)
	}
	locale := middleware.LocaleFromContext(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, statusResponse{
			Period:  res.Period,
			State:   res.State,
			Reading: res.Reading,
			Message: utils.T(locale, stateMessage(res.State)),
		})
	case res.State == services.StatePartiallyPersisted:
		zlogFrom(r).Warn().Err(err).Strs("pending", categoryNames(res.Pending)).Msg("submission partially persisted")
		writeJSON(w, http.StatusAccepted, struct {
			statusResponse
			Uploaded []models.Category `json:"uploaded"`
			Pending  []models.Category `json:"pending"`
		}{
			statusResponse{Period: res.Period, State: res.State, Reading: res.Reading, Message: utils.T(locale, "submission.partial")},
			res.Uploaded, res.Pending,
		})
	default:
		writeError(w, r, err)
	}
}

func categoryNames(cs []models.Category) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}

// PUT /api/submissions/{period}/attachments/{category} (multipart "file");
// period is written MM-YYYY.
func (rt *Router) handleReupload(w http.ResponseWriter, r *http.Request) {
	sess, _, _ := middleware.SessionFromContext(r.Context())
	period, err := services.PeriodFromPathSegment(r.PathValue("period"))
	if err != nil {
		writeError(w, r, services.NewValidationError("period"))
		return
	}
	if err := parseMultipart(w, r, rt.maxUpload); err != nil {
		writeError(w, r, err)
		return
	}
	blob, err := formBlob(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p := sess.Get()
	reading, err := rt.submissions.ReuploadAttachment(r.Context(), p, period, models.Category(r.PathValue("category")), blob)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := statusResponse{Period: period, State: services.StateSubmitted, Reading: reading}
	if period == rt.submissions.CurrentPeriod() {
		if out, err = rt.currentStatus(r, p); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type historyResponse struct {
	Years   []string                           `json:"years"`
	History map[string][]*models.UsageReading `json:"history"`
	Message string                             `json:"message,omitempty"`
}

func (rt *Router) history(r *http.Request, p *models.Principal) (historyResponse, error) {
	h, err := rt.submissions.History(r.Context(), p)
	if err != nil {
		return historyResponse{}, err
	}
	out := historyResponse{Years: services.SortedYears(h), History: map[string][]*models.UsageReading{}}
	for y, rs := range h {
		out.History[y] = services.SortByMonth(rs)
	}
	if len(h) == 0 {
		out.Message = utils.T(middleware.LocaleFromContext(r.Context()), "submission.none")
	}
	return out, nil
}

// GET /api/submissions/history
func (rt *Router) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, _, _ := middleware.SessionFromContext(r.Context())
	out, err := rt.history(r, sess.Get())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/submissions/export
func (rt *Router) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, _, _ := middleware.SessionFromContext(r.Context())
	h, err := rt.submissions.History(r.Context(), sess.Get())
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := services.ExportHistoryCSV(h)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=footprint-history.csv")
	_, _ = w.Write(b)
}

// GET /api/dashboard
func (rt *Router) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, _, _ := middleware.SessionFromContext(r.Context())
	p := sess.Get()
	current, err := rt.currentStatus(r, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	hist, err := rt.history(r, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": services.SummaryOf(p),
		"current": current,
		"history": hist,
	})
}
