package api

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/soaringjerry/Footprint/internal/middleware"
	"github.com/soaringjerry/Footprint/internal/models"
	"github.com/soaringjerry/Footprint/internal/services"
	"github.com/soaringjerry/Footprint/internal/utils"
)

type principalResponse struct {
	Principal *models.Principal `json:"principal"`
	Summary   services.Summary  `json:"summary"`
	Message   string            `json:"message,omitempty"`
}

func newPrincipalResponse(p *models.Principal, msg string) principalResponse {
	return principalResponse{Principal: p, Summary: services.SummaryOf(p), Message: msg}
}

// POST /api/auth/signup/individual
func (rt *Router) handleSignupIndividual(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
		models.Individual
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := rt.auth.SignupIndividual(r.Context(), services.IndividualSignup{
		Email:    req.Email,
		Password: req.Password,
		Profile:  req.Individual,
	})
	rt.observeSignup(models.AccountIndividual, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusCreated, newPrincipalResponse(p, utils.T(locale, "signup.ok")))
}

// POST /api/auth/signup/organization (multipart, registration document in "file")
func (rt *Router) handleSignupOrganization(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(w, r, rt.maxUpload); err != nil {
		writeError(w, r, err)
		return
	}
	org := models.Organization{
		Name:        formValue(r, "name"),
		ProductType: formValue(r, "product_type"),
		Address:     models.Address{FullAddress: formValue(r, "full_address"), Region: formValue(r, "region")},
		Phone:       formValue(r, "phone"),
	}
	if raw := formValue(r, "facilities"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &org.Facilities); err != nil {
			writeError(w, r, services.NewValidationError("facilities"))
			return
		}
	}
	doc, err := formBlob(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := rt.auth.SignupOrganization(r.Context(), services.OrganizationSignup{
		Email:    formValue(r, "email"),
		Password: r.FormValue("password"),
		Profile:  org,
		Document: doc,
	})
	rt.observeSignup(models.AccountOrganization, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusCreated, newPrincipalResponse(p, utils.T(locale, "signup.ok")))
}

func (rt *Router) observeSignup(t models.AccountType, err error) {
	if rt.metrics != nil {
		rt.metrics.ObserveSignup(string(t), outcome(err))
	}
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string             `json:"email"`
		Password    string             `json:"password"`
		AccountType models.AccountType `json:"account_type"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := rt.auth.Login(r.Context(), req.Email, req.Password, req.AccountType)
	if rt.metrics != nil {
		rt.metrics.ObserveLogin(outcome(err))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
		principalResponse
	}{res.Token, res.ExpiresAt, newPrincipalResponse(res.Principal, "")})
}

// POST /api/auth/logout
func (rt *Router) handleLogout(w http.ResponseWriter, r *http.Request) {
	_, sid, _ := middleware.SessionFromContext(r.Context())
	rt.auth.Logout(sid)
	locale := middleware.LocaleFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": utils.T(locale, "session.signed_out")})
}

// GET /api/me
func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, _, _ := middleware.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, newPrincipalResponse(sess.Get(), ""))
}

// POST /api/me/dependents
func (rt *Router) handleAddDependent(w http.ResponseWriter, r *http.Request) {
	sess, _, _ := middleware.SessionFromContext(r.Context())
	var dep models.Dependent
	if err := decodeJSON(w, r, &dep); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := rt.profiles.AddDependent(r.Context(), sess, dep)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPrincipalResponse(p, ""))
}
