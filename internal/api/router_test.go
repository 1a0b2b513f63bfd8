package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Footprint/internal/attachments"
	"github.com/soaringjerry/Footprint/internal/metrics"
	"github.com/soaringjerry/Footprint/internal/middleware"
	"github.com/soaringjerry/Footprint/internal/models"
	"github.com/soaringjerry/Footprint/internal/services"
)

var march2024 = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	t       *testing.T
	handler http.Handler
	files   *attachments.MemoryStore
	metrics *metrics.Metrics
}

// flakyFiles fails the first upload whose path contains failOn.
type flakyFiles struct {
	*attachments.MemoryStore
	mu     sync.Mutex
	failOn string
}

func (f *flakyFiles) Upload(ctx context.Context, path string, blob models.Blob) error {
	f.mu.Lock()
	fail := f.failOn != "" && strings.Contains(path, f.failOn)
	if fail {
		f.failOn = ""
	}
	f.mu.Unlock()
	if fail {
		return errors.New("bucket unavailable")
	}
	return f.MemoryStore.Upload(ctx, path, blob)
}

func newTestServer(t *testing.T, failOn string) *testServer {
	t.Helper()
	mem := attachments.NewMemoryStore()
	reg := services.NewSessionRegistry()
	m := metrics.New(reg.Len)
	rt := NewRouter(Options{
		Store:          NewMemoryStore(),
		Files:          &flakyFiles{MemoryStore: mem, failOn: failOn},
		Auth:           middleware.NewAuthenticator("test-secret", reg),
		Metrics:        m,
		Logger:         zerolog.Nop(),
		CallTimeout:    time.Second,
		MaxUploadBytes: 1 << 20,
		Now:            func() time.Time { return march2024 },
	})
	mux := http.NewServeMux()
	rt.Register(mux)
	h := middleware.RequestLogger(zerolog.Nop())(middleware.LocaleMiddleware(mux))
	return &testServer{t: t, handler: h, files: mem, metrics: m}
}

func (s *testServer) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) json(method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}
	return s.do(method, path, token, r, "application/json")
}

func (s *testServer) multipart(method, path, token string, fields, files map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(s.t, mw.WriteField(k, v))
	}
	for field, name := range files {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(s.t, err)
		_, err = fw.Write([]byte("content of " + name))
		require.NoError(s.t, err)
	}
	require.NoError(s.t, mw.Close())
	return s.do(method, path, token, &buf, mw.FormDataContentType())
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

var individualSignup = map[string]any{
	"email":         "ada@example.com",
	"password":      "secret1",
	"full_name":     "Ada Lovelace",
	"date_of_birth": map[string]string{"day": "10", "month": "12", "year": "1985"},
	"national_id":   "N-1",
	"address":       map[string]string{"full_address": "1 Main St", "region": "CA"},
	"phone":         "555-0100",
}

var usageFields = map[string]string{
	"electricUsage":  "10",
	"gasUsage":       "20",
	"fuelUsage":      "30",
	"avgMilesDriven": "40",
}

var billFiles = map[string]string{
	"electricityBill": "electric.pdf",
	"gasBill":         "gas.pdf",
	"fuelBill":        "fuel.jpg",
	"carBill":         "car.png",
}

func (s *testServer) login(email, password string, t models.AccountType) string {
	rec := s.json(http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": email, "password": password, "account_type": t,
	})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	tok, _ := decode(s.t, rec)["token"].(string)
	require.NotEmpty(s.t, tok)
	return tok
}

func TestIndividualJourney(t *testing.T) {
	s := newTestServer(t, "")

	rec := s.json(http.MethodPost, "/api/auth/signup/individual", "", individualSignup)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.json(http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "ada@example.com", "password": "secret1", "account_type": "Organization",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "user does not exist", decode(t, rec)["error"])

	token := s.login("ada@example.com", "secret1", models.AccountIndividual)

	rec = s.json(http.MethodPost, "/api/auth/signup/individual", token, individualSignup)
	assert.Equal(t, http.StatusForbidden, rec.Code, "signed-in users cannot sign up")

	rec = s.do(http.MethodGet, "/api/me", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)["summary"].(map[string]any)
	assert.Equal(t, "Ada Lovelace", summary["name"])
	assert.Equal(t, "1 Main St, CA", summary["address"])

	rec = s.do(http.MethodGet, "/api/submissions/current", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	cur := decode(t, rec)
	assert.Equal(t, "03/2024", cur["period"])
	assert.Equal(t, "not_submitted", cur["state"])

	rec = s.do(http.MethodGet, "/api/submissions/history", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You have not made any submissions yet.", decode(t, rec)["message"])

	rec = s.multipart(http.MethodPost, "/api/submissions", token, usageFields, billFiles)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "submitted", body["state"])
	assert.Equal(t, "You have made the submission for this month.", body["message"])
	reading := body["reading"].(map[string]any)
	assert.Equal(t, "8620", reading["estimate_lbs"])
	assert.Equal(t, 4, s.files.Len())

	rec = s.multipart(http.MethodPost, "/api/submissions", token, usageFields, billFiles)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate", decode(t, rec)["code"])

	rec = s.do(http.MethodGet, "/api/submissions/history", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	hist := decode(t, rec)
	assert.Equal(t, []any{"2024"}, hist["years"])

	rec = s.do(http.MethodGet, "/api/submissions/export", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "03/2024,March,10,20,30,40,8620.00")

	rec = s.do(http.MethodGet, "/api/dashboard", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	dash := decode(t, rec)
	assert.Equal(t, "submitted", dash["current"].(map[string]any)["state"])

	rec = s.json(http.MethodPost, "/api/me/dependents", token, map[string]any{
		"full_name": "Byron", "national_id": "N-2",
		"date_of_birth": map[string]string{"day": "29", "month": "2", "year": "2016"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, decode(t, rec)["summary"].(map[string]any)["dependents"])

	rec = s.json(http.MethodPost, "/api/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/api/me", token, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmissionValidationReportsEveryField(t *testing.T) {
	s := newTestServer(t, "")
	require.Equal(t, http.StatusCreated, s.json(http.MethodPost, "/api/auth/signup/individual", "", individualSignup).Code)
	token := s.login("ada@example.com", "secret1", models.AccountIndividual)

	rec := s.multipart(http.MethodPost, "/api/submissions", token,
		map[string]string{"electricUsage": "abc", "gasUsage": "-1"},
		map[string]string{"electricityBill": "bill.exe"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec)["fields"]
	assert.Equal(t, []any{
		"electricUsage", "gasUsage", "fuelUsage", "avgMilesDriven",
		"electricityBill", "gasBill", "fuelBill", "carBill",
	}, fields)
	assert.Zero(t, s.files.Len())
}

func TestPartialSubmissionThenReupload(t *testing.T) {
	s := newTestServer(t, "/gas/")
	require.Equal(t, http.StatusCreated, s.json(http.MethodPost, "/api/auth/signup/individual", "", individualSignup).Code)
	token := s.login("ada@example.com", "secret1", models.AccountIndividual)

	rec := s.multipart(http.MethodPost, "/api/submissions", token, usageFields, billFiles)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "partially_persisted", body["state"])
	assert.Equal(t, []any{"electricity"}, body["uploaded"])
	assert.Equal(t, []any{"gas", "fuel", "car"}, body["pending"])

	rec = s.do(http.MethodGet, "/api/submissions/current", token, nil, "")
	assert.Equal(t, "partially_persisted", decode(t, rec)["state"])

	for _, c := range []string{"gas", "fuel", "car"} {
		rec = s.multipart(http.MethodPut, "/api/submissions/03-2024/attachments/"+c, token, nil,
			map[string]string{"file": c + ".pdf"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	assert.Equal(t, "submitted", decode(t, rec)["state"])

	rec = s.multipart(http.MethodPut, "/api/submissions/13-2024/attachments/gas", token, nil,
		map[string]string{"file": "gas.pdf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.multipart(http.MethodPut, "/api/submissions/02-2024/attachments/gas", token, nil,
		map[string]string{"file": "gas.pdf"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrganizationSignup(t *testing.T) {
	s := newTestServer(t, "")
	fields := map[string]string{
		"email":        "ops@acme.test",
		"password":     "secret1",
		"name":         "Acme",
		"product_type": "Widgets",
		"full_address": "2 Dock Rd",
		"region":       "WA",
		"phone":        "555-0199",
		"facilities":   `[{"full_address":"3 Mill Ln","region":"OR"}]`,
	}
	rec := s.multipart(http.MethodPost, "/api/auth/signup/organization", "", fields, map[string]string{"file": "registration.pdf"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode(t, rec)["principal"].(map[string]any)
	org := p["organization"].(map[string]any)
	id := p["id"].(string)
	assert.Equal(t, "files/"+id+"/registration/registration.pdf", org["registration_document"])
	_, ok := s.files.Get("files/" + id + "/registration/registration.pdf")
	assert.True(t, ok)

	token := s.login("ops@acme.test", "secret1", models.AccountOrganization)
	rec = s.json(http.MethodPost, "/api/me/dependents", token, map[string]any{"full_name": "X"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.multipart(http.MethodPost, "/api/auth/signup/organization", "", fields, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []any{"file"}, decode(t, rec)["fields"])

	fields["email"] = "other@acme.test"
	fields["facilities"] = "not json"
	rec = s.multipart(http.MethodPost, "/api/auth/signup/organization", "", fields, map[string]string{"file": "r.pdf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEstimateEndpoint(t *testing.T) {
	s := newTestServer(t, "")
	rec := s.do(http.MethodGet, "/api/estimate?electricUsage=10&gasUsage=20&fuelUsage=30&avgMilesDriven=40", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, "8620", body["estimate_lbs"])

	rec = s.do(http.MethodGet, "/api/estimate?electricUsage=10", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["ready"])

	rec = s.do(http.MethodGet, "/api/estimate?electricUsage=x&gasUsage=1&fuelUsage=1&avgMilesDriven=1", "", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGuardsAndMethods(t *testing.T) {
	s := newTestServer(t, "")
	for _, path := range []string{"/api/me", "/api/submissions/current", "/api/submissions/history", "/api/dashboard"} {
		assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, path, "", nil, "").Code, path)
	}
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(http.MethodGet, "/api/auth/login", "", nil, "").Code)
	rec := s.do(http.MethodPost, "/api/auth/login", "", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLocalizedMessages(t *testing.T) {
	s := newTestServer(t, "")
	require.Equal(t, http.StatusCreated, s.json(http.MethodPost, "/api/auth/signup/individual", "", individualSignup).Code)
	token := s.login("ada@example.com", "secret1", models.AccountIndividual)
	rec := s.do(http.MethodGet, "/api/submissions/history?lang=zh", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "您还没有任何提交记录。", decode(t, rec)["message"])
}
