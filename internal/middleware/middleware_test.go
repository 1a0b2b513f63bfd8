package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soaringjerry/Footprint/internal/models"
	"github.com/soaringjerry/Footprint/internal/services"
)

func okHandler(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }

func signedIn(t *testing.T) (*Authenticator, string, string) {
	t.Helper()
	reg := services.NewSessionRegistry()
	a := NewAuthenticator("test-secret", reg)
	p := models.NewIndividualPrincipal("u1", models.Individual{FullName: "Ada"})
	sid, _ := reg.Open(p, time.Now().Add(time.Hour))
	tok, err := a.SignToken(p.ID, sid, p.Type, time.Hour)
	require.NoError(t, err)
	return a, sid, tok
}

func do(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequireSession(t *testing.T) {
	a, sid, tok := signedIn(t)
	var seen string
	h := a.WithAuth(RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, id, ok := SessionFromContext(r.Context())
		require.True(t, ok)
		seen = id
		uid, _ := PrincipalIDFromContext(r.Context())
		assert.Equal(t, "u1", uid)
	})))

	assert.Equal(t, http.StatusOK, do(h, tok).Code)
	assert.Equal(t, sid, seen)

	assert.Equal(t, http.StatusUnauthorized, do(h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(h, "garbage").Code)

	a.Sessions().Close(sid)
	assert.Equal(t, http.StatusUnauthorized, do(h, tok).Code, "closed session invalidates token")
}

func TestTokenExpiryAndSecret(t *testing.T) {
	a, _, _ := signedIn(t)
	sid, _ := a.Sessions().Open(models.NewIndividualPrincipal("u2", models.Individual{}), time.Time{})
	expired, err := a.SignToken("u2", sid, models.AccountIndividual, -time.Minute)
	require.NoError(t, err)
	h := a.WithAuth(RequireSession(http.HandlerFunc(okHandler)))
	assert.Equal(t, http.StatusUnauthorized, do(h, expired).Code)

	other := NewAuthenticator("other-secret", a.Sessions())
	forged, err := other.SignToken("u2", sid, models.AccountIndividual, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(h, forged).Code)

	mismatched, err := a.SignToken("someone-else", sid, models.AccountIndividual, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(h, mismatched).Code)
}

func TestPublicOnly(t *testing.T) {
	a, _, tok := signedIn(t)
	h := a.WithAuth(PublicOnly(http.HandlerFunc(okHandler)))
	assert.Equal(t, http.StatusOK, do(h, "").Code)
	rec := do(h, tok)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "already signed in")
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"http://app.test"})(http.HandlerFunc(okHandler))
	req := httptest.NewRequest(http.MethodOptions, "/api/x", nil)
	req.Header.Set("Origin", "http://app.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.test", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set("Origin", "http://evil.test")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	CORS(nil)(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLocaleMiddleware(t *testing.T) {
	var got string
	h := LocaleMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LocaleFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/?lang=zh-CN", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "zh", got)
}

func TestRequestLoggerAndInstrument(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	var (
		route string
		code  int
	)
	h := RequestLogger(logger)(Instrument("GET /x", func(r string, c int, _ time.Duration) {
		route, code = r, c
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		w.WriteHeader(http.StatusTeapot)
	})))
	rec := do(h, "")
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "GET /x", route)
	assert.Equal(t, http.StatusTeapot, code)
	assert.Contains(t, buf.String(), `"status":418`)
	assert.Contains(t, buf.String(), `"message":"inside"`)
}

func TestHeaders(t *testing.T) {
	rec := do(NoStore(SecureHeaders(http.HandlerFunc(okHandler))), "")
	assert.Equal(t, "no-store, no-cache, must-revalidate, max-age=0", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
