package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/soaringjerry/Footprint/internal/models"
	"github.com/soaringjerry/Footprint/internal/services"
)

type authCtxKey int

const authKey authCtxKey = 7

type Claims struct {
	UID         string `json:"uid"`
	SID         string `json:"sid"`
	AccountType string `json:"typ"`
	jwt.RegisteredClaims
}

type authInfo struct {
	claims  *Claims
	session *services.Session
}

// Authenticator issues session tokens and resolves them back to the live
// session held by the registry.
type Authenticator struct {
	secret   []byte
	sessions *services.SessionRegistry
	now      func() time.Time
}

func NewAuthenticator(secret string, sessions *services.SessionRegistry) *Authenticator {
	return &Authenticator{secret: []byte(secret), sessions: sessions, now: time.Now}
}

func (a *Authenticator) Sessions() *services.SessionRegistry { return a.sessions }

// SignToken satisfies services.TokenSigner.
func (a *Authenticator) SignToken(uid, sid string, accountType models.AccountType, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		UID:         uid,
		SID:         sid,
		AccountType: string(accountType),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) parseToken(tok string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tok, &Claims{}, func(token *jwt.Token) (interface{}, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, err
	}
	if c, ok := t.Claims.(*Claims); ok && t.Valid {
		return c, nil
	}
	return nil, errors.New("invalid token")
}

// WithAuth attaches the session to the context when the bearer token is valid
// and its session is still open. The token's principal must match the
// session's.
func (a *Authenticator) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if strings.HasPrefix(h, "Bearer ") {
			tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
			if c, err := a.parseToken(tok); err == nil {
				if sess := a.sessions.Lookup(c.SID); sess != nil {
					if p := sess.Get(); p != nil && p.ID == c.UID {
						ctx := context.WithValue(r.Context(), authKey, &authInfo{claims: c, session: sess})
						next.ServeHTTP(w, r.WithContext(ctx))
						return
					}
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSession rejects requests without a signed-in session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := SessionFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// PublicOnly guards login and signup: a signed-in caller is turned away.
func PublicOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := SessionFromContext(r.Context()); ok {
			writeError(w, http.StatusForbidden, "forbidden", "already signed in")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionFromContext returns the live session and its id.
func SessionFromContext(ctx context.Context) (*services.Session, string, bool) {
	if ai, ok := ctx.Value(authKey).(*authInfo); ok && ai.session.SignedIn() {
		return ai.session, ai.claims.SID, true
	}
	return nil, "", false
}

func PrincipalIDFromContext(ctx context.Context) (string, bool) {
	if ai, ok := ctx.Value(authKey).(*authInfo); ok && ai.claims.UID != "" {
		return ai.claims.UID, true
	}
	return "", false
}
