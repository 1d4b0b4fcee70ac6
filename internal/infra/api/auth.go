package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"notes-ai-jobs/internal/infra/logging"
)

// UserClaims is the token payload issued by the notes service login.
type UserClaims struct {
	UserID int64  `json:"userId"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Mint signs a token for userID. Used by tooling and tests.
func (a *Authenticator) Mint(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify returns the user id carried by tok, taken from userId or a numeric sub.
func (a *Authenticator) Verify(tok string) (int64, error) {
	claims := &UserClaims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return 0, errors.New("invalid token")
	}
	if claims.UserID > 0 {
		return claims.UserID, nil
	}
	if id, err := strconv.ParseInt(claims.Subject, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	return 0, errors.New("token carries no user id")
}

// Middleware rejects requests without a valid bearer token and puts the
// user id on the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := r.Header.Get("Authorization")
		if !strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			writeError(w, http.StatusUnauthorized, "Missing auth token")
			return
		}
		uid, err := a.Verify(strings.TrimSpace(hdr[7:]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(logging.WithUserID(r.Context(), uid)))
	})
}
