// Package auth implements the single-administrator access gate: credential
// checks, a signed session cookie, and a middleware for protected pages.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/vasilisp/searchai/internal/util"
	"golang.org/x/crypto/bcrypt"
)

const (
	CookieName = "searchai_session"

	DefaultSessionTTL = 24 * time.Hour
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
	ErrLoginDisabled  = errors.New("admin login disabled")
)

// Admin is the configured administrator. Password is either plaintext or a
// bcrypt hash.
type Admin struct {
	Username string
	Password string
}

func (a Admin) enabled() bool {
	return a.Username != "" && a.Password != ""
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

type Gate struct {
	admin  Admin
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewGate(admin Admin, secret []byte, ttl time.Duration) *Gate {
	util.Assert(len(secret) > 0, "NewGate empty secret")

	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if !admin.enabled() {
		log.Warn().Str("component", "auth").Msg("admin username or password not configured, login disabled")
	}

	return &Gate{
		admin:  admin,
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (g *Gate) Enabled() bool {
	return g.admin.enabled()
}

func (g *Gate) Username() string {
	return g.admin.Username
}

// Check reports whether username and password match the administrator.
func (g *Gate) Check(username, password string) bool {
	if !g.admin.enabled() {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.admin.Username)) == 1

	var passOK bool
	if isBcryptHash(g.admin.Password) {
		passOK = bcrypt.CompareHashAndPassword([]byte(g.admin.Password), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(g.admin.Password)) == 1
	}

	return userOK && passOK
}

// Issue signs a session token for the administrator.
func (g *Gate) Issue() (string, time.Time, error) {
	if !g.admin.enabled() {
		return "", time.Time{}, ErrLoginDisabled
	}

	now := g.now()
	expires := now.Add(g.ttl)
	claims := jwt.MapClaims{
		"sub": g.admin.Username,
		"iat": now.Unix(),
		"exp": expires.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session: %w", err)
	}
	return signed, expires, nil
}

// Verify checks a session token and returns its subject.
func (g *Gate) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	}, jwt.WithTimeFunc(g.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredSession
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidSession
	}

	sub, _ := claims["sub"].(string)
	if sub == "" || !g.admin.enabled() || sub != g.admin.Username {
		return "", ErrInvalidSession
	}

	return sub, nil
}

// Login sets the session cookie on w.
func (g *Gate) Login(w http.ResponseWriter, r *http.Request) error {
	token, expires, err := g.Issue()
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (g *Gate) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

// Authenticated reports whether r carries a valid session cookie.
func (g *Gate) Authenticated(r *http.Request) bool {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	if _, err := g.Verify(cookie.Value); err != nil {
		log.Debug().Err(err).Str("component", "auth").Msg("rejected session cookie")
		return false
	}
	return true
}

// RequireAuth redirects to loginPath unless the request is authenticated.
func (g *Gate) RequireAuth(loginPath string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.Authenticated(r) {
			http.Redirect(w, r, loginPath, http.StatusSeeOther)
			return
		}
		next(w, r)
	}
}
