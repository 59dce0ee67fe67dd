// Package auth guards the bridge's remote surface with a shared bearer token.
//
// Probes stay open; only the call and session routes are wrapped.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

const tokenHeader = "X-Remotemcp-Token"

// Validator validates a caller token.
type Validator interface {
	Validate(token string) error
}

// StaticToken accepts exactly one shared token. An empty Token accepts nothing.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	want := strings.TrimSpace(s.Token)
	if want == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(strings.TrimSpace(token))) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// TokenFromRequest reads a bearer token, then the token header, then the
// token query parameter used by browser EventSource clients.
func TokenFromRequest(r *http.Request) string {
	if raw := r.Header.Get("Authorization"); raw != "" {
		scheme, token, ok := strings.Cut(raw, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if token := r.Header.Get(tokenHeader); token != "" {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Middleware rejects requests whose token v does not accept. A nil v allows all.
func Middleware(v Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if v == nil {
			c.Next()
			return
		}
		if err := v.Validate(TokenFromRequest(c.Request)); err != nil {
			log.Debug().Str("path", c.Request.URL.Path).Str("remote", c.ClientIP()).Msg("request rejected: unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrUnauthorized.Error()})
			return
		}
		c.Next()
	}
}
