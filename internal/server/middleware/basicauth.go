// file: internal/server/middleware/basicauth.go
// version: 2.0.0
// guid: a1b2c3d4-e5f6-7a8b-9c0d-1e2f3a4b5c6d

package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const realm = `Basic realm="catalog-watcher"`

// Credentials is the single account allowed through BasicAuth.
// PasswordHash is a bcrypt hash, never the plain password.
type Credentials struct {
	Username     string
	PasswordHash string
}

// Enabled reports whether credentials are configured.
func (c Credentials) Enabled() bool {
	return c.Username != "" && c.PasswordHash != ""
}

// BasicAuth returns a Gin middleware that enforces HTTP Basic Authentication
// against creds. Paths listed in exempt pass through unauthenticated. When
// creds are not configured every request passes.
func BasicAuth(creds Credentials, exempt ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(exempt))
	for _, p := range exempt {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if !creds.Enabled() || skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		user, pass, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", realm)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		// Both comparisons always run.
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(creds.Username)) == 1
		passMatch := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(pass)) == nil

		if !userMatch || !passMatch {
			c.Header("WWW-Authenticate", realm)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Next()
	}
}

// HashPassword returns the bcrypt hash to store in configuration.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
