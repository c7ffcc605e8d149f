package middleware

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/bcrypt"

	"github.com/mcoot/relaygate/internal/api/apierr"
)

// AdminAuth requires the admin password as a bearer token.
// With no password configured every request is refused.
func AdminAuth(password string) func(http.Handler) http.Handler {
	var hash []byte
	if password != "" {
		// only the hash is kept in memory
		var err error
		hash, err = bcrypt.GenerateFromPassword(adminKey(password), bcrypt.DefaultCost)
		if err != nil {
			panic("hash admin password: " + err.Error())
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == nil {
				apierr.WriteError(w, apierr.NewAdminDisabledError())
				return
			}

			token := extractToken(r)
			if token == "" || bcrypt.CompareHashAndPassword(hash, adminKey(token)) != nil {
				apierr.WriteError(w, apierr.NewUnauthorizedError())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// adminKey digests a password so its length stays within bcrypt's 72 byte limit
func adminKey(password string) []byte {
	sum := blake2b.Sum256([]byte(password))
	return sum[:]
}

// extractToken extracts the bearer token from the request
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
