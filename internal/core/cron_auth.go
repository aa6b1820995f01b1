package core

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"puppyday/internal/types"
)

// CronAuthMiddleware guards the job trigger endpoints. The external scheduler
// authenticates with a shared bearer secret:
//
//	Authorization: Bearer <CRON_SECRET>
//
// Comparison is constant-time. In mock mode the check is bypassed so local
// runs and CI can trigger jobs without a secret.
func (s *Server) CronAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Config.MockMode {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing authorization header", nil))
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "authorization header must use the Bearer scheme", nil))
			return
		}

		secret := s.Config.Cron.Secret.Unmask()
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid cron secret", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}
