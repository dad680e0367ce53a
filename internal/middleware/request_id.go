package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mwork/mwork-rewards/internal/pkg/logger"
)

const RequestIDHeader = "X-Request-ID"

// RequestID tags the request, the response and the request logger with an id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, requestID)
		r.Header.Set(RequestIDHeader, requestID)

		l := logger.FromContext(r.Context()).With().Str("request_id", requestID).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), &l)))
	})
}
