package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
)

const CorrelationIDHeader = "X-Correlation-ID"

// correlationIDKey matches the key the structured logger reads from context
const correlationIDKey = "correlation_id"

// CorrelationID ensures every request carries a correlation id, propagated on
// the response header and into the request context for the logger.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(CorrelationIDHeader)
		if cid == "" {
			cid = generateCorrelationID()
		}
		w.Header().Set(CorrelationIDHeader, cid)
		ctx := context.WithValue(r.Context(), correlationIDKey, cid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateCorrelationID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}
