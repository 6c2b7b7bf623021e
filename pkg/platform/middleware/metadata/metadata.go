// Package metadata extracts per-request client metadata (request ID, device
// header, User-Agent) into the context for handlers and services.
package metadata

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"fieldwatch/pkg/requestcontext"
)

// HeaderDeviceID is the header agent apps use to present their device
// identifier on every request.
const HeaderDeviceID = "X-Device-ID"

// HeaderRequestID carries a caller-supplied request ID; a fresh UUID is
// assigned when absent so every log line can be correlated.
const HeaderRequestID = "X-Request-ID"

// ClientMetadata should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx = requestcontext.WithRequestID(ctx, requestID)
		ctx = requestcontext.WithUserAgent(ctx, r.Header.Get("User-Agent"))

		if deviceID := strings.TrimSpace(r.Header.Get(HeaderDeviceID)); deviceID != "" {
			ctx = requestcontext.WithDeviceID(ctx, deviceID)
		}

		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
