package middleware

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/Causal-Feedback-Search/pkg/tracing"
)

// Tracing opens a root span per request, keyed by the request ID, so that
// child spans started deeper in the handler share one trace. It must run
// inside RequestID.
func Tracing(tracer *tracing.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method+" "+normalizePath(r.URL.Path), GetRequestID(r.Context()))
			defer tracer.Finish(span)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
