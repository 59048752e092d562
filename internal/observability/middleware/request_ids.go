package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type idsKey struct{}

type ids struct {
	request string
	trace   string
}

const maxIDLen = 128

// WithRequestAndTrace attaches a request id and a trace id to the request
// context. Caller supplied X-Request-ID and X-Trace-ID headers are kept when
// they look sane; otherwise the trace id is taken from a W3C traceparent
// header or generated. The request id is echoed in the response.
func WithRequestAndTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := ids{
			request: headerID(r, "X-Request-ID"),
			trace:   headerID(r, "X-Trace-ID"),
		}
		if v.request == "" {
			v.request = uuid.NewString()
		}
		if v.trace == "" {
			v.trace = traceParent(r.Header.Get("traceparent"))
		}
		if v.trace == "" {
			v.trace = strings.ReplaceAll(uuid.NewString(), "-", "")
		}

		w.Header().Set("X-Request-ID", v.request)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), idsKey{}, v)))
	})
}

func headerID(r *http.Request, name string) string {
	s := strings.TrimSpace(r.Header.Get(name))
	if len(s) > maxIDLen {
		return ""
	}
	for _, c := range s {
		if c < 0x21 || c > 0x7e {
			return ""
		}
	}
	return s
}

// traceParent extracts the trace-id field of a version 00 traceparent value.
func traceParent(h string) string {
	parts := strings.Split(strings.TrimSpace(h), "-")
	if len(parts) != 4 || parts[0] != "00" || len(parts[1]) != 32 {
		return ""
	}
	if strings.Trim(parts[1], "0123456789abcdef") != "" || strings.Trim(parts[1], "0") == "" {
		return ""
	}
	return parts[1]
}

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(idsKey{}).(ids)
	return v.request
}

func TraceIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(idsKey{}).(ids)
	return v.trace
}
