package httpapi

import (
	"net"
	"net/http"
	"strings"
	"time"

	"pkt.systems/pslog"
)

// statusWriter records the status and size of a response. It keeps
// http.Flusher reachable for the stream endpoint.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func (w *statusWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// withRequestLogging logs one line per request once the handler returns.
// Health probes log at debug, server errors at warn.
func withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status == 0 {
			sw.status = http.StatusOK
		}

		log := pslog.Ctx(r.Context()).With("remote", remoteHost(r), "method", r.Method, "path", r.URL.Path)
		if project := r.PathValue("project"); project != "" {
			log = log.With("project", project)
		}
		fields := []any{"status", sw.status, "bytes", sw.written, "duration_ms", time.Since(started).Milliseconds()}
		switch {
		case sw.status >= http.StatusInternalServerError:
			log.Warn("http request", fields...)
		case strings.HasSuffix(r.URL.Path, "/healthz"):
			log.Debug("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	})
}

// remoteHost prefers the first X-Forwarded-For hop, else the peer host.
func remoteHost(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
