package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"k8s.io/klog/v2"

	"github.com/jetstack/securechannel/pkg/logs"
)

// requestLogger logs every request through the logger stored in the request
// context, falling back to the global klog logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		log := klog.FromContext(r.Context()).WithName("http").WithValues("requestID", chimw.GetReqID(r.Context()))
		r = r.WithContext(klog.NewContext(r.Context(), log))

		defer func() {
			log.V(logs.Debug).Info("Request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"latency", time.Since(start),
				"remoteAddr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// metrics records request counts and latency labelled by route pattern.
func metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metricHTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metricHTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// requireToken rejects requests without the expected bearer token. An empty
// token disables the check.
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			code, err := checkAuthorization(token, w, r)
			if err != nil {
				writeError(w, r, err.Error(), code)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkAuthorization(token string, w http.ResponseWriter, r *http.Request) (int, error) {
	if token != "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="securechannel"`)

		s := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(s) != 2 {
			return http.StatusBadRequest, fmt.Errorf("bad request: malformed Authorization header")
		}

		if s[0] != "Bearer" {
			return http.StatusUnauthorized, fmt.Errorf("not authorized")
		}

		if subtle.ConstantTimeCompare([]byte(s[1]), []byte(token)) != 1 {
			return http.StatusUnauthorized, fmt.Errorf("not authorized")
		}
	}

	return 0, nil
}
