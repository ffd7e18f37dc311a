package middleware

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"wapool/internal/metrics"
	"wapool/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const unmatchedRoute = "unmatched"

// ObservabilityMiddleware assigns a request ID, opens a server span, records
// HTTP metrics and logs request completion at a level matching the status.
func ObservabilityMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			requestID := r.Header.Get(tracing.RequestIDHeader)
			if requestID == "" || len(requestID) > 128 {
				requestID = tracing.NewRequestID()
			}
			w.Header().Set(tracing.RequestIDHeader, requestID)

			route := routeTemplate(r)
			ctx := tracing.WithRequestID(r.Context(), requestID)
			ctx, span := tracing.StartSpan(ctx, r.Method+" "+route,
				semconv.HTTPMethod(r.Method),
				semconv.HTTPRoute(route),
				attribute.String("client.address", ClientIP(r)),
				attribute.String("request.id", requestID),
			)
			defer span.End()
			r = r.WithContext(ctx)

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			duration := time.Since(startTime)
			span.SetAttributes(
				semconv.HTTPStatusCode(wrapper.statusCode),
				attribute.Int64("http.response.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(wrapper.statusCode))
			}
			metrics.ObserveHTTP(route, r.Method, wrapper.statusCode, duration)

			fields := logrus.Fields{
				"request_id":  requestID,
				"method":      r.Method,
				"route":       route,
				"status":      wrapper.statusCode,
				"duration_ms": duration.Milliseconds(),
				"client_ip":   ClientIP(r),
			}
			if traceID := tracing.TraceID(ctx); traceID != "" {
				fields["trace_id"] = traceID
			}

			logLevel := logrus.DebugLevel
			switch {
			case wrapper.statusCode >= http.StatusInternalServerError:
				logLevel = logrus.ErrorLevel
			case wrapper.statusCode >= http.StatusBadRequest:
				logLevel = logrus.WarnLevel
			}
			logger.WithFields(fields).Log(logLevel, "Request completed")
		})
	}
}

func routeTemplate(r *http.Request) string {
	if current := mux.CurrentRoute(r); current != nil {
		if tpl, err := current.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return unmatchedRoute
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}

func (rw *responseWrapper) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack lets the log stream upgrade to a websocket through the wrapper.
func (rw *responseWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.wroteHeader = true
	return hj.Hijack()
}
