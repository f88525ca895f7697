package middleware

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/configuration"
	"github.com/iota-uz/tenantgate/pkg/constants"
	"github.com/iota-uz/tenantgate/pkg/httpapi"
)

type LoggerOptions struct {
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodyLength   int
	// MaxRequestBodyBytes caps every request body; larger bodies get a 413.
	MaxRequestBodyBytes int64

	RequestIDHeader string
	RealIPHeader    string
	// TrustProxy enables RealIPHeader; without it the peer address is used.
	TrustProxy bool
	Repanic    bool
}

func NewLoggerOptions(logRequestBody bool, logResponseBody bool, maxBodyLength int) LoggerOptions {
	return LoggerOptions{
		LogRequestBody:      logRequestBody,
		LogResponseBody:     logResponseBody,
		MaxBodyLength:       maxBodyLength,
		MaxRequestBodyBytes: DefaultMaxRequestBodyBytes,
	}
}

const DefaultMaxRequestBodyBytes = 64 << 10

func DefaultLoggerOptions() LoggerOptions {
	return NewLoggerOptions(true, false, 512)
}

// Body fields that never reach the log.
var redactedFields = map[string]struct{}{
	"password":     {},
	"refreshtoken": {},
	"accesstoken":  {},
	"token":        {},
}

type responseCaptureWriter struct {
	http.ResponseWriter
	statusCode    int
	statusWritten bool
	body          *bytes.Buffer
	maxBody       int
}

func (w *responseCaptureWriter) WriteHeader(code int) {
	if !w.statusWritten {
		w.statusCode = code
		w.statusWritten = true
		w.ResponseWriter.WriteHeader(code)
	}
}

// Status returns the HTTP status code
func (w *responseCaptureWriter) Status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func (w *responseCaptureWriter) Write(b []byte) (int, error) {
	if !w.statusWritten {
		w.WriteHeader(http.StatusOK)
	}
	if w.body != nil && w.body.Len() < w.maxBody {
		w.body.Write(b[:min(len(b), w.maxBody-w.body.Len())])
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseCaptureWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *responseCaptureWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter does not implement http.Hijacker")
}

func wrapResponseWriter(w http.ResponseWriter, opts LoggerOptions) *responseCaptureWriter {
	cw := &responseCaptureWriter{ResponseWriter: w}
	if opts.LogResponseBody {
		cw.body = &bytes.Buffer{}
		cw.maxBody = opts.MaxBodyLength
	}
	return cw
}

func getRequestID(r *http.Request, header string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	return uuid.New().String()
}

var tracer = otel.Tracer("github.com/iota-uz/tenantgate/pkg/middleware")

func TracedMiddleware(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			propagator := propagation.TraceContext{}
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(
				ctx,
				"middleware."+name,
				trace.WithAttributes(
					attribute.String("middleware.name", name),
					attribute.String("http.method", r.Method),
					attribute.String("http.url", r.URL.String()),
					attribute.String("http.host", r.Host),
				),
			)
			defer span.End()

			propagator.Inject(ctx, propagation.HeaderCarrier(r.Header))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func formatHeaders(h http.Header) map[string]string {
	headers := make(map[string]string)
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		switch http.CanonicalHeaderKey(key) {
		case "Authorization", "Cookie", "X-Ops-Token":
			headers[key] = "[redacted]"
		default:
			headers[key] = values[0]
		}
	}
	return headers
}

func redact(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, inner := range t {
			if _, ok := redactedFields[strings.ToLower(k)]; ok {
				t[k] = "[redacted]"
				continue
			}
			t[k] = redact(inner)
		}
		return t
	case []interface{}:
		for i := range t {
			t[i] = redact(t[i])
		}
		return t
	default:
		return v
	}
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

// WithLogger attaches a request scoped logrus entry, opens the request span
// and turns panics into a JSON 500.
func WithLogger(logger *logrus.Logger, opts LoggerOptions) mux.MiddlewareFunc {
	if opts.RequestIDHeader == "" || opts.RealIPHeader == "" {
		conf := configuration.Use()
		if opts.RequestIDHeader == "" {
			opts.RequestIDHeader = conf.RequestIDHeader
		}
		if opts.RealIPHeader == "" {
			opts.RealIPHeader = conf.RealIPHeader
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				start := time.Now()
				requestID := getRequestID(r, opts.RequestIDHeader)
				ip, _ := clientIP(r, opts.RealIPHeader, opts.TrustProxy)

				fieldsLogger := logger.WithFields(logrus.Fields{
					"request-id": requestID,
					"path":       r.URL.Path,
					"method":     r.Method,
				})

				fieldsLogger.WithFields(logrus.Fields{
					"host":            r.Host,
					"ip":              ip,
					"user-agent":      r.UserAgent(),
					"request-headers": formatHeaders(r.Header),
				}).Info("request started")

				if r.Body != nil && opts.MaxRequestBodyBytes > 0 {
					r.Body = http.MaxBytesReader(w, r.Body, opts.MaxRequestBodyBytes)
				}
				if opts.LogRequestBody && r.Body != nil && isJSON(r.Header.Get("Content-Type")) &&
					(r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
					bodyBuf := new(bytes.Buffer)
					if _, err := io.Copy(bodyBuf, r.Body); err != nil {
						var tooLarge *http.MaxBytesError
						if errors.As(err, &tooLarge) {
							fieldsLogger.WithField("limit", tooLarge.Limit).Warn("request-body too large")
							_ = httpapi.WriteError(w, http.StatusRequestEntityTooLarge, httpapi.CodeRequestTooLarge, "request body too large", nil)
							return
						}
						fieldsLogger.WithError(err).Error("failed to read request-body")
						_ = httpapi.WriteError(w, http.StatusBadRequest, httpapi.CodeInvalidRequest, "failed to read request body", nil)
						return
					}
					r.Body = io.NopCloser(bytes.NewReader(bodyBuf.Bytes()))
					var parsed interface{}
					if err := json.Unmarshal(bodyBuf.Bytes(), &parsed); err == nil {
						fieldsLogger.WithField("request-body", redact(parsed)).Debug("JSON request-body parsed")
					}
				}

				propagator := propagation.TraceContext{}
				ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

				ctx, span := tracer.Start(
					ctx,
					"http.request",
					trace.WithAttributes(
						attribute.String("http.method", r.Method),
						attribute.String("http.route", r.URL.Path),
						attribute.String("http.user_agent", r.UserAgent()),
						attribute.String("http.request_id", requestID),
						attribute.String("net.host.name", r.Host),
						attribute.String("net.peer.ip", ip),
					),
				)
				defer span.End()

				if spanContext := span.SpanContext(); spanContext.HasTraceID() {
					traceID := spanContext.TraceID().String()
					w.Header().Set("X-Trace-Id", traceID)
					fieldsLogger = fieldsLogger.WithFields(logrus.Fields{
						"trace-id": traceID,
						"span-id":  spanContext.SpanID().String(),
					})
				}

				// The item bag is shared with later stages; the access gate
				// fills in the tenant fields that the completion line reports.
				params := &composables.Params{IP: ip, UserAgent: r.UserAgent(), RequestID: requestID}
				ctx = composables.WithParams(ctx, params)
				ctx = composables.WithLogger(ctx, fieldsLogger)
				ctx = context.WithValue(ctx, constants.RequestStart, start)

				w.Header().Set("X-Request-Id", requestID)
				wrappedWriter := wrapResponseWriter(w, opts)

				defer func() {
					recovered := recover()
					if recovered == nil {
						return
					}
					panicFields := logrus.Fields{
						"panic":       recovered,
						"stack":       string(debug.Stack()),
						"remote_addr": ip,
						"status":      http.StatusInternalServerError,
						"duration":    time.Since(start),
					}
					if r.URL.RawQuery != "" {
						panicFields["query"] = r.URL.RawQuery
					}
					fieldsLogger.WithFields(panicFields).Error("panic recovered in request handler")

					if !wrappedWriter.statusWritten {
						_ = httpapi.WriteError(wrappedWriter, http.StatusInternalServerError,
							"INTERNAL_SERVER_ERROR", "internal server error",
							map[string]string{"request_id": requestID, "path": r.URL.Path})
					}
					if opts.Repanic {
						panic(recovered)
					}
				}()

				next.ServeHTTP(wrappedWriter, r.WithContext(ctx))

				statusCode := wrappedWriter.Status()
				duration := time.Since(start)
				completed := fieldsLogger.WithFields(logrus.Fields{
					"duration":     duration,
					"status-code":  statusCode,
					"status-class": statusCode / 100,
				})
				if params.TenantID != "" {
					completed = completed.WithField("tenant_id", params.TenantID)
				}
				completed.Info("request completed")

				span.SetAttributes(
					attribute.Int64("http.request_duration_ms", duration.Milliseconds()),
					attribute.Int("http.status_code", statusCode),
				)

				if wrappedWriter.body != nil && isJSON(wrappedWriter.Header().Get("Content-Type")) {
					var parsed interface{}
					if err := json.Unmarshal(wrappedWriter.body.Bytes(), &parsed); err == nil {
						fieldsLogger.WithField("response-body", redact(parsed)).Debug("JSON response-body parsed")
					}
				}
			},
		)
	}
}
