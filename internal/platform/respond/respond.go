// Package respond renders every error the API produces as {"error": "..."},
// whether it comes from a huma operation, the chi router or a recovered panic.
package respond

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	applog "github.com/janisto/profile-api/internal/platform/logging"
)

const (
	msgNotFound         = "Recurso no encontrado"
	msgMethodNotAllowed = "Método %s no permitido"
	msgInternal         = "Error interno del servidor"
)

const (
	contentTypeJSON = "application/json"
	contentTypeCBOR = "application/cbor"
)

// StatusError is the error model shared by all responses.
type StatusError struct {
	Status  int    `json:"-" cbor:"-"`
	Message string `json:"error" cbor:"error" doc:"Human-readable error message" example:"Perfil no encontrado"`
}

func (e *StatusError) Error() string {
	return e.Message
}

func (e *StatusError) GetStatus() int {
	return e.Status
}

var installOnce sync.Once

// Install replaces huma's error constructors so operation errors use
// StatusError and are logged at a level matching their status.
func Install() {
	installOnce.Do(func() {
		huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
			return newStatusError(context.Background(), status, msg, errs)
		}
		huma.NewErrorWithContext = func(hctx huma.Context, status int, msg string, errs ...error) huma.StatusError {
			ctx := context.Background()
			if hctx != nil {
				ctx = hctx.Context()
			}
			return newStatusError(ctx, status, msg, errs)
		}
	})
}

func newStatusError(ctx context.Context, status int, msg string, errs []error) *StatusError {
	if strings.TrimSpace(msg) == "" {
		msg = http.StatusText(status)
	}
	if details := errorDetails(errs); len(details) > 0 {
		msg += ": " + strings.Join(details, "; ")
	}
	// huma builds a zero-status instance to derive the OpenAPI schema.
	if status != 0 {
		logWithStatus(ctx, status, msg, errors.Join(errs...))
	}
	return &StatusError{Status: status, Message: msg}
}

// errorDetails flattens huma validation details into "location: message".
func errorDetails(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		var detailer huma.ErrorDetailer
		if errors.As(err, &detailer) {
			if d := detailer.ErrorDetail(); d != nil {
				if d.Location != "" {
					out = append(out, d.Location+": "+d.Message)
				} else {
					out = append(out, d.Message)
				}
				continue
			}
		}
		out = append(out, err.Error())
	}
	return out
}

func logWithStatus(ctx context.Context, status int, msg string, err error) {
	fields := []zap.Field{zap.Int("status", status)}
	switch {
	case status >= 500:
		applog.LogError(ctx, msg, err, fields...)
	case status >= 400:
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		applog.LogWarn(ctx, msg, fields...)
	default:
		applog.LogInfo(ctx, msg, fields...)
	}
}

// WriteError renders a StatusError directly, negotiating JSON or CBOR from Accept.
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	logWithStatus(r.Context(), status, msg, nil)

	h := w.Header()
	ensureVary(h, "Origin", "Accept")

	body := StatusError{Status: status, Message: msg}
	var (
		payload []byte
		err     error
	)
	if selectFormat(r.Header.Get("Accept")) {
		h.Set("Content-Type", contentTypeCBOR)
		payload, err = cbor.Marshal(body)
	} else {
		h.Set("Content-Type", contentTypeJSON)
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		err = enc.Encode(body)
		payload = buf.Bytes()
	}
	if err != nil {
		applog.LogError(r.Context(), "failed to encode error response", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// NotFoundHandler answers unknown routes.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, msgNotFound)
	}
}

// MethodNotAllowedHandler answers known routes hit with an unsupported
// method and lists the supported ones in Allow.
func MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if allow := allowedMethods(r); len(allow) > 0 {
			w.Header().Set("Allow", strings.Join(allow, ", "))
		}
		WriteError(w, r, http.StatusMethodNotAllowed, fmt.Sprintf(msgMethodNotAllowed, r.Method))
	}
}

// responseWriter remembers whether the status line has gone out.
type responseWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Recoverer turns panics into 500 responses. http.ErrAbortHandler is
// re-raised so net/http can abort the connection; a panic after the
// status line was written is only logged.
func Recoverer() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &responseWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				err, ok := rec.(error)
				if !ok {
					err = fmt.Errorf("%v", rec)
				}
				applog.LogError(r.Context(), "panic recovered", err, zap.ByteString("stack", debug.Stack()))
				if rw.wroteHeader {
					return
				}
				WriteError(w, r, http.StatusInternalServerError, msgInternal)
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// allowedMethods probes chi's route tree for the methods registered on the
// request path.
func allowedMethods(r *http.Request) []string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil || rctx.Routes == nil {
		return nil
	}

	routePath := rctx.RoutePath
	if routePath == "" {
		routePath = r.URL.RawPath
		if routePath == "" {
			routePath = r.URL.Path
		}
		if routePath == "" {
			routePath = "/"
		}
	}

	var allowed []string
	for _, method := range []string{
		http.MethodGet,
		http.MethodHead,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
		http.MethodOptions,
	} {
		if rctx.Routes.Match(chi.NewRouteContext(), method, routePath) {
			allowed = append(allowed, method)
		}
	}
	return allowed
}

// ensureVary adds values to Vary unless already listed.
func ensureVary(h http.Header, values ...string) {
	present := make(map[string]struct{})
	for _, v := range h.Values("Vary") {
		for part := range strings.SplitSeq(v, ",") {
			present[strings.ToLower(strings.TrimSpace(part))] = struct{}{}
		}
	}
	for _, v := range values {
		key := strings.ToLower(v)
		if _, ok := present[key]; ok {
			continue
		}
		present[key] = struct{}{}
		h.Add("Vary", v)
	}
}

type mediaRange struct {
	typ     string
	subtype string
	q       float64
}

// parseAccept splits an Accept header into media ranges. A missing or
// invalid q is 1; a bare type means type/*.
func parseAccept(header string) []mediaRange {
	var ranges []mediaRange
	for part := range strings.SplitSeq(header, ",") {
		params := strings.Split(part, ";")
		mt := strings.ToLower(strings.TrimSpace(params[0]))
		if mt == "" {
			continue
		}
		mr := mediaRange{typ: mt, subtype: "*", q: 1}
		if typ, sub, ok := strings.Cut(mt, "/"); ok {
			mr.typ, mr.subtype = typ, sub
		}
		for _, p := range params[1:] {
			k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
			if !ok || strings.TrimSpace(k) != "q" {
				continue
			}
			q, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil || q < 0 || q > 1 {
				q = 1
			}
			mr.q = q
		}
		ranges = append(ranges, mr)
	}
	return ranges
}

// preference returns the q and specificity of the most specific range
// matching application/<format>. A zero specificity means no match.
func preference(ranges []mediaRange, format string) (q float64, specificity int) {
	for _, mr := range ranges {
		s := 0
		switch {
		case mr.typ == "application" && mr.subtype == format:
			s = 4
		case mr.typ == "application" && mr.subtype == "*+"+format:
			s = 3
		case mr.typ == "application" && mr.subtype == "*":
			s = 2
		case mr.typ == "*" && mr.subtype == "*":
			s = 1
		}
		if s > specificity {
			q, specificity = mr.q, s
		}
	}
	return q, specificity
}

// selectFormat reports whether CBOR should be used for accept. JSON wins
// ties and is the fallback when neither format is acceptable.
func selectFormat(accept string) bool {
	ranges := parseAccept(accept)
	if len(ranges) == 0 {
		return false
	}
	cq, cs := preference(ranges, "cbor")
	jq, js := preference(ranges, "json")
	if cs == 0 || cq <= 0 {
		return false
	}
	if js == 0 || jq <= 0 {
		return true
	}
	if cq != jq {
		return cq > jq
	}
	return cs > js
}
