package logging

import (
	"os"
	"regexp"
	"sync/atomic"

	"go.uber.org/zap"
)

const traceparentHeader = "traceparent"

// W3C Trace Context: {version}-{trace-id}-{parent-id}-{trace-flags}
var traceparentRe = regexp.MustCompile(`^([0-9a-fA-F]{2})-([0-9a-fA-F]{32})-([0-9a-fA-F]{16})-([0-9a-fA-F]{2})$`)

var projectID atomic.Pointer[string]

// SetProjectID sets the Cloud project used to build trace resource names.
// When unset the standard Google Cloud environment variables are consulted.
func SetProjectID(id string) {
	projectID.Store(&id)
}

func resolveProjectID() string {
	if p := projectID.Load(); p != nil && *p != "" {
		return *p
	}
	return firstNonEmpty(
		os.Getenv("GOOGLE_CLOUD_PROJECT"),
		os.Getenv("GCP_PROJECT"),
		os.Getenv("GCLOUD_PROJECT"),
	)
}

type traceContext struct {
	resource string
	spanID   string
	sampled  bool
}

// parseTraceparent returns ok=false for a malformed header or a missing project.
func parseTraceparent(header, project string) (traceContext, bool) {
	if project == "" {
		return traceContext{}, false
	}
	m := traceparentRe.FindStringSubmatch(header)
	if len(m) != 5 {
		return traceContext{}, false
	}
	return traceContext{
		resource: "projects/" + project + "/traces/" + m[2],
		spanID:   m[3],
		sampled:  m[4] == "01",
	}, true
}

func (tc traceContext) fields() []zap.Field {
	return []zap.Field{
		zap.String("logging.googleapis.com/trace", tc.resource),
		zap.String("logging.googleapis.com/spanId", tc.spanID),
		zap.Bool("logging.googleapis.com/trace_sampled", tc.sampled),
	}
}

func loggerWithTrace(base *zap.Logger, tc traceContext, traced bool, requestID string) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	var fields []zap.Field
	if traced {
		fields = tc.fields()
	}
	if requestID != "" {
		fields = append(fields, zap.String("requestId", requestID))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
