package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const testTraceparent = "00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-01"

func TestParseTraceparent(t *testing.T) {
	tc, ok := parseTraceparent(testTraceparent, "test-project")
	if !ok {
		t.Fatal("expected header to parse")
	}
	if tc.resource != "projects/test-project/traces/3d23d071b5bfd6579171efce907685cb" {
		t.Fatalf("unexpected resource: %s", tc.resource)
	}
	if tc.spanID != "08f067aa0ba902b7" {
		t.Fatalf("unexpected span: %s", tc.spanID)
	}
	if !tc.sampled {
		t.Fatal("expected sampled trace")
	}
}

func TestParseTraceparentNotSampled(t *testing.T) {
	tc, ok := parseTraceparent("00-3d23d071b5bfd6579171efce907685cb-08f067aa0ba902b7-00", "test-project")
	if !ok || tc.sampled {
		t.Fatalf("expected unsampled trace, got %+v ok=%v", tc, ok)
	}
}

func TestParseTraceparentRejects(t *testing.T) {
	tests := []struct {
		name, header, project string
	}{
		{"malformed", "invalid", "test-project"},
		{"empty header", "", "test-project"},
		{"legacy format", "trace/span;o=1", "test-project"},
		{"no project", testTraceparent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseTraceparent(tt.header, tt.project); ok {
				t.Fatal("expected header to be rejected")
			}
		})
	}
}

func TestLoggerWithTraceAddsCloudFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	tc, ok := parseTraceparent(testTraceparent, "test-project")
	if !ok {
		t.Fatal("expected header to parse")
	}

	loggerWithTrace(zap.New(core), tc, true, "req-123").Info("hello")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := fieldMap(entries[0])
	if f := fields["logging.googleapis.com/trace"]; f.String != tc.resource {
		t.Fatalf("trace field mismatch: %+v", fields)
	}
	if f := fields["logging.googleapis.com/spanId"]; f.String != "08f067aa0ba902b7" {
		t.Fatalf("span field mismatch: %+v", fields)
	}
	if f := fields["logging.googleapis.com/trace_sampled"]; f.Type != zapcore.BoolType || f.Integer != 1 {
		t.Fatalf("trace_sampled field mismatch: %+v", fields)
	}
	if f := fields["requestId"]; f.String != "req-123" {
		t.Fatalf("requestId field mismatch: %+v", fields)
	}
}

func TestLoggerWithTraceRequestIDOnly(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	loggerWithTrace(zap.New(core), traceContext{}, false, "req-123").Info("hello")

	entries := recorded.All()
	if len(entries) != 1 || len(entries[0].Context) != 1 {
		t.Fatalf("expected a single requestId field, got %+v", entries)
	}
	if entries[0].Context[0].Key != "requestId" {
		t.Fatalf("unexpected field: %+v", entries[0].Context[0])
	}
}

func TestLoggerWithTraceNoFields(t *testing.T) {
	core, _ := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	if got := loggerWithTrace(base, traceContext{}, false, ""); got != base {
		t.Fatal("expected base logger when there is nothing to add")
	}
	if got := loggerWithTrace(nil, traceContext{}, false, ""); got == nil {
		t.Fatal("expected non-nil logger for nil base")
	}
}

func TestResolveProjectID(t *testing.T) {
	orig := projectID.Load()
	defer projectID.Store(orig)

	projectID.Store(nil)
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("GCP_PROJECT", "gcp-proj")
	t.Setenv("GCLOUD_PROJECT", "gcloud-proj")
	if got := resolveProjectID(); got != "gcp-proj" {
		t.Fatalf("expected env fallback gcp-proj, got %q", got)
	}

	SetProjectID("configured")
	if got := resolveProjectID(); got != "configured" {
		t.Fatalf("expected configured project, got %q", got)
	}

	SetProjectID("")
	if got := resolveProjectID(); got != "gcp-proj" {
		t.Fatalf("expected env fallback after clearing, got %q", got)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "", "value", "other"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
