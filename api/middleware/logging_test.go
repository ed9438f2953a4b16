package middleware

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flagit/flagit-backend/pkg/logger"
)

func completeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		if entry["message"] == "request.complete" {
			return entry
		}
	}
	t.Fatalf("no request.complete entry in %s", buf.String())
	return nil
}

func TestLoggingRecordsHandlerStatus(t *testing.T) {
	cases := []struct {
		name   string
		status int
		level  string
	}{
		{name: "created", status: http.StatusCreated, level: "info"},
		{name: "not found", status: http.StatusNotFound, level: "info"},
		{name: "lock contention", status: http.StatusServiceUnavailable, level: "warn"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
			handler := Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"data":{}}`))
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/certifications/status/abc", nil))

			if rec.Code != tc.status {
				t.Fatalf("expected response status %d, got %d", tc.status, rec.Code)
			}
			entry := completeEntry(t, buf)
			if got := entry["status"]; got != float64(tc.status) {
				t.Fatalf("expected logged status %d, got %v", tc.status, got)
			}
			if got := entry["level"]; got != tc.level {
				t.Fatalf("expected level %s, got %v", tc.level, got)
			}
			if got := entry["bytes"]; got != float64(len(`{"data":{}}`)) {
				t.Fatalf("unexpected logged bytes %v", got)
			}
			if got := entry["path"]; got != "/api/v1/certifications/status/abc" {
				t.Fatalf("unexpected logged path %v", got)
			}
		})
	}
}

func TestLoggingDefaultsToOKWhenHandlerOnlyWrites(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf})
	handler := Logging(logg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if got := completeEntry(t, buf)["status"]; got != float64(http.StatusOK) {
		t.Fatalf("expected logged status 200, got %v", got)
	}
}

func TestLoggingWithoutLoggerPassesThrough(t *testing.T) {
	handler := Logging(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rec.Code)
	}
}
