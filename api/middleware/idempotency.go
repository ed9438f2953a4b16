package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/flagit/flagit-backend/api/responses"
	pkgerrors "github.com/flagit/flagit-backend/pkg/errors"
	"github.com/flagit/flagit-backend/pkg/logger"
	pkgredis "github.com/flagit/flagit-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayHeader marks a response served from a stored submission.
	ReplayHeader = "Idempotent-Replay"
	// SubmissionReplayTTL is how long a submit response stays replayable.
	SubmissionReplayTTL = 24 * time.Hour
)

// storedSubmission is what Redis keeps for a submit. Body is base64 on the wire.
type storedSubmission struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// bodyRecorder copies the response so it can be stored after the handler returns.
type bodyRecorder struct {
	statusRecorder
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.statusRecorder.Write(b)
}

// Idempotency makes certification submits safe to retry. A request carrying an
// Idempotency-Key gets the first response for that key and body back verbatim;
// the same key with a different body is a 409. Requests without the header pass through.
func Idempotency(store pkgredis.SubmissionStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if store == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scope := submissionScope(r)
			bodySum := fingerprint(body)

			raw, found, err := store.LoadSubmission(ctx, scope, key)
			switch {
			case err != nil:
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stored submission"))
				return
			case found:
				replaySubmission(ctx, logg, w, raw, bodySum)
				return
			}

			rec := &bodyRecorder{statusRecorder: statusRecorder{ResponseWriter: w}}
			next.ServeHTTP(rec, r)
			rememberSubmission(ctx, logg, store, scope, key, rec, bodySum)
		})
	}
}

// submissionScope keeps keys per member and per store, so two members can
// reuse the same key without seeing each other's responses.
func submissionScope(r *http.Request) string {
	return MemberIDFromContext(r.Context()) + "|" + r.URL.Path
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func replaySubmission(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, raw, bodySum string) {
	var stored storedSubmission
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode stored submission"))
		return
	}
	if stored.Fingerprint != bodySum {
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return
	}
	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(ReplayHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
}

func rememberSubmission(ctx context.Context, logg *logger.Logger, store pkgredis.SubmissionStore, scope, key string, rec *bodyRecorder, bodySum string) {
	status := rec.status
	if status == 0 {
		status = http.StatusOK
	}
	// server failures stay retryable under the same key
	if status >= http.StatusInternalServerError {
		return
	}

	payload, err := json.Marshal(storedSubmission{
		Status:      status,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
		Fingerprint: bodySum,
	})
	if err == nil {
		_, err = store.SaveSubmission(ctx, scope, key, string(payload), SubmissionReplayTTL)
	}
	if err != nil && logg != nil {
		logg.Error(logg.WithField(ctx, "idempotency_scope", scope), "idempotency.save_failed", err)
	}
}
