package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/flagit/flagit-backend/api/responses"
	"github.com/flagit/flagit-backend/internal/certifications"
	"github.com/flagit/flagit-backend/internal/coupons"
	"github.com/flagit/flagit-backend/internal/stores"
	pkgAuth "github.com/flagit/flagit-backend/pkg/auth"
	"github.com/flagit/flagit-backend/pkg/config"
	"github.com/flagit/flagit-backend/pkg/enums"
	pkgerrors "github.com/flagit/flagit-backend/pkg/errors"
	"github.com/flagit/flagit-backend/pkg/logger"
	"github.com/flagit/flagit-backend/pkg/pagination"
	"github.com/flagit/flagit-backend/pkg/types"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type memoryRedis struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) LoadSubmission(_ context.Context, scope, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[scope+":"+key]
	return v, ok, nil
}

func (m *memoryRedis) SaveSubmission(_ context.Context, scope, key, record string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[scope+":"+key]; ok {
		return false, nil
	}
	m.data[scope+":"+key] = record
	return true, nil
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

func (m *memoryRedis) CountRequest(_ context.Context, scope string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope], nil
}

type stubCertifications struct {
	mu          sync.Mutex
	submits     int
	lastMember  uuid.UUID
	lastStore   uuid.UUID
	lastInput   certifications.SubmitInput
	lastStatus  uuid.UUID
	lastConfirm uuid.UUID
	lastHistory pagination.Params
	statusErr   error
}

func (s *stubCertifications) Submit(_ context.Context, memberID, storeID uuid.UUID, input certifications.SubmitInput) (*certifications.CertificationDTO, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits++
	s.lastMember, s.lastStore, s.lastInput = memberID, storeID, input
	return &certifications.CertificationDTO{
		ID:       uuid.New(),
		MemberID: memberID,
		StoreID:  storeID,
		Location: types.GeographyPoint{Lat: input.Lat, Lng: input.Lng},
		Status:   enums.CertificationStatusPending,
	}, nil
}

func (s *stubCertifications) Status(_ context.Context, memberID, certID uuid.UUID) (*certifications.StatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMember, s.lastStatus = memberID, certID
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	current, required := 2, 3
	return &certifications.StatusResult{
		Status:          enums.CertificationStatusPending,
		CertificationID: certID,
		CurrentCount:    &current,
		RequiredCount:   &required,
		Window:          &stores.WindowView{Open: false},
	}, nil
}

func (s *stubCertifications) Confirm(_ context.Context, certID uuid.UUID) (*certifications.StatusResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastConfirm = certID
	return &certifications.StatusResult{
		Status:          enums.CertificationStatusCompleted,
		CertificationID: certID,
		Coupon:          &coupons.CouponDTO{ID: uuid.New(), Name: "Free shake", Code: "SHAKE-1"},
	}, nil
}

func (s *stubCertifications) History(_ context.Context, memberID uuid.UUID, params pagination.Params) (*certifications.HistoryPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMember, s.lastHistory = memberID, params
	return &certifications.HistoryPage{
		Certifications: []certifications.CertificationDTO{{ID: uuid.New(), MemberID: memberID, Status: enums.CertificationStatusCompleted}},
		NextCursor:     "next",
	}, nil
}

type stubStores struct {
	lastOrigin types.GeographyPoint
	lastLimit  int
}

func (s *stubStores) GetByID(_ context.Context, id uuid.UUID) (*stores.StoreDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
}

func (s *stubStores) ListNearby(_ context.Context, origin types.GeographyPoint, limit int) ([]stores.NearbyStoreDTO, error) {
	s.lastOrigin, s.lastLimit = origin, limit
	return []stores.NearbyStoreDTO{}, nil
}

type harness struct {
	handler http.Handler
	certs   *stubCertifications
	stores  *stubStores
	token   string
	member  uuid.UUID
}

func newHarness(t *testing.T, db stubPinger) *harness {
	t.Helper()
	cfg := &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "secret", Issuer: "flagit-auth", ExpirationMinutes: 60},
		Certification: config.CertificationConfig{
			RadiusMeters:    50,
			PollWindow:      time.Minute,
			PollMemberLimit: 2,
		},
	}
	member := uuid.New()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{MemberID: member, Role: enums.MemberRoleMember})
	require.NoError(t, err)

	h := &harness{
		certs:  &stubCertifications{},
		stores: &stubStores{},
		token:  token,
		member: member,
	}
	h.handler = NewRouter(cfg, logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard}), Dependencies{
		DB:             db,
		Redis:          newMemoryRedis(),
		Certifications: h.certs,
		Stores:         h.stores,
		Gatherer:       prometheus.NewRegistry(),
	})
	return h
}

func (h *harness) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+h.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, stubPinger{})
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	down := newHarness(t, stubPinger{err: errors.New("connection refused")})
	rec = httptest.NewRecorder()
	down.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, stubPinger{})
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	h := newHarness(t, stubPinger{})
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stores?lat=1&lng=1", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitCertification(t *testing.T) {
	h := newHarness(t, stubPinger{})
	storeID := uuid.New()

	rec := h.do(http.MethodPost, "/api/v1/certifications/"+storeID.String(), `{"lat":37.5446,"lng":127.0559}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	require.Equal(t, "pending", data["status"])
	require.Equal(t, h.member, h.certs.lastMember)
	require.Equal(t, storeID, h.certs.lastStore)
	require.InDelta(t, 37.5446, h.certs.lastInput.Lat, 1e-9)

	rec = h.do(http.MethodPost, "/api/v1/certifications/"+storeID.String(), `{"lat":95,"lng":127}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/v1/certifications/not-a-uuid", `{"lat":1,"lng":1}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCertificationIdempotentReplay(t *testing.T) {
	h := newHarness(t, stubPinger{})
	path := "/api/v1/certifications/" + uuid.NewString()
	headers := map[string]string{"Idempotency-Key": "retry-1"}

	first := h.do(http.MethodPost, path, `{"lat":1,"lng":1}`, headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := h.do(http.MethodPost, path, `{"lat":1,"lng":1}`, headers)
	require.Equal(t, http.StatusCreated, second.Code)
	require.JSONEq(t, first.Body.String(), second.Body.String())
	require.Equal(t, 1, h.certs.submits)
}

func TestStatusAndConfirmRoutes(t *testing.T) {
	h := newHarness(t, stubPinger{})
	certID := uuid.New()

	rec := h.do(http.MethodGet, "/api/v1/certifications/status/"+certID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeData(t, rec)
	require.Equal(t, "pending", data["status"])
	require.EqualValues(t, 2, data["current_count"])
	require.Equal(t, map[string]any{"open": false}, data["window"])
	require.Equal(t, certID, h.certs.lastStatus)

	rec = h.do(http.MethodGet, "/api/v1/certifications/"+certID.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	require.Equal(t, "completed", data["status"])
	coupon, ok := data["coupon"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "SHAKE-1", coupon["code"])
	require.Equal(t, certID, h.certs.lastConfirm)
}

func TestCertificationHistoryRoute(t *testing.T) {
	h := newHarness(t, stubPinger{})

	rec := h.do(http.MethodGet, "/api/v1/certifications?limit=10&cursor=abc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	require.Equal(t, "next", data["next_cursor"])
	require.Len(t, data["certifications"], 1)
	require.Equal(t, h.member, h.certs.lastMember)
	require.Equal(t, pagination.Params{Limit: 10, Cursor: "abc"}, h.certs.lastHistory)

	rec = h.do(http.MethodGet, "/api/v1/certifications?limit=500", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusPollingIsRateLimited(t *testing.T) {
	h := newHarness(t, stubPinger{})
	path := "/api/v1/certifications/status/" + uuid.NewString()

	require.Equal(t, http.StatusOK, h.do(http.MethodGet, path, "", nil).Code)
	require.Equal(t, http.StatusOK, h.do(http.MethodGet, path, "", nil).Code)
	rec := h.do(http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestStatusErrorsUseEnvelope(t *testing.T) {
	h := newHarness(t, stubPinger{})
	h.certs.statusErr = pkgerrors.New(pkgerrors.CodeNotFound, "certification not found")

	rec := h.do(http.MethodGet, "/api/v1/certifications/status/"+uuid.NewString(), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	var env responses.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.Equal(t, string(pkgerrors.CodeNotFound), env.Error.Code)
	require.Equal(t, "certification not found", env.Error.Message)
}

func TestStoreRoutes(t *testing.T) {
	h := newHarness(t, stubPinger{})

	rec := h.do(http.MethodGet, "/api/v1/stores?lat=37.5&lng=127.0&limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, h.stores.lastLimit)
	require.InDelta(t, 37.5, h.stores.lastOrigin.Lat, 1e-9)

	rec = h.do(http.MethodGet, "/api/v1/stores?lat=37.5", "", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/v1/stores/"+uuid.NewString(), "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
