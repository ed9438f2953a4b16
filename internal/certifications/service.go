package certifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/flagit/flagit-backend/internal/coupons"
	"github.com/flagit/flagit-backend/internal/stores"
	"github.com/flagit/flagit-backend/pkg/config"
	dbpkg "github.com/flagit/flagit-backend/pkg/db"
	"github.com/flagit/flagit-backend/pkg/db/models"
	"github.com/flagit/flagit-backend/pkg/enums"
	pkgerrors "github.com/flagit/flagit-backend/pkg/errors"
	"github.com/flagit/flagit-backend/pkg/logger"
	"github.com/flagit/flagit-backend/pkg/outbox"
	"github.com/flagit/flagit-backend/pkg/outbox/payloads"
	"github.com/flagit/flagit-backend/pkg/pagination"
	"github.com/flagit/flagit-backend/pkg/types"
)

const (
	msgPending       = "certification in progress"
	msgWindowOpen    = "success window is open; nearby certifications will complete together"
	msgWindowOpened  = "success window opened; certifications complete when it closes"
	msgCompleted     = "certification completed"
	msgBatchComplete = "certification completed with the batch"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type certificationRepository interface {
	Create(ctx context.Context, cert *models.Certification) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Certification, error)
	FindByIDForMember(ctx context.Context, id, memberID uuid.UUID) (*models.Certification, error)
	NearbyPendingWithTx(tx *gorm.DB, storeID uuid.UUID, anchor types.GeographyPoint, radiusMeters float64) ([]models.Certification, error)
	CompleteWithTx(tx *gorm.DB, ids []uuid.UUID) (int64, error)
	StatusWithTx(tx *gorm.DB, id uuid.UUID) (enums.CertificationStatus, error)
	ListByMember(ctx context.Context, memberID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Certification, error)
}

type storeRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	LockByIDWithTx(tx *gorm.DB, id uuid.UUID) (*models.Store, error)
	SetWindowWithTx(tx *gorm.DB, id uuid.UUID, startedAt *time.Time) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type metricsRecorder interface {
	IncSubmission()
	IncStatusCheck(strategy, outcome string)
	IncWindowOpened()
	AddCompleted(strategy string, count int)
	ObserveEvaluation(strategy string, duration time.Duration)
}

// Service runs certification submission and the proximity state machine.
type Service interface {
	Submit(ctx context.Context, memberID, storeID uuid.UUID, input SubmitInput) (*CertificationDTO, error)
	// Status evaluates the member's own certification with the configured strategy.
	Status(ctx context.Context, memberID, certificationID uuid.UUID) (*StatusResult, error)
	// Confirm evaluates any certification with ImmediateThreshold.
	Confirm(ctx context.Context, certificationID uuid.UUID) (*StatusResult, error)
	History(ctx context.Context, memberID uuid.UUID, params pagination.Params) (*HistoryPage, error)
}

type ServiceParams struct {
	DB             txRunner
	Certifications certificationRepository
	Stores         storeRepository
	Coupons        coupons.Service
	Outbox         eventEmitter
	Metrics        metricsRecorder
	Logger         *logger.Logger
	Config         config.CertificationConfig
	Now            func() time.Time
}

type service struct {
	db             txRunner
	certs          certificationRepository
	stores         storeRepository
	coupons        coupons.Service
	outbox         eventEmitter
	metrics        metricsRecorder
	logg           *logger.Logger
	radiusMeters   float64
	lockTimeout    time.Duration
	statusStrategy Strategy
	now            func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Certifications == nil {
		return nil, errors.New("certification repository is required")
	}
	if params.Stores == nil {
		return nil, errors.New("store repository is required")
	}
	if params.Coupons == nil {
		return nil, errors.New("coupon service is required")
	}
	if params.Outbox == nil {
		return nil, errors.New("outbox emitter is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Config.RadiusMeters <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %v", params.Config.RadiusMeters)
	}

	recorder := params.Metrics
	if recorder == nil {
		recorder = noopMetrics{}
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &service{
		db:             params.DB,
		certs:          params.Certifications,
		stores:         params.Stores,
		coupons:        params.Coupons,
		outbox:         params.Outbox,
		metrics:        recorder,
		logg:           params.Logger,
		radiusMeters:   params.Config.RadiusMeters,
		lockTimeout:    params.Config.LockTimeout,
		statusStrategy: StrategyByName(params.Config.Strategy()),
		now:            now,
	}, nil
}

func (s *service) Submit(ctx context.Context, memberID, storeID uuid.UUID, input SubmitInput) (*CertificationDTO, error) {
	location := types.GeographyPoint{Lat: input.Lat, Lng: input.Lng}
	if err := location.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coordinates")
	}

	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}

	cert := &models.Certification{
		MemberID: memberID,
		StoreID:  store.ID,
		Location: location,
		Status:   enums.CertificationStatusPending,
	}
	if err := s.certs.Create(ctx, cert); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create certification")
	}
	s.metrics.IncSubmission()

	s.logg.Info(s.logg.WithCertification(ctx, store.ID, cert.ID), "certification.submitted")

	return FromModel(cert), nil
}

func (s *service) Status(ctx context.Context, memberID, certificationID uuid.UUID) (*StatusResult, error) {
	cert, err := s.certs.FindByIDForMember(ctx, certificationID, memberID)
	if err != nil {
		return nil, notFoundOr(err, "certification not found", "load certification")
	}
	return s.evaluate(ctx, cert, s.statusStrategy)
}

func (s *service) Confirm(ctx context.Context, certificationID uuid.UUID) (*StatusResult, error) {
	cert, err := s.certs.FindByID(ctx, certificationID)
	if err != nil {
		return nil, notFoundOr(err, "certification not found", "load certification")
	}
	return s.evaluate(ctx, cert, ImmediateThreshold{})
}

// evaluation is what the locked section hands back to the caller after commit.
type evaluation struct {
	requiredCount int
	currentCount  int
	window        *stores.Window
	transition    Transition
	completed     int
	status        enums.CertificationStatus
	now           time.Time
}

func (s *service) evaluate(ctx context.Context, cert *models.Certification, strategy Strategy) (*StatusResult, error) {
	ctx = s.logg.WithCertification(ctx, cert.StoreID, cert.ID)

	if cert.Status == enums.CertificationStatusCompleted {
		result, err := s.completedResult(ctx, cert, msgCompleted, nil)
		s.recordOutcome(strategy, result, err)
		return result, err
	}

	var out evaluation
	started := time.Now()
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		out, err = s.evaluateLocked(ctx, tx, cert, strategy)
		return err
	})
	s.metrics.ObserveEvaluation(strategy.Name(), time.Since(started))
	if err != nil {
		err = s.classifyTxError(ctx, err)
		s.recordOutcome(strategy, nil, err)
		return nil, err
	}

	s.recordTransition(ctx, strategy, out)

	// committed: completions stand even if the reward lookup below fails.
	// A batch that ran reports completed to the caller even when the caller's
	// own certification sat outside the radius and stayed pending.
	var result *StatusResult
	if out.transition == TransitionBatchCompleted || out.status == enums.CertificationStatusCompleted {
		required := out.requiredCount
		result, err = s.completedResult(ctx, cert, msgBatchComplete, &required)
	} else {
		result = pendingResult(cert.ID, out)
	}
	if result != nil {
		result.Transition = out.transition
		result.Completed = out.completed
	}
	s.recordOutcome(strategy, result, err)
	return result, err
}

func (s *service) evaluateLocked(ctx context.Context, tx *gorm.DB, cert *models.Certification, strategy Strategy) (evaluation, error) {
	if err := dbpkg.SetLockTimeout(tx, s.lockTimeout); err != nil {
		return evaluation{}, err
	}
	store, err := s.stores.LockByIDWithTx(tx, cert.StoreID)
	if err != nil {
		return evaluation{}, err
	}
	nearby, err := s.certs.NearbyPendingWithTx(tx, store.ID, store.Location, s.radiusMeters)
	if err != nil {
		return evaluation{}, err
	}

	now := s.now().UTC()
	current := stores.WindowOf(store)
	decision := strategy.Decide(Snapshot{
		RequiredCount: store.RequiredCount,
		WindowSeconds: store.SuccessWindowSeconds,
		Window:        current,
		Now:           now,
		NearbyCount:   len(nearby),
	})

	out := evaluation{
		requiredCount: store.RequiredCount,
		currentCount:  len(nearby),
		window:        decision.Window,
		transition:    TransitionNone,
		now:           now,
	}

	switch decision.Action {
	case ActionOpenWindow:
		if err := s.stores.SetWindowWithTx(tx, store.ID, &decision.Window.StartedAt); err != nil {
			return evaluation{}, err
		}
		out.transition = TransitionWindowOpened

	case ActionComplete:
		completed, err := s.completeBatch(ctx, tx, store, cert, nearby, strategy, now)
		if err != nil {
			return evaluation{}, err
		}
		if current != nil {
			if err := s.stores.SetWindowWithTx(tx, store.ID, nil); err != nil {
				return evaluation{}, err
			}
		}
		out.transition = TransitionBatchCompleted
		out.completed = completed
		out.currentCount = len(nearby) - completed
	}

	status, err := s.certs.StatusWithTx(tx, cert.ID)
	if err != nil {
		return evaluation{}, err
	}
	out.status = status
	return out, nil
}

func (s *service) completeBatch(ctx context.Context, tx *gorm.DB, store *models.Store, trigger *models.Certification, nearby []models.Certification, strategy Strategy, now time.Time) (int, error) {
	ids := make([]uuid.UUID, 0, len(nearby))
	members := make([]uuid.UUID, 0, len(nearby))
	seen := make(map[uuid.UUID]struct{}, len(nearby))
	for _, c := range nearby {
		ids = append(ids, c.ID)
		if _, ok := seen[c.MemberID]; !ok {
			seen[c.MemberID] = struct{}{}
			members = append(members, c.MemberID)
		}
	}

	flipped, err := s.certs.CompleteWithTx(tx, ids)
	if err != nil {
		return 0, err
	}
	if flipped == 0 {
		return 0, nil
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCertificationsCompleted,
		AggregateType: enums.AggregateStore,
		AggregateID:   store.ID,
		Trigger: &outbox.TriggerRef{
			CertificationID: trigger.ID,
			MemberID:        trigger.MemberID,
			Strategy:        strategy.Name(),
		},
		Data: payloads.CertificationsCompletedEvent{
			StoreID:          store.ID,
			CertificationIDs: ids,
			MemberIDs:        members,
			Strategy:         strategy.Name(),
			CompletedAt:      now,
		},
		Version:    1,
		OccurredAt: now,
	}); err != nil {
		return 0, err
	}

	return int(flipped), nil
}

func (s *service) recordTransition(ctx context.Context, strategy Strategy, out evaluation) {
	switch out.transition {
	case TransitionWindowOpened:
		s.metrics.IncWindowOpened()
		fields := map[string]any{
			"nearby_count":   out.currentCount,
			"required_count": out.requiredCount,
		}
		if out.window != nil {
			fields["ends_at"] = out.window.Deadline().Format(time.RFC3339Nano)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "certification.window_opened")
	case TransitionBatchCompleted:
		if out.completed == 0 {
			return
		}
		s.metrics.AddCompleted(strategy.Name(), out.completed)
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"completed_count": out.completed,
			"strategy":        strategy.Name(),
		}), "certification.batch_completed")
	}
}

func (s *service) completedResult(ctx context.Context, cert *models.Certification, message string, required *int) (*StatusResult, error) {
	coupon, err := s.coupons.ForStore(ctx, cert.StoreID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			s.logg.Warn(ctx, "certification completed but store has no reward configured")
		}
		return nil, err
	}
	return &StatusResult{
		Status:          enums.CertificationStatusCompleted,
		CertificationID: cert.ID,
		Message:         message,
		RequiredCount:   required,
		Coupon:          coupon,
		Transition:      TransitionNone,
	}, nil
}

func pendingResult(certID uuid.UUID, out evaluation) *StatusResult {
	current := out.currentCount
	required := out.requiredCount
	view := out.window.View(out.now)

	message := msgPending
	switch {
	case out.transition == TransitionWindowOpened:
		message = msgWindowOpened
	case view.Open:
		message = msgWindowOpen
	}

	return &StatusResult{
		Status:          enums.CertificationStatusPending,
		CertificationID: certID,
		Message:         message,
		CurrentCount:    &current,
		RequiredCount:   &required,
		Window:          &view,
	}
}

func (s *service) classifyTxError(ctx context.Context, err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
	}
	if dbpkg.IsRetryable(err) {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "certification.lock_contention")
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store is busy, retry shortly")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "evaluate certification")
}

func (s *service) recordOutcome(strategy Strategy, result *StatusResult, err error) {
	outcome := "error"
	if err == nil && result != nil {
		outcome = string(result.Status)
	}
	s.metrics.IncStatusCheck(strategy.Name(), outcome)
}

func notFoundOr(err error, notFound, dependency string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, dependency)
}

type noopMetrics struct{}

func (noopMetrics) IncSubmission()                          {}
func (noopMetrics) IncStatusCheck(string, string)           {}
func (noopMetrics) IncWindowOpened()                        {}
func (noopMetrics) AddCompleted(string, int)                {}
func (noopMetrics) ObserveEvaluation(string, time.Duration) {}
