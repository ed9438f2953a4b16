package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/flagit/flagit-backend/pkg/db/models"
	"github.com/flagit/flagit-backend/pkg/enums"
	"github.com/flagit/flagit-backend/pkg/outbox/payloads"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventCertificationsCompleted})
	require.Error(t, err)
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(NewRepository(db), nil)
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{EventType: "order_created"})
	})
	require.Error(t, err)
}

func TestEmitRejectsIncompleteAggregate(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	cases := map[string]DomainEvent{
		"unknown aggregate type": {EventType: enums.EventCertificationsCompleted, AggregateType: "order", AggregateID: uuid.New()},
		"missing aggregate id":   {EventType: enums.EventCertificationsCompleted, AggregateType: enums.AggregateStore},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			err := db.Transaction(func(tx *gorm.DB) error {
				return svc.Emit(context.Background(), tx, event)
			})
			require.Error(t, err)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitWritesEnvelope(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	storeID, triggerID := uuid.New(), uuid.New()
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCertificationsCompleted,
			AggregateType: enums.AggregateStore,
			AggregateID:   storeID,
			Trigger:       &TriggerRef{CertificationID: triggerID, MemberID: uuid.New(), Strategy: "immediate"},
			Data: payloads.CertificationsCompletedEvent{
				StoreID:          storeID,
				CertificationIDs: []uuid.UUID{triggerID, uuid.New()},
			},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(nil, storeID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.EventCertificationsCompleted, rows[0].EventType)
	assert.Nil(t, rows[0].PublishedAt)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.NotEmpty(t, envelope.EventID)
	require.NotNil(t, envelope.Trigger)
	assert.Equal(t, triggerID, envelope.Trigger.CertificationID)
	assert.Equal(t, "immediate", envelope.Trigger.Strategy)

	var payload payloads.CertificationsCompletedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Len(t, payload.CertificationIDs, 2)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	svc := NewService(repo, nil)

	storeID := uuid.New()
	boom := errors.New("boom")
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventCertificationsCompleted,
			AggregateType: enums.AggregateStore,
			AggregateID:   storeID,
			Data:          map[string]string{"k": "v"},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListByAggregate(nil, storeID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)

	first := models.OutboxEvent{EventType: enums.EventCertificationsCompleted, AggregateType: enums.AggregateStore, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	second := models.OutboxEvent{EventType: enums.EventCertificationsCompleted, AggregateType: enums.AggregateStore, AggregateID: uuid.New(), Payload: json.RawMessage(`{}`)}
	require.NoError(t, repo.Insert(db, first))
	require.NoError(t, repo.Insert(db, second))

	var fetched []models.OutboxEvent
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, fetched, 2)

	require.NoError(t, repo.MarkPublishedTx(db, fetched[0].ID))
	require.NoError(t, repo.MarkFailedTx(db, fetched[1].ID, errors.New(strings.Repeat("x", 2000))))

	var failed models.OutboxEvent
	require.NoError(t, db.First(&failed, "id = ?", fetched[1].ID).Error)
	assert.Equal(t, 1, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Len(t, *failed.LastError, maxLastErrorLen)

	require.NoError(t, repo.MarkTerminalTx(db, fetched[1].ID, errors.New("poison"), 3))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	assert.Empty(t, fetched)
}

func TestDLQRepositoryTruncatesErrorMessage(t *testing.T) {
	db := newTestDB(t)
	dlq := NewDLQRepository(db)

	eventID := uuid.New()
	msg := strings.Repeat("e", 4096)
	require.NoError(t, dlq.InsertTx(db, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventCertificationsCompleted,
		AggregateType: enums.AggregateStore,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  10,
	}))

	var found models.OutboxDLQ
	require.NoError(t, db.Where("event_id = ?", eventID).First(&found).Error)
	require.NotNil(t, found.ErrorMessage)
	assert.Len(t, *found.ErrorMessage, maxDLQErrorLen)
}

func TestDLQRepositoryInsertIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	dlq := NewDLQRepository(db)

	entry := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventCertificationsCompleted,
		AggregateType: enums.AggregateStore,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
	}
	require.NoError(t, dlq.InsertTx(db, entry))
	require.NoError(t, dlq.InsertTx(db, entry))

	other := entry
	other.EventID = uuid.New()
	other.ErrorReason = enums.OutboxDLQReasonMaxAttempts
	require.NoError(t, dlq.InsertTx(db, other))

	counts, err := dlq.CountByReason(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[enums.OutboxDLQReasonNonRetryable])
	assert.Equal(t, int64(1), counts[enums.OutboxDLQReasonMaxAttempts])
}
