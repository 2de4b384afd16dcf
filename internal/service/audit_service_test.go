package service

import (
	"context"
	"testing"
	"time"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports/mocks"

	"github.com/google/uuid"
	"go.uber.org/mock/gomock"
)

func TestAuditService_Log_PersistsToRepo(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	done := make(chan struct{})
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) error {
			if log.Action != domain.AuditActionSettleHarvest {
				t.Errorf("expected SETTLE_HARVEST, got %s", log.Action)
			}
			close(done)
			return nil
		},
	)

	actor := uuid.New()
	svc.Log(context.Background(), &domain.AuditLog{
		ID:           uuid.New(),
		ActorID:      &actor,
		ActorRole:    domain.RoleCrank,
		Action:       domain.AuditActionSettleHarvest,
		ResourceType: "obligation",
		ResourceID:   "b:m:0",
		IPAddress:    "127.0.0.1",
		CreatedAt:    time.Now(),
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit log not persisted in time")
	}
}

func TestAuditService_Log_SurvivesCanceledRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockRepo := mocks.NewMockAuditRepository(ctrl)
	svc := NewAuditService(mockRepo, newTestLogger())

	done := make(chan error, 1)
	mockRepo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, log *domain.AuditLog) error {
			done <- ctx.Err()
			return nil
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Log(ctx, &domain.AuditLog{ID: uuid.New(), Action: domain.AuditActionStake, CreatedAt: time.Now()})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("persist context should not inherit cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("audit log not persisted in time")
	}
}

func TestAuditService_Log_NilRepo(t *testing.T) {
	svc := NewAuditService(nil, newTestLogger())

	// Should not panic
	svc.Log(context.Background(), &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionRegisterMerchant,
		ResourceType: "merchant",
		IPAddress:    "127.0.0.1",
		CreatedAt:    time.Now(),
	})

	time.Sleep(50 * time.Millisecond) // let goroutine run
}
