package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/mail"
	"github.com/xavierca1/leadflow/internal/infra/queue"
)

// MockIntakeRepository
type MockIntakeRepository struct {
	mock.Mock
}

func (m *MockIntakeRepository) SubmitLead(ctx context.Context, rec entity.SubmissionRecord) (string, error) {
	args := m.Called(ctx, rec)
	return args.String(0), args.Error(1)
}

// fakeIntake keeps the per-IP window in memory so the limit can be exercised
// end to end through the use case.
type fakeIntake struct {
	mu          sync.Mutex
	submissions map[string][]time.Time
	leads       []*entity.Lead
}

func newFakeIntake() *fakeIntake {
	return &fakeIntake{submissions: map[string][]time.Time{}}
}

func (f *fakeIntake) SubmitLead(_ context.Context, rec entity.SubmissionRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := rec.SubmittedAt.Add(-rec.Policy.Window)
	count := 0
	for _, at := range f.submissions[rec.IPAddress] {
		if at.After(cutoff) {
			count++
		}
	}
	if count >= rec.Policy.Threshold {
		return "", entity.ErrSubmissionLimit
	}
	f.submissions[rec.IPAddress] = append(f.submissions[rec.IPAddress], rec.SubmittedAt)
	f.leads = append(f.leads, rec.Lead)
	return "sub-" + rec.Lead.ID, nil
}

// MockAuditWriter
type MockAuditWriter struct {
	mock.Mock
}

func (m *MockAuditWriter) Insert(ctx context.Context, entry *entity.AuditLogEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditWriter) List(ctx context.Context, filter entity.AuditFilter) ([]entity.AuditLogEntry, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.AuditLogEntry), args.Error(1)
}

// MockEventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishLeadCreated(ctx context.Context, payload queue.LeadCreatedPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// MockEmailSender
type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, msg mail.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MockEmailQueueRepository
type MockEmailQueueRepository struct {
	mock.Mock
}

func (m *MockEmailQueueRepository) Enqueue(ctx context.Context, item *entity.EmailQueueItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockEmailQueueRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]entity.EmailQueueItem, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.EmailQueueItem), args.Error(1)
}

func (m *MockEmailQueueRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockEmailQueueRepository) MarkFailed(ctx context.Context, id string, at time.Time, outcome entity.FailureOutcome) error {
	args := m.Called(ctx, id, at, outcome)
	return args.Error(0)
}

func (m *MockEmailQueueRepository) ReleaseStale(ctx context.Context, claimedBefore time.Time, maxAttempts int) (int64, error) {
	args := m.Called(ctx, claimedBefore, maxAttempts)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockEmailQueueRepository) CancelPending(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockEmailQueueRepository) CountByStatus(ctx context.Context) (map[entity.EmailStatus]int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[entity.EmailStatus]int), args.Error(1)
}

// MockLeadRepository
type MockLeadRepository struct {
	mock.Mock
}

func (m *MockLeadRepository) FindByID(ctx context.Context, id string) (*entity.Lead, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Lead), args.Error(1)
}

func (m *MockLeadRepository) List(ctx context.Context, filter entity.LeadFilter) ([]entity.Lead, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Lead), args.Error(1)
}

func (m *MockLeadRepository) Assign(ctx context.Context, id, managerID string) (string, error) {
	args := m.Called(ctx, id, managerID)
	return args.String(0), args.Error(1)
}

// MockFollowUpRepository
type MockFollowUpRepository struct {
	mock.Mock
}

func (m *MockFollowUpRepository) Create(ctx context.Context, f *entity.FollowUp) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

func (m *MockFollowUpRepository) FindByID(ctx context.Context, id string) (*entity.FollowUp, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.FollowUp), args.Error(1)
}

func (m *MockFollowUpRepository) List(ctx context.Context, filter entity.FollowUpFilter) ([]entity.FollowUp, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.FollowUp), args.Error(1)
}

func (m *MockFollowUpRepository) UpdateStatus(ctx context.Context, id string, status entity.FollowUpStatus, at time.Time) error {
	args := m.Called(ctx, id, status, at)
	return args.Error(0)
}

// MockAnalyticsRepository
type MockAnalyticsRepository struct {
	mock.Mock
}

func (m *MockAnalyticsRepository) LeadSummary(ctx context.Context, assignedTo string, since time.Time) (*entity.LeadSummary, error) {
	args := m.Called(ctx, assignedTo, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.LeadSummary), args.Error(1)
}
