package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/mail"
)

func queuedEmail(id, to string, emailType entity.EmailType, attempts int) entity.EmailQueueItem {
	return entity.EmailQueueItem{
		ID:             id,
		RecipientEmail: to,
		RecipientName:  "Ana",
		Subject:        "Hello",
		Body:           "Body text",
		EmailType:      emailType,
		LeadID:         "lead-1",
		Priority:       entity.DefaultEmailPriority,
		Status:         entity.EmailProcessing,
		Attempts:       attempts,
		ScheduledAt:    testNow,
	}
}

func newDispatcher(repo *MockEmailQueueRepository, sender *MockEmailSender, audit *MockAuditWriter) *ProcessEmailQueueUseCase {
	uc := NewProcessEmailQueueUseCase(repo, sender, audit, "team@example.com",
		3, time.Minute, 0, clockwork.NewFakeClockAt(testNow), zerolog.Nop())
	uc.jitter = func() float64 { return 0 }
	return uc
}

func TestProcessEmailQueue_EmptyQueue(t *testing.T) {
	repo := new(MockEmailQueueRepository)
	sender := new(MockEmailSender)
	audit := new(MockAuditWriter)
	repo.On("ClaimDue", mock.Anything, testNow, DefaultBatchSize).Return([]entity.EmailQueueItem{}, nil)

	res, err := newDispatcher(repo, sender, audit).Execute(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, *res)
	sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkSent", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessEmailQueue_SecondOfTwoFails(t *testing.T) {
	repo := new(MockEmailQueueRepository)
	sender := new(MockEmailSender)
	audit := new(MockAuditWriter)

	// Three rows are due; the store only hands back the two the batch asked for.
	repo.On("ClaimDue", mock.Anything, testNow, 2).Return([]entity.EmailQueueItem{
		queuedEmail("e1", "first@example.com", entity.EmailWelcome, 0),
		queuedEmail("e2", "second@example.com", entity.EmailNotification, 0),
	}, nil)
	sender.On("Send", mock.Anything, mock.MatchedBy(func(m mail.Message) bool { return m.To == "first@example.com" })).Return(nil)
	sender.On("Send", mock.Anything, mock.MatchedBy(func(m mail.Message) bool { return m.To == "second@example.com" })).
		Return(&mail.ProviderError{Provider: "resend", StatusCode: 500, Message: "upstream"})
	repo.On("MarkSent", mock.Anything, "e1", testNow).Return(nil)
	repo.On("MarkFailed", mock.Anything, "e2", testNow, entity.FailureOutcome{
		Message:     "resend: status 500: upstream",
		NextStatus:  entity.EmailPending,
		NextAttempt: testNow.Add(time.Minute),
	}).Return(nil)
	audit.On("Insert", mock.Anything, mock.MatchedBy(func(e *entity.AuditLogEntry) bool {
		p, ok := e.Payload.(entity.EmailSentPayload)
		return ok && e.Action == entity.ActionEmailSent && e.Role == entity.RoleSystem &&
			e.TableName == "email_queue" && p.EmailID == "e1"
	})).Return(nil).Once()

	res, err := newDispatcher(repo, sender, audit).Execute(context.Background(), 2)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Successful)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "e2")
	repo.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestProcessEmailQueue_LastAttemptMarksFailed(t *testing.T) {
	repo := new(MockEmailQueueRepository)
	sender := new(MockEmailSender)
	audit := new(MockAuditWriter)

	repo.On("ClaimDue", mock.Anything, testNow, DefaultBatchSize).Return([]entity.EmailQueueItem{
		queuedEmail("e1", "a@example.com", entity.EmailOther, 2),
	}, nil)
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	repo.On("MarkFailed", mock.Anything, "e1", testNow, mock.MatchedBy(func(o entity.FailureOutcome) bool {
		return o.NextStatus == entity.EmailFailed && o.Message == "smtp down" && o.NextAttempt.IsZero()
	})).Return(nil)

	res, err := newDispatcher(repo, sender, audit).Execute(context.Background(), -1)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 0, res.Successful)
	repo.AssertExpectations(t)
	audit.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestProcessEmailQueue_RendersWelcomeCopy(t *testing.T) {
	repo := new(MockEmailQueueRepository)
	sender := new(MockEmailSender)
	audit := new(MockAuditWriter)

	item := queuedEmail("e1", "ana@example.com", entity.EmailWelcome, 0)
	item.Subject = ""
	repo.On("ClaimDue", mock.Anything, testNow, 1).Return([]entity.EmailQueueItem{item}, nil)
	sender.On("Send", mock.Anything, mock.MatchedBy(func(m mail.Message) bool {
		return m.From == "team@example.com" &&
			m.Subject == "Thank you for your request!" &&
			strings.Contains(m.HTML, "Thank you for submitting this request form, Ana!")
	})).Return(nil)
	repo.On("MarkSent", mock.Anything, "e1", testNow).Return(nil)
	audit.On("Insert", mock.Anything, mock.Anything).Return(nil)

	res, err := newDispatcher(repo, sender, audit).Execute(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful)
	sender.AssertExpectations(t)
}

func TestProcessEmailQueue_StorageErrorsDoNotStopBatch(t *testing.T) {
	repo := new(MockEmailQueueRepository)
	sender := new(MockEmailSender)
	audit := new(MockAuditWriter)

	repo.On("ClaimDue", mock.Anything, testNow, 5).Return([]entity.EmailQueueItem{
		queuedEmail("e1", "a@example.com", entity.EmailOther, 0),
		queuedEmail("e2", "b@example.com", entity.EmailOther, 0),
	}, nil)
	sender.On("Send", mock.Anything, mock.Anything).Return(nil)
	repo.On("MarkSent", mock.Anything, "e1", testNow).Return(errors.New("deadlock detected"))
	repo.On("MarkSent", mock.Anything, "e2", testNow).Return(nil)
	audit.On("Insert", mock.Anything, mock.Anything).Return(errors.New("audit down"))

	res, err := newDispatcher(repo, sender, audit).Execute(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Successful)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "deadlock detected")
	audit.AssertNumberOfCalls(t, "Insert", 1)
}

func TestProcessEmailQueue_ClaimFailure(t *testing.T) {
	repo := new(MockEmailQueueRepository)
	repo.On("ClaimDue", mock.Anything, testNow, MaxBatchSize).Return(nil, errors.New("db gone"))

	_, err := newDispatcher(repo, new(MockEmailSender), new(MockAuditWriter)).Execute(context.Background(), 5000)
	assert.True(t, IsStorageError(err))
}

func TestProcessEmailQueue_ReleasesStaleClaims(t *testing.T) {
	repo := new(MockEmailQueueRepository)
	uc := newDispatcher(repo, new(MockEmailSender), new(MockAuditWriter))
	uc.ClaimTimeout = 15 * time.Minute

	repo.On("ReleaseStale", mock.Anything, testNow.Add(-15*time.Minute), 3).Return(int64(2), nil)
	repo.On("ClaimDue", mock.Anything, testNow, DefaultBatchSize).Return([]entity.EmailQueueItem{}, nil)

	_, err := uc.Execute(context.Background(), 0)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcessEmailQueue_StaleReleaseUsesMaxAttempts(t *testing.T) {
	repo := new(MockEmailQueueRepository)
	uc := NewProcessEmailQueueUseCase(repo, new(MockEmailSender), new(MockAuditWriter), "team@example.com",
		5, time.Minute, time.Minute, clockwork.NewFakeClockAt(testNow), zerolog.Nop())

	repo.On("ReleaseStale", mock.Anything, testNow.Add(-time.Minute), 5).Return(int64(0), nil)
	repo.On("ClaimDue", mock.Anything, testNow, DefaultBatchSize).Return([]entity.EmailQueueItem{}, nil)

	_, err := uc.Execute(context.Background(), 0)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestProcessEmailQueue_LongMultibyteErrorStaysValidUTF8(t *testing.T) {
	repo := new(MockEmailQueueRepository)
	sender := new(MockEmailSender)
	item := queuedEmail("e1", "ana@example.com", entity.EmailWelcome, 0)

	// "provider said: " is 15 bytes, so the second euro sign spans bytes
	// 998 to 1000 and has to be dropped whole.
	providerMsg := strings.Repeat("x", 980) + strings.Repeat("€", 10)
	repo.On("ClaimDue", mock.Anything, testNow, DefaultBatchSize).Return([]entity.EmailQueueItem{item}, nil)
	sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("provider said: " + providerMsg))

	var recorded string
	repo.On("MarkFailed", mock.Anything, "e1", testNow, mock.Anything).
		Run(func(args mock.Arguments) { recorded = args.Get(3).(entity.FailureOutcome).Message }).
		Return(nil)

	res, err := newDispatcher(repo, sender, new(MockAuditWriter)).Execute(context.Background(), 0)

	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, utf8.ValidString(recorded))
	assert.LessOrEqual(t, len(recorded), maxErrorMessageLength)
	assert.Len(t, recorded, 998)
	assert.True(t, strings.HasSuffix(recorded, "€"))
	assert.True(t, utf8.ValidString(res.Errors[0]))
}

func TestTruncateMessage(t *testing.T) {
	assert.Equal(t, "short", truncateMessage("short", 10))
	assert.Equal(t, "ab", truncateMessage("ab€", 4))
	assert.Equal(t, "ab€", truncateMessage("ab€", 5))
	assert.Equal(t, "a\uFFFDb", truncateMessage("a\xffb", 10))
}

func TestBackoff(t *testing.T) {
	uc := newDispatcher(new(MockEmailQueueRepository), new(MockEmailSender), new(MockAuditWriter))

	assert.Equal(t, time.Minute, uc.backoff(1))
	assert.Equal(t, 2*time.Minute, uc.backoff(2))
	assert.Equal(t, 4*time.Minute, uc.backoff(3))

	uc.jitter = func() float64 { return 1 }
	assert.InDelta(t, float64(72*time.Second), float64(uc.backoff(1)), float64(time.Millisecond))

	uc.RetryBackoff = 0
	assert.Equal(t, time.Duration(0), uc.backoff(3))
}

func TestNormalizeBatchSize(t *testing.T) {
	assert.Equal(t, 10, normalizeBatchSize(0))
	assert.Equal(t, 10, normalizeBatchSize(-3))
	assert.Equal(t, 7, normalizeBatchSize(7))
	assert.Equal(t, 100, normalizeBatchSize(101))
}
