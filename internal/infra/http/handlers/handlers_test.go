package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xavierca1/leadflow/internal/entity"
	"github.com/xavierca1/leadflow/internal/infra/http/middleware"
	"github.com/xavierca1/leadflow/internal/usecase"
)

type MockSubmitter struct{ mock.Mock }

func (m *MockSubmitter) Execute(ctx context.Context, input usecase.SubmitLeadInput) (*usecase.SubmitLeadOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.SubmitLeadOutput), args.Error(1)
}

type MockProcessor struct{ mock.Mock }

func (m *MockProcessor) Execute(ctx context.Context, batchSize int) (*usecase.BatchResult, error) {
	args := m.Called(ctx, batchSize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*usecase.BatchResult), args.Error(1)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// httptest requests come from 192.0.2.1.
var testProxies = []netip.Prefix{
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("10.0.0.0/8"),
}

const validLead = `{"name":"Ana","email":"ana@example.com","source":"google","interest":"pricing","consent_marketing":false,"consent_privacy":true}`

func TestCaptureLead_Success(t *testing.T) {
	sub := new(MockSubmitter)
	sub.On("Execute", mock.Anything, mock.MatchedBy(func(in usecase.SubmitLeadInput) bool {
		return in.IPAddress == "203.0.113.7" && in.Draft.Email == "ana@example.com" && in.UserAgent == "test-agent"
	})).Return(&usecase.SubmitLeadOutput{Success: true, Message: "ok", LeadID: "lead-1"}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/public/leads", strings.NewReader(validLead))
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()

	NewLeadHandler(sub, testProxies).CaptureLead(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "lead-1", body["lead_id"])
	sub.AssertExpectations(t)
}

func TestCaptureLead_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		errorMsg string
	}{
		{"validation", &usecase.ValidationError{Field: "email", Message: "is invalid"}, http.StatusBadRequest, "email: is invalid"},
		{"rate limited", &usecase.RateLimitError{Threshold: 5, Window: time.Hour}, http.StatusTooManyRequests, "Rate limit exceeded"},
		{"storage", &usecase.StorageError{Op: "submit lead", Err: errors.New("conn reset")}, http.StatusInternalServerError, "Internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := new(MockSubmitter)
			sub.On("Execute", mock.Anything, mock.Anything).Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodPost, "/api/public/leads", strings.NewReader(validLead))
			rec := httptest.NewRecorder()
			NewLeadHandler(sub, nil).CaptureLead(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.errorMsg, decodeBody(t, rec)["error"])
		})
	}
}

func TestCaptureLead_RateLimitMessage(t *testing.T) {
	sub := new(MockSubmitter)
	sub.On("Execute", mock.Anything, mock.Anything).Return(nil, &usecase.RateLimitError{Threshold: 5, Window: time.Hour})

	rec := httptest.NewRecorder()
	NewLeadHandler(sub, nil).CaptureLead(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(validLead)))

	assert.Equal(t, "You can submit at most 5 forms per hour. Please try again later.", decodeBody(t, rec)["message"])
}

func TestCaptureLead_InvalidJSON(t *testing.T) {
	sub := new(MockSubmitter)
	rec := httptest.NewRecorder()
	NewLeadHandler(sub, nil).CaptureLead(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{bad")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON", decodeBody(t, rec)["error"])
	sub.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestCaptureLead_BodyTooLarge(t *testing.T) {
	sub := new(MockSubmitter)
	h := middleware.MaxBodyBytes(16)(http.HandlerFunc(NewLeadHandler(sub, nil).CaptureLead))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(validLead)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	sub.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	tests := []struct {
		name    string
		trusted []netip.Prefix
		headers map[string]string
		remote  string
		want    string
	}{
		{"untrusted peer ignores forwarded", nil, map[string]string{"X-Forwarded-For": "198.51.100.2"}, "203.0.113.9:1234", "203.0.113.9"},
		{"untrusted peer ignores real ip", nil, map[string]string{"X-Real-IP": "198.51.100.3"}, "203.0.113.9:1234", "203.0.113.9"},
		{"proxy forwards client", proxies, map[string]string{"X-Forwarded-For": "198.51.100.2"}, "10.0.0.9:1234", "198.51.100.2"},
		{"spoofed hops are skipped", proxies, map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.2, 10.0.0.5"}, "10.0.0.9:1234", "198.51.100.2"},
		{"all hops trusted", proxies, map[string]string{"X-Forwarded-For": "10.1.1.1, 10.0.0.5"}, "10.0.0.9:1234", "10.1.1.1"},
		{"garbage hop falls back to peer", proxies, map[string]string{"X-Forwarded-For": "not-an-ip"}, "10.0.0.9:1234", "10.0.0.9"},
		{"proxy real ip", proxies, map[string]string{"X-Real-IP": "198.51.100.3"}, "10.0.0.9:1234", "198.51.100.3"},
		{"peer", nil, nil, "192.0.2.10:5555", "192.0.2.10"},
		{"peer without port", nil, nil, "192.0.2.11", "192.0.2.11"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req, tt.trusted))
		})
	}
}

func TestCaptureLead_RotatedForwardedForKeepsPeerAddress(t *testing.T) {
	sub := new(MockSubmitter)
	sub.On("Execute", mock.Anything, mock.MatchedBy(func(in usecase.SubmitLeadInput) bool {
		return in.IPAddress == "203.0.113.50"
	})).Return(&usecase.SubmitLeadOutput{Success: true}, nil)
	h := NewLeadHandler(sub, testProxies)

	for _, spoofed := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		req := httptest.NewRequest(http.MethodPost, "/api/public/leads", strings.NewReader(validLead))
		req.RemoteAddr = "203.0.113.50:4000"
		req.Header.Set("X-Forwarded-For", spoofed)
		rec := httptest.NewRecorder()
		h.CaptureLead(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	sub.AssertNumberOfCalls(t, "Execute", 3)
}

func TestProcessQueue(t *testing.T) {
	t.Run("default batch with empty body", func(t *testing.T) {
		proc := new(MockProcessor)
		proc.On("Execute", mock.Anything, 0).Return(&usecase.BatchResult{}, nil)

		rec := httptest.NewRecorder()
		NewEmailQueueHandler(proc).Process(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "Email queue processed", body["message"])
		assert.EqualValues(t, 0, body["processed"])
		assert.NotContains(t, body, "errors")
	})

	t.Run("explicit batch size and errors", func(t *testing.T) {
		proc := new(MockProcessor)
		proc.On("Execute", mock.Anything, 2).Return(&usecase.BatchResult{
			Processed: 2, Successful: 1, Failed: 1, Errors: []string{"email e2: boom"},
		}, nil)

		rec := httptest.NewRecorder()
		NewEmailQueueHandler(proc).Process(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"batchSize":2}`)))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.EqualValues(t, 2, body["processed"])
		assert.EqualValues(t, 1, body["successful"])
		assert.EqualValues(t, 1, body["failed"])
		assert.Equal(t, []any{"email e2: boom"}, body["errors"])
	})

	t.Run("claim failure", func(t *testing.T) {
		proc := new(MockProcessor)
		proc.On("Execute", mock.Anything, 0).Return(nil, &usecase.StorageError{Op: "claim", Err: errors.New("down")})

		rec := httptest.NewRecorder()
		NewEmailQueueHandler(proc).Process(rec, httptest.NewRequest(http.MethodPost, "/", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

type stubLeads struct {
	lead    *entity.Lead
	err     error
	gotID   string
	gotRole entity.Role
}

func (s *stubLeads) List(ctx context.Context, actor usecase.Actor, limit, offset int) ([]entity.Lead, error) {
	s.gotRole = actor.Role
	if s.err != nil {
		return nil, s.err
	}
	return []entity.Lead{*s.lead}, nil
}

func (s *stubLeads) Get(ctx context.Context, actor usecase.Actor, id string) (*entity.Lead, error) {
	s.gotID, s.gotRole = id, actor.Role
	return s.lead, s.err
}

type stubAssigner struct{ input usecase.AssignLeadInput }

func (s *stubAssigner) Execute(ctx context.Context, actor usecase.Actor, input usecase.AssignLeadInput) (*usecase.AssignLeadOutput, error) {
	s.input = input
	return &usecase.AssignLeadOutput{LeadID: input.LeadID, AssignedTo: input.ManagerID}, nil
}

type stubEmails struct {
	welcomeFor string
	input      usecase.EnqueueEmailInput
}

func (s *stubEmails) ExecuteAs(ctx context.Context, actor usecase.Actor, input usecase.EnqueueEmailInput) (string, error) {
	s.input = input
	return "email-9", nil
}

func (s *stubEmails) EnqueueWelcomeAs(ctx context.Context, actor usecase.Actor, leadID string) (string, error) {
	s.welcomeFor = leadID
	return "email-1", nil
}

func adminRouter(h *AdminHandler, actor usecase.Actor) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithActor(req.Context(), actor)))
		})
	})
	r.Get("/api/leads", h.ListLeads)
	r.Get("/api/leads/{id}", h.GetLead)
	r.Put("/api/leads/{id}/assignee", h.AssignLead)
	r.Post("/api/leads/{id}/confirmation", h.SendConfirmation)
	r.Post("/api/emails", h.EnqueueEmail)
	return r
}

func TestAdminHandler_GetLead(t *testing.T) {
	leads := &stubLeads{lead: &entity.Lead{ID: "lead-1", Name: "Ana"}}
	h := &AdminHandler{Leads: leads}

	rec := httptest.NewRecorder()
	adminRouter(h, usecase.Actor{UserID: "m1", Role: entity.RoleManager}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leads/lead-1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "lead-1", leads.gotID)
	assert.Equal(t, entity.RoleManager, leads.gotRole)
}

func TestAdminHandler_DomainErrors(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{usecase.CodeNotFound, http.StatusNotFound},
		{usecase.CodeForbidden, http.StatusForbidden},
		{usecase.CodeInvalidState, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := &AdminHandler{Leads: &stubLeads{err: &usecase.DomainError{Code: tt.code, Message: "nope"}}}

			rec := httptest.NewRecorder()
			adminRouter(h, usecase.Actor{UserID: "a1", Role: entity.RoleAdmin}).
				ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leads/x", nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "nope", decodeBody(t, rec)["error"])
		})
	}
}

func TestAdminHandler_AssignLead(t *testing.T) {
	assigner := &stubAssigner{}
	h := &AdminHandler{Assigner: assigner}

	rec := httptest.NewRecorder()
	adminRouter(h, usecase.Actor{UserID: "a1", Role: entity.RoleAdmin}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/leads/lead-7/assignee", strings.NewReader(`{"manager_id":"m2"}`)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, usecase.AssignLeadInput{LeadID: "lead-7", ManagerID: "m2"}, assigner.input)
}

func TestAdminHandler_SendConfirmation(t *testing.T) {
	emails := &stubEmails{}
	h := &AdminHandler{Emails: emails}

	rec := httptest.NewRecorder()
	adminRouter(h, usecase.Actor{UserID: "a1", Role: entity.RoleAdmin}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/leads/lead-3/confirmation", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "lead-3", emails.welcomeFor)
	assert.Equal(t, "email-1", decodeBody(t, rec)["email_id"])
}

func TestAdminHandler_EnqueueEmailStampsCaller(t *testing.T) {
	emails := &stubEmails{}
	h := &AdminHandler{Emails: emails}

	body := `{"recipient_email":"x@example.com","subject":"Hi","body":"Hello","email_type":"notification","user_id":"spoofed"}`
	rec := httptest.NewRecorder()
	adminRouter(h, usecase.Actor{UserID: "a1", Role: entity.RoleAdmin}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/emails", strings.NewReader(body)))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "a1", emails.input.UserID)
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(ctx context.Context) error { return p.err }

type fakeBroker struct{ closed bool }

func (b fakeBroker) IsClosed() bool { return b.closed }

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(fakePinger{}, fakeBroker{}, "test").Handle(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "test", body["version"])
	})

	t.Run("database down", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(fakePinger{err: errors.New("refused")}, nil, "test").Handle(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		deps := decodeBody(t, rec)["dependencies"].(map[string]any)
		assert.Equal(t, "not configured", deps["rabbitmq"])
		assert.Contains(t, deps["database"], "unhealthy")
	})

	t.Run("broker closed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewHealthHandler(fakePinger{}, fakeBroker{closed: true}, "test").Handle(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
