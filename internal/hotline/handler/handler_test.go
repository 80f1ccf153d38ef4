package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"hotline_backend/internal/events"
	"hotline_backend/internal/hotline/domain"
	"hotline_backend/internal/hotline/policy"
	"hotline_backend/internal/hotline/service"
	"hotline_backend/internal/lock"
	"hotline_backend/internal/ratelimit"
	"hotline_backend/internal/telephony"
	"hotline_backend/platform/httpkit"
	"hotline_backend/platform/kv"
	"hotline_backend/platform/logger"
	"hotline_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	authToken         = "provider-secret"
	baseURL           = "https://hotline.example.com"
	fmtExpectedStatus = "expected status %d, got %d"
)

type store struct {
	mu        sync.Mutex
	incidents map[uuid.UUID]domain.Incident
}

func (s *store) Create(_ context.Context, inc domain.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents[inc.ID] = inc
	return nil
}

func (s *store) Get(_ context.Context, id uuid.UUID) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inc, ok := s.incidents[id]; ok {
		return inc, nil
	}
	return domain.Incident{}, domain.ErrIncidentNotFound
}

func (s *store) FindByCallID(_ context.Context, callID string) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inc := range s.incidents {
		if inc.ProviderCallID == callID {
			return inc, nil
		}
	}
	return domain.Incident{}, domain.ErrIncidentNotFound
}

func (s *store) ListOpenBySubject(_ context.Context, subjectID string) ([]domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Incident
	for _, inc := range s.incidents {
		if inc.SubjectID == subjectID && !inc.IsResolved() {
			out = append(out, inc)
		}
	}
	return out, nil
}

func (s *store) LastResolvedBySubject(_ context.Context, subjectID string) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inc := range s.incidents {
		if inc.SubjectID == subjectID && inc.IsResolved() {
			return inc, nil
		}
	}
	return domain.Incident{}, domain.ErrIncidentNotFound
}

func (s *store) NewestUnplaced(context.Context, time.Time) (domain.Incident, error) {
	return domain.Incident{}, domain.ErrIncidentNotFound
}

func (s *store) ListStale(context.Context, time.Time, int) ([]domain.Incident, error) {
	return nil, nil
}

func (s *store) AttachCallID(_ context.Context, id uuid.UUID, callID string, _ bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inc := s.incidents[id]
	inc.ProviderCallID = callID
	s.incidents[id] = inc
	return true, nil
}

func (s *store) Apply(_ context.Context, id uuid.UUID, u domain.Update) (domain.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	updated, err := s.incidents[id].Apply(u)
	if err != nil {
		return domain.Incident{}, err
	}
	s.incidents[id] = updated
	return updated, nil
}

type directory struct{}

func (directory) FindByEmail(_ context.Context, email string) (domain.Subject, error) {
	if email != "member@example.com" {
		return domain.Subject{}, domain.ErrSubjectNotFound
	}
	return domain.Subject{SubjectID: "WOLF-1", Email: email, VerifiedPhone: "+14155552671", Tier: "Silver", Region: "NYC"}, nil
}

func (directory) FindByID(_ context.Context, subjectID string) (domain.Subject, error) {
	if subjectID != "WOLF-1" {
		return domain.Subject{}, domain.ErrSubjectNotFound
	}
	return directory{}.FindByEmail(context.Background(), "member@example.com")
}

func (directory) RelayNumber(context.Context, string) (string, error) { return "", nil }

type calls struct{}

func (calls) PlaceCall(context.Context, string, string) (telephony.PlacedCall, error) {
	return telephony.PlacedCall{CallID: "CA123", Status: "queued"}, nil
}

func (calls) EndCall(context.Context, string) error { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, events.Event) {}

type fixture struct {
	engine *gin.Engine
	store  *store
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := &store{incidents: make(map[uuid.UUID]domain.Incident)}
	kvStore := kv.NewLocalStore()
	svc := service.New(service.Deps{
		Incidents: st,
		Subjects:  directory{},
		Calls:     calls{},
		Locks:     lock.NewManager(kvStore, logger.Discard()),
		Limiter:   ratelimit.New(kvStore, 4, time.Minute, logger.Discard()),
		Events:    nopPublisher{},
		Policy:    policy.Default(),
		Log:       logger.Discard(),
	}, service.Options{
		PublicBaseURL:  baseURL,
		CallerID:       "+14155552600",
		OperatorNumber: "+14155552699",
		Production:     opts.Production,
		PhoneRegion:    "US",
	})

	opts.PublicBaseURL = baseURL
	h := New(svc, validator.New(), telephony.NewVerifier(authToken), opts, logger.Discard())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if email := c.GetHeader("X-Test-Email"); email != "" {
			c.Set(httpkit.ContextSubjectKey, "WOLF-1")
			c.Set(httpkit.ContextEmailKey, email)
		}
		c.Next()
	})
	v1 := r.Group("/api/v1")
	v1.POST("/hotline/activate", h.Activate)
	v1.POST("/twilio/call-status", h.CallStatus)
	v1.GET("/hotline/twiml", h.Markup)
	v1.POST("/hotline/twiml", h.Markup)
	v1.POST("/hotline/end-session", h.EndSession)
	v1.GET("/me/active-session", h.ActiveSession)
	v1.GET("/me/last-incident", h.LastIncident)
	v1.GET("/incidents/:incidentId", h.GetIncident)
	v1.GET("/partners/presence", h.Presence)

	return &fixture{engine: r, store: st}
}

func (f *fixture) seed(callID string) domain.Incident {
	inc := domain.Incident{
		ID:             uuid.New(),
		SubjectID:      "WOLF-1",
		ProviderCallID: callID,
		Status:         domain.StatusInitiated,
		CallPlaced:     true,
		CreatedAt:      time.Now().UTC(),
	}
	_ = f.store.Create(context.Background(), inc)
	return inc
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func signedCallback(t *testing.T, form url.Values) *http.Request {
	t.Helper()
	sig := telephony.NewVerifier(authToken).Sign(baseURL+telephony.CallStatusPath, form)
	req := httptest.NewRequest(http.MethodPost, telephony.CallStatusPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(telephony.SignatureHeader, sig)
	return req
}

func TestCallStatusAppliesSignedCallback(t *testing.T) {
	f := newFixture(t, Options{Production: true})
	inc := f.seed("CA123")

	w := f.do(signedCallback(t, url.Values{
		"CallSid":      {"CA123"},
		"CallStatus":   {"completed"},
		"CallDuration": {"42"},
	}))

	if w.Code != http.StatusOK {
		t.Fatalf(fmtExpectedStatus, http.StatusOK, w.Code)
	}
	if w.Body.String() != `{"ok":true}` {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
	got, _ := f.store.Get(context.Background(), inc.ID)
	if got.Status != domain.StatusResolved || *got.DurationSeconds != 42 {
		t.Fatalf("unexpected incident %+v", got)
	}
}

func TestCallStatusRejectsBadSignature(t *testing.T) {
	f := newFixture(t, Options{Production: true, SignatureBypass: true})
	inc := f.seed("CA123")

	req := signedCallback(t, url.Values{"CallSid": {"CA123"}, "CallStatus": {"completed"}})
	req.Header.Set(telephony.SignatureHeader, "forged")
	w := f.do(req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf(fmtExpectedStatus, http.StatusUnauthorized, w.Code)
	}
	if got, _ := f.store.Get(context.Background(), inc.ID); got.IsResolved() {
		t.Fatal("expected incident untouched")
	}
}

func TestCallStatusBypassOutsideProduction(t *testing.T) {
	f := newFixture(t, Options{SignatureBypass: true})
	inc := f.seed("CA123")

	req := httptest.NewRequest(http.MethodPost, telephony.CallStatusPath,
		strings.NewReader(`{"CallSid":"CA123","CallStatus":"ringing"}`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)

	if w.Code != http.StatusOK {
		t.Fatalf(fmtExpectedStatus, http.StatusOK, w.Code)
	}
	if got, _ := f.store.Get(context.Background(), inc.ID); got.Status != domain.StatusActive {
		t.Fatalf("expected json callback applied, got %+v", got)
	}
}

func TestCallStatusWithoutBypassRequiresSignature(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest(http.MethodPost, telephony.CallStatusPath, strings.NewReader("CallSid=CA123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if w := f.do(req); w.Code != http.StatusUnauthorized {
		t.Fatalf(fmtExpectedStatus, http.StatusUnauthorized, w.Code)
	}
}

func TestCallStatusAcknowledgesOrphans(t *testing.T) {
	f := newFixture(t, Options{Production: true})

	w := f.do(signedCallback(t, url.Values{"CallSid": {"CAunknown"}, "CallStatus": {"completed"}}))
	if w.Code != http.StatusOK || w.Body.String() != `{"ok":true}` {
		t.Fatalf("expected ok acknowledgement, got %d %s", w.Code, w.Body.String())
	}
}

func TestMarkupReturnsXML(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/hotline/twiml?CallSid=CA123", nil))
	if w.Code != http.StatusOK {
		t.Fatalf(fmtExpectedStatus, http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(w.Body.String(), "<Dial") {
		t.Fatalf("expected bridge, got %s", w.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hotline/twiml", strings.NewReader("CallSid=CA123"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = f.do(req)
	if strings.Contains(w.Body.String(), "<Dial") {
		t.Fatalf("expected repeat request to be suppressed, got %s", w.Body.String())
	}
}

func TestActivate(t *testing.T) {
	f := newFixture(t, Options{Production: true})

	w := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/hotline/activate", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf(fmtExpectedStatus, http.StatusUnauthorized, w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hotline/activate", nil)
	req.Header.Set("X-Test-Email", "member@example.com")
	w = f.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf(fmtExpectedStatus, http.StatusOK, w.Code)
	}
	if !strings.Contains(w.Body.String(), `"providerCallId":"CA123"`) || !strings.Contains(w.Body.String(), `"callPlaced":true`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestEndSessionRequiresTarget(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hotline/end-session", nil)
	req.Header.Set("X-Test-Email", "member@example.com")
	if w := f.do(req); w.Code != http.StatusBadRequest {
		t.Fatalf(fmtExpectedStatus, http.StatusBadRequest, w.Code)
	}
}

func TestEndSession(t *testing.T) {
	f := newFixture(t, Options{})
	inc := f.seed("CA123")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hotline/end-session",
		strings.NewReader(`{"incidentId":"`+inc.ID.String()+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Test-Email", "member@example.com")
	w := f.do(req)

	if w.Code != http.StatusOK || w.Body.String() != `{"success":true}` {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
	if got, _ := f.store.Get(context.Background(), inc.ID); got.Status != domain.StatusPendingFollowup {
		t.Fatalf("expected pending follow-up, got %s", got.Status)
	}
}

func TestActiveSessionWithoutIdentity(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/me/active-session", nil))
	if w.Code != http.StatusOK || w.Body.String() != `{"active":false,"status":"idle"}` {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestLastIncidentEmpty(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/last-incident", nil)
	req.Header.Set("X-Test-Email", "member@example.com")
	w := f.do(req)
	if w.Code != http.StatusOK || w.Body.String() != `{}` {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestGetIncident(t *testing.T) {
	f := newFixture(t, Options{})
	inc := f.seed("CA123")

	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/incidents/not-a-uuid", nil)); w.Code != http.StatusBadRequest {
		t.Fatalf(fmtExpectedStatus, http.StatusBadRequest, w.Code)
	}
	if w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/incidents/"+uuid.NewString(), nil)); w.Code != http.StatusNotFound {
		t.Fatalf(fmtExpectedStatus, http.StatusNotFound, w.Code)
	}

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/incidents/"+inc.ID.String(), nil))
	if w.Code != http.StatusOK {
		t.Fatalf(fmtExpectedStatus, http.StatusOK, w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"initiated"`) || strings.Contains(w.Body.String(), "+1415") {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestPresence(t *testing.T) {
	f := newFixture(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/partners/presence", nil)
	req.Header.Set("X-Test-Email", "member@example.com")
	w := f.do(req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"category":"Legal"`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}
