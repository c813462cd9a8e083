package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"idmigrate/internal/domain"
	"idmigrate/internal/identity"
	"idmigrate/internal/service"
)

type stubSessions struct {
	sc domain.DualSessionContext
}

func (s stubSessions) Build(*http.Request) domain.DualSessionContext {
	return s.sc
}

type stubMigrator struct {
	decision service.Decision
	calls    int
}

func (m *stubMigrator) Decide(context.Context, domain.DualSessionContext) service.Decision {
	m.calls++
	return m.decision
}

type stubBridge struct {
	handoff identity.Handoff
	err     error
	tokens  []string
}

func (b *stubBridge) Complete(_ context.Context, token domain.SignInToken) (identity.Handoff, error) {
	b.tokens = append(b.tokens, token.Token)
	return b.handoff, b.err
}

// setupMigrationRouter monta el middleware y un handler que expone la sesion resuelta.
func setupMigrationRouter(mw *MigrationMiddleware) (*gin.Engine, *int) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	hits := 0
	r.Use(mw.Handle())
	r.GET("/", func(c *gin.Context) {
		hits++
		sc, ok := GetDualSession(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "no session context"})
			return
		}
		resp := gin.H{"legacy": sc.HasLegacy(), "hosted": sc.HasHosted()}
		if sc.HasHosted() {
			resp["user_id"] = sc.Hosted.UserID
		}
		c.JSON(http.StatusOK, resp)
	})
	return r, &hits
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func TestMigrationMiddleware_Passthrough(t *testing.T) {
	migrator := &stubMigrator{decision: service.Decision{Outcome: service.OutcomePassthrough}}
	bridge := &stubBridge{}
	mw := NewMigrationMiddleware(zap.NewNop(), stubSessions{}, migrator, bridge, nil, "", false)
	r, hits := setupMigrationRouter(mw)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK || *hits != 1 {
		t.Fatalf("expected handler to run, got %d hits=%d", w.Code, *hits)
	}
	if len(bridge.tokens) != 0 {
		t.Fatalf("expected no handoff on passthrough")
	}
	if migrator.calls != 1 {
		t.Fatalf("expected one decision per request, got %d", migrator.calls)
	}
}

func TestMigrationMiddleware_ErrorRendersDiagnostic(t *testing.T) {
	migrator := &stubMigrator{decision: service.Decision{Outcome: service.OutcomeError, Reason: service.ReasonUserMissing}}
	mw := NewMigrationMiddleware(zap.NewNop(), stubSessions{sc: domain.DualSessionContext{Legacy: &domain.LegacySession{Email: "a@x.com"}}}, migrator, nil, nil, "", false)
	r, hits := setupMigrationRouter(mw)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 diagnostic, got %d", w.Code)
	}
	if *hits != 0 {
		t.Fatalf("expected handler not to run on error outcome")
	}
	if got := decodeBody(t, w)["diagnostic"]; got != service.ReasonUserMissing {
		t.Fatalf("expected diagnostic %q, got %v", service.ReasonUserMissing, got)
	}
}

func TestMigrationMiddleware_HandoffSetsHostedSession(t *testing.T) {
	migrator := &stubMigrator{decision: service.Decision{
		Outcome: service.OutcomeProvisionAndHandoff,
		Token:   domain.SignInToken{Token: "sit_1", SubjectHostedUserID: "user_1"},
	}}
	bridge := &stubBridge{handoff: identity.Handoff{
		Session:    domain.HostedSession{UserID: "user_1", ExternalID: "42"},
		SessionJWT: "jwt-value",
	}}
	sc := domain.DualSessionContext{Legacy: &domain.LegacySession{Email: "a@x.com"}}
	mw := NewMigrationMiddleware(zap.NewNop(), stubSessions{sc: sc}, migrator, bridge, nil, "__session", true)
	r, hits := setupMigrationRouter(mw)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK || *hits != 1 {
		t.Fatalf("expected handler to run, got %d", w.Code)
	}
	if len(bridge.tokens) != 1 || bridge.tokens[0] != "sit_1" {
		t.Fatalf("expected bridge called with token, got %v", bridge.tokens)
	}
	body := decodeBody(t, w)
	if body["hosted"] != true || body["user_id"] != "user_1" {
		t.Fatalf("expected hosted session visible to handler, got %v", body)
	}

	var session *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "__session" {
			session = c
		}
	}
	if session == nil || session.Value != "jwt-value" || !session.HttpOnly || !session.Secure {
		t.Fatalf("expected secure hosted session cookie, got %+v", session)
	}
}

func TestMigrationMiddleware_HandoffFailureContinues(t *testing.T) {
	migrator := &stubMigrator{decision: service.Decision{
		Outcome: service.OutcomeProvisionAndHandoff,
		Token:   domain.SignInToken{Token: "sit_1", SubjectHostedUserID: "user_1"},
	}}
	bridge := &stubBridge{err: errors.New("frontend down")}
	sc := domain.DualSessionContext{Legacy: &domain.LegacySession{Email: "a@x.com"}}
	mw := NewMigrationMiddleware(zap.NewNop(), stubSessions{sc: sc}, migrator, bridge, nil, "", false)
	r, hits := setupMigrationRouter(mw)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK || *hits != 1 {
		t.Fatalf("expected request to continue, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["hosted"] != false || body["legacy"] != true {
		t.Fatalf("expected legacy-only context after failed handoff, got %v", body)
	}
	if len(w.Result().Cookies()) != 0 {
		t.Fatalf("expected no cookie on failed handoff")
	}
}

func TestMigrationMiddleware_NoBridgeExposesToken(t *testing.T) {
	migrator := &stubMigrator{decision: service.Decision{
		Outcome: service.OutcomeProvisionAndHandoff,
		Token:   domain.SignInToken{Token: "sit_client", SubjectHostedUserID: "user_1"},
	}}
	mw := NewMigrationMiddleware(zap.NewNop(), stubSessions{}, migrator, nil, nil, "", false)
	r, _ := setupMigrationRouter(mw)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := w.Header().Get("X-Sign-In-Token"); got != "sit_client" {
		t.Fatalf("expected token header, got %q", got)
	}
}
