package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"idmigrate/internal/domain"
	"idmigrate/internal/identity"
	"idmigrate/internal/metrics"
	"idmigrate/internal/service"
)

const testHostedSecret = "hosted-test-secret"

type memLegacyRepo struct {
	users []domain.LegacyUser
}

func (m *memLegacyRepo) GetByEmail(_ context.Context, email string) (domain.LegacyUser, error) {
	for _, u := range m.users {
		if domain.NormalizeEmail(u.Email) == domain.NormalizeEmail(email) {
			return u, nil
		}
	}
	return domain.LegacyUser{}, pgx.ErrNoRows
}

type memAttributeRepo struct {
	byUser map[string]string
}

func (m *memAttributeRepo) GetByUserID(_ context.Context, userID string) (domain.UserAttribute, error) {
	attr, ok := m.byUser[userID]
	if !ok {
		return domain.UserAttribute{}, pgx.ErrNoRows
	}
	return domain.UserAttribute{UserID: userID, Attribute: attr}, nil
}

// hostedFrontend simula la API de frontend del proveedor sobre un MockProvider:
// 422 para identificadores desconocidos y canje de tickets con JWT HS256.
func hostedFrontend(t *testing.T, provider *identity.MockProvider) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/client/sign_ins" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if ticket := r.FormValue("ticket"); ticket != "" {
			user, ok := provider.ConsumeToken(ticket)
			if !ok {
				w.WriteHeader(http.StatusUnprocessableEntity)
				return
			}
			claims := service.HostedClaims{
				ExternalID: user.ExternalID,
				RegisteredClaims: jwt.RegisteredClaims{
					Subject:   user.ID,
					ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
				},
			}
			signed, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testHostedSecret))
			_ = json.NewEncoder(w).Encode(identity.SignInAttempt{ID: "sia_t", Status: identity.SignInStatusComplete, SessionJWT: signed})
			return
		}
		existing, _ := provider.FindUserByEmail(r.Context(), r.FormValue("identifier"))
		if existing == nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"errors":[{"code":"form_identifier_not_found"}]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(identity.SignInAttempt{ID: "sia_1", Status: "needs_first_factor"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testApp struct {
	router   *gin.Engine
	provider *identity.MockProvider
	legacy   *service.LegacySessionStore
	frontend *httptest.Server
}

func newTestApp(t *testing.T, users ...domain.LegacyUser) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	m := metrics.New()

	provider := identity.NewMockProvider()
	frontend := hostedFrontend(t, provider)
	legacyRepo := &memLegacyRepo{users: users}
	attributes := &memAttributeRepo{byUser: map[string]string{"42": "legacy-gold"}}

	legacySessions, err := service.NewLegacySessionStore(testSessionKey, "legacy-session", false)
	if err != nil {
		t.Fatalf("legacy store: %v", err)
	}
	hostedSessions, err := service.NewHostedSessionValidator("", testHostedSecret, "__session")
	if err != nil {
		t.Fatalf("hosted validator: %v", err)
	}

	provisioner := service.NewProvisioner(logger, provider, legacyRepo, service.NewMemoryProvisionLock(), time.Second, m)
	migrationSvc := service.NewMigrationService(logger, provisioner, provider, m)
	sessionSvc := service.NewSessionService(legacySessions, hostedSessions)
	userSvc := service.NewUserService(logger, legacyRepo, attributes)
	bridge := identity.NewBridge(identity.NewFrontendClient(frontend.URL, frontend.Client()), hostedSessions)

	router := NewRouter(logger, m,
		NewMigrationMiddleware(logger, sessionSvc, migrationSvc, bridge, m, hostedSessions.CookieName(), false),
		NewPageHandler(logger, userSvc, frontend.URL),
		NewLegacyHandler(logger, userSvc, legacySessions, nil),
		NewProvisionHandler(logger, provisioner, service.NewMemoryAttemptLimiter(time.Minute, 10), m),
	)
	return &testApp{router: router, provider: provider, legacy: legacySessions, frontend: frontend}
}

func bcryptHash(t *testing.T, password string) *string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	s := string(hash)
	return &s
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected health ok with request id, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	app.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected metrics ok, got %d", w.Code)
	}
}

// Un usuario con sesion legada entra a "/" y sale con sesion hosted.
func TestRouter_LegacySessionMigratesOnNextRequest(t *testing.T) {
	app := newTestApp(t, domain.LegacyUser{ID: 42, Email: "a@x.com", PasswordHash: bcryptHash(t, "secret")})

	login := httptest.NewRequest(http.MethodPost, "/legacy/sign-in", bytes.NewBufferString(`{"email":"a@x.com","password":"secret"}`))
	login.Header.Set("Content-Type", "application/json")
	lw := httptest.NewRecorder()
	app.router.ServeHTTP(lw, login)
	if lw.Code != http.StatusOK {
		t.Fatalf("legacy login: %d %s", lw.Code, lw.Body.String())
	}

	home := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range lw.Result().Cookies() {
		home.AddCookie(c)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, home)

	if w.Code != http.StatusOK {
		t.Fatalf("expected migrated home, got %d %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["attribute"] != "legacy-gold" {
		t.Fatalf("expected attribute keyed by legacy id, got %v", body)
	}

	created := app.provider.Created()
	if len(created) != 1 || created[0].ExternalID != "42" {
		t.Fatalf("expected one hosted user linked to 42, got %+v", created)
	}
	var hostedCookie bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "__session" && c.Value != "" {
			hostedCookie = true
		}
	}
	if !hostedCookie {
		t.Fatalf("expected hosted session cookie after handoff")
	}
}

func TestRouter_LegacySessionForUnknownUserShowsDiagnostic(t *testing.T) {
	app := newTestApp(t)

	// Sesion legada valida de un usuario que ya no esta en el almacen.
	rec := httptest.NewRecorder()
	if err := app.legacy.Save(rec, httptest.NewRequest(http.MethodPost, "/", nil), "gone@x.com"); err != nil {
		t.Fatalf("save: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 diagnostic, got %d", w.Code)
	}
	if got := decodeBody(t, w)["diagnostic"]; got != service.ReasonUserMissing {
		t.Fatalf("expected %q, got %v", service.ReasonUserMissing, got)
	}
	if app.provider.UserCount() != 0 {
		t.Fatalf("expected zero writes")
	}
}

// Una sesion legada de un usuario borrado no debe impedir cerrarla.
func TestRouter_StaleLegacySessionCanSignOut(t *testing.T) {
	app := newTestApp(t)

	rec := httptest.NewRecorder()
	if err := app.legacy.Save(rec, httptest.NewRequest(http.MethodPost, "/", nil), "gone@x.com"); err != nil {
		t.Fatalf("save: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/legacy/sign-out", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	app.router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d %s", w.Code, w.Body.String())
	}
	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "legacy-session" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected legacy cookie cleared, got %v", w.Result().Cookies())
	}

	// El endpoint JIT tampoco depende de la sesion legada del que llama.
	prov := httptest.NewRequest(http.MethodPost, "/api/provision", strings.NewReader(`{"email":"identifier=gone%40x.com"}`))
	prov.Header.Set("Content-Type", "application/json")
	for _, c := range rec.Result().Cookies() {
		prov.AddCookie(c)
	}
	pw := httptest.NewRecorder()
	app.router.ServeHTTP(pw, prov)
	if body, _ := io.ReadAll(pw.Body); pw.Code != http.StatusOK || string(body) != `{"error":"not exist"}` {
		t.Fatalf("expected not exist from provision endpoint, got %d %s", pw.Code, body)
	}
}

// El cliente con el interceptor instalado aprovisiona contra el endpoint real
// y repite el sign-in una vez.
func TestRouter_InterceptorProvisionsThroughEndpoint(t *testing.T) {
	app := newTestApp(t, domain.LegacyUser{ID: 7, Email: "b@x.com"})
	api := httptest.NewServer(app.router)
	defer api.Close()

	frontend := identity.NewFrontendClient(app.frontend.URL, &http.Client{})
	restore := identity.InstallRetry(frontend.HTTPClient(), api.URL+"/api/provision", zap.NewNop())
	defer restore()

	attempt, err := frontend.StartSignIn(context.Background(), "b@x.com")
	if err != nil {
		t.Fatalf("expected sign in to succeed after provisioning, got %v", err)
	}
	if attempt.ID != "sia_1" {
		t.Fatalf("unexpected attempt: %+v", attempt)
	}
	user, _ := app.provider.FindUserByEmail(context.Background(), "b@x.com")
	if user == nil || user.ExternalID != "7" {
		t.Fatalf("expected provisioned user linked to 7, got %+v", user)
	}

	// Desconocido en ambos: vuelve el 422 original y no se crea nada.
	_, err = frontend.StartSignIn(context.Background(), "ghost@x.com")
	var se *identity.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected original 422, got %v", err)
	}
	if app.provider.UserCount() != 1 {
		t.Fatalf("expected no extra users, got %d", app.provider.UserCount())
	}
}

func TestRouter_ProvisionEndpointIsIdempotent(t *testing.T) {
	app := newTestApp(t, domain.LegacyUser{ID: 7, Email: "b@x.com"})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/provision", strings.NewReader(`{"email":"identifier=b%40x.com"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		app.router.ServeHTTP(w, req)
		body, _ := io.ReadAll(w.Body)
		if w.Code != http.StatusOK || string(body) != `{"succes":"user exists"}` {
			t.Fatalf("call %d: unexpected response %d %s", i, w.Code, body)
		}
	}
	if n := len(app.provider.Created()); n != 1 {
		t.Fatalf("expected a single create across calls, got %d", n)
	}
}
