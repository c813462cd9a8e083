package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"idmigrate/internal/domain"
)

const SignInStatusComplete = "complete"

var (
	ErrSignInIncomplete = errors.New("sign in not complete")
	ErrHandoffMismatch  = errors.New("handoff session subject mismatch")
)

// StatusError es una respuesta no exitosa de la API de frontend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("frontend api error: status=%d", e.StatusCode)
}

// SignInAttempt es el estado de un intento de sign-in en el proveedor hosted.
type SignInAttempt struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	CreatedSessionID string `json:"created_session_id,omitempty"`
	SessionJWT       string `json:"session_jwt,omitempty"`
}

// FrontendClient llama a la API publica de sign-in del proveedor hosted.
// Toda llamada pasa por el *http.Client expuesto, donde se instala el interceptor.
type FrontendClient struct {
	baseURL string
	client  *http.Client
}

func NewFrontendClient(baseURL string, httpClient *http.Client) *FrontendClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &FrontendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

func (c *FrontendClient) HTTPClient() *http.Client {
	return c.client
}

// StartSignIn identifica al usuario. El cuerpo es un unico par identifier=<email>.
func (c *FrontendClient) StartSignIn(ctx context.Context, email string) (SignInAttempt, error) {
	form := url.Values{"identifier": {email}}
	return c.postForm(ctx, "/v1/client/sign_ins", form)
}

func (c *FrontendClient) AttemptPassword(ctx context.Context, attemptID, password string) (SignInAttempt, error) {
	form := url.Values{"strategy": {"password"}, "password": {password}}
	return c.postForm(ctx, "/v1/client/sign_ins/"+url.PathEscape(attemptID)+"/attempt_first_factor", form)
}

func (c *FrontendClient) SignInWithTicket(ctx context.Context, ticket string) (SignInAttempt, error) {
	form := url.Values{"strategy": {"ticket"}, "ticket": {ticket}}
	return c.postForm(ctx, "/v1/client/sign_ins", form)
}

func (c *FrontendClient) postForm(ctx context.Context, path string, form url.Values) (SignInAttempt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return SignInAttempt{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return SignInAttempt{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return SignInAttempt{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return SignInAttempt{}, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var attempt SignInAttempt
	if err := json.Unmarshal(respBody, &attempt); err != nil {
		return SignInAttempt{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return attempt, nil
}

// SessionVerifier valida el JWT de sesion hosted.
type SessionVerifier interface {
	Verify(token string) (*domain.HostedSession, error)
}

// Handoff es el resultado de canjear un SignInToken.
type Handoff struct {
	Session    domain.HostedSession
	SessionJWT string
}

// Bridge completa el sign-in hosted a partir de un ticket, sin interaccion del usuario.
type Bridge struct {
	frontend *FrontendClient
	verifier SessionVerifier
}

func NewBridge(frontend *FrontendClient, verifier SessionVerifier) *Bridge {
	return &Bridge{frontend: frontend, verifier: verifier}
}

func (b *Bridge) Complete(ctx context.Context, token domain.SignInToken) (Handoff, error) {
	if b == nil || b.frontend == nil || b.verifier == nil {
		return Handoff{}, errors.New("handoff bridge not configured")
	}
	if token.Token == "" {
		return Handoff{}, ErrTokenMissing
	}

	attempt, err := b.frontend.SignInWithTicket(ctx, token.Token)
	if err != nil {
		return Handoff{}, fmt.Errorf("ticket sign in: %w", err)
	}
	if attempt.Status != SignInStatusComplete || attempt.SessionJWT == "" {
		return Handoff{}, ErrSignInIncomplete
	}

	session, err := b.verifier.Verify(attempt.SessionJWT)
	if err != nil {
		return Handoff{}, fmt.Errorf("verify session: %w", err)
	}
	if token.SubjectHostedUserID != "" && session.UserID != token.SubjectHostedUserID {
		return Handoff{}, ErrHandoffMismatch
	}
	return Handoff{Session: *session, SessionJWT: attempt.SessionJWT}, nil
}
