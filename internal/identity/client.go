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

	"golang.org/x/crypto/bcrypt"

	"idmigrate/internal/domain"
)

// Provider define las operaciones contra el directorio del proveedor hosted.
type Provider interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.HostedUser, error)
	CreateUser(ctx context.Context, params CreateUserParams) (domain.HostedUser, error)
	CreateSignInToken(ctx context.Context, hostedUserID string) (domain.SignInToken, error)
}

// CreateUserParams describe un usuario a crear a partir de un LegacyUser.
// PasswordHash es el material legado tal cual; nunca texto plano.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	ExternalID   string
}

var (
	ErrTokenMissing = errors.New("sign in token missing in response")
	ErrUserExists   = errors.New("hosted user already exists")
)

// APIError es un error HTTP devuelto por la API administrativa.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("hosted api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("hosted api error: status=%d", e.StatusCode)
}

// HTTPClient implementa Provider usando la API administrativa del proveedor.
type HTTPClient struct {
	baseURL  string
	secret   string
	tokenTTL time.Duration
	client   *http.Client
}

// NewHTTPClient construye un cliente autenticado con el secreto bearer del proveedor.
func NewHTTPClient(baseURL, secret string, tokenTTL time.Duration, httpClient *http.Client) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.clerk.com/v1"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		secret:   secret,
		tokenTTL: tokenTTL,
		client:   httpClient,
	}
}

func (c *HTTPClient) FindUserByEmail(ctx context.Context, email string) (*domain.HostedUser, error) {
	q := url.Values{}
	q.Add("email_address", email)
	q.Set("limit", "1")

	var users []apiUser
	if err := c.do(ctx, http.MethodGet, "/users?"+q.Encode(), nil, &users); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	u := users[0].toDomain()
	return &u, nil
}

func (c *HTTPClient) CreateUser(ctx context.Context, params CreateUserParams) (domain.HostedUser, error) {
	reqBody := createUserRequest{
		EmailAddress:       []string{params.Email},
		SkipPasswordChecks: true,
		ExternalID:         params.ExternalID,
	}
	applyCredential(&reqBody, params.PasswordHash)

	var created apiUser
	if err := c.do(ctx, http.MethodPost, "/users", reqBody, &created); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && isDuplicate(apiErr) {
			return domain.HostedUser{}, fmt.Errorf("create user: %w: %w", ErrUserExists, err)
		}
		return domain.HostedUser{}, fmt.Errorf("create user: %w", err)
	}
	return created.toDomain(), nil
}

func (c *HTTPClient) CreateSignInToken(ctx context.Context, hostedUserID string) (domain.SignInToken, error) {
	reqBody := signInTokenRequest{UserID: hostedUserID}
	if c.tokenTTL > 0 {
		reqBody.ExpiresInSeconds = int64(c.tokenTTL.Seconds())
	}

	var resp signInTokenResponse
	if err := c.do(ctx, http.MethodPost, "/sign_in_tokens", reqBody, &resp); err != nil {
		return domain.SignInToken{}, fmt.Errorf("create sign in token: %w", err)
	}
	if resp.Token == "" {
		return domain.SignInToken{}, ErrTokenMissing
	}
	return domain.SignInToken{Token: resp.Token, SubjectHostedUserID: hostedUserID}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		bodyBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var er apiErrorResponse
		if json.Unmarshal(respBody, &er) == nil && len(er.Errors) > 0 {
			apiErr.Code = er.Errors[0].Code
			apiErr.Message = er.Errors[0].Message
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// applyCredential pasa el hash legado sin tocarlo. Los hashes bcrypt viajan como
// digest para que el proveedor los verifique; cualquier otro material va como password.
func applyCredential(req *createUserRequest, hash string) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return
	}
	if _, err := bcrypt.Cost([]byte(hash)); err == nil {
		req.PasswordDigest = hash
		req.PasswordHasher = "bcrypt"
		return
	}
	req.Password = hash
}

func isDuplicate(err *APIError) bool {
	if err.StatusCode == http.StatusConflict {
		return true
	}
	return err.StatusCode == http.StatusUnprocessableEntity && err.Code == "form_identifier_exists"
}

type apiUser struct {
	ID             string  `json:"id"`
	ExternalID     *string `json:"external_id"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

func (u apiUser) toDomain() domain.HostedUser {
	out := domain.HostedUser{ID: u.ID}
	if u.ExternalID != nil {
		out.ExternalID = *u.ExternalID
	}
	for _, e := range u.EmailAddresses {
		out.EmailAddresses = append(out.EmailAddresses, e.EmailAddress)
	}
	return out
}

type createUserRequest struct {
	EmailAddress       []string `json:"email_address"`
	Password           string   `json:"password,omitempty"`
	PasswordDigest     string   `json:"password_digest,omitempty"`
	PasswordHasher     string   `json:"password_hasher,omitempty"`
	SkipPasswordChecks bool     `json:"skip_password_checks"`
	ExternalID         string   `json:"external_id"`
}

type signInTokenRequest struct {
	UserID           string `json:"user_id"`
	ExpiresInSeconds int64  `json:"expires_in_seconds,omitempty"`
}

type signInTokenResponse struct {
	Token string `json:"token"`
}

type apiErrorResponse struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}
