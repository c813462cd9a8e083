package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"idmigrate/internal/domain"
)

// MockProvider es un directorio en memoria con unicidad por email.
// Permite tests y ejecuciones locales sin el proveedor real.
type MockProvider struct {
	mu      sync.Mutex
	users   map[string]domain.HostedUser
	byEmail map[string]string
	tokens  map[string]string
	created []CreateUserParams

	CreateErr   error
	FindErr     error
	TokenErr    error
	EmptyTokens bool
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		users:   make(map[string]domain.HostedUser),
		byEmail: make(map[string]string),
		tokens:  make(map[string]string),
	}
}

func (m *MockProvider) FindUserByEmail(_ context.Context, email string) (*domain.HostedUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	id, ok := m.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	u := m.users[id]
	return &u, nil
}

func (m *MockProvider) CreateUser(_ context.Context, params CreateUserParams) (domain.HostedUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return domain.HostedUser{}, m.CreateErr
	}
	email := domain.NormalizeEmail(params.Email)
	if _, exists := m.byEmail[email]; exists {
		return domain.HostedUser{}, ErrUserExists
	}
	u := domain.HostedUser{
		ID:             "user_" + uuid.NewString(),
		EmailAddresses: []string{email},
		ExternalID:     params.ExternalID,
	}
	m.users[u.ID] = u
	m.byEmail[email] = u.ID
	m.created = append(m.created, params)
	return u, nil
}

func (m *MockProvider) CreateSignInToken(_ context.Context, hostedUserID string) (domain.SignInToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TokenErr != nil {
		return domain.SignInToken{}, m.TokenErr
	}
	if m.EmptyTokens {
		return domain.SignInToken{}, ErrTokenMissing
	}
	token := "sit_" + uuid.NewString()
	m.tokens[token] = hostedUserID
	return domain.SignInToken{Token: token, SubjectHostedUserID: hostedUserID}, nil
}

// AddUser siembra el directorio, como una importacion previa.
func (m *MockProvider) AddUser(u domain.HostedUser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	for _, e := range u.EmailAddresses {
		m.byEmail[domain.NormalizeEmail(e)] = u.ID
	}
}

// ConsumeToken canjea un ticket una sola vez.
func (m *MockProvider) ConsumeToken(token string) (domain.HostedUser, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tokens[token]
	if !ok {
		return domain.HostedUser{}, false
	}
	delete(m.tokens, token)
	u, ok := m.users[id]
	return u, ok
}

// Created devuelve una copia de las llamadas de creacion recibidas.
func (m *MockProvider) Created() []CreateUserParams {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CreateUserParams, len(m.created))
	copy(out, m.created)
	return out
}

func (m *MockProvider) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}
