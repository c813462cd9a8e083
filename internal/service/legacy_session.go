package service

import (
	"errors"
	"net/http"

	"github.com/gorilla/sessions"

	"idmigrate/internal/domain"
)

const legacyEmailKey = "email"

// LegacySessionStore envuelve la cookie de sesion firmada del sistema previo.
type LegacySessionStore struct {
	store *sessions.CookieStore
	name  string
}

func NewLegacySessionStore(sessionKey, name string, secure bool) (*LegacySessionStore, error) {
	if len(sessionKey) < 32 {
		return nil, errors.New("session key must be at least 32 characters long")
	}
	if name == "" {
		name = "legacy-session"
	}
	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options.HttpOnly = true
	store.Options.Path = "/"
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	return &LegacySessionStore{store: store, name: name}, nil
}

// Load devuelve nil si no hay sesion legada valida.
func (s *LegacySessionStore) Load(r *http.Request) *domain.LegacySession {
	session, err := s.store.Get(r, s.name)
	if err != nil || session.IsNew {
		return nil
	}
	email, ok := session.Values[legacyEmailKey].(string)
	if !ok || domain.NormalizeEmail(email) == "" {
		return nil
	}
	return &domain.LegacySession{Email: email}
}

func (s *LegacySessionStore) Save(w http.ResponseWriter, r *http.Request, email string) error {
	session, _ := s.store.Get(r, s.name)
	session.Values[legacyEmailKey] = email
	return session.Save(r, w)
}

func (s *LegacySessionStore) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, s.name)
	delete(session.Values, legacyEmailKey)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
