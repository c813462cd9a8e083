package service

import (
	"net/http"

	"idmigrate/internal/domain"
)

// SessionService arma el DualSessionContext consultando ambos proveedores.
type SessionService struct {
	legacy *LegacySessionStore
	hosted *HostedSessionValidator
}

func NewSessionService(legacy *LegacySessionStore, hosted *HostedSessionValidator) *SessionService {
	return &SessionService{legacy: legacy, hosted: hosted}
}

// Build se llama una vez por request; el resultado no se guarda entre requests.
func (s *SessionService) Build(r *http.Request) domain.DualSessionContext {
	var sc domain.DualSessionContext
	if s.legacy != nil {
		sc.Legacy = s.legacy.Load(r)
	}
	if s.hosted != nil {
		sc.Hosted = s.hosted.FromRequest(r)
	}
	return sc
}
