package domain

import "strings"

// LegacySession es la sesion de cookie del almacen previo.
type LegacySession struct {
	Email string `json:"email"`
}

// HostedSession es la sesion emitida por el proveedor hosted.
type HostedSession struct {
	UserID     string `json:"user_id"`
	ExternalID string `json:"external_id,omitempty"`
}

// AttributeKey resuelve la clave de atributos: el id legado si el usuario fue
// migrado, o el id hosted para usuarios nativos.
func (s HostedSession) AttributeKey() string {
	if s.ExternalID != "" {
		return s.ExternalID
	}
	return s.UserID
}

// DualSessionContext se construye en cada request y nunca se cachea.
type DualSessionContext struct {
	Legacy *LegacySession
	Hosted *HostedSession
}

func (c DualSessionContext) HasLegacy() bool {
	return c.Legacy != nil && strings.TrimSpace(c.Legacy.Email) != ""
}

func (c DualSessionContext) HasHosted() bool {
	return c.Hosted != nil && c.Hosted.UserID != ""
}

// NormalizeEmail aplica la misma normalizacion en ambos almacenes.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
