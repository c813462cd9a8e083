package domain

import "strconv"

// LegacyUser es el registro del almacen de credenciales previo. Solo lectura.
type LegacyUser struct {
	ID           int64   `json:"id"`
	Email        string  `json:"email"`
	PasswordHash *string `json:"-"`
}

// ExternalID devuelve el id legado tal como se guarda en el proveedor hosted.
func (u LegacyUser) ExternalID() string {
	return strconv.FormatInt(u.ID, 10)
}

// HostedUser es el usuario del proveedor de identidad hosted.
type HostedUser struct {
	ID             string   `json:"id"`
	EmailAddresses []string `json:"email_addresses"`
	ExternalID     string   `json:"external_id,omitempty"`
}

// HasEmail indica si el usuario tiene la direccion dada (sin distinguir mayusculas).
func (u HostedUser) HasEmail(email string) bool {
	for _, addr := range u.EmailAddresses {
		if NormalizeEmail(addr) == NormalizeEmail(email) {
			return true
		}
	}
	return false
}

type UserAttribute struct {
	UserID    string `json:"user_id"`
	Attribute string `json:"attribute"`
}

// SignInToken es un ticket de un solo uso emitido por el proveedor hosted.
type SignInToken struct {
	Token               string `json:"token"`
	SubjectHostedUserID string `json:"-"`
}
