package service

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"idmigrate/internal/domain"
)

var (
	ErrHostedSessionInvalid = errors.New("hosted session invalid")
	ErrHostedSessionExpired = errors.New("hosted session expired")
	ErrHostedKeyMissing     = errors.New("hosted session key not configured")
)

// HostedClaims son los claims del JWT de sesion del proveedor hosted.
type HostedClaims struct {
	ExternalID string `json:"external_id,omitempty"`
	jwt.RegisteredClaims
}

// HostedSessionValidator valida el JWT de sesion hosted (RS256 con la clave
// publica del proveedor, o HS256 con secreto compartido en entornos locales).
type HostedSessionValidator struct {
	key        any
	method     jwt.SigningMethod
	cookieName string
}

func NewHostedSessionValidator(publicKeyPEM, secret, cookieName string) (*HostedSessionValidator, error) {
	if cookieName == "" {
		cookieName = "__session"
	}
	v := &HostedSessionValidator{cookieName: cookieName}
	switch {
	case strings.TrimSpace(publicKeyPEM) != "":
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, err
		}
		v.key = key
		v.method = jwt.SigningMethodRS256
	case secret != "":
		v.key = []byte(secret)
		v.method = jwt.SigningMethodHS256
	default:
		return nil, ErrHostedKeyMissing
	}
	return v, nil
}

func (v *HostedSessionValidator) CookieName() string {
	return v.cookieName
}

// Verify implementa identity.SessionVerifier.
func (v *HostedSessionValidator) Verify(token string) (*domain.HostedSession, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrHostedSessionInvalid
	}
	var claims HostedClaims
	parser := jwt.NewParser(jwt.WithValidMethods([]string{v.method.Alg()}), jwt.WithExpirationRequired())
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrHostedSessionExpired
		}
		return nil, ErrHostedSessionInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrHostedSessionInvalid
	}
	return &domain.HostedSession{
		UserID:     claims.Subject,
		ExternalID: claims.ExternalID,
	}, nil
}

// FromRequest lee la sesion de la cookie o del header Authorization.
func (v *HostedSessionValidator) FromRequest(r *http.Request) *domain.HostedSession {
	token := ""
	if cookie, err := r.Cookie(v.cookieName); err == nil {
		token = cookie.Value
	}
	if token == "" {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(header) > len("bearer ") && strings.EqualFold(header[:len("bearer ")], "bearer ") {
			token = strings.TrimSpace(header[len("bearer "):])
		}
	}
	if token == "" {
		return nil
	}
	session, err := v.Verify(token)
	if err != nil {
		return nil
	}
	return session
}
