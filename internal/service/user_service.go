package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"idmigrate/internal/domain"
	"idmigrate/internal/repository"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAttributeNotFound  = errors.New("attribute not found")
)

// UserService cubre las operaciones de lectura del almacen legado.
type UserService struct {
	logger     *zap.Logger
	users      repository.LegacyUserRepository
	attributes repository.UserAttributeRepository
}

func NewUserService(logger *zap.Logger, users repository.LegacyUserRepository, attributes repository.UserAttributeRepository) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		logger:     logger,
		users:      users,
		attributes: attributes,
	}
}

// Authenticate valida email/password contra el hash bcrypt legado.
func (s *UserService) Authenticate(ctx context.Context, emailAddr, password string) (domain.LegacyUser, error) {
	if s.users == nil {
		return domain.LegacyUser{}, errors.New("user service not configured")
	}

	emailAddr = domain.NormalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.LegacyUser{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LegacyUser{}, ErrInvalidCredentials
		}
		return domain.LegacyUser{}, err
	}
	if user.PasswordHash == nil || *user.PasswordHash == "" {
		return domain.LegacyUser{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return domain.LegacyUser{}, ErrInvalidCredentials
	}
	return user, nil
}

// AttributeFor resuelve el atributo con la clave de la sesion hosted, que es el
// id legado para usuarios migrados.
func (s *UserService) AttributeFor(ctx context.Context, session domain.HostedSession) (domain.UserAttribute, error) {
	if s.attributes == nil {
		return domain.UserAttribute{}, errors.New("user service not configured")
	}
	key := session.AttributeKey()
	if key == "" {
		return domain.UserAttribute{}, ErrAttributeNotFound
	}
	attr, err := s.attributes.GetByUserID(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserAttribute{}, ErrAttributeNotFound
		}
		return domain.UserAttribute{}, err
	}
	return attr, nil
}
