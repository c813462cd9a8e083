package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"idmigrate/internal/domain"
	"idmigrate/internal/identity"
	"idmigrate/internal/metrics"
	"idmigrate/internal/repository"
)

var (
	ErrInvalidEmail       = errors.New("invalid email")
	ErrLegacyUserNotFound = errors.New("legacy user not found")
	ErrLookupFailed       = errors.New("user lookup failed")
	ErrProvisionInFlight  = errors.New("provisioning already in progress")
	ErrProvisioningFailed = errors.New("hosted user provisioning failed")
)

const defaultLockTTL = 15 * time.Second

// ProvisionResult describe el usuario hosted resultante y si fue creado ahora.
type ProvisionResult struct {
	User    domain.HostedUser
	Created bool
}

// Provisioner es el unico punto que crea usuarios en el proveedor hosted.
// Busca primero en el directorio, de modo que repetir la llamada no duplica usuarios.
type Provisioner struct {
	logger   *zap.Logger
	provider identity.Provider
	legacy   repository.LegacyUserRepository
	lock     ProvisionLock
	lockTTL  time.Duration
	metrics  *metrics.Metrics
	group    singleflight.Group
}

func NewProvisioner(
	logger *zap.Logger,
	provider identity.Provider,
	legacy repository.LegacyUserRepository,
	lock ProvisionLock,
	lockTTL time.Duration,
	m *metrics.Metrics,
) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lock == nil {
		lock = NewMemoryProvisionLock()
	}
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Provisioner{
		logger:   logger,
		provider: provider,
		legacy:   legacy,
		lock:     lock,
		lockTTL:  lockTTL,
		metrics:  m,
	}
}

// EnsureHostedUser devuelve el usuario hosted del email, creandolo desde el
// registro legado si hace falta. Las llamadas concurrentes del mismo proceso
// para un mismo email comparten una sola ejecucion.
func (p *Provisioner) EnsureHostedUser(ctx context.Context, email string) (ProvisionResult, error) {
	if p == nil || p.provider == nil || p.legacy == nil {
		return ProvisionResult{}, errors.New("provisioner not configured")
	}
	email = domain.NormalizeEmail(email)
	if email == "" {
		return ProvisionResult{}, ErrInvalidEmail
	}

	// La ejecucion compartida no depende de la cancelacion de quien llego primero.
	shared := context.WithoutCancel(ctx)
	v, err, _ := p.group.Do(email, func() (any, error) {
		return p.ensure(shared, email)
	})
	if err != nil {
		return ProvisionResult{}, err
	}
	return v.(ProvisionResult), nil
}

func (p *Provisioner) ensure(ctx context.Context, email string) (ProvisionResult, error) {
	existing, err := p.provider.FindUserByEmail(ctx, email)
	if err != nil {
		return ProvisionResult{}, fmt.Errorf("%w: hosted: %w", ErrLookupFailed, err)
	}
	if existing != nil {
		p.metrics.ObserveProvision("existing")
		return ProvisionResult{User: *existing}, nil
	}

	legacyUser, err := p.legacy.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			p.metrics.ObserveProvision("legacy_missing")
			return ProvisionResult{}, ErrLegacyUserNotFound
		}
		return ProvisionResult{}, fmt.Errorf("%w: legacy: %w", ErrLookupFailed, err)
	}

	token, acquired, err := p.lock.Acquire(ctx, email, p.lockTTL)
	if err != nil {
		// Sin lock se sigue: la unicidad de email del proveedor sigue vigente.
		p.logger.Warn("provision lock unavailable", zap.Error(err), zap.String("email", email))
	} else if !acquired {
		p.metrics.ObserveProvision("in_flight")
		return ProvisionResult{}, ErrProvisionInFlight
	} else {
		defer func() {
			if err := p.lock.Release(ctx, email, token); err != nil {
				p.logger.Warn("provision lock release failed", zap.Error(err), zap.String("email", email))
			}
		}()
		// Otra instancia pudo terminar entre la busqueda y el lock.
		existing, err = p.provider.FindUserByEmail(ctx, email)
		if err != nil {
			return ProvisionResult{}, fmt.Errorf("%w: hosted: %w", ErrLookupFailed, err)
		}
		if existing != nil {
			p.metrics.ObserveProvision("existing")
			return ProvisionResult{User: *existing}, nil
		}
	}

	params := identity.CreateUserParams{
		Email:      legacyUser.Email,
		ExternalID: legacyUser.ExternalID(),
	}
	if legacyUser.PasswordHash != nil {
		params.PasswordHash = *legacyUser.PasswordHash
	}

	created, err := p.provider.CreateUser(ctx, params)
	if err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			if again, findErr := p.provider.FindUserByEmail(ctx, email); findErr == nil && again != nil {
				p.metrics.ObserveProvision("existing")
				return ProvisionResult{User: *again}, nil
			}
		}
		p.metrics.ObserveProvision("failed")
		p.logger.Error("create hosted user failed", zap.Error(err), zap.String("email", email))
		return ProvisionResult{}, fmt.Errorf("%w: %w", ErrProvisioningFailed, err)
	}

	p.metrics.ObserveProvision("created")
	p.logger.Info("hosted user provisioned",
		zap.String("email", email),
		zap.String("hosted_user_id", created.ID),
		zap.String("external_id", created.ExternalID),
	)
	return ProvisionResult{User: created, Created: true}, nil
}
