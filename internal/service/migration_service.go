package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"idmigrate/internal/domain"
	"idmigrate/internal/identity"
	"idmigrate/internal/metrics"
)

type Outcome string

const (
	OutcomePassthrough         Outcome = "passthrough"
	OutcomeProvisionAndHandoff Outcome = "provision_and_handoff"
	OutcomeError               Outcome = "error"
)

// Motivos estables de OutcomeError; se muestran al usuario como diagnostico.
const (
	ReasonUserMissing   = "user missing in both stores"
	ReasonTokenIssuance = "token issuance failed"
	ReasonProvisioning  = "provisioning failed"
	ReasonLookup        = "user lookup failed"
	ReasonProvisionBusy = "provisioning in progress"
	ReasonNotConfigured = "migration not configured"
)

// Decision es el resultado del motor para una request.
type Decision struct {
	Outcome    Outcome
	Token      domain.SignInToken
	HostedUser domain.HostedUser
	Created    bool
	Reason     string
}

// MigrationService decide si una request pasa, se migra o se rechaza.
type MigrationService struct {
	logger      *zap.Logger
	provisioner *Provisioner
	provider    identity.Provider
	metrics     *metrics.Metrics
}

func NewMigrationService(logger *zap.Logger, provisioner *Provisioner, provider identity.Provider, m *metrics.Metrics) *MigrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MigrationService{
		logger:      logger,
		provisioner: provisioner,
		provider:    provider,
		metrics:     m,
	}
}

// Decide nunca devuelve error: toda falla se traduce en OutcomeError con motivo.
func (s *MigrationService) Decide(ctx context.Context, sc domain.DualSessionContext) Decision {
	d := s.decide(ctx, sc)
	s.metrics.ObserveDecision(string(d.Outcome), d.Reason)
	return d
}

func (s *MigrationService) decide(ctx context.Context, sc domain.DualSessionContext) Decision {
	if sc.HasHosted() {
		return Decision{Outcome: OutcomePassthrough}
	}
	if !sc.HasLegacy() {
		return Decision{Outcome: OutcomePassthrough}
	}
	if s.provisioner == nil || s.provider == nil {
		return errorDecision(ReasonNotConfigured)
	}

	email := sc.Legacy.Email
	result, err := s.provisioner.EnsureHostedUser(ctx, email)
	if err != nil {
		reason := reasonFor(err)
		s.logger.Warn("migration rejected", zap.Error(err), zap.String("email", email), zap.String("reason", reason))
		return errorDecision(reason)
	}

	token, err := s.provider.CreateSignInToken(ctx, result.User.ID)
	if err != nil || token.Token == "" {
		s.logger.Warn("sign in token issuance failed", zap.Error(err), zap.String("hosted_user_id", result.User.ID))
		return errorDecision(ReasonTokenIssuance)
	}
	if token.SubjectHostedUserID == "" {
		token.SubjectHostedUserID = result.User.ID
	}

	s.logger.Info("migration handoff issued",
		zap.String("hosted_user_id", result.User.ID),
		zap.Bool("created", result.Created),
	)
	return Decision{
		Outcome:    OutcomeProvisionAndHandoff,
		Token:      token,
		HostedUser: result.User,
		Created:    result.Created,
	}
}

func errorDecision(reason string) Decision {
	return Decision{Outcome: OutcomeError, Reason: reason}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrLegacyUserNotFound), errors.Is(err, ErrInvalidEmail):
		return ReasonUserMissing
	case errors.Is(err, ErrProvisionInFlight):
		return ReasonProvisionBusy
	case errors.Is(err, ErrLookupFailed):
		return ReasonLookup
	default:
		return ReasonProvisioning
	}
}
