package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"celulas/membership/internal/config"
	"celulas/membership/internal/metrics"
	"celulas/membership/internal/model"
	"celulas/membership/internal/repository"
)

// GenerateInput describes a code to mint. A zero TTL uses the configured default.
type GenerateInput struct {
	Role        model.Role
	Description string
	MaxUses     int
	TTL         time.Duration
	IssuerID    *uuid.UUID
	GroupID     *uuid.UUID
}

type InvitationService interface {
	Generate(ctx context.Context, in GenerateInput) (*model.InvitationCode, error)
	// Validate is advisory. It never consumes a slot and its answer may be
	// stale by the time Redeem runs.
	Validate(ctx context.Context, code string) (*ValidationResult, error)
	// Redeem consumes one slot of codeID for redeemerID. It is not idempotent
	// and is never retried internally.
	Redeem(ctx context.Context, codeID, redeemerID uuid.UUID) (*RedemptionResult, error)
	Get(ctx context.Context, codeID uuid.UUID) (*model.InvitationCode, error)
	List(ctx context.Context, onlyRedeemable bool) ([]model.InvitationCode, error)
	Deactivate(ctx context.Context, codeID uuid.UUID) error
	ListRedemptions(ctx context.Context, codeID uuid.UUID) ([]model.InvitationRedemption, error)
	// MarkUnprovisioned records that a redemption kept the fallback role.
	MarkUnprovisioned(ctx context.Context, redemptionID uuid.UUID) error
	Link(code string) string
	SendLink(ctx context.Context, codeID uuid.UUID, email string) error
}

type invitationService struct {
	codeRepo  repository.InvitationCodeRepository
	groupRepo repository.GroupRepository
	mailer    MailSender
	cfg       config.InviteConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewInvitationService wires the invitation subsystem. mailer may be nil.
func NewInvitationService(
	codeRepo repository.InvitationCodeRepository,
	groupRepo repository.GroupRepository,
	mailer MailSender,
	cfg config.InviteConfig,
	logger *zap.Logger,
) InvitationService {
	return &invitationService{
		codeRepo:  codeRepo,
		groupRepo: groupRepo,
		mailer:    mailer,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *invitationService) Generate(ctx context.Context, in GenerateInput) (*model.InvitationCode, error) {
	if !in.Role.Invitable() {
		return nil, ErrInvalidRole
	}
	if in.MaxUses < 1 || (s.cfg.MaxUsesLimit > 0 && in.MaxUses > s.cfg.MaxUsesLimit) {
		return nil, ErrInvalidMaxUses
	}
	ttl := in.TTL
	if ttl == 0 {
		ttl = s.cfg.DefaultTTL
	}
	if ttl <= 0 || (s.cfg.MaxTTL > 0 && ttl > s.cfg.MaxTTL) {
		return nil, ErrInvalidTTL
	}
	if in.GroupID != nil {
		if !in.Role.RequiresGroup() {
			return nil, ErrGroupNotAllowed
		}
		if _, err := s.groupRepo.GetByID(ctx, *in.GroupID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrGroupNotFound
			}
			return nil, fmt.Errorf("load group: %w", err)
		}
	}

	// The timestamp prefix makes collisions improbable; the unique index is
	// still the authority, so one collision earns exactly one retry.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		now := s.now()
		code, err := newInvitationCode(now)
		if err != nil {
			return nil, fmt.Errorf("generate invitation code: %w", err)
		}

		inv := &model.InvitationCode{
			Code:        code,
			Role:        in.Role,
			Description: strings.TrimSpace(in.Description),
			GroupID:     in.GroupID,
			MaxUses:     in.MaxUses,
			CurrentUses: 0,
			CreatedBy:   in.IssuerID,
			ExpiresAt:   now.Add(ttl),
			IsActive:    true,
		}
		err = s.codeRepo.Create(ctx, inv)
		if err == nil {
			metrics.InvitationCodesGenerated.WithLabelValues(string(inv.Role)).Inc()
			s.logger.Info("invitation code generated",
				zap.String("code_id", inv.ID.String()),
				zap.String("role", string(inv.Role)),
				zap.Int("max_uses", inv.MaxUses),
				zap.Time("expires_at", inv.ExpiresAt),
			)
			return inv, nil
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("create invitation code: %w", err)
		}
		s.logger.Warn("invitation code collision", zap.Int("attempt", attempt+1))
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrInvitationCodeCollision, lastErr)
}

func (s *invitationService) Validate(ctx context.Context, code string) (*ValidationResult, error) {
	result, err := s.validate(ctx, code)
	if err != nil {
		return nil, err
	}
	metrics.InvitationValidations.WithLabelValues(result.Reason.String()).Inc()
	return result, nil
}

func (s *invitationService) validate(ctx context.Context, code string) (*ValidationResult, error) {
	code = NormalizeCode(code)
	if code == "" {
		return &ValidationResult{Reason: ReasonNotFound}, nil
	}

	// Deactivated codes are filtered out by the lookup itself and therefore
	// reported as not found.
	inv, err := s.codeRepo.GetActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &ValidationResult{Reason: ReasonNotFound}, nil
		}
		return nil, fmt.Errorf("lookup invitation code: %w", err)
	}

	return &ValidationResult{Code: inv, Reason: s.reasonFor(inv)}, nil
}

func (s *invitationService) reasonFor(inv *model.InvitationCode) Reason {
	switch {
	case !inv.IsActive:
		return ReasonInactive
	case inv.Expired(s.now()):
		return ReasonExpired
	case inv.Exhausted():
		return ReasonExhausted
	default:
		return ReasonNone
	}
}

func (s *invitationService) Redeem(ctx context.Context, codeID, redeemerID uuid.UUID) (*RedemptionResult, error) {
	redemption, err := s.codeRepo.Redeem(ctx, codeID, redeemerID, s.now())
	if err != nil {
		metrics.InvitationRedemptions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("redeem invitation code: %w", err)
	}

	result := &RedemptionResult{CodeID: codeID}
	if redemption == nil {
		result.Reason = s.explainRefusal(ctx, codeID)
		metrics.InvitationRedemptions.WithLabelValues(result.Reason.String()).Inc()
		s.logger.Info("invitation redemption refused",
			zap.String("code_id", codeID.String()),
			zap.String("redeemer_id", redeemerID.String()),
			zap.String("reason", result.Reason.String()),
		)
		return result, nil
	}

	// The slot is already ours; this read only recovers the grant.
	inv, err := s.codeRepo.GetByID(ctx, codeID)
	if err != nil {
		metrics.InvitationRedemptions.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load redeemed invitation code: %w", err)
	}
	result.RedemptionID = redemption.ID
	result.Role = inv.Role
	result.GroupID = inv.GroupID

	metrics.InvitationRedemptions.WithLabelValues(result.Reason.String()).Inc()
	s.logger.Info("invitation code redeemed",
		zap.String("code_id", codeID.String()),
		zap.String("redeemer_id", redeemerID.String()),
		zap.String("role", string(inv.Role)),
		zap.Int("current_uses", inv.CurrentUses),
	)
	return result, nil
}

// explainRefusal labels a refused update after the fact. The label is
// diagnostic; a failed read degrades to ReasonNoLongerRedeemable.
func (s *invitationService) explainRefusal(ctx context.Context, codeID uuid.UUID) Reason {
	inv, err := s.codeRepo.GetByID(ctx, codeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ReasonNotFound
		}
		return ReasonNoLongerRedeemable
	}
	if reason := s.reasonFor(inv); reason != ReasonNone {
		return reason
	}
	return ReasonNoLongerRedeemable
}

func (s *invitationService) Get(ctx context.Context, codeID uuid.UUID) (*model.InvitationCode, error) {
	inv, err := s.codeRepo.GetByID(ctx, codeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvitationCodeNotFound
		}
		return nil, fmt.Errorf("load invitation code: %w", err)
	}
	return inv, nil
}

func (s *invitationService) List(ctx context.Context, onlyRedeemable bool) ([]model.InvitationCode, error) {
	filter := repository.InvitationCodeFilter{}
	if onlyRedeemable {
		now := s.now()
		filter.RedeemableAt = &now
	}
	return s.codeRepo.List(ctx, filter)
}

func (s *invitationService) Deactivate(ctx context.Context, codeID uuid.UUID) error {
	if err := s.codeRepo.Deactivate(ctx, codeID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvitationCodeNotFound
		}
		return fmt.Errorf("deactivate invitation code: %w", err)
	}
	s.logger.Info("invitation code deactivated", zap.String("code_id", codeID.String()))
	return nil
}

func (s *invitationService) ListRedemptions(ctx context.Context, codeID uuid.UUID) ([]model.InvitationRedemption, error) {
	if _, err := s.Get(ctx, codeID); err != nil {
		return nil, err
	}
	return s.codeRepo.ListRedemptions(ctx, codeID)
}

func (s *invitationService) MarkUnprovisioned(ctx context.Context, redemptionID uuid.UUID) error {
	if err := s.codeRepo.MarkUnprovisioned(ctx, redemptionID); err != nil {
		return fmt.Errorf("mark redemption unprovisioned: %w", err)
	}
	return nil
}

// Link formats the shareable redemption URL, e.g. https://app/registro?code=ABC.
func (s *invitationService) Link(code string) string {
	origin := strings.TrimRight(s.cfg.LinkOrigin, "/")
	path := s.cfg.LinkPath
	if path == "" {
		path = "/registro"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return origin + path + "?" + url.Values{"code": {code}}.Encode()
}

func (s *invitationService) SendLink(ctx context.Context, codeID uuid.UUID, email string) error {
	if s.mailer == nil {
		return ErrMailerNotConfigured
	}
	inv, err := s.Get(ctx, codeID)
	if err != nil {
		return err
	}
	if !inv.Redeemable(s.now()) {
		return ErrInvitationUnavailable
	}

	body := fmt.Sprintf(
		"You have been invited to join as %s.\n\n%s\n\nThis link expires on %s.\n",
		roleLabel(inv.Role), s.Link(inv.Code), inv.ExpiresAt.Format(time.RFC1123),
	)
	if inv.Description != "" {
		body = inv.Description + "\n\n" + body
	}
	if err := s.mailer.Send(ctx, email, "Your invitation", body); err != nil {
		return fmt.Errorf("send invitation link: %w", err)
	}
	return nil
}

func roleLabel(role model.Role) string {
	switch role {
	case model.RoleCoLeader:
		return "co-leader"
	default:
		return string(role)
	}
}

var _ InvitationService = (*invitationService)(nil)
