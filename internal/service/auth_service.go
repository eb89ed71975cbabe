package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"celulas/membership/internal/metrics"
	"celulas/membership/internal/model"
	"celulas/membership/internal/repository"
	"celulas/membership/pkg/crypto"
	jwtpkg "celulas/membership/pkg/jwt"
)

const (
	minPasswordLength = 8
	refreshKeyPrefix  = "refresh:"

	// DegradedRoleWarning is shown when an account exists but its invited
	// role could not be applied.
	DegradedRoleWarning = "account created, but the requested role could not be applied; contact an administrator"
)

// TokenSet represents a set of tokens returned after authentication.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Session is the authenticated view of the current user.
type Session struct {
	User *model.User `json:"user"`
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	InviteCode  string
}

// Grant is the outcome of redeeming a code for an account. Degraded means the
// slot was consumed but the profile kept its fallback role.
type Grant struct {
	Role     model.Role `json:"role"`
	Degraded bool       `json:"degraded"`
	Warning  string     `json:"warning,omitempty"`
}

type RegisterResult struct {
	User   *model.User `json:"user"`
	Tokens *TokenSet   `json:"tokens"`
	Grant  *Grant      `json:"grant,omitempty"`
}

type AuthService interface {
	// CreateAccount is the identity-provider boundary: it stores credentials
	// and a profile with the fallback role.
	CreateAccount(ctx context.Context, email, password, displayName string) (*model.User, error)
	// Register signs a visitor up, redeeming InviteCode when given. When the
	// account is created but the code is refused, the result is returned
	// alongside ErrInvitationUnavailable so the client can keep the session.
	Register(ctx context.Context, in RegisterInput) (*RegisterResult, error)
	// RedeemForUser lets an existing account redeem a code, e.g. after an
	// abandoned signup.
	RedeemForUser(ctx context.Context, userID uuid.UUID, code string) (*Grant, error)
	Login(ctx context.Context, email, password string) (*TokenSet, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error)
	Logout(ctx context.Context, refreshToken string) error
	// GetSession returns nil, nil when accessToken is not a live session.
	GetSession(ctx context.Context, accessToken string) (*Session, error)
}

type authService struct {
	userRepo      repository.UserRepository
	identityRepo  repository.IdentityRepository
	invitations   InvitationService
	provisioner   Provisioner
	stateStore    repository.StateStore
	jwtManager    *jwtpkg.Manager
	inviteEnabled bool
	logger        *zap.Logger
}

func NewAuthService(
	userRepo repository.UserRepository,
	identityRepo repository.IdentityRepository,
	invitations InvitationService,
	provisioner Provisioner,
	stateStore repository.StateStore,
	jwtManager *jwtpkg.Manager,
	inviteEnabled bool,
	logger *zap.Logger,
) AuthService {
	return &authService{
		userRepo:      userRepo,
		identityRepo:  identityRepo,
		invitations:   invitations,
		provisioner:   provisioner,
		stateStore:    stateStore,
		jwtManager:    jwtManager,
		inviteEnabled: inviteEnabled,
		logger:        logger,
	}
}

func (s *authService) CreateAccount(ctx context.Context, email, password, displayName string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Email:       email,
		DisplayName: strings.TrimSpace(displayName),
		Role:        model.RoleMember,
		Status:      model.UserStatusActive,
	}
	identity := &model.UserIdentity{
		IdentityType:   model.IdentityTypePassword,
		Identifier:     email,
		CredentialData: model.CredentialData{"password_hash": hash},
	}
	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrIdentityAlreadyExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return user, nil
}

func (s *authService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	code := NormalizeCode(in.InviteCode)
	if s.inviteEnabled && code == "" {
		return nil, ErrInviteCodeRequired
	}

	// Early feedback only; the redemption below re-checks atomically.
	var validation *ValidationResult
	if code != "" {
		var err error
		validation, err = s.invitations.Validate(ctx, code)
		if err != nil {
			return nil, err
		}
		if !validation.Valid() {
			return nil, validation.Reason.Err()
		}
	}

	user, err := s.CreateAccount(ctx, in.Email, in.Password, in.DisplayName)
	if err != nil {
		return nil, err
	}
	s.logger.Info("account created", zap.String("user_id", user.ID.String()))

	result := &RegisterResult{User: user}
	var redeemErr error
	if validation != nil {
		result.Grant, redeemErr = s.redeemAndProvision(ctx, user, validation.Code.ID)
	}

	// The account stands even when the code was lost, so the visitor can
	// sign in and retry.
	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	result.Tokens = tokens
	if redeemErr != nil {
		return result, redeemErr
	}
	return result, nil
}

func (s *authService) RedeemForUser(ctx context.Context, userID uuid.UUID, code string) (*Grant, error) {
	user, err := s.loadActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	validation, err := s.invitations.Validate(ctx, code)
	if err != nil {
		return nil, err
	}
	if !validation.Valid() {
		return nil, validation.Reason.Err()
	}
	// Refused before Redeem so a downgrade never spends a slot.
	if user.Role.Outranks(validation.Code.Role) {
		return nil, ErrRoleDowngrade
	}
	return s.redeemAndProvision(ctx, user, validation.Code.ID)
}

// redeemAndProvision consumes a slot, then applies the role. A provisioning
// failure is not rolled back: the grant is reported as degraded instead.
func (s *authService) redeemAndProvision(ctx context.Context, user *model.User, codeID uuid.UUID) (*Grant, error) {
	redemption, err := s.invitations.Redeem(ctx, codeID, user.ID)
	if err != nil {
		return nil, err
	}
	if !redemption.Success() {
		return nil, redemption.Reason.Err()
	}

	grant := &Grant{Role: redemption.Role}
	if err := s.provisioner.Provision(ctx, user.ID, redemption.Role, redemption.GroupID); err != nil {
		metrics.ProvisioningFailures.Inc()
		s.logger.Warn("invitation redeemed but role not applied",
			zap.String("user_id", user.ID.String()),
			zap.String("code_id", codeID.String()),
			zap.String("role", string(redemption.Role)),
			zap.Error(err),
		)
		if markErr := s.invitations.MarkUnprovisioned(ctx, redemption.RedemptionID); markErr != nil {
			s.logger.Error("failed to flag unprovisioned redemption",
				zap.String("redemption_id", redemption.RedemptionID.String()),
				zap.Error(markErr),
			)
		}
		grant.Role = user.Role
		grant.Degraded = true
		grant.Warning = DegradedRoleWarning
		return grant, nil
	}

	user.Role = redemption.Role
	if redemption.Role.RequiresGroup() {
		user.GroupID = redemption.GroupID
	}
	return grant, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*TokenSet, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	identity, err := s.identityRepo.GetByTypeAndIdentifier(ctx, model.IdentityTypePassword, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup identity: %w", err)
	}
	if !crypto.CheckPassword(password, identity.CredentialData.String("password_hash")) {
		return nil, ErrInvalidCredentials
	}

	user, err := s.loadActiveUser(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*TokenSet, error) {
	claims, err := s.jwtManager.Validate(refreshToken)
	if err != nil || claims.TokenType != jwtpkg.TokenTypeRefresh {
		return nil, ErrRefreshTokenInvalid
	}

	key := refreshKeyPrefix + claims.ID
	ok, err := s.stateStore.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check refresh token: %w", err)
	}
	if !ok {
		return nil, ErrRefreshTokenInvalid
	}
	if err := s.stateStore.Delete(ctx, key); err != nil {
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrRefreshTokenInvalid
	}
	user, err := s.loadActiveUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.issueTokens(ctx, user)
}

func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.jwtManager.Validate(refreshToken)
	if err != nil || claims.TokenType != jwtpkg.TokenTypeRefresh {
		return ErrRefreshTokenInvalid
	}
	return s.stateStore.Delete(ctx, refreshKeyPrefix+claims.ID)
}

func (s *authService) GetSession(ctx context.Context, accessToken string) (*Session, error) {
	claims, err := s.jwtManager.Validate(accessToken)
	if err != nil || claims.TokenType != jwtpkg.TokenTypeAccess {
		return nil, nil
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil
	}

	user, err := s.loadActiveUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserDisabled) {
			return nil, nil
		}
		return nil, err
	}
	return &Session{User: user}, nil
}

func (s *authService) loadActiveUser(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Status != model.UserStatusActive {
		return nil, ErrUserDisabled
	}
	return user, nil
}

func (s *authService) issueTokens(ctx context.Context, user *model.User) (*TokenSet, error) {
	access, err := s.jwtManager.GenerateAccessToken(user.ID, string(user.Role))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, claims, err := s.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	if err := s.stateStore.Set(ctx, refreshKeyPrefix+claims.ID, []byte(user.ID.String()), s.jwtManager.RefreshTokenTTL()); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenSet{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.jwtManager.AccessTokenTTL().Seconds()),
	}, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

var _ AuthService = (*authService)(nil)
