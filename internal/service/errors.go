package service

import "errors"

var (
	ErrIdentityAlreadyExists = errors.New("identity already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrWeakPassword          = errors.New("password must be at least 8 characters")
	ErrInvalidEmail          = errors.New("invalid email address")
	ErrRefreshTokenInvalid   = errors.New("refresh token invalid or revoked")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserDisabled          = errors.New("user is disabled or banned")

	ErrInviteCodeRequired = errors.New("invite code required")
	// ErrInvitationUnavailable covers every reason a code cannot be redeemed.
	// Callers see one error so lost races and unknown, deactivated, expired
	// or used-up codes are indistinguishable.
	ErrInvitationUnavailable   = errors.New("invitation code invalid or no longer available")
	ErrInvalidRole             = errors.New("role cannot be granted by an invitation code")
	ErrInvalidMaxUses          = errors.New("max uses out of range")
	ErrInvalidTTL              = errors.New("time to live out of range")
	ErrGroupNotAllowed         = errors.New("role does not take a group affiliation")
	ErrGroupNotFound           = errors.New("group not found")
	ErrGroupExists             = errors.New("group already exists")
	ErrInvitationCodeNotFound  = errors.New("invitation code not found")
	ErrInvitationCodeCollision = errors.New("could not allocate a unique invitation code")
	ErrMailerNotConfigured     = errors.New("mail delivery is not configured")
	ErrRoleDowngrade           = errors.New("invitation code grants a lower role than the account holds")
)
