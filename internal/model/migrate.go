package model

import "gorm.io/gorm"

// AutoMigrate runs GORM auto-migration for all models and creates custom indexes.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Group{},
		&User{},
		&UserIdentity{},
		&InvitationCode{},
		&InvitationRedemption{},
	); err != nil {
		return err
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}

	// Case-insensitive unique email for non-soft-deleted users.
	if err := db.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_lower " +
			"ON users ((lower(email))) WHERE deleted_at IS NULL",
	).Error; err != nil {
		return err
	}

	// Serves the redemption predicate without touching exhausted rows.
	return db.Exec(
		"CREATE INDEX IF NOT EXISTS idx_invitation_codes_redeemable " +
			"ON invitation_codes (expires_at) WHERE is_active AND current_uses < max_uses",
	).Error
}
