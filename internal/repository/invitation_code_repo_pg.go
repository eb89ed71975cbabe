package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"celulas/membership/internal/model"
)

type pgInvitationCodeRepository struct {
	db *gorm.DB
}

// NewPGInvitationCodeRepository works against any gorm dialect; the name
// follows the production target.
func NewPGInvitationCodeRepository(db *gorm.DB) InvitationCodeRepository {
	return &pgInvitationCodeRepository{db: db}
}

func (r *pgInvitationCodeRepository) Create(ctx context.Context, code *model.InvitationCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

func (r *pgInvitationCodeRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.InvitationCode, error) {
	var code model.InvitationCode
	if err := r.db.WithContext(ctx).First(&code, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *pgInvitationCodeRepository) GetActiveByCode(ctx context.Context, code string) (*model.InvitationCode, error) {
	var inv model.InvitationCode
	err := r.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", code, true).
		First(&inv).Error
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *pgInvitationCodeRepository) List(ctx context.Context, filter InvitationCodeFilter) ([]model.InvitationCode, error) {
	q := r.db.WithContext(ctx).Model(&model.InvitationCode{})
	if filter.Role != "" {
		q = q.Where("role = ?", filter.Role)
	}
	if filter.ActiveOnly || filter.RedeemableAt != nil {
		q = q.Where("is_active = ?", true)
	}
	if filter.RedeemableAt != nil {
		q = q.Where("expires_at > ? AND current_uses < max_uses", *filter.RedeemableAt)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var codes []model.InvitationCode
	if err := q.Order("created_at DESC").Find(&codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *pgInvitationCodeRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&model.InvitationCode{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *pgInvitationCodeRepository) Redeem(ctx context.Context, id, redeemerID uuid.UUID, now time.Time) (*model.InvitationRedemption, error) {
	var redemption *model.InvitationRedemption
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.InvitationCode{}).
			Where("id = ? AND is_active = ? AND expires_at > ? AND current_uses < max_uses", id, true, now).
			UpdateColumns(map[string]interface{}{
				"current_uses": gorm.Expr("current_uses + 1"),
				"used_by":      redeemerID,
				"used_at":      now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}

		record := &model.InvitationRedemption{
			CodeID:      id,
			RedeemerID:  redeemerID,
			RedeemedAt:  now,
			Provisioned: true,
		}
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		redemption = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redemption, nil
}

func (r *pgInvitationCodeRepository) ListRedemptions(ctx context.Context, codeID uuid.UUID) ([]model.InvitationRedemption, error) {
	var redemptions []model.InvitationRedemption
	err := r.db.WithContext(ctx).
		Where("code_id = ?", codeID).
		Order("redeemed_at ASC").
		Find(&redemptions).Error
	return redemptions, err
}

func (r *pgInvitationCodeRepository) MarkUnprovisioned(ctx context.Context, redemptionID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Model(&model.InvitationRedemption{}).
		Where("id = ?", redemptionID).
		UpdateColumn("provisioned", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
