package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type IdentityType string

const (
	IdentityTypePassword IdentityType = "password"
)

// CredentialData is a JSON blob stored in the credential_data column.
type CredentialData map[string]interface{}

func (cd CredentialData) Value() (driver.Value, error) {
	if cd == nil {
		return nil, nil
	}
	return json.Marshal(cd)
}

func (cd *CredentialData) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*cd = nil
		return nil
	case []byte:
		return json.Unmarshal(v, cd)
	case string:
		return json.Unmarshal([]byte(v), cd)
	default:
		return errors.New("CredentialData.Scan: unsupported column type")
	}
}

// String returns the string stored under key, or "".
func (cd CredentialData) String(key string) string {
	if cd == nil {
		return ""
	}
	s, _ := cd[key].(string)
	return s
}

type UserIdentity struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	IdentityType   IdentityType   `gorm:"type:varchar(32);not null;uniqueIndex:idx_identity_type_identifier" json:"identity_type"`
	Identifier     string         `gorm:"type:varchar(512);not null;uniqueIndex:idx_identity_type_identifier" json:"identifier"`
	CredentialData CredentialData `gorm:"type:jsonb" json:"-"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

func (UserIdentity) TableName() string { return "user_identities" }

func (i *UserIdentity) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
