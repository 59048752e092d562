package domain

import (
	"time"

	"github.com/google/uuid"
)

type AccessToken struct {
	UUID        uuid.UUID  `gorm:"column:uuid;type:uuid;primaryKey"`
	DID         Identity   `gorm:"column:did;not null;index"`
	ValidatedAt *time.Time `gorm:"index"`
	CreatedAt   time.Time  `gorm:"not null"`
}

func (AccessToken) TableName() string { return "access_token" }
