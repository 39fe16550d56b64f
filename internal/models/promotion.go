package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Promotion is a time-bounded, usage-capped commission bonus. It can be
// targeted to a specific affiliate or ref code and gated by a minimum
// order amount. MaxUses of 0 means unlimited. UsesCount increments
// exactly once per application, inside the event transaction.
type Promotion struct {
	ID            uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	ClinicID      uuid.UUID      `gorm:"type:uuid;not null;index" json:"clinic_id"`
	Clinic        Clinic         `gorm:"foreignKey:ClinicID" json:"-"`
	Name          string         `gorm:"type:varchar(255);not null" json:"name"`
	StartsAt      time.Time      `gorm:"not null" json:"starts_at"`
	EndsAt        time.Time      `gorm:"not null" json:"ends_at"`
	MaxUses       int64          `gorm:"not null;default:0" json:"max_uses"`
	UsesCount     int64          `gorm:"not null;default:0" json:"uses_count"`
	AffiliateID   *uuid.UUID     `gorm:"type:uuid;index" json:"affiliate_id,omitempty"`
	RefCode       string         `gorm:"type:varchar(50)" json:"ref_code"`
	MinOrderCents int64          `gorm:"not null;default:0" json:"min_order_cents"`
	BonusBps      int            `gorm:"not null;default:0" json:"bonus_bps"`
	BonusCents    int64          `gorm:"not null;default:0" json:"bonus_cents"`
	Active        bool           `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate assigns an ID when one was not set by the caller
func (p *Promotion) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
