package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AffiliateStatus represents the status of an affiliate
type AffiliateStatus string

const (
	AffiliateStatusActive     AffiliateStatus = "ACTIVE"
	AffiliateStatusSuspended  AffiliateStatus = "SUSPENDED"
	AffiliateStatusTerminated AffiliateStatus = "TERMINATED"
)

// Affiliate represents a sales rep or partner who refers patients to a
// clinic. The lifetime counters are mutated only by the commission event
// processor, atomically with commission event creation.
type Affiliate struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	ClinicID             uuid.UUID       `gorm:"type:uuid;not null;index" json:"clinic_id"`
	Clinic               Clinic          `gorm:"foreignKey:ClinicID" json:"-"`
	Name                 string          `gorm:"type:varchar(255);not null" json:"name"`
	Email                string          `gorm:"type:varchar(255);not null" json:"email"`
	RefCode              string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"ref_code"`
	Status               AffiliateStatus `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	LifetimeConversions  int64           `gorm:"not null;default:0" json:"lifetime_conversions"`
	LifetimeRevenueCents int64           `gorm:"not null;default:0" json:"lifetime_revenue_cents"`
	CreatedAt            time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt            gorm.DeletedAt  `gorm:"index" json:"-"`
}

// BeforeCreate assigns an ID when one was not set by the caller
func (a *Affiliate) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
