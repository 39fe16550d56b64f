package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Clinic represents a tenant on the platform
type Clinic struct {
	ID        uuid.UUID      `gorm:"type:uuid;primary_key" json:"id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Slug      string         `gorm:"type:varchar(100);uniqueIndex" json:"slug"`
	Active    bool           `gorm:"default:true" json:"active"`
	CreatedAt time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// PatientAttribution links a patient to the affiliate that referred them.
// Captured at first touch and never overwritten. Only the patient ID is
// stored here; no name, email or DOB may appear in this table.
type PatientAttribution struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	ClinicID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_attribution_clinic_patient" json:"clinic_id"`
	Clinic      Clinic    `gorm:"foreignKey:ClinicID" json:"-"`
	PatientID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_attribution_clinic_patient" json:"patient_id"`
	AffiliateID uuid.UUID `gorm:"type:uuid;not null;index" json:"affiliate_id"`
	Affiliate   Affiliate `gorm:"foreignKey:AffiliateID" json:"-"`
	RefCode     string    `gorm:"type:varchar(50);not null" json:"ref_code"`
	CapturedAt  time.Time `gorm:"not null" json:"captured_at"`
	CreatedAt   time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate assigns an ID when one was not set by the caller
func (c *Clinic) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// BeforeCreate assigns an ID when one was not set by the caller
func (a *PatientAttribution) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
