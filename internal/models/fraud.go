package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RiskLevel buckets a fraud risk score
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// FraudRecommendation is the outcome of a fraud check
type FraudRecommendation string

const (
	FraudRecommendationAccept FraudRecommendation = "accept"
	FraudRecommendationReview FraudRecommendation = "review"
	FraudRecommendationReject FraudRecommendation = "reject"
)

// FraudAlert records an alert raised during fraud evaluation of a
// payment event. Alerts for non-reject outcomes are persisted
// asynchronously off the commission critical path.
type FraudAlert struct {
	ID             uuid.UUID           `gorm:"type:uuid;primary_key" json:"id"`
	ClinicID       uuid.UUID           `gorm:"type:uuid;not null;index" json:"clinic_id"`
	AffiliateID    uuid.UUID           `gorm:"type:uuid;not null;index" json:"affiliate_id"`
	PatientID      uuid.UUID           `gorm:"type:uuid;not null" json:"patient_id"`
	AlertType      string              `gorm:"type:varchar(100);not null" json:"alert_type"`
	RiskScore      int                 `gorm:"not null;default:0" json:"risk_score"`
	Recommendation FraudRecommendation `gorm:"type:varchar(20);not null" json:"recommendation"`
	EventAmount    int64               `gorm:"not null;default:0" json:"event_amount_cents"`
	CreatedAt      time.Time           `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// BeforeCreate assigns an ID when the database default is unavailable
func (a *FraudAlert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
