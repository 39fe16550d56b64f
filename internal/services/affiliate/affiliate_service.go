package affiliate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/clinova/backend/internal/utils"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// refCodeAttempts bounds collision retries on ref code generation
const refCodeAttempts = 5

var (
	// ErrRefCodeExhausted is returned when a unique referral code could
	// not be generated
	ErrRefCodeExhausted = errors.New("could not generate a unique referral code")

	// ErrUnknownRefCode is returned when attribution references a code
	// no affiliate owns
	ErrUnknownRefCode = errors.New("unknown referral code")
)

// Service manages affiliates, their referral codes, patient attribution
// and plan assignments
type Service struct {
	db *gorm.DB
}

// NewService creates an affiliate service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Register creates an affiliate with a generated referral code derived
// from the affiliate's name
func (s *Service) Register(ctx context.Context, clinicID uuid.UUID, name, email string) (*models.Affiliate, error) {
	for attempt := 0; attempt < refCodeAttempts; attempt++ {
		code := fmt.Sprintf("%s-%s", slug.Make(name), utils.RandomCode(6))

		affiliate := models.Affiliate{
			ID:       uuid.New(),
			ClinicID: clinicID,
			Name:     name,
			Email:    email,
			RefCode:  code,
			Status:   models.AffiliateStatusActive,
		}

		err := s.db.WithContext(ctx).Create(&affiliate).Error
		if err == nil {
			return &affiliate, nil
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		return nil, fmt.Errorf("failed to create affiliate: %w", err)
	}
	return nil, ErrRefCodeExhausted
}

// Get loads an affiliate scoped to a clinic
func (s *Service) Get(ctx context.Context, clinicID, affiliateID uuid.UUID) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	if err := s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", affiliateID, clinicID).
		First(&affiliate).Error; err != nil {
		return nil, fmt.Errorf("failed to load affiliate: %w", err)
	}
	return &affiliate, nil
}

// SetStatus updates an affiliate's status
func (s *Service) SetStatus(ctx context.Context, clinicID, affiliateID uuid.UUID, status models.AffiliateStatus) error {
	res := s.db.WithContext(ctx).Model(&models.Affiliate{}).
		Where("id = ? AND clinic_id = ?", affiliateID, clinicID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update affiliate status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CaptureAttribution records which affiliate referred a patient. First
// touch wins: an existing attribution is returned unchanged.
func (s *Service) CaptureAttribution(ctx context.Context, clinicID, patientID uuid.UUID, refCode string) (*models.PatientAttribution, error) {
	var existing models.PatientAttribution
	err := s.db.WithContext(ctx).
		Where("clinic_id = ? AND patient_id = ?", clinicID, patientID).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check existing attribution: %w", err)
	}

	var owner models.Affiliate
	err = s.db.WithContext(ctx).
		Where("clinic_id = ? AND ref_code = ?", clinicID, refCode).
		First(&owner).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownRefCode
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve referral code: %w", err)
	}

	attribution := models.PatientAttribution{
		ID:          uuid.New(),
		ClinicID:    clinicID,
		PatientID:   patientID,
		AffiliateID: owner.ID,
		RefCode:     refCode,
		CapturedAt:  time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&attribution).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Concurrent first touch; the earlier one stands
			if ferr := s.db.WithContext(ctx).
				Where("clinic_id = ? AND patient_id = ?", clinicID, patientID).
				First(&existing).Error; ferr == nil {
				return &existing, nil
			}
		}
		return nil, fmt.Errorf("failed to create attribution: %w", err)
	}
	return &attribution, nil
}

// AssignPlan binds an affiliate to a plan from effectiveFrom onward,
// closing any open-ended assignment at that instant. Plan edits apply
// prospectively only, through assignments like this one.
func (s *Service) AssignPlan(ctx context.Context, clinicID, affiliateID, planID uuid.UUID, effectiveFrom time.Time) (*models.PlanAssignment, error) {
	var plan models.CommissionPlan
	if err := s.db.WithContext(ctx).
		Where("id = ? AND clinic_id = ?", planID, clinicID).
		First(&plan).Error; err != nil {
		return nil, fmt.Errorf("failed to load plan for assignment: %w", err)
	}

	assignment := models.PlanAssignment{
		ID:            uuid.New(),
		ClinicID:      clinicID,
		AffiliateID:   affiliateID,
		PlanID:        planID,
		EffectiveFrom: effectiveFrom,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PlanAssignment{}).
			Where("clinic_id = ? AND affiliate_id = ? AND effective_to IS NULL AND effective_from < ?",
				clinicID, affiliateID, effectiveFrom).
			Update("effective_to", effectiveFrom).Error; err != nil {
			return fmt.Errorf("failed to close previous assignment: %w", err)
		}
		if err := tx.Create(&assignment).Error; err != nil {
			return fmt.Errorf("failed to create plan assignment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

// EndAssignment closes an assignment at the given instant
func (s *Service) EndAssignment(ctx context.Context, clinicID, assignmentID uuid.UUID, effectiveTo time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.PlanAssignment{}).
		Where("id = ? AND clinic_id = ? AND effective_to IS NULL", assignmentID, clinicID).
		Update("effective_to", effectiveTo)
	if res.Error != nil {
		return fmt.Errorf("failed to end plan assignment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
