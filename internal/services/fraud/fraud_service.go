package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/clinova/backend/internal/models"
	"github.com/clinova/backend/internal/services/commission"
	"gorm.io/gorm"
)

// ScoreProvider scores a payment event for fraud risk
type ScoreProvider interface {
	Score(ctx context.Context, check commission.FraudCheck) (*commission.FraudResult, error)
}

// Service evaluates payment events for fraud risk and persists alerts.
// It implements commission.FraudChecker.
type Service struct {
	db       *gorm.DB
	provider ScoreProvider
}

// NewService creates a fraud service. With a nil provider, scoring
// falls back to local velocity heuristics.
func NewService(db *gorm.DB, provider ScoreProvider) *Service {
	return &Service{db: db, provider: provider}
}

// CheckPayment scores a payment event. Provider failures propagate to
// the caller, which treats the check as a soft dependency.
func (s *Service) CheckPayment(ctx context.Context, check commission.FraudCheck) (*commission.FraudResult, error) {
	if s.provider != nil {
		return s.provider.Score(ctx, check)
	}
	return s.scoreLocally(ctx, check)
}

// scoreLocally applies velocity heuristics over recent commission
// events for the same affiliate
func (s *Service) scoreLocally(ctx context.Context, check commission.FraudCheck) (*commission.FraudResult, error) {
	since := time.Now().Add(-24 * time.Hour)

	var recentCount int64
	if err := s.db.WithContext(ctx).Model(&models.CommissionEvent{}).
		Where("clinic_id = ? AND affiliate_id = ? AND created_at >= ?", check.ClinicID, check.AffiliateID, since).
		Count(&recentCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count recent events: %w", err)
	}

	var samePatientCount int64
	if err := s.db.WithContext(ctx).Model(&models.CommissionEvent{}).
		Where("clinic_id = ? AND patient_id = ? AND created_at >= ?", check.ClinicID, check.PatientID, since).
		Count(&samePatientCount).Error; err != nil {
		return nil, fmt.Errorf("failed to count patient events: %w", err)
	}

	result := &commission.FraudResult{Recommendation: models.FraudRecommendationAccept}

	if recentCount >= 50 {
		result.RiskScore += 45
		result.Alerts = append(result.Alerts, commission.FraudAlertInfo{Type: "affiliate_velocity"})
	} else if recentCount >= 20 {
		result.RiskScore += 25
		result.Alerts = append(result.Alerts, commission.FraudAlertInfo{Type: "affiliate_velocity"})
	}

	if samePatientCount >= 5 {
		result.RiskScore += 40
		result.Alerts = append(result.Alerts, commission.FraudAlertInfo{Type: "patient_velocity"})
	}

	if check.EventAmountCents >= 500000 {
		result.RiskScore += 15
		result.Alerts = append(result.Alerts, commission.FraudAlertInfo{Type: "large_amount"})
	}

	if result.RiskScore >= 90 {
		result.Recommendation = models.FraudRecommendationReject
	} else if result.RiskScore >= 40 {
		result.Recommendation = models.FraudRecommendationReview
	}

	return result, nil
}

// PersistAlerts writes fraud alerts raised for a payment event. Invoked
// from the background alert job, never from the request path.
func (s *Service) PersistAlerts(ctx context.Context, check commission.FraudCheck, result *commission.FraudResult) error {
	for _, alert := range result.Alerts {
		record := models.FraudAlert{
			ClinicID:       check.ClinicID,
			AffiliateID:    check.AffiliateID,
			PatientID:      check.PatientID,
			AlertType:      alert.Type,
			RiskScore:      result.RiskScore,
			Recommendation: result.Recommendation,
			EventAmount:    check.EventAmountCents,
		}
		if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
			return fmt.Errorf("failed to persist fraud alert: %w", err)
		}
	}
	return nil
}

// HTTPProviderConfig holds configuration for the external scoring API
type HTTPProviderConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPProvider calls an external fraud-scoring API
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider for the external scoring API
func NewHTTPProvider(config HTTPProviderConfig) *HTTPProvider {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type scoreRequest struct {
	ClinicID         string `json:"clinic_id"`
	AffiliateID      string `json:"affiliate_id"`
	PatientID        string `json:"patient_id"`
	EventAmountCents int64  `json:"event_amount_cents"`
}

type scoreResponse struct {
	RiskScore      int    `json:"risk_score"`
	Recommendation string `json:"recommendation"`
	Alerts         []struct {
		Type string `json:"type"`
	} `json:"alerts"`
}

// Score implements ScoreProvider against the external API
func (p *HTTPProvider) Score(ctx context.Context, check commission.FraudCheck) (*commission.FraudResult, error) {
	body, err := json.Marshal(scoreRequest{
		ClinicID:         check.ClinicID.String(),
		AffiliateID:      check.AffiliateID.String(),
		PatientID:        check.PatientID.String(),
		EventAmountCents: check.EventAmountCents,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/score", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fraud scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fraud scoring API returned status %d", resp.StatusCode)
	}

	var parsed scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode score response: %w", err)
	}

	result := &commission.FraudResult{
		RiskScore:      parsed.RiskScore,
		Recommendation: models.FraudRecommendation(parsed.Recommendation),
	}
	for _, a := range parsed.Alerts {
		result.Alerts = append(result.Alerts, commission.FraudAlertInfo{Type: a.Type})
	}
	return result, nil
}
