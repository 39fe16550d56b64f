package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func commissionConstraintsMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_commission_constraints",
		Migrate: func(tx *gorm.DB) error {
			// One open-ended assignment per affiliate at a time. A
			// partial index, which GORM tags cannot express.
			if err := tx.Exec(`
				CREATE UNIQUE INDEX IF NOT EXISTS idx_assignment_open
				ON plan_assignments (clinic_id, affiliate_id)
				WHERE effective_to IS NULL
			`).Error; err != nil {
				return err
			}

			// Reversal bookkeeping must stay consistent with status
			return tx.Exec(`
				ALTER TABLE commission_events
				ADD CONSTRAINT chk_reversed_status
				CHECK (reversed_at IS NULL OR status = 'REVERSED')
			`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			if err := tx.Exec("DROP INDEX IF EXISTS idx_assignment_open").Error; err != nil {
				return err
			}
			return tx.Exec("ALTER TABLE commission_events DROP CONSTRAINT IF EXISTS chk_reversed_status").Error
		},
	}
}

func init() {
	migrationsList = append(migrationsList, commissionConstraintsMigration())
}
