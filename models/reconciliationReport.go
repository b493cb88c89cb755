package models

import "time"

// Drift detection output (nightly/admin-triggered).
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	BusinessId    string    `gorm:"index;size:64;not null" json:"business_id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`  // e.g. CREDIT_SCHEDULE, LEDGER_BALANCE
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"` // e.g. Credit, Business
	EntityId      string    `gorm:"size:64;index;not null" json:"entity_id"`
	Details       string    `gorm:"type:text" json:"details"`
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
