package model

import (
	"time"

	"gorm.io/datatypes"
)

// BillingEvent records every gateway event that has been applied, so a
// redelivery can be acknowledged without repeating side effects.
type BillingEvent struct {
	ID          uint           `gorm:"primaryKey"`
	EventID     string         `gorm:"uniqueIndex;not null"`
	Type        string         `gorm:"index;not null"`
	Payload     datatypes.JSON `gorm:"type:jsonb"`
	ProcessedAt time.Time      `gorm:"not null"`
}
