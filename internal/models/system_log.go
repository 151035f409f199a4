package models

import "time"

// SystemLog is a durable operation log. Cascade steps that exhaust their
// retries land here so the reconciler (or an operator) can pick them up.
type SystemLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Level     string    `gorm:"size:20;index" json:"level"` // info, warning, error
	Module    string    `gorm:"size:100;index" json:"module"`
	Action    string    `gorm:"size:200;index" json:"action"`
	Message   string    `gorm:"type:text" json:"message"`
	PartyID   string    `gorm:"size:36;index" json:"party_id"`
	UserID    string    `gorm:"size:64" json:"user_id"`
	Extra     string    `gorm:"type:text" json:"extra"` // JSON extra data
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (SystemLog) TableName() string { return "system_logs" }
