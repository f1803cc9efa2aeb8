package models

import (
	"time"

	gorm "gorm.io/gorm"
)

// FighterMirror is a local read-only copy of the battle-relevant attributes
// of a community member, synced from the economy service by the fighter sync
// worker. The simulator reads from this table once, at simulation start.
type FighterMirror struct {
	ExternalUserID string         `json:"external_user_id" gorm:"primaryKey"`
	Username       string         `json:"username"`
	Level          int            `json:"level" gorm:"default:1"`
	Balance        float64        `json:"balance" gorm:"default:0"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}
