package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Submission mirrors the purchase_submissions table.
type Submission struct {
	SubmissionID string         `gorm:"type:uuid;primaryKey"`
	Wallet       string         `gorm:"not null;index:idx_submissions_wallet_created,priority:1"`
	Property     string         `gorm:"not null;index"`
	Kind         string         `gorm:"not null"`
	TxHash       string         `gorm:"not null;uniqueIndex:purchase_submissions_tx_hash_key"`
	AmountMinor  int64          `gorm:"not null"`
	SlotIDs      datatypes.JSON `gorm:"not null"`
	PromoHash    *string        `gorm:""`
	Status       string         `gorm:"not null"`
	ErrorText    string         `gorm:"not null;default:''"`
	CreatedAt    time.Time      `gorm:"not null;index:idx_submissions_wallet_created,priority:2"`
	UpdatedAt    time.Time      `gorm:"not null"`
}

func (Submission) TableName() string { return "purchase_submissions" }

func (submission *Submission) BeforeCreate(tx *gorm.DB) error {
	if submission.SubmissionID == "" {
		submission.SubmissionID = uuid.NewString()
	}
	return nil
}
