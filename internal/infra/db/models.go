package db

import "time"

type AttestationModel struct {
	ID          string    `gorm:"primaryKey"`
	State       string    `gorm:"index;not null"`
	Revision    int64     `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
	CompletedAt *time.Time
	Body        []byte `gorm:"type:jsonb;not null"`
}

func (AttestationModel) TableName() string {
	return "attestations"
}

type ReceiptModel struct {
	ID            string    `gorm:"primaryKey"`
	AttestationID string    `gorm:"index;not null"`
	CreatedAt     time.Time `gorm:"not null"`
	Body          []byte    `gorm:"type:jsonb;not null"`
}

func (ReceiptModel) TableName() string {
	return "receipts"
}

type IdempotencyModel struct {
	Key           string    `gorm:"primaryKey"`
	AttestationID string    `gorm:"not null"`
	ExpiresAt     time.Time `gorm:"index;not null"`
}

func (IdempotencyModel) TableName() string {
	return "idempotency"
}
