// Package db is the optional persistent collaborator: a write-behind
// archive of the in-memory state store. Body columns hold canonical
// JSON and are replaced only by a higher revision, so the table is
// append-only per revision.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zkpad/internal/domain"
	cryptoinfra "zkpad/internal/infra/crypto"
)

var errDBUnavailable = errors.New("database unavailable")

type Archive struct {
	db *gorm.DB
}

func Open(dsn string) (*Archive, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := gdb.AutoMigrate(&AttestationModel{}, &ReceiptModel{}, &IdempotencyModel{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Archive{db: gdb}, nil
}

func NewArchive(gdb *gorm.DB) *Archive {
	return &Archive{db: gdb}
}

func (a *Archive) SaveAttestation(ctx context.Context, att *domain.Attestation) error {
	if a == nil || a.db == nil {
		return errDBUnavailable
	}
	body, err := cryptoinfra.CanonicalizeAny(att)
	if err != nil {
		return err
	}
	model := AttestationModel{
		ID:          att.ID,
		State:       string(att.State),
		Revision:    att.Revision,
		CreatedAt:   att.CreatedAt,
		CompletedAt: att.CompletedAt,
		Body:        body,
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "revision", "completed_at", "body",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Lt{Column: clause.Column{Table: "attestations", Name: "revision"}, Value: att.Revision},
		}},
	}).Create(&model).Error
}

func (a *Archive) SaveReceipt(ctx context.Context, r *domain.VerificationReceipt) error {
	if a == nil || a.db == nil {
		return errDBUnavailable
	}
	body, err := cryptoinfra.CanonicalizeAny(r)
	if err != nil {
		return err
	}
	model := ReceiptModel{
		ID:            r.ID,
		AttestationID: r.AttestationID,
		CreatedAt:     r.VerifiedAt,
		Body:          body,
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

func (a *Archive) SaveIdempotency(ctx context.Context, rec domain.IdempotencyRecord, expiresAt time.Time) error {
	if a == nil || a.db == nil {
		return errDBUnavailable
	}
	model := IdempotencyModel{
		Key:           rec.Key,
		AttestationID: rec.AttestationID,
		ExpiresAt:     expiresAt,
	}
	return a.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error
}

var _ domain.ArchiveStore = (*Archive)(nil)
