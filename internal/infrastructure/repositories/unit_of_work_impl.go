package repositories

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	domainrepos "crosspay.facilitator/internal/domain/repositories"
)

type contextKey string

const txKey contextKey = "tx_db"

type unitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork creates a gorm-backed UnitOfWork. Repositories built on the
// same *gorm.DB pick the transaction out of the callback context, so writes
// made inside Do commit atomically.
func NewUnitOfWork(db *gorm.DB) domainrepos.UnitOfWork {
	return &unitOfWork{db: db}
}

func (u *unitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := dbFrom(ctx, u.db).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// dbFrom returns the transaction carried by ctx, or the fallback handle.
func dbFrom(ctx context.Context, fallback *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey).(*gorm.DB); ok {
		return tx
	}
	return fallback
}
