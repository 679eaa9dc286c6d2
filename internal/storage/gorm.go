package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"autostock/internal/errs"
	"autostock/internal/models"
)

// GormStore keeps blobs in the state_blobs table. The previous value moves to
// the backup column inside the same transaction as the write.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Load(ctx context.Context, key string) ([]byte, error) {
	if s == nil || s.DB == nil {
		return nil, fmt.Errorf("gorm store not configured: %w", errs.ErrPersistence)
	}
	var row models.StateBlob
	err := s.DB.WithContext(ctx).Where("key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %v: %w", key, err, errs.ErrPersistence)
	}
	if len(row.Data) > 0 && json.Valid(row.Data) {
		return []byte(row.Data), nil
	}
	if len(row.Backup) == 0 || !json.Valid(row.Backup) {
		return nil, fmt.Errorf("load %s: primary and backup unreadable: %w", key, errs.ErrPersistence)
	}
	if err := s.DB.WithContext(ctx).Model(&models.StateBlob{}).
		Where("key = ?", key).
		Update("data", row.Backup).Error; err != nil {
		return nil, fmt.Errorf("restore %s from backup: %v: %w", key, err, errs.ErrPersistence)
	}
	return []byte(row.Backup), nil
}

func (s *GormStore) Save(ctx context.Context, key string, data []byte) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("gorm store not configured: %w", errs.ErrPersistence)
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.StateBlob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("key = ?", key).Take(&cur).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&models.StateBlob{Key: key, Data: datatypes.JSON(data)}).Error
		}
		if err != nil {
			return err
		}
		backup := cur.Backup
		if len(cur.Data) > 0 && json.Valid(cur.Data) {
			backup = cur.Data
		}
		return tx.Model(&models.StateBlob{}).Where("key = ?", key).Updates(map[string]any{
			"data":   datatypes.JSON(data),
			"backup": backup,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("save %s: %v: %w", key, err, errs.ErrPersistence)
	}
	return nil
}

func (s *GormStore) Backup(ctx context.Context, key string) error {
	return s.copyColumn(ctx, key, "backup", "data")
}

func (s *GormStore) Restore(ctx context.Context, key string) error {
	return s.copyColumn(ctx, key, "data", "backup")
}

func (s *GormStore) copyColumn(ctx context.Context, key, dst, src string) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("gorm store not configured: %w", errs.ErrPersistence)
	}
	res := s.DB.WithContext(ctx).Model(&models.StateBlob{}).
		Where("key = ? AND "+src+" IS NOT NULL", key).
		Update(dst, gorm.Expr(src))
	if res.Error != nil {
		return fmt.Errorf("%s %s: %v: %w", dst, key, res.Error, errs.ErrPersistence)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("gorm store not configured: %w", errs.ErrPersistence)
	}
	if err := s.DB.WithContext(ctx).Where("key = ?", key).Delete(&models.StateBlob{}).Error; err != nil {
		return fmt.Errorf("delete %s: %v: %w", key, err, errs.ErrPersistence)
	}
	return nil
}
