package gormrepository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"autostock/internal/models"
	"autostock/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RecordOrder upserts by (market, order_id) so a replayed terminal event
// overwrites instead of duplicating.
func (s *Store) RecordOrder(ctx context.Context, o models.PendingOrder) error {
	if s == nil || s.db == nil {
		return nil
	}
	item := models.OrderRecord{
		Market:      o.Market,
		OrderID:     o.OrderID,
		Symbol:      o.Symbol,
		Side:        string(o.Side),
		Reason:      o.Reason,
		Quantity:    o.Quantity,
		FilledQty:   o.FilledQty,
		Price:       o.Price,
		Status:      string(o.Status),
		SubmittedAt: o.SubmittedAt,
		FinishedAt:  o.FinishedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market"}, {Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"filled_qty", "status", "finished_at"}),
	}).Create(&item).Error
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.OrderRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.OrderRecord{})
	if v := strings.TrimSpace(params.Market); v != "" {
		query = query.Where("market = ?", v)
	}
	if v := strings.TrimSpace(params.Symbol); v != "" {
		query = query.Where("symbol = ?", v)
	}
	if v := strings.TrimSpace(params.Status); v != "" {
		query = query.Where("status = ?", v)
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("submitted_at >= ?", *params.Since)
	}
	var items []models.OrderRecord
	err := query.Order("submitted_at desc").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
