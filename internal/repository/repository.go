package repository

import (
	"context"
	"time"

	"autostock/internal/models"
)

type ListOrdersParams struct {
	Market string
	Symbol string
	Status string
	Since  *time.Time
	Limit  int
	Offset int
}

// OrderJournal keeps terminal orders for audit and the admin API.
type OrderJournal interface {
	RecordOrder(ctx context.Context, o models.PendingOrder) error
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.OrderRecord, error)
}
