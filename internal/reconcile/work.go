package reconcile

import (
	"context"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/sokoline/sokoline/internal/transaction/domain"
)

// divergedOrder is an order whose row no longer matches its settled
// transaction, usually the residue of a crash between the ledger write and
// the order write.
type divergedOrder struct {
	OrderID    snowflake.ID             `gorm:"column:order_id"`
	ExternalID string                   `gorm:"column:external_id"`
	Status     transactiondomain.Status `gorm:"column:status"`
}

func (s *Scheduler) fetchDivergedOrders(ctx context.Context, limit int) ([]divergedOrder, error) {
	if limit <= 0 {
		limit = 25
	}
	var rows []divergedOrder
	err := s.db.WithContext(ctx).Raw(
		`SELECT t.order_id, t.external_id, t.status
		 FROM transactions t
		 JOIN orders o ON o.id = t.order_id
		 WHERE (t.status = ? AND o.payment_status <> ?)
		    OR (t.status IN (?, ?) AND o.status <> ?)
		 ORDER BY t.updated_at ASC
		 LIMIT ?`,
		transactiondomain.StatusSuccess,
		"paid",
		transactiondomain.StatusFailed,
		transactiondomain.StatusCancelled,
		"cancelled",
		limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
