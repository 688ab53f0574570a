package order

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smmpanel/pkg/errutil"
	"smmpanel/services/funds"
	"smmpanel/services/provider"
)

// applyStatus is the single write path for order state. Counter updates, the
// status change, the refund and the commission outcome commit in one
// transaction; the realtime event goes out only after the commit.
//
// Counters from remote are applied even when the status itself cannot move,
// so a terminal order still shows fresh start_count and remains.
func (s *service) applyStatus(ctx context.Context, orderID string, target Status, remote *provider.RemoteStatus, note string) (*Order, bool, error) {
	var (
		o       *Order
		changed bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		o = loaded
		changed = false

		values := map[string]any{}
		if remote != nil {
			now := time.Now()
			values["last_sync_at"] = now
			o.LastSyncAt = &now
			if remote.Status != "" {
				values["provider_status"] = remote.Status
				o.ProviderStatus = remote.Status
			}
			if remote.StartCount > 0 {
				values["start_count"] = remote.StartCount
				o.StartCount = remote.StartCount
			}
			if remote.Remains >= 0 && !o.Status.Terminal() {
				values["remains"] = remote.Remains
				o.Remains = remote.Remains
			}
		}

		if target != "" && o.Status.CanTransition(target) {
			changed = true
			values["status"] = target
			if note != "" {
				values["error_message"] = note
				o.ErrorMessage = note
			}

			switch target {
			case StatusCompleted:
				values["remains"] = 0
				o.Remains = 0
				if err := s.commissions.ApproveForOrder(ctx, tx, o.ID); err != nil {
					return err
				}
			case StatusPartial:
				if err := s.refundRemains(ctx, tx, o); err != nil {
					return err
				}
				if err := s.commissions.ApproveForOrder(ctx, tx, o.ID); err != nil {
					return err
				}
			case StatusCancelled, StatusRefunded, StatusFailed:
				if _, err := s.wallet.Credit(ctx, tx, funds.Entry{
					UserID:      o.UserID,
					AmountUSD:   o.ChargeUSD,
					Type:        funds.TxnRefund,
					ReferenceID: o.ID,
					Note:        "Refund " + o.Code,
				}); err != nil {
					return err
				}
				if err := s.commissions.CancelForOrder(ctx, tx, o.ID); err != nil {
					return err
				}
			}
			o.Status = target
		}

		if len(values) == 0 {
			return nil
		}
		return s.orders.WithTrx(tx).Update(ctx, o.ID, values)
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		s.publish("order_updated", o)
	}
	return o, changed, nil
}

// refundRemains returns the undelivered share of a partial order.
func (s *service) refundRemains(ctx context.Context, tx *gorm.DB, o *Order) error {
	if o.Quantity <= 0 || o.Remains <= 0 {
		return nil
	}
	refundUSD := o.ChargeUSD * float64(o.Remains) / float64(o.Quantity)
	if refundUSD <= 0 {
		return nil
	}
	_, err := s.wallet.Credit(ctx, tx, funds.Entry{
		UserID:      o.UserID,
		AmountUSD:   refundUSD,
		Type:        funds.TxnRefund,
		ReferenceID: o.ID,
		Note:        "Partial refund " + o.Code,
	})
	return err
}

func (s *service) lockOrder(ctx context.Context, tx *gorm.DB, id string) (*Order, error) {
	q := tx.WithContext(ctx)
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var o Order
	if err := q.First(&o, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("Order not found")
		}
		return nil, err
	}
	return &o, nil
}
