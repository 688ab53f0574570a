package order

import (
	"time"

	"smmpanel/services/provider"
)

// Status is the order lifecycle state. Transitions only move forward:
// pending -> processing -> in_progress -> one of the terminal states.
// Terminal states never change again.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPartial    Status = "partial"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusFailed     Status = "failed"
)

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusPartial, StatusCancelled, StatusRefunded, StatusFailed:
		return true
	}
	return false
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusInProgress:
		return 2
	default:
		return 3
	}
}

// CanTransition reports whether moving to the target state is legal.
func (s Status) CanTransition(to Status) bool {
	if s == to || s.Terminal() {
		return false
	}
	if to.Terminal() {
		return true
	}
	return to.rank() > s.rank()
}

// statusFromRemote maps the adapter's normalized vocabulary onto the local
// state machine. Unknown remote values produce an empty status.
func statusFromRemote(remote string) Status {
	switch remote {
	case provider.RemotePending:
		return StatusPending
	case provider.RemoteProcessing:
		return StatusProcessing
	case provider.RemoteInProgress:
		return StatusInProgress
	case provider.RemoteCompleted:
		return StatusCompleted
	case provider.RemotePartial:
		return StatusPartial
	case provider.RemoteCancelled:
		return StatusCancelled
	case provider.RemoteRefunded:
		return StatusRefunded
	case provider.RemoteFailed:
		return StatusFailed
	default:
		return ""
	}
}

// Order keeps price snapshots in the buyer's currency plus USD and BDT, so
// rate edits never change what an old order cost.
type Order struct {
	ID              string     `gorm:"column:id;primaryKey" json:"id"`
	Code            string     `gorm:"column:code;uniqueIndex;not null" json:"code"`
	UserID          string     `gorm:"column:user_id;index;not null" json:"user_id"`
	ServiceID       string     `gorm:"column:service_id;index;not null" json:"service_id"`
	CategoryID      string     `gorm:"column:category_id;index" json:"category_id"`
	ServiceName     string     `gorm:"column:service_name" json:"service_name"`
	Link            string     `gorm:"column:link;not null" json:"link"`
	Quantity        int        `gorm:"column:quantity;not null" json:"quantity"`
	Runs            int        `gorm:"column:runs;default:0" json:"runs,omitempty"`
	Interval        int        `gorm:"column:interval;default:0" json:"interval,omitempty"`
	Charge          float64    `gorm:"column:charge;not null" json:"charge"`
	ChargeUSD       float64    `gorm:"column:charge_usd;not null" json:"charge_usd"`
	ChargeBDT       float64    `gorm:"column:charge_bdt" json:"charge_bdt"`
	CurrencyCode    string     `gorm:"column:currency_code;not null" json:"currency_code"`
	Status          Status     `gorm:"column:status;default:'pending';index" json:"status"`
	StartCount      int        `gorm:"column:start_count;default:0" json:"start_count"`
	Remains         int        `gorm:"column:remains;default:0" json:"remains"`
	ProviderID      string     `gorm:"column:provider_id;index" json:"-"`
	ProviderOrderID string     `gorm:"column:provider_order_id;index" json:"-"`
	ProviderStatus  string     `gorm:"column:provider_status" json:"-"`
	RefillID        string     `gorm:"column:refill_id" json:"refill_id,omitempty"`
	ErrorMessage    string     `gorm:"column:error_message" json:"error_message,omitempty"`
	LastSyncAt      *time.Time `gorm:"column:last_sync_at" json:"-"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "orders"
}
