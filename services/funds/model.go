package funds

import (
	"time"
)

// AddFund statuses.
const (
	AddFundPending   = "pending"
	AddFundCompleted = "completed"
	AddFundCancelled = "cancelled"
)

// Transaction types.
const (
	TxnDeposit    = "deposit"
	TxnOrder      = "order"
	TxnRefund     = "refund"
	TxnCommission = "commission"
	TxnPayout     = "payout"
	TxnAdjustment = "adjustment"
)

// Currency holds one display currency. Rate is units of this currency per one
// unit of the home currency, so the home currency row always has Rate 1.
type Currency struct {
	Code      string    `gorm:"column:code;primaryKey" json:"code"`
	Name      string    `gorm:"column:name" json:"name"`
	Symbol    string    `gorm:"column:symbol" json:"symbol"`
	Rate      float64   `gorm:"column:rate;not null" json:"rate"`
	Enabled   bool      `gorm:"column:enabled;default:true" json:"enabled"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Currency) TableName() string {
	return "currencies"
}

// Transaction is one wallet ledger entry. Amounts are signed; BalanceAfter
// snapshots make the ledger auditable without replaying it.
type Transaction struct {
	ID              string    `gorm:"column:id;primaryKey" json:"id"`
	UserID          string    `gorm:"column:user_id;index;not null" json:"user_id"`
	Type            string    `gorm:"column:type;index;not null" json:"type"`
	Amount          float64   `gorm:"column:amount;not null" json:"amount"`
	AmountUSD       float64   `gorm:"column:amount_usd;not null" json:"amount_usd"`
	BalanceAfter    float64   `gorm:"column:balance_after" json:"balance_after"`
	BalanceAfterUSD float64   `gorm:"column:balance_after_usd" json:"balance_after_usd"`
	CurrencyCode    string    `gorm:"column:currency_code" json:"currency_code"`
	ReferenceID     string    `gorm:"column:reference_id;index" json:"reference_id,omitempty"`
	Note            string    `gorm:"column:note" json:"note,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// AddFund is a deposit request. AmountUSD and AmountBDT are snapshots taken
// at creation so later rate changes never move an approved deposit.
type AddFund struct {
	ID           string     `gorm:"column:id;primaryKey" json:"id"`
	Code         string     `gorm:"column:code;uniqueIndex;not null" json:"code"`
	UserID       string     `gorm:"column:user_id;index;not null" json:"user_id"`
	Method       string     `gorm:"column:method;not null" json:"method"`
	Amount       float64    `gorm:"column:amount;not null" json:"amount"`
	AmountUSD    float64    `gorm:"column:amount_usd;not null" json:"amount_usd"`
	AmountBDT    float64    `gorm:"column:amount_bdt" json:"amount_bdt"`
	CurrencyCode string     `gorm:"column:currency_code;not null" json:"currency_code"`
	Status       string     `gorm:"column:status;default:'pending';index" json:"status"`
	ExternalRef  string     `gorm:"column:external_ref;index" json:"external_ref,omitempty"`
	ApprovedBy   string     `gorm:"column:approved_by" json:"approved_by,omitempty"`
	ApprovedAt   *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (AddFund) TableName() string {
	return "add_funds"
}
