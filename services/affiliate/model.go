package affiliate

import (
	"time"
)

const (
	CommissionPending   = "pending"
	CommissionApproved  = "approved"
	CommissionCancelled = "cancelled"

	PayoutPending  = "pending"
	PayoutPaid     = "paid"
	PayoutRejected = "rejected"
)

// Affiliate is a user's referral profile. Earnings is the withdrawable USD
// balance; TotalEarnings never decreases and feeds the dashboard.
type Affiliate struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	UserID        string    `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	Code          string    `gorm:"column:code;uniqueIndex;not null" json:"code"`
	Rate          float64   `gorm:"column:rate;not null" json:"rate"`
	Visits        int64     `gorm:"column:visits;default:0" json:"visits"`
	Signups       int64     `gorm:"column:signups;default:0" json:"signups"`
	Earnings      float64   `gorm:"column:earnings;default:0" json:"earnings"`
	TotalEarnings float64   `gorm:"column:total_earnings;default:0" json:"total_earnings"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Affiliate) TableName() string {
	return "affiliates"
}

// Referral ties a signed-up user to the affiliate that brought them in.
// One row per referred user, ever.
type Referral struct {
	ID             string    `gorm:"column:id;primaryKey" json:"id"`
	AffiliateID    string    `gorm:"column:affiliate_id;index;not null" json:"affiliate_id"`
	ReferredUserID string    `gorm:"column:referred_user_id;uniqueIndex;not null" json:"referred_user_id"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (Referral) TableName() string {
	return "affiliate_referrals"
}

// Commission is one order's cut for the referring affiliate. The unique
// affiliate+order index makes creation idempotent at the schema level.
type Commission struct {
	ID          string     `gorm:"column:id;primaryKey" json:"id"`
	AffiliateID string     `gorm:"column:affiliate_id;index;uniqueIndex:idx_affiliate_order;not null" json:"affiliate_id"`
	OrderID     string     `gorm:"column:order_id;uniqueIndex:idx_affiliate_order;not null" json:"order_id"`
	UserID      string     `gorm:"column:user_id;index" json:"user_id"`
	AmountUSD   float64    `gorm:"column:amount_usd;not null" json:"amount_usd"`
	Rate        float64    `gorm:"column:rate;not null" json:"rate"`
	Status      string     `gorm:"column:status;default:'pending';index" json:"status"`
	ApprovedAt  *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Commission) TableName() string {
	return "affiliate_commissions"
}

// Payout is a withdrawal of affiliate earnings. The requested amount leaves
// Earnings immediately; a rejection puts it back.
type Payout struct {
	ID          string     `gorm:"column:id;primaryKey" json:"id"`
	Code        string     `gorm:"column:code;uniqueIndex;not null" json:"code"`
	AffiliateID string     `gorm:"column:affiliate_id;index;not null" json:"affiliate_id"`
	AmountUSD   float64    `gorm:"column:amount_usd;not null" json:"amount_usd"`
	Method      string     `gorm:"column:method;not null" json:"method"`
	Details     string     `gorm:"column:details" json:"details,omitempty"`
	Status      string     `gorm:"column:status;default:'pending';index" json:"status"`
	ProcessedBy string     `gorm:"column:processed_by" json:"processed_by,omitempty"`
	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Payout) TableName() string {
	return "affiliate_payouts"
}
