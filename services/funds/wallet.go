package funds

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"smmpanel/pkg/config"
	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
	"smmpanel/services/user"
)

// Entry describes one wallet movement. AmountUSD is always positive; the
// operation decides the sign.
type Entry struct {
	UserID      string
	AmountUSD   float64
	Type        string
	ReferenceID string
	Note        string
}

// Wallet moves money on user balances inside a caller-owned transaction, so
// a balance change and the state change that caused it commit together.
type Wallet interface {
	Debit(ctx context.Context, tx *gorm.DB, e Entry) (*Transaction, error)
	Credit(ctx context.Context, tx *gorm.DB, e Entry) (*Transaction, error)
}

type wallet struct {
	cfg          *config.Config
	node         *snowflake.Node
	converter    Converter
	transactions repository.Repository[Transaction]
}

func NewWallet(cfg *config.Config, node *snowflake.Node, converter Converter, transactions repository.Repository[Transaction]) Wallet {
	return &wallet{cfg: cfg, node: node, converter: converter, transactions: transactions}
}

func (w *wallet) Debit(ctx context.Context, tx *gorm.DB, e Entry) (*Transaction, error) {
	return w.apply(ctx, tx, e, -1)
}

func (w *wallet) Credit(ctx context.Context, tx *gorm.DB, e Entry) (*Transaction, error) {
	return w.apply(ctx, tx, e, 1)
}

func (w *wallet) apply(ctx context.Context, tx *gorm.DB, e Entry, sign float64) (*Transaction, error) {
	if e.AmountUSD <= 0 {
		return nil, errutil.BadRequest("Amount must be positive")
	}

	q := tx.WithContext(ctx)
	// SQLite has no row locks; its single writer covers the test path.
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var u user.User
	if err := q.First(&u, "id = ?", e.UserID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errutil.NotFound("User not found")
		}
		return nil, err
	}

	amountUSD := sign * e.AmountUSD
	if u.BalanceUSD+amountUSD < 0 {
		return nil, errutil.UnprocessableEntity("Insufficient funds")
	}

	// Rate reads go through the open transaction; a separate pooled
	// connection could be pinned by this very transaction.
	amount, err := w.converter.ConvertTx(ctx, tx, amountUSD, w.cfg.Currency.HomeCode, u.CurrencyCode)
	if err != nil {
		return nil, err
	}

	u.Balance += amount
	u.BalanceUSD += amountUSD
	if err := tx.WithContext(ctx).Model(&user.User{}).Where("id = ?", u.ID).Updates(map[string]any{
		"balance":     u.Balance,
		"balance_usd": u.BalanceUSD,
	}).Error; err != nil {
		return nil, err
	}

	entry := &Transaction{
		ID:              w.node.Generate().String(),
		UserID:          u.ID,
		Type:            e.Type,
		Amount:          amount,
		AmountUSD:       amountUSD,
		BalanceAfter:    u.Balance,
		BalanceAfterUSD: u.BalanceUSD,
		CurrencyCode:    u.CurrencyCode,
		ReferenceID:     e.ReferenceID,
		Note:            e.Note,
	}
	if err := w.transactions.WithTrx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
