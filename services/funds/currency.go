package funds

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"smmpanel/pkg/errutil"
	"smmpanel/pkg/repository"
)

const rateCacheTTL = time.Minute

// Converter translates amounts between display currencies through the home
// currency. An unknown or disabled currency is an error, never a silent
// fallback to the home rate.
type Converter interface {
	Convert(ctx context.Context, amount float64, from, to string) (float64, error)
	// ConvertTx reads a cold rate cache through the caller's transaction.
	// Callers holding an open transaction must use it, or the rate query
	// needs a second pooled connection the transaction may be pinning.
	ConvertTx(ctx context.Context, tx *gorm.DB, amount float64, from, to string) (float64, error)
	Rate(ctx context.Context, code string) (float64, error)
	Invalidate()
}

type converter struct {
	currencies repository.Repository[Currency]

	mu        sync.RWMutex
	rates     map[string]float64
	expiresAt time.Time
	group     singleflight.Group
}

func NewConverter(currencies repository.Repository[Currency]) Converter {
	return &converter{currencies: currencies}
}

func (c *converter) Convert(ctx context.Context, amount float64, from, to string) (float64, error) {
	return c.ConvertTx(ctx, nil, amount, from, to)
}

func (c *converter) ConvertTx(ctx context.Context, tx *gorm.DB, amount float64, from, to string) (float64, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	if from == to {
		return amount, nil
	}

	rates, err := c.loadRates(ctx, tx)
	if err != nil {
		return 0, err
	}
	fromRate, err := pick(rates, from)
	if err != nil {
		return 0, err
	}
	toRate, err := pick(rates, to)
	if err != nil {
		return 0, err
	}
	return amount / fromRate * toRate, nil
}

func (c *converter) Rate(ctx context.Context, code string) (float64, error) {
	rates, err := c.loadRates(ctx, nil)
	if err != nil {
		return 0, err
	}
	return pick(rates, strings.ToUpper(code))
}

func pick(rates map[string]float64, code string) (float64, error) {
	rate, ok := rates[code]
	if !ok {
		return 0, errutil.UnprocessableEntity(fmt.Sprintf("Currency %s is not supported", code))
	}
	return rate, nil
}

// loadRates serves from the in-process cache. A miss with tx set reads on the
// caller's connection; a miss without one collapses concurrent readers into a
// single pooled query.
func (c *converter) loadRates(ctx context.Context, tx *gorm.DB) (map[string]float64, error) {
	c.mu.RLock()
	if c.rates != nil && time.Now().Before(c.expiresAt) {
		rates := c.rates
		c.mu.RUnlock()
		return rates, nil
	}
	c.mu.RUnlock()

	if tx != nil {
		return c.fetch(ctx, c.currencies.WithTrx(tx))
	}

	result, err, _ := c.group.Do("rates", func() (any, error) {
		return c.fetch(ctx, c.currencies)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]float64), nil
}

func (c *converter) fetch(ctx context.Context, store repository.Repository[Currency]) (map[string]float64, error) {
	currencies, err := store.Find(ctx, &Currency{Enabled: true})
	if err != nil {
		return nil, err
	}

	rates := make(map[string]float64, len(currencies))
	for _, currency := range currencies {
		if currency.Rate > 0 {
			rates[currency.Code] = currency.Rate
		}
	}

	c.mu.Lock()
	c.rates = rates
	c.expiresAt = time.Now().Add(rateCacheTTL)
	c.mu.Unlock()
	return rates, nil
}

// Invalidate drops the cache after a currency write.
func (c *converter) Invalidate() {
	c.mu.Lock()
	c.rates = nil
	c.mu.Unlock()
}
