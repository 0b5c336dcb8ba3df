// Package exchange converts spend between currencies with one rate per run.
package exchange

import (
	"context"
	"math"
	"sync"

	"github.com/ignite/audio-retro/internal/pkg/logger"
)

// RateSource looks up a live currency rate.
type RateSource interface {
	GetRate(ctx context.Context, source, target string) (float64, error)
}

// Converter caches a single rate for the lifetime of one run. The first
// call to Rate performs at most one lookup; failures select the fallback.
type Converter struct {
	source   RateSource
	from, to string
	fallback float64

	once     sync.Once
	rate     float64
	fellBack bool
}

// NewConverter builds a per-run converter. A nil source always uses fallback.
func NewConverter(source RateSource, from, to string, fallback float64) *Converter {
	return &Converter{source: source, from: from, to: to, fallback: fallback}
}

// Rate returns the cached rate, fetching it on first use.
func (c *Converter) Rate(ctx context.Context) float64 {
	c.once.Do(func() {
		if c.source == nil {
			c.rate, c.fellBack = c.fallback, true
			return
		}
		r, err := c.source.GetRate(ctx, c.from, c.to)
		if err != nil || r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			logger.Warn("exchange: rate lookup failed, using fallback",
				"stage", "exchange", "from", c.from, "to", c.to, "fallback", c.fallback, "error", err)
			c.rate, c.fellBack = c.fallback, true
			return
		}
		c.rate = round6(r)
		logger.Info("exchange: rate cached", "stage", "exchange", "from", c.from, "to", c.to, "rate", c.rate)
	})
	return c.rate
}

// UsedFallback reports whether the cached rate is the fallback constant.
func (c *Converter) UsedFallback() bool {
	return c.fellBack
}

// Convert returns amount in the target currency; NaN and Inf become 0.
func (c *Converter) Convert(ctx context.Context, amount float64) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	return amount * c.Rate(ctx)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
