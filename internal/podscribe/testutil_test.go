package podscribe

import (
	"context"
	"math"
)

type fixedRate float64

func (f fixedRate) Convert(_ context.Context, amount float64) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	return amount * float64(f)
}

type regionTable map[string]string

func (m regionTable) Lookup(code string) string {
	if v, ok := m[code]; ok {
		return v
	}
	return UnknownKey
}

type panicRegions struct{}

func (panicRegions) Lookup(string) string { panic("lookup exploded") }
