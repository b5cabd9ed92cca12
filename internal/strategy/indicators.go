package strategy

import (
	"context"
	"errors"
)

// ErrDataUnavailable signals that the indicator collaborator could not serve
// the request; the analyzer skips the cycle and retries on the next tick.
var ErrDataUnavailable = errors.New("indicator data unavailable")

// IndicatorSet is the externally computed indicator snapshot for one symbol.
// Previous-sample EMA values are required for crossover detection.
type IndicatorSet struct {
	EMAShort     float64
	EMALong      float64
	PrevEMAShort float64
	PrevEMALong  float64
	RSI          float64
	Price        float64 // latest close
}

// IndicatorSource is the price/indicator collaborator.
type IndicatorSource interface {
	Latest(ctx context.Context, symbol string) (IndicatorSet, error)
}
