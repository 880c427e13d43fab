package entity

import (
	"math"
	"time"
)

// PriceQuote is a single off-chain quote drawn from a price snapshot.
type PriceQuote struct {
	FeedID      FeedID
	Mantissa    int64
	Exponent    int32
	PublishTime time.Time
}

// Price resolves the quote to mantissa * 10^exponent.
func (q PriceQuote) Price() float64 {
	return ScalePrice(q.Mantissa, q.Exponent)
}

// OnchainPrice is the price stored by an oracle contract for one feed.
type OnchainPrice struct {
	Mantissa    int64
	Exponent    int32
	PublishTime time.Time
}

// Price resolves the stored value to mantissa * 10^exponent.
func (p OnchainPrice) Price() float64 {
	return ScalePrice(p.Mantissa, p.Exponent)
}

// ScalePrice converts a fixed-point mantissa and decimal exponent to a float.
// Double precision is sufficient since update decisions are percentage based.
func ScalePrice(mantissa int64, exponent int32) float64 {
	return float64(mantissa) * math.Pow10(int(exponent))
}
