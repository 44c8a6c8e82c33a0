package interest

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// SecondsPerBlock is the fixed block cadence the APR conversion assumes.
	SecondsPerBlock = 30
	BlocksPerDay    = 24 * 60 * 60 / SecondsPerBlock
	BlocksPerYear   = 365 * BlocksPerDay
)

// TieredName identifies the tiered strategy in product parameters.
const TieredName = "tiered"

var ErrIllegalBlockRange = errors.New("interest: illegal block range")

// expScale is the fixed-point scale of per-block rates.
var expScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)

// Strategy maps a principal and a block span onto accrued interest. Products
// reference strategies by name.
type Strategy interface {
	Name() string
	Calculate(principal *big.Int, beginBlock, endBlock, fromBlock, toBlock uint64) (*big.Int, error)
	NowAPR(beginBlock, endBlock, nowBlock uint64) string
}

// Tier is an APR band applying while the holding duration after the
// subscription window is at most MaxHolding blocks. A zero MaxHolding marks
// the open-ended final tier.
type Tier struct {
	MaxHolding uint64
	APR        uint64
}

// Tiered rewards longer holding with a higher APR. The tier is chosen from
// the holding duration at toBlock and applied to the whole span; callers
// settle incrementally so spans stay short.
type Tiered struct {
	subscriptionAPR uint64
	tiers           []Tier
}

// NewTiered returns the default schedule: 5% up to 120 days, 7% up to 240
// days, 9% up to 360 days and 11% beyond, with the subscription window paying
// the first tier's rate.
func NewTiered() *Tiered {
	return &Tiered{
		subscriptionAPR: 5,
		tiers: []Tier{
			{MaxHolding: 120 * BlocksPerDay, APR: 5},
			{MaxHolding: 240 * BlocksPerDay, APR: 7},
			{MaxHolding: 360 * BlocksPerDay, APR: 9},
			{APR: 11},
		},
	}
}

func (t *Tiered) Name() string { return TieredName }

// BlockRate converts an APR percentage into a per-block rate scaled by 1e36.
func BlockRate(apr uint64) *big.Int {
	rate := new(big.Int).Mul(expScale, new(big.Int).SetUint64(apr))
	rate.Quo(rate, big.NewInt(100))
	return rate.Quo(rate, big.NewInt(BlocksPerYear))
}

// Accrue applies a per-block rate to principal over blocks.
func Accrue(principal, blockRate *big.Int, blocks uint64) *big.Int {
	if principal == nil || principal.Sign() <= 0 || blocks == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(principal, blockRate)
	out.Mul(out, new(big.Int).SetUint64(blocks))
	return out.Quo(out, expScale)
}

func (t *Tiered) aprAt(endBlock, toBlock uint64) uint64 {
	if toBlock <= endBlock {
		return t.subscriptionAPR
	}
	holding := toBlock - endBlock
	for _, tier := range t.tiers {
		if tier.MaxHolding == 0 || holding <= tier.MaxHolding {
			return tier.APR
		}
	}
	return t.tiers[len(t.tiers)-1].APR
}

// Calculate returns the interest principal accrues between fromBlock and
// toBlock for a product whose subscription window is [beginBlock, endBlock].
func (t *Tiered) Calculate(principal *big.Int, beginBlock, endBlock, fromBlock, toBlock uint64) (*big.Int, error) {
	if beginBlock >= endBlock || fromBlock > toBlock {
		return nil, ErrIllegalBlockRange
	}
	return Accrue(principal, BlockRate(t.aprAt(endBlock, toBlock)), toBlock-fromBlock), nil
}

// NowAPR reports the APR label applying at nowBlock.
func (t *Tiered) NowAPR(beginBlock, endBlock, nowBlock uint64) string {
	if nowBlock < beginBlock {
		return "0%"
	}
	return fmt.Sprintf("%d%%", t.aprAt(endBlock, nowBlock))
}
