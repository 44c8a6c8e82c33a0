package referral

import (
	"math/big"

	"voucherchain/core/events"
	"voucherchain/native/common"
	"voucherchain/native/ledger"
)

// DistributedEarnings is the settled, unclaimed balance of referrer.
func (c *Center) DistributedEarnings(referrer [20]byte) (*big.Int, error) {
	if c == nil || c.state == nil {
		return nil, ErrNilState
	}
	out := new(big.Int)
	if _, err := c.state.KVGet(distributedKey(referrer), out); err != nil {
		return nil, err
	}
	return out, nil
}

// AccruedEarnings is the distributed balance plus the unsettled earnings of
// every product the referrer tracks.
func (c *Center) AccruedEarnings(referrer [20]byte) (*big.Int, error) {
	total, err := c.DistributedEarnings(referrer)
	if err != nil {
		return nil, err
	}
	products, err := common.ListLoad[uint64](c.state, referredProductsKey(referrer))
	if err != nil {
		return nil, err
	}
	for _, pid := range products {
		pending, err := c.AccruedProductEarnings(referrer, pid)
		if err != nil {
			return nil, err
		}
		total.Add(total, pending)
	}
	return total, nil
}

// AccruedProductEarnings is the unsettled earnings of one product.
func (c *Center) AccruedProductEarnings(referrer [20]byte, productID uint64) (*big.Int, error) {
	if c == nil || c.state == nil {
		return nil, ErrNilState
	}
	rec, ok, err := c.loadRecord(referrer, productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	s, err := c.settlerForProduct(productID)
	if err != nil {
		return nil, err
	}
	accrued, err := s.interest(rec.TotalEquities, c.blockHeight)
	if err != nil {
		return nil, err
	}
	return s.earnings(common.SubFloor(accrued, rec.SettledInterest)), nil
}

// ClaimEarnings mints referrer's distributed earnings as a voucher in the
// center's slot. Nothing is minted when the balance is zero.
func (c *Center) ClaimEarnings(referrer [20]byte) (uint64, *big.Int, error) {
	if err := c.ready(); err != nil {
		return 0, nil, err
	}
	if referrer == ([20]byte{}) {
		return 0, nil, ErrZeroAddress
	}
	earnings, err := c.DistributedEarnings(referrer)
	if err != nil {
		return 0, nil, err
	}
	if earnings.Sign() == 0 {
		return 0, earnings, nil
	}
	voucherID, err := c.ledger.Mint(c.address, referrer, c.slot, earnings)
	if err != nil {
		return 0, nil, err
	}
	if err := c.state.KVDelete(distributedKey(referrer)); err != nil {
		return 0, nil, err
	}
	c.emitter.Emit(events.DistributedEarningsChanged{Referrer: referrer, Old: new(big.Int).Set(earnings), New: big.NewInt(0)})
	c.emitter.Emit(events.Claimed{Referrer: referrer, Earnings: new(big.Int).Set(earnings), VoucherID: voucherID})
	return voucherID, earnings, nil
}

// ClaimProductEarnings settles the listed products up to the current block
// before claiming.
func (c *Center) ClaimProductEarnings(referrer [20]byte, productIDs []uint64) (uint64, *big.Int, error) {
	if err := c.ready(); err != nil {
		return 0, nil, err
	}
	for _, pid := range productIDs {
		if err := c.forceSettle(referrer, pid); err != nil {
			return 0, nil, err
		}
	}
	return c.ClaimEarnings(referrer)
}

func (c *Center) forceSettle(referrer [20]byte, productID uint64) error {
	rec, ok, err := c.loadRecord(referrer, productID)
	if err != nil || !ok {
		return err
	}
	s, err := c.settlerForProduct(productID)
	if err != nil {
		return err
	}
	accrued, err := s.interest(rec.TotalEquities, c.blockHeight)
	if err != nil {
		return err
	}
	if accrued.Cmp(rec.SettledInterest) <= 0 {
		return nil
	}
	earned := s.earnings(new(big.Int).Sub(accrued, rec.SettledInterest))
	oldSettled := new(big.Int).Set(rec.SettledInterest)
	rec.SettledInterest = accrued
	c.emitter.Emit(events.Settlement{
		Referrer:           referrer,
		ProductID:          productID,
		OldTotalEquities:   new(big.Int).Set(rec.TotalEquities),
		NewTotalEquities:   new(big.Int).Set(rec.TotalEquities),
		OldSettledInterest: oldSettled,
		NewSettledInterest: new(big.Int).Set(accrued),
	})
	if err := c.storeRecord(referrer, productID, rec); err != nil {
		return err
	}
	return c.distribute(referrer, earned)
}

// TrackingRecord returns the checkpoint of (referrer, productID).
func (c *Center) TrackingRecord(referrer [20]byte, productID uint64) (*Record, bool, error) {
	if c == nil || c.state == nil {
		return nil, false, ErrNilState
	}
	return c.loadRecord(referrer, productID)
}

func (c *Center) ReferredProductCount(referrer [20]byte) (uint64, error) {
	if c == nil || c.state == nil {
		return 0, ErrNilState
	}
	return common.ListLen[uint64](c.state, referredProductsKey(referrer))
}

func (c *Center) ReferredProductByIndex(referrer [20]byte, index uint64) (uint64, error) {
	if c == nil || c.state == nil {
		return 0, ErrNilState
	}
	return common.ListAt[uint64](c.state, referredProductsKey(referrer), index)
}

func (c *Center) ConsumerCount() (uint64, error) {
	if c == nil || c.state == nil {
		return 0, ErrNilState
	}
	return common.ListLen[[20]byte](c.state, consumersKey)
}

func (c *Center) ConsumerByIndex(index uint64) ([20]byte, error) {
	if c == nil || c.state == nil {
		return [20]byte{}, ErrNilState
	}
	return common.ListAt[[20]byte](c.state, consumersKey, index)
}

// ConsumerRatio returns the earnings ratio of a registered consumer.
func (c *Center) ConsumerRatio(consumer [20]byte) (*big.Int, error) {
	if c == nil || c.state == nil {
		return nil, ErrNilState
	}
	ratio, ok, err := c.consumerRatio(consumer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrIllegalConsumer
	}
	return ratio, nil
}

// IsTracked reports whether tokenID's value is attributed to a referrer.
func (c *Center) IsTracked(tokenID uint64) (bool, error) {
	if c == nil || c.state == nil {
		return false, ErrNilState
	}
	var tracked bool
	ok, err := c.state.KVGet(trackedKey(tokenID), &tracked)
	return ok && tracked, err
}

// IsRedeemable reports whether an earnings voucher can be cashed. Earnings
// vouchers carry no lockup.
func (c *Center) IsRedeemable(tokenID uint64) (bool, error) {
	if _, err := c.earningsVoucher(tokenID); err != nil {
		return false, err
	}
	return true, nil
}

// RedeemableAmount is the face value of an earnings voucher.
func (c *Center) RedeemableAmount(tokenID uint64) (*big.Int, error) {
	token, err := c.earningsVoucher(tokenID)
	if err != nil {
		return nil, err
	}
	return token.Value, nil
}

func (c *Center) earningsVoucher(tokenID uint64) (*ledger.Token, error) {
	if c == nil || c.ledger == nil {
		return nil, ErrNilState
	}
	token, err := c.ledger.Token(tokenID)
	if err != nil {
		return nil, err
	}
	if token.Slot != c.slot {
		return nil, ErrIllegalVoucher
	}
	return token, nil
}

// BeforeValueTransfer leaves earnings vouchers freely transferable.
func (c *Center) BeforeValueTransfer(caller [20]byte, _ ledger.ValueTransfer) error {
	if c.ledger == nil || caller != c.ledger.Address() {
		return ErrIllegalCaller
	}
	return nil
}

func (c *Center) AfterValueTransfer(caller [20]byte, _ ledger.ValueTransfer) error {
	if c.ledger == nil || caller != c.ledger.Address() {
		return ErrIllegalCaller
	}
	return nil
}
