package product

import (
	"math/big"

	"voucherchain/native/common"
)

// Product returns the stored definition of id.
func (e *Engine) Product(id uint64) (*Product, error) {
	return e.requireProduct(id)
}

func (e *Engine) ProductCount() (uint64, error) {
	if e.state == nil {
		return 0, ErrNilState
	}
	return common.ListLen[uint64](e.state, productIDsKey)
}

func (e *Engine) ProductIDByIndex(index uint64) (uint64, error) {
	if e.state == nil {
		return 0, ErrNilState
	}
	return common.ListAt[uint64](e.state, productIDsKey, index)
}

// ProductIDs lists every product id, newest first.
func (e *Engine) ProductIDs() ([]uint64, error) {
	if e.state == nil {
		return nil, ErrNilState
	}
	ids, err := common.ListLoad[uint64](e.state, productIDsKey)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		out = append(out, ids[i])
	}
	return out, nil
}

// ProductIDsInStage lists, newest first, the products whose window puts them
// in stage at the current block.
func (e *Engine) ProductIDsInStage(stage Stage) ([]uint64, error) {
	ids, err := e.ProductIDs()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		p, err := e.requireProduct(id)
		if err != nil {
			return nil, err
		}
		if e.stageOf(p) == stage {
			out = append(out, id)
		}
	}
	return out, nil
}

// Stage reports the lifecycle stage of id at the current block.
func (e *Engine) Stage(id uint64) (Stage, error) {
	p, err := e.requireProduct(id)
	if err != nil {
		return 0, err
	}
	return e.stageOf(p), nil
}

// NowAPR reports the informational APR label of id at the current block.
func (e *Engine) NowAPR(id uint64) (string, error) {
	p, err := e.requireProduct(id)
	if err != nil {
		return "", err
	}
	strategy, err := e.strategyFor(p)
	if err != nil {
		return "", err
	}
	return strategy.NowAPR(p.Params.BeginSubscriptionBlock, p.Params.EndSubscriptionBlock, e.blockHeight), nil
}

// Subscription returns subscriber's position in id.
func (e *Engine) Subscription(id uint64, subscriber [20]byte) (*Subscription, error) {
	if _, err := e.requireProduct(id); err != nil {
		return nil, err
	}
	sub, ok, err := e.loadSubscription(id, subscriber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotSubscriber
	}
	return sub, nil
}

func (e *Engine) IsSubscriber(id uint64, subscriber [20]byte) bool {
	if e.state == nil {
		return false
	}
	_, ok, err := e.loadSubscription(id, subscriber)
	return err == nil && ok
}

func (e *Engine) SubscriberCount(id uint64) (uint64, error) {
	if e.state == nil {
		return 0, ErrNilState
	}
	return common.ListLen[[20]byte](e.state, subscribersKey(id))
}

func (e *Engine) SubscriberByIndex(id, index uint64) ([20]byte, error) {
	if e.state == nil {
		return [20]byte{}, ErrNilState
	}
	return common.ListAt[[20]byte](e.state, subscribersKey(id), index)
}

// TotalEquities is the value currently held in the product's slot.
func (e *Engine) TotalEquities(id uint64) (*big.Int, error) {
	if _, err := e.requireProduct(id); err != nil {
		return nil, err
	}
	return e.ledger.SlotSupply(id)
}

func (e *Engine) TotalFundsRaised(id uint64) (*big.Int, error) {
	p, err := e.requireProduct(id)
	if err != nil {
		return nil, err
	}
	return p.FundsRaised, nil
}

func (e *Engine) TotalFundsLoaned(id uint64) (*big.Int, error) {
	p, err := e.requireProduct(id)
	if err != nil {
		return nil, err
	}
	return p.FundsLoaned, nil
}

// VoucherInterest is the interest tokenID has accrued at the current block.
// It is zero until the product is online.
func (e *Engine) VoucherInterest(tokenID uint64) (*big.Int, error) {
	if e.ledger == nil {
		return nil, ErrNilState
	}
	token, err := e.ledger.Token(tokenID)
	if err != nil {
		return nil, err
	}
	p, err := e.requireProduct(token.Slot)
	if err != nil {
		return nil, err
	}
	return e.voucherInterest(p, token.Value)
}

// EquitiesInterest computes interest for an arbitrary equities amount of
// product id as of block at, using the same formula as VoucherInterest.
func (e *Engine) EquitiesInterest(id uint64, equities *big.Int, at uint64) (*big.Int, error) {
	p, err := e.requireProduct(id)
	if err != nil {
		return nil, err
	}
	return e.equitiesInterestAt(p, equities, at)
}

// IsRedeemable reports whether tokenID has been held past the product's
// minimum holding duration after going online.
func (e *Engine) IsRedeemable(tokenID uint64) (bool, error) {
	if e.ledger == nil {
		return false, ErrNilState
	}
	token, err := e.ledger.Token(tokenID)
	if err != nil {
		return false, err
	}
	p, err := e.requireProduct(token.Slot)
	if err != nil {
		return false, err
	}
	return e.redeemable(p), nil
}

func (e *Engine) redeemable(p *Product) bool {
	if e.stageOf(p) != StageOnline {
		return false
	}
	return e.blockHeight-p.Params.EndSubscriptionBlock >= p.Params.MinHoldingDuration
}

// RedeemableAmount is the voucher value plus accrued interest.
func (e *Engine) RedeemableAmount(tokenID uint64) (*big.Int, error) {
	if e.ledger == nil {
		return nil, ErrNilState
	}
	token, err := e.ledger.Token(tokenID)
	if err != nil {
		return nil, err
	}
	p, err := e.requireProduct(token.Slot)
	if err != nil {
		return nil, err
	}
	if !e.redeemable(p) {
		return nil, ErrNotRedeemableAtPresent
	}
	accrued, err := e.voucherInterest(p, token.Value)
	if err != nil {
		return nil, err
	}
	return accrued.Add(accrued, token.Value), nil
}

// CashPoolOf returns the pool a product is pinned to, if any.
func (e *Engine) CashPoolOf(id uint64) ([20]byte, bool, error) {
	p, err := e.requireProduct(id)
	if err != nil {
		return [20]byte{}, false, err
	}
	return p.Params.CashPool, p.Params.CashPool != ([20]byte{}), nil
}
