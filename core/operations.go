package core

import (
	"math/big"
	"strings"

	"voucherchain/crypto"
	"voucherchain/native/product"
)

func (r *Runtime) requireAdmin(tx *Tx, caller [20]byte) error {
	if !tx.State.HasRole(RoleAdmin, caller) {
		return ErrUnauthorized
	}
	return nil
}

// GrantRole assigns role to addr.
func (r *Runtime) GrantRole(caller [20]byte, role string, addr [20]byte) error {
	return r.Execute("grant_role", func(tx *Tx) error {
		if err := r.requireAdmin(tx, caller); err != nil {
			return err
		}
		return tx.State.SetRole(strings.TrimSpace(role), addr)
	})
}

// RevokeRole removes role from addr.
func (r *Runtime) RevokeRole(caller [20]byte, role string, addr [20]byte) error {
	return r.Execute("revoke_role", func(tx *Tx) error {
		if err := r.requireAdmin(tx, caller); err != nil {
			return err
		}
		return tx.State.RemoveRole(strings.TrimSpace(role), addr)
	})
}

// SetPaused toggles the pause switch of a native module.
func (r *Runtime) SetPaused(caller [20]byte, module string, paused bool) error {
	return r.Execute("set_paused", func(tx *Tx) error {
		if err := r.requireAdmin(tx, caller); err != nil {
			return err
		}
		return tx.Pauses.SetPaused(module, paused)
	})
}

// Credit mints native balance to addr. Only the admin may fund accounts.
func (r *Runtime) Credit(caller, addr [20]byte, amount *big.Int) error {
	return r.Execute("bank_credit", func(tx *Tx) error {
		if err := r.requireAdmin(tx, caller); err != nil {
			return err
		}
		return tx.Bank.Credit(addr, amount)
	})
}

func (r *Runtime) Transfer(caller, to [20]byte, amount *big.Int) error {
	return r.Execute("bank_transfer", func(tx *Tx) error {
		return tx.Bank.Transfer(caller, to, amount)
	})
}

// --- ledger ---

func (r *Runtime) AddSlotManager(caller, manager [20]byte, slots ...uint64) error {
	return r.Execute("ledger_add_slot_manager", func(tx *Tx) error {
		return tx.Ledger.AddSlotManager(caller, manager, slots...)
	})
}

func (r *Runtime) TransferToAddress(caller [20]byte, fromTokenID uint64, to [20]byte, value *big.Int) (uint64, error) {
	var id uint64
	err := r.Execute("ledger_transfer_to_address", func(tx *Tx) error {
		var err error
		id, err = tx.Ledger.TransferToAddress(caller, fromTokenID, to, value)
		return err
	})
	return id, err
}

func (r *Runtime) TransferToToken(caller [20]byte, fromTokenID, toTokenID uint64, value *big.Int) error {
	return r.Execute("ledger_transfer_to_token", func(tx *Tx) error {
		return tx.Ledger.TransferToToken(caller, fromTokenID, toTokenID, value)
	})
}

func (r *Runtime) TransferToken(caller, from, to [20]byte, tokenID uint64) error {
	return r.Execute("ledger_transfer_token", func(tx *Tx) error {
		return tx.Ledger.TransferToken(caller, from, to, tokenID)
	})
}

func (r *Runtime) Split(caller [20]byte, tokenID uint64, value *big.Int) (uint64, error) {
	var id uint64
	err := r.Execute("ledger_split", func(tx *Tx) error {
		var err error
		id, err = tx.Ledger.Split(caller, tokenID, value)
		return err
	})
	return id, err
}

func (r *Runtime) Burn(caller [20]byte, tokenID uint64) error {
	return r.Execute("ledger_burn", func(tx *Tx) error {
		return tx.Ledger.Burn(caller, tokenID)
	})
}

func (r *Runtime) Approve(caller, to [20]byte, tokenID uint64) error {
	return r.Execute("ledger_approve", func(tx *Tx) error {
		return tx.Ledger.Approve(caller, to, tokenID)
	})
}

func (r *Runtime) SetApprovalForAll(caller, operator [20]byte, approved bool) error {
	return r.Execute("ledger_set_approval_for_all", func(tx *Tx) error {
		return tx.Ledger.SetApprovalForAll(caller, operator, approved)
	})
}

// --- products ---

func (r *Runtime) CreateProduct(caller [20]byte, id uint64, params product.Params) error {
	return r.Execute("product_create", func(tx *Tx) error {
		return tx.Products.Create(caller, id, params)
	})
}

func (r *Runtime) Subscribe(caller [20]byte, id uint64, value *big.Int) (uint64, error) {
	var voucher uint64
	err := r.Execute("product_subscribe", func(tx *Tx) error {
		var err error
		voucher, err = tx.Products.Subscribe(caller, id, value)
		return err
	})
	return voucher, err
}

func (r *Runtime) CancelSubscription(caller [20]byte, id uint64, amount *big.Int, receiver [20]byte) error {
	return r.Execute("product_cancel_subscription", func(tx *Tx) error {
		return tx.Products.CancelSubscription(caller, id, amount, receiver)
	})
}

func (r *Runtime) Loan(caller [20]byte, id uint64, amount *big.Int, receiver [20]byte) error {
	return r.Execute("product_loan", func(tx *Tx) error {
		return tx.Products.Loan(caller, id, amount, receiver)
	})
}

// --- referral ---

func (r *Runtime) MintQualification(caller, to [20]byte) (uint64, error) {
	var id uint64
	err := r.Execute("referral_mint_qualification", func(tx *Tx) error {
		var err error
		id, err = tx.Registry.MintQualification(caller, to)
		return err
	})
	return id, err
}

// Bind records the signer of sig as a referral of referrer. sig is the
// 65-byte [R || S || V] signature over the bind digest.
func (r *Runtime) Bind(referrer [20]byte, deadline *big.Int, sig []byte) ([20]byte, error) {
	v, rs, ss, err := crypto.SplitSignature(sig)
	if err != nil {
		return [20]byte{}, err
	}
	var referral [20]byte
	err = r.Execute("referral_bind", func(tx *Tx) error {
		var err error
		referral, err = tx.Registry.Bind(referrer, deadline, v, rs, ss)
		return err
	})
	return referral, err
}

func (r *Runtime) AddConsumer(caller, consumer [20]byte, ratio *big.Int) error {
	return r.Execute("referral_add_consumer", func(tx *Tx) error {
		return tx.Center.AddConsumer(caller, consumer, ratio)
	})
}

func (r *Runtime) TrackVoucher(tokenID uint64) error {
	return r.Execute("referral_track_voucher", func(tx *Tx) error {
		return tx.Center.TrackVoucher(tokenID)
	})
}

func (r *Runtime) ClaimEarnings(referrer [20]byte) (uint64, *big.Int, error) {
	var (
		voucher uint64
		amount  *big.Int
	)
	err := r.Execute("referral_claim_earnings", func(tx *Tx) error {
		var err error
		voucher, amount, err = tx.Center.ClaimEarnings(referrer)
		return err
	})
	return voucher, amount, err
}

func (r *Runtime) ClaimProductEarnings(referrer [20]byte, productIDs []uint64) (uint64, *big.Int, error) {
	var (
		voucher uint64
		amount  *big.Int
	)
	err := r.Execute("referral_claim_product_earnings", func(tx *Tx) error {
		var err error
		voucher, amount, err = tx.Center.ClaimProductEarnings(referrer, productIDs)
		return err
	})
	return voucher, amount, err
}

// --- cash pool ---

func (r *Runtime) AddPoolProduct(caller [20]byte, id uint64) error {
	return r.Execute("cashpool_add_product", func(tx *Tx) error {
		return tx.Pool.AddProduct(caller, id)
	})
}

func (r *Runtime) RemovePoolProduct(caller [20]byte, id uint64) error {
	return r.Execute("cashpool_remove_product", func(tx *Tx) error {
		return tx.Pool.RemoveProduct(caller, id)
	})
}

func (r *Runtime) Redeem(caller [20]byte, tokenID uint64, receiver [20]byte) (*big.Int, error) {
	var paid *big.Int
	err := r.Execute("cashpool_redeem", func(tx *Tx) error {
		var err error
		paid, err = tx.Pool.Redeem(caller, tokenID, receiver)
		return err
	})
	return paid, err
}
