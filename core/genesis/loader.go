package genesis

import (
	"errors"
	"fmt"
	"strings"

	"voucherchain/core"
)

var ErrChainIDMismatch = errors.New("genesis: chain id mismatch")

// Apply seeds rt from spec. The block context is moved to height zero at the
// genesis time, the admin is bootstrapped and every allocation, role,
// qualification, product and cash-pool entry is applied in one execution.
// Entries are applied in sorted order so every node derives the same state.
func Apply(rt *core.Runtime, spec *GenesisSpec) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if rt == nil {
		return fmt.Errorf("runtime must not be nil")
	}
	if rt.ChainID() != spec.ChainID {
		return fmt.Errorf("%w: runtime %d, genesis %d", ErrChainIDMismatch, rt.ChainID(), spec.ChainID)
	}
	if err := rt.SetBlock(0, spec.GenesisTimestamp().Unix()); err != nil {
		return fmt.Errorf("genesis block: %w", err)
	}
	admin := spec.AdminAddress()
	if err := rt.Bootstrap(admin, spec.Ratio()); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	return rt.Execute("genesis", func(tx *core.Tx) error {
		// 1) Balances
		for _, account := range sortedKeys(spec.Alloc) {
			addr, err := parseAccount(account)
			if err != nil {
				return err
			}
			amount, err := parseAmountString(spec.Alloc[account])
			if err != nil {
				return err
			}
			if err := tx.Bank.Credit(addr, amount); err != nil {
				return fmt.Errorf("alloc %s: %w", account, err)
			}
		}

		// 2) Roles
		for _, role := range sortedKeys(spec.Roles) {
			for _, account := range spec.Roles[role] {
				addr, err := parseAccount(account)
				if err != nil {
					return err
				}
				if err := tx.State.SetRole(strings.TrimSpace(role), addr); err != nil {
					return fmt.Errorf("role %s: %w", role, err)
				}
			}
		}

		// 3) Referrer qualifications
		for _, account := range spec.Qualifications {
			addr, err := parseAccount(account)
			if err != nil {
				return err
			}
			if _, err := tx.Registry.MintQualification(admin, addr); err != nil {
				return fmt.Errorf("qualification %s: %w", account, err)
			}
		}

		// 4) Products
		for i := range spec.Products {
			p := &spec.Products[i]
			if err := tx.Products.Create(admin, p.ID, p.Params()); err != nil {
				return fmt.Errorf("product %d: %w", p.ID, err)
			}
		}

		// 5) Cash pool
		if pool := spec.CashPool; pool != nil {
			if pool.cash != nil && pool.cash.Sign() > 0 {
				if err := tx.Bank.Credit(tx.Pool.Address(), pool.cash); err != nil {
					return fmt.Errorf("cash pool funding: %w", err)
				}
			}
			for _, id := range pool.Products {
				if err := tx.Pool.AddProduct(admin, id); err != nil {
					return fmt.Errorf("cash pool product %d: %w", id, err)
				}
			}
			if pool.IncludeEarnings {
				if err := tx.Pool.AddProduct(admin, tx.Center.Slot()); err != nil {
					return fmt.Errorf("cash pool earnings slot: %w", err)
				}
			}
		}
		return nil
	})
}
