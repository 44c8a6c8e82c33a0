package genesis

import (
	"fmt"
	"strings"

	"voucherchain/crypto"
)

// parseAccount accepts only vch-prefixed addresses; genesis never credits
// foreign networks.
func parseAccount(account string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(account))
	if err != nil {
		return [20]byte{}, fmt.Errorf("genesis: account %q: %w", account, err)
	}
	if addr.Prefix() != crypto.VoucherPrefix {
		return [20]byte{}, fmt.Errorf("genesis: account %q: want %s prefix, got %s", account, crypto.VoucherPrefix, addr.Prefix())
	}
	return addr.Raw(), nil
}
