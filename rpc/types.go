package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"voucherchain/crypto"
)

// formatAddress renders a raw account as a bech32 string. The zero account
// renders empty.
func formatAddress(raw [20]byte) string {
	if raw == ([20]byte{}) {
		return ""
	}
	return crypto.AddressFromRaw(raw).String()
}

func parseAddress(value string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	if addr.Prefix() != crypto.VoucherPrefix {
		return [20]byte{}, fmt.Errorf("address must use %s prefix", crypto.VoucherPrefix)
	}
	return addr.Raw(), nil
}

// parseOptionalAddress returns the zero account for empty input.
func parseOptionalAddress(value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, nil
	}
	return parseAddress(value)
}

// parseAmount decodes a base-10 integer string. Negative amounts are rejected.
func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// decodeParams unmarshals the single object parameter of req into dst.
func decodeParams(req *RPCRequest, dst interface{}) *RPCError {
	if len(req.Params) != 1 {
		return &RPCError{Code: codeInvalidParams, Message: "parameter object required"}
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid parameter object", Data: err.Error()}
	}
	return nil
}

func invalidParams(message string, err error) *RPCError {
	rpcErr := &RPCError{Code: codeInvalidParams, Message: message}
	if err != nil {
		rpcErr.Data = err.Error()
	}
	return rpcErr
}

type AccountResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Tokens  int    `json:"tokens"`
}

type TokenResult struct {
	ID       uint64 `json:"id"`
	Owner    string `json:"owner"`
	Slot     uint64 `json:"slot"`
	Value    string `json:"value"`
	Approved string `json:"approved,omitempty"`
}

type SlotResult struct {
	ID      uint64 `json:"id"`
	Manager string `json:"manager"`
	Supply  string `json:"supply"`
	Tokens  uint64 `json:"tokens"`
}

type ProductResult struct {
	ID                     uint64 `json:"id"`
	Operator               string `json:"operator"`
	Stage                  string `json:"stage"`
	NowAPR                 string `json:"nowApr"`
	TotalQuota             string `json:"totalQuota"`
	MinSubscriptionAmount  string `json:"minSubscriptionAmount"`
	BeginSubscriptionBlock uint64 `json:"beginSubscriptionBlock"`
	EndSubscriptionBlock   uint64 `json:"endSubscriptionBlock"`
	MinHoldingDuration     uint64 `json:"minHoldingDuration"`
	InterestRate           string `json:"interestRate"`
	CashPool               string `json:"cashPool,omitempty"`
	FundsRaised            string `json:"fundsRaised"`
	FundsLoaned            string `json:"fundsLoaned"`
	TotalEquities          string `json:"totalEquities"`
	Subscribers            uint64 `json:"subscribers"`
}

type SubscriptionResult struct {
	ProductID  uint64 `json:"productId"`
	Subscriber string `json:"subscriber"`
	Principal  string `json:"principal"`
	AtBlock    uint64 `json:"atBlock"`
	VoucherID  uint64 `json:"voucherId"`
}

type VoucherResult struct {
	TokenID          uint64 `json:"tokenId"`
	Interest         string `json:"interest"`
	Redeemable       bool   `json:"redeemable"`
	RedeemableAmount string `json:"redeemableAmount"`
}

type BindingResult struct {
	Referral string `json:"referral"`
	Referrer string `json:"referrer"`
	BindAt   uint64 `json:"bindAt"`
}

type EarningsResult struct {
	Referrer    string   `json:"referrer"`
	Distributed string   `json:"distributed"`
	Accrued     string   `json:"accrued"`
	Products    []uint64 `json:"products"`
}

type ClaimResult struct {
	TokenID uint64 `json:"tokenId"`
	Amount  string `json:"amount"`
}

type CashPoolResult struct {
	Address  string                  `json:"address"`
	Cash     string                  `json:"cash"`
	Products []CashPoolProductResult `json:"products"`
}

type CashPoolProductResult struct {
	ProductID        uint64 `json:"productId"`
	RedeemedEquities string `json:"redeemedEquities"`
	RedeemedAmount   string `json:"redeemedAmount"`
}

type ChainInfoResult struct {
	ChainID      uint64 `json:"chainId"`
	Height       uint64 `json:"height"`
	Timestamp    int64  `json:"timestamp"`
	Bootstrapped bool   `json:"bootstrapped"`
}

type EventResult struct {
	Height     uint64            `json:"height"`
	Timestamp  int64             `json:"timestamp"`
	Op         string            `json:"op"`
	Index      int               `json:"index"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

type EventPageResult struct {
	Total  int64         `json:"total"`
	Events []EventResult `json:"events"`
}
