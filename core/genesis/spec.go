package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"voucherchain/native/interest"
	"voucherchain/native/product"
	"voucherchain/native/referral"
)

// GenesisSpec is the YAML document that seeds a fresh chain.
type GenesisSpec struct {
	GenesisTime    string              `yaml:"genesisTime"`
	ChainID        uint64              `yaml:"chainId"`
	Admin          string              `yaml:"admin"`
	ReferralRatio  string              `yaml:"referralRatio,omitempty"`
	Alloc          map[string]string   `yaml:"alloc,omitempty"` // addr -> amount
	Roles          map[string][]string `yaml:"roles,omitempty"` // role -> []addr
	Qualifications []string            `yaml:"qualifications,omitempty"`
	Products       []ProductSpec       `yaml:"products,omitempty"`
	CashPool       *CashPoolSpec       `yaml:"cashPool,omitempty"`

	genesisTimestamp time.Time
	adminAddr        [20]byte
	ratio            *big.Int
}

type ProductSpec struct {
	ID                     uint64 `yaml:"id"`
	TotalQuota             string `yaml:"totalQuota"`
	MinSubscriptionAmount  string `yaml:"minSubscriptionAmount"`
	BeginSubscriptionBlock uint64 `yaml:"beginSubscriptionBlock"`
	EndSubscriptionBlock   uint64 `yaml:"endSubscriptionBlock"`
	MinHoldingDuration     uint64 `yaml:"minHoldingDuration"`
	InterestRate           string `yaml:"interestRate"`
	CashPool               string `yaml:"cashPool,omitempty"`

	params product.Params
}

// CashPoolSpec funds the cash pool and lists the slots it redeems.
type CashPoolSpec struct {
	Cash            string   `yaml:"cash,omitempty"`
	Products        []uint64 `yaml:"products,omitempty"`
	IncludeEarnings bool     `yaml:"includeEarnings,omitempty"`

	cash *big.Int
}

func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes and validates a YAML genesis document. Unknown
// fields are rejected.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

func (s *GenesisSpec) AdminAddress() [20]byte { return s.adminAddr }

// Ratio is the referral ratio of the product engine, DefaultRatio when unset.
func (s *GenesisSpec) Ratio() *big.Int {
	if s.ratio == nil {
		return new(big.Int).Set(referral.DefaultRatio)
	}
	return new(big.Int).Set(s.ratio)
}

func (s *GenesisSpec) validate() error {
	parsedTime, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = parsedTime

	if s.ChainID == 0 {
		return fmt.Errorf("chainId must be non-zero")
	}
	if strings.TrimSpace(s.Admin) == "" {
		return fmt.Errorf("admin must be provided")
	}
	s.adminAddr, err = parseAccount(strings.TrimSpace(s.Admin))
	if err != nil {
		return fmt.Errorf("admin: %w", err)
	}

	s.ratio = nil
	if strings.TrimSpace(s.ReferralRatio) != "" {
		ratio, err := parseAmountString(s.ReferralRatio)
		if err != nil {
			return fmt.Errorf("referralRatio: %w", err)
		}
		if ratio.Cmp(referral.RatioMantissa) > 0 {
			return fmt.Errorf("referralRatio must be <= %s", referral.RatioMantissa)
		}
		s.ratio = ratio
	}

	for _, account := range sortedKeys(s.Alloc) {
		if _, err := parseAccount(account); err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
		if strings.TrimSpace(s.Alloc[account]) == "" {
			return fmt.Errorf("alloc[%q]: amount must be provided", account)
		}
		if _, err := parseAmountString(s.Alloc[account]); err != nil {
			return fmt.Errorf("alloc[%q]: %w", account, err)
		}
	}

	for _, role := range sortedKeys(s.Roles) {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("roles: role name must be provided")
		}
		for i, account := range s.Roles[role] {
			if _, err := parseAccount(account); err != nil {
				return fmt.Errorf("roles[%q][%d]: %w", role, i, err)
			}
		}
	}

	for i, account := range s.Qualifications {
		if _, err := parseAccount(account); err != nil {
			return fmt.Errorf("qualifications[%d]: %w", i, err)
		}
	}

	productIDs := make(map[uint64]struct{}, len(s.Products))
	for i := range s.Products {
		p := &s.Products[i]
		if p.ID == 0 {
			return fmt.Errorf("products[%d]: id must be non-zero", i)
		}
		if _, dup := productIDs[p.ID]; dup {
			return fmt.Errorf("products[%d]: duplicate id %d", i, p.ID)
		}
		productIDs[p.ID] = struct{}{}
		if err := p.validate(); err != nil {
			return fmt.Errorf("products[%d]: %w", i, err)
		}
	}

	if s.CashPool != nil {
		cash, err := parseAmountString(s.CashPool.Cash)
		if err != nil {
			return fmt.Errorf("cashPool.cash: %w", err)
		}
		s.CashPool.cash = cash
		for i, id := range s.CashPool.Products {
			if _, ok := productIDs[id]; !ok {
				return fmt.Errorf("cashPool.products[%d]: undefined product %d", i, id)
			}
		}
	}
	return nil
}

func (p *ProductSpec) validate() error {
	quota, err := parseAmountString(p.TotalQuota)
	if err != nil {
		return fmt.Errorf("totalQuota: %w", err)
	}
	minAmount, err := parseAmountString(p.MinSubscriptionAmount)
	if err != nil {
		return fmt.Errorf("minSubscriptionAmount: %w", err)
	}
	if p.BeginSubscriptionBlock == 0 {
		return fmt.Errorf("beginSubscriptionBlock must be after genesis")
	}
	rate := strings.TrimSpace(p.InterestRate)
	if rate == "" {
		return fmt.Errorf("interestRate must be provided")
	}
	var pool [20]byte
	if strings.TrimSpace(p.CashPool) != "" {
		pool, err = parseAccount(strings.TrimSpace(p.CashPool))
		if err != nil {
			return fmt.Errorf("cashPool: %w", err)
		}
	}
	p.params = product.Params{
		TotalQuota:             quota,
		MinSubscriptionAmount:  minAmount,
		BeginSubscriptionBlock: p.BeginSubscriptionBlock,
		EndSubscriptionBlock:   p.EndSubscriptionBlock,
		MinHoldingDuration:     p.MinHoldingDuration,
		InterestRate:           rate,
		CashPool:               pool,
	}
	return nil
}

// Params returns the engine parameters parsed from the spec.
func (p *ProductSpec) Params() product.Params { return p.params.Clone() }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseAmountString(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
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

func parseGenesisTime(value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("invalid genesisTime %q", value)
}

// Sample returns a minimal development genesis owned by admin, with one
// product opening one block after genesis.
func Sample(admin string, chainID uint64, now time.Time) *GenesisSpec {
	begin := uint64(1)
	return &GenesisSpec{
		GenesisTime:    now.UTC().Format(time.RFC3339),
		ChainID:        chainID,
		Admin:          admin,
		Alloc:          map[string]string{admin: "1000000000000000000000000"},
		Qualifications: []string{admin},
		Products: []ProductSpec{{
			ID:                     1,
			TotalQuota:             "1000000000000000000000000",
			MinSubscriptionAmount:  "1000000000000000000",
			BeginSubscriptionBlock: begin,
			EndSubscriptionBlock:   begin + product.MinPeriod,
			MinHoldingDuration:     product.MinPeriod,
			InterestRate:           interest.TieredName,
		}},
		CashPool: &CashPoolSpec{
			Cash:            "100000000000000000000000",
			Products:        []uint64{1},
			IncludeEarnings: true,
		},
	}
}

// Encode renders the spec as YAML.
func (s *GenesisSpec) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
