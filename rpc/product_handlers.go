package rpc

import (
	"net/http"
	"strings"

	"voucherchain/core"
	"voucherchain/native/product"
)

func (s *Server) registerProduct() {
	s.register("product_get", false, handleProductGet)
	s.register("product_ids", false, handleProductIDs)
	s.register("product_subscription", false, handleProductSubscription)
	s.register("product_voucher", false, handleProductVoucher)
	s.register("product_create", true, handleProductCreate)
	s.register("product_subscribe", true, handleProductSubscribe)
	s.register("product_cancelSubscription", true, handleProductCancelSubscription)
	s.register("product_loan", true, handleProductLoan)
}

type productIDParams struct {
	ProductID uint64 `json:"productId"`
}

func handleProductGet(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params productIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	var result ProductResult
	err := s.runtime.View(func(tx *core.Tx) error {
		p, err := tx.Products.Product(params.ProductID)
		if err != nil {
			return err
		}
		stage, err := tx.Products.Stage(p.ID)
		if err != nil {
			return err
		}
		apr, err := tx.Products.NowAPR(p.ID)
		if err != nil {
			return err
		}
		equities, err := tx.Products.TotalEquities(p.ID)
		if err != nil {
			return err
		}
		subscribers, err := tx.Products.SubscriberCount(p.ID)
		if err != nil {
			return err
		}
		result = ProductResult{
			ID:                     p.ID,
			Operator:               formatAddress(p.Operator),
			Stage:                  stage.String(),
			NowAPR:                 apr,
			TotalQuota:             formatAmount(p.Params.TotalQuota),
			MinSubscriptionAmount:  formatAmount(p.Params.MinSubscriptionAmount),
			BeginSubscriptionBlock: p.Params.BeginSubscriptionBlock,
			EndSubscriptionBlock:   p.Params.EndSubscriptionBlock,
			MinHoldingDuration:     p.Params.MinHoldingDuration,
			InterestRate:           p.Params.InterestRate,
			CashPool:               formatAddress(p.Params.CashPool),
			FundsRaised:            formatAmount(p.FundsRaised),
			FundsLoaned:            formatAmount(p.FundsLoaned),
			TotalEquities:          formatAmount(equities),
			Subscribers:            subscribers,
		}
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

// handleProductIDs lists product ids newest first, optionally narrowed to one
// lifecycle stage at the current block.
func handleProductIDs(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Stage string `json:"stage"`
	}
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(req, &params); rpcErr != nil {
			return nil, rpcErr
		}
	}
	var (
		stage    product.Stage
		filtered = params.Stage != ""
	)
	if filtered {
		var err error
		if stage, err = product.ParseStage(params.Stage); err != nil {
			return nil, invalidParams("invalid stage", err)
		}
	}
	result := []uint64{}
	err := s.runtime.View(func(tx *core.Tx) error {
		var (
			ids []uint64
			err error
		)
		if filtered {
			ids, err = tx.Products.ProductIDsInStage(stage)
		} else {
			ids, err = tx.Products.ProductIDs()
		}
		if err != nil {
			return err
		}
		result = append(result, ids...)
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

func handleProductSubscription(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ProductID  uint64 `json:"productId"`
		Subscriber string `json:"subscriber"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	subscriber, err := parseAddress(params.Subscriber)
	if err != nil {
		return nil, invalidParams("invalid subscriber", err)
	}
	var result SubscriptionResult
	err = s.runtime.View(func(tx *core.Tx) error {
		sub, err := tx.Products.Subscription(params.ProductID, subscriber)
		if err != nil {
			return err
		}
		result = SubscriptionResult{
			ProductID:  sub.ProductID,
			Subscriber: formatAddress(sub.Subscriber),
			Principal:  formatAmount(sub.Principal),
			AtBlock:    sub.AtBlock,
			VoucherID:  sub.VoucherID,
		}
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

// handleProductVoucher reports interest and redeemability of a product or
// earnings voucher.
func handleProductVoucher(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params tokenParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	result := VoucherResult{TokenID: params.TokenID, Interest: "0"}
	err := s.runtime.View(func(tx *core.Tx) error {
		slot, err := tx.Ledger.SlotOf(params.TokenID)
		if err != nil {
			return err
		}
		if slot == tx.Center.Slot() {
			ok, err := tx.Center.IsRedeemable(params.TokenID)
			if err != nil {
				return err
			}
			amount, err := tx.Center.RedeemableAmount(params.TokenID)
			if err != nil {
				return err
			}
			result.Redeemable = ok
			result.RedeemableAmount = formatAmount(amount)
			return nil
		}
		interest, err := tx.Products.VoucherInterest(params.TokenID)
		if err != nil {
			return err
		}
		ok, err := tx.Products.IsRedeemable(params.TokenID)
		if err != nil {
			return err
		}
		amount, err := tx.Products.RedeemableAmount(params.TokenID)
		if err != nil {
			return err
		}
		result.Interest = formatAmount(interest)
		result.Redeemable = ok
		result.RedeemableAmount = formatAmount(amount)
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

func handleProductCreate(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ProductID              uint64 `json:"productId"`
		TotalQuota             string `json:"totalQuota"`
		MinSubscriptionAmount  string `json:"minSubscriptionAmount"`
		BeginSubscriptionBlock uint64 `json:"beginSubscriptionBlock"`
		EndSubscriptionBlock   uint64 `json:"endSubscriptionBlock"`
		MinHoldingDuration     uint64 `json:"minHoldingDuration"`
		InterestRate           string `json:"interestRate"`
		CashPool               string `json:"cashPool"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	quota, err := parseAmount(params.TotalQuota)
	if err != nil {
		return nil, invalidParams("invalid totalQuota", err)
	}
	minAmount, err := parseAmount(params.MinSubscriptionAmount)
	if err != nil {
		return nil, invalidParams("invalid minSubscriptionAmount", err)
	}
	pool, err := parseOptionalAddress(params.CashPool)
	if err != nil {
		return nil, invalidParams("invalid cashPool", err)
	}
	create := product.Params{
		TotalQuota:             quota,
		MinSubscriptionAmount:  minAmount,
		BeginSubscriptionBlock: params.BeginSubscriptionBlock,
		EndSubscriptionBlock:   params.EndSubscriptionBlock,
		MinHoldingDuration:     params.MinHoldingDuration,
		InterestRate:           strings.TrimSpace(params.InterestRate),
		CashPool:               pool,
	}
	if err := s.runtime.CreateProduct(callerOf(r), params.ProductID, create); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleProductSubscribe(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ProductID uint64 `json:"productId"`
		Value     string `json:"value"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		return nil, invalidParams("invalid value", err)
	}
	voucher, err := s.runtime.Subscribe(callerOf(r), params.ProductID, value)
	if err != nil {
		return nil, executionError(err)
	}
	return map[string]uint64{"tokenId": voucher}, nil
}

type fundsParams struct {
	ProductID uint64 `json:"productId"`
	Amount    string `json:"amount"`
	Receiver  string `json:"receiver"`
}

func parseFundsParams(r *http.Request, req *RPCRequest) (fundsParams, [20]byte, *RPCError) {
	var params fundsParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return params, [20]byte{}, rpcErr
	}
	receiver := callerOf(r)
	if strings.TrimSpace(params.Receiver) != "" {
		addr, err := parseAddress(params.Receiver)
		if err != nil {
			return params, [20]byte{}, invalidParams("invalid receiver", err)
		}
		receiver = addr
	}
	return params, receiver, nil
}

func handleProductCancelSubscription(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	params, receiver, rpcErr := parseFundsParams(r, req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams("invalid amount", err)
	}
	if err := s.runtime.CancelSubscription(callerOf(r), params.ProductID, amount, receiver); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleProductLoan(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	params, receiver, rpcErr := parseFundsParams(r, req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams("invalid amount", err)
	}
	if err := s.runtime.Loan(callerOf(r), params.ProductID, amount, receiver); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}
