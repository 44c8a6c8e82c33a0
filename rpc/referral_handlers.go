package rpc

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"voucherchain/core"
)

func (s *Server) registerReferral() {
	s.register("referral_bindDigest", false, handleReferralBindDigest)
	s.register("referral_bindingOf", false, handleReferralBindingOf)
	s.register("referral_earnings", false, handleReferralEarnings)
	// Bind authorises itself through the referral's signature, so any
	// account may relay it.
	s.register("referral_bind", false, handleReferralBind)
	s.register("referral_trackVoucher", false, handleReferralTrackVoucher)
	s.register("referral_mintQualification", true, handleReferralMintQualification)
	s.register("referral_addConsumer", true, handleReferralAddConsumer)
	s.register("referral_claimEarnings", true, handleReferralClaimEarnings)
	s.register("referral_claimProductEarnings", true, handleReferralClaimProductEarnings)
}

type bindParams struct {
	Referrer  string `json:"referrer"`
	Deadline  string `json:"deadline"`
	Signature string `json:"signature,omitempty"`
}

func handleReferralBindDigest(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params bindParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	referrer, err := parseAddress(params.Referrer)
	if err != nil {
		return nil, invalidParams("invalid referrer", err)
	}
	deadline, err := parseAmount(params.Deadline)
	if err != nil {
		return nil, invalidParams("invalid deadline", err)
	}
	var digest []byte
	err = s.runtime.View(func(tx *core.Tx) error {
		var err error
		digest, err = tx.Registry.BindDigest(referrer, deadline)
		return err
	})
	if err != nil {
		return nil, executionError(err)
	}
	return hexutil.Encode(digest), nil
}

func handleReferralBind(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params bindParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	referrer, err := parseAddress(params.Referrer)
	if err != nil {
		return nil, invalidParams("invalid referrer", err)
	}
	deadline, err := parseAmount(params.Deadline)
	if err != nil {
		return nil, invalidParams("invalid deadline", err)
	}
	sig, err := hexutil.Decode(params.Signature)
	if err != nil {
		return nil, invalidParams("invalid signature", err)
	}
	referral, err := s.runtime.Bind(referrer, deadline, sig)
	if err != nil {
		return nil, executionError(err)
	}
	return map[string]string{"referral": formatAddress(referral)}, nil
}

func handleReferralBindingOf(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Referral string `json:"referral"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	referral, err := parseAddress(params.Referral)
	if err != nil {
		return nil, invalidParams("invalid referral", err)
	}
	var result *BindingResult
	err = s.runtime.View(func(tx *core.Tx) error {
		binding, ok, err := tx.Registry.BindingOf(referral)
		if err != nil || !ok {
			return err
		}
		result = &BindingResult{Referral: formatAddress(referral), Referrer: formatAddress(binding.Referrer), BindAt: binding.BindAt}
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

func handleReferralEarnings(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Referrer string `json:"referrer"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	referrer, err := parseAddress(params.Referrer)
	if err != nil {
		return nil, invalidParams("invalid referrer", err)
	}
	result := EarningsResult{Referrer: formatAddress(referrer), Products: []uint64{}}
	err = s.runtime.View(func(tx *core.Tx) error {
		distributed, err := tx.Center.DistributedEarnings(referrer)
		if err != nil {
			return err
		}
		accrued, err := tx.Center.AccruedEarnings(referrer)
		if err != nil {
			return err
		}
		count, err := tx.Center.ReferredProductCount(referrer)
		if err != nil {
			return err
		}
		for i := uint64(0); i < count; i++ {
			pid, err := tx.Center.ReferredProductByIndex(referrer, i)
			if err != nil {
				return err
			}
			result.Products = append(result.Products, pid)
		}
		result.Distributed = formatAmount(distributed)
		result.Accrued = formatAmount(accrued)
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

func handleReferralTrackVoucher(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params tokenParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.runtime.TrackVoucher(params.TokenID); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleReferralMintQualification(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		To string `json:"to"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	to, err := parseAddress(params.To)
	if err != nil {
		return nil, invalidParams("invalid recipient", err)
	}
	id, err := s.runtime.MintQualification(callerOf(r), to)
	if err != nil {
		return nil, executionError(err)
	}
	return map[string]uint64{"tokenId": id}, nil
}

func handleReferralAddConsumer(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Consumer string `json:"consumer"`
		Ratio    string `json:"ratio"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	consumer, err := parseAddress(params.Consumer)
	if err != nil {
		return nil, invalidParams("invalid consumer", err)
	}
	ratio, err := parseAmount(params.Ratio)
	if err != nil {
		return nil, invalidParams("invalid ratio", err)
	}
	if err := s.runtime.AddConsumer(callerOf(r), consumer, ratio); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

// Claims always act for the token subject; referrers cannot claim for others.
func handleReferralClaimEarnings(s *Server, r *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	id, amount, err := s.runtime.ClaimEarnings(callerOf(r))
	if err != nil {
		return nil, executionError(err)
	}
	return ClaimResult{TokenID: id, Amount: formatAmount(amount)}, nil
}

func handleReferralClaimProductEarnings(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		ProductIDs []uint64 `json:"productIds"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if len(params.ProductIDs) == 0 {
		return nil, invalidParams("productIds required", nil)
	}
	id, amount, err := s.runtime.ClaimProductEarnings(callerOf(r), params.ProductIDs)
	if err != nil {
		return nil, executionError(err)
	}
	return ClaimResult{TokenID: id, Amount: formatAmount(amount)}, nil
}
