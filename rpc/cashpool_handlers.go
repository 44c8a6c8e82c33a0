package rpc

import (
	"net/http"
	"strings"

	"voucherchain/core"
)

func (s *Server) registerCashPool() {
	s.register("cashpool_info", false, handleCashPoolInfo)
	s.register("cashpool_addProduct", true, handleCashPoolAddProduct)
	s.register("cashpool_removeProduct", true, handleCashPoolRemoveProduct)
	s.register("cashpool_redeem", true, handleCashPoolRedeem)
}

func handleCashPoolInfo(s *Server, _ *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	result := CashPoolResult{Products: []CashPoolProductResult{}}
	err := s.runtime.View(func(tx *core.Tx) error {
		cash, err := tx.Pool.Cash()
		if err != nil {
			return err
		}
		result.Address = formatAddress(tx.Pool.Address())
		result.Cash = formatAmount(cash)
		count, err := tx.Pool.ProductCount()
		if err != nil {
			return err
		}
		for i := uint64(0); i < count; i++ {
			pid, err := tx.Pool.ProductByIndex(i)
			if err != nil {
				return err
			}
			equities, err := tx.Pool.RedeemedEquities(pid)
			if err != nil {
				return err
			}
			amount, err := tx.Pool.RedeemedAmount(pid)
			if err != nil {
				return err
			}
			result.Products = append(result.Products, CashPoolProductResult{
				ProductID:        pid,
				RedeemedEquities: formatAmount(equities),
				RedeemedAmount:   formatAmount(amount),
			})
		}
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

func handleCashPoolAddProduct(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params productIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.runtime.AddPoolProduct(callerOf(r), params.ProductID); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleCashPoolRemoveProduct(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params productIDParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.runtime.RemovePoolProduct(callerOf(r), params.ProductID); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleCashPoolRedeem(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		TokenID  uint64 `json:"tokenId"`
		Receiver string `json:"receiver"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	receiver := callerOf(r)
	if strings.TrimSpace(params.Receiver) != "" {
		addr, err := parseAddress(params.Receiver)
		if err != nil {
			return nil, invalidParams("invalid receiver", err)
		}
		receiver = addr
	}
	paid, err := s.runtime.Redeem(callerOf(r), params.TokenID, receiver)
	if err != nil {
		return nil, executionError(err)
	}
	return map[string]string{"amount": formatAmount(paid)}, nil
}
