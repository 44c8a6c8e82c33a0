package rpc

import (
	"math/big"
	"net/http"
	"strings"

	"voucherchain/core"
	"voucherchain/indexer"
)

func (s *Server) registerChain() {
	s.register("chain_info", false, handleChainInfo)
	s.register("chain_grantRole", true, handleChainGrantRole)
	s.register("chain_revokeRole", true, handleChainRevokeRole)
	s.register("chain_setPaused", true, handleChainSetPaused)
	s.register("bank_balance", false, handleBankBalance)
	s.register("bank_transfer", true, handleBankTransfer)
	s.register("bank_credit", true, handleBankCredit)
	s.register("events_list", false, handleEventsList)
}

func callerOf(r *http.Request) [20]byte {
	caller, _ := CallerFrom(r.Context())
	return caller
}

func handleChainInfo(s *Server, _ *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	block := s.runtime.Block()
	return ChainInfoResult{
		ChainID:      s.runtime.ChainID(),
		Height:       block.Height,
		Timestamp:    block.Timestamp,
		Bootstrapped: s.runtime.Bootstrapped(),
	}, nil
}

type roleParams struct {
	Role    string `json:"role"`
	Address string `json:"address"`
}

func parseRoleParams(req *RPCRequest) (string, [20]byte, *RPCError) {
	var params roleParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return "", [20]byte{}, rpcErr
	}
	role := strings.TrimSpace(params.Role)
	if role == "" {
		return "", [20]byte{}, invalidParams("role required", nil)
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		return "", [20]byte{}, invalidParams("invalid address", err)
	}
	return role, addr, nil
}

func handleChainGrantRole(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	role, addr, rpcErr := parseRoleParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.runtime.GrantRole(callerOf(r), role, addr); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleChainRevokeRole(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	role, addr, rpcErr := parseRoleParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.runtime.RevokeRole(callerOf(r), role, addr); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleChainSetPaused(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Module string `json:"module"`
		Paused bool   `json:"paused"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if strings.TrimSpace(params.Module) == "" {
		return nil, invalidParams("module required", nil)
	}
	if err := s.runtime.SetPaused(callerOf(r), strings.TrimSpace(params.Module), params.Paused); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleBankBalance(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Address string `json:"address"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		return nil, invalidParams("invalid address", err)
	}
	var result AccountResult
	err = s.runtime.View(func(tx *core.Tx) error {
		balance, err := tx.Bank.Balance(addr)
		if err != nil {
			return err
		}
		tokens, err := tx.Ledger.BalanceOf(addr)
		if err != nil {
			return err
		}
		result = AccountResult{Address: formatAddress(addr), Balance: formatAmount(balance), Tokens: int(tokens)}
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

type amountParams struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func parseAmountParams(req *RPCRequest) ([20]byte, *big.Int, *RPCError) {
	var params amountParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return [20]byte{}, nil, rpcErr
	}
	to, err := parseAddress(params.To)
	if err != nil {
		return [20]byte{}, nil, invalidParams("invalid recipient", err)
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		return [20]byte{}, nil, invalidParams("invalid amount", err)
	}
	return to, amount, nil
}

func handleBankTransfer(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	to, amount, rpcErr := parseAmountParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.runtime.Transfer(callerOf(r), to, amount); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleBankCredit(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	to, amount, rpcErr := parseAmountParams(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.runtime.Credit(callerOf(r), to, amount); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleEventsList(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	if s.events == nil {
		return nil, &RPCError{Code: codeServerError, Message: "event index not configured"}
	}
	var params struct {
		Type       string `json:"type"`
		FromHeight uint64 `json:"fromHeight"`
		ToHeight   uint64 `json:"toHeight"`
		Limit      int    `json:"limit"`
		Offset     int    `json:"offset"`
	}
	if len(req.Params) > 0 {
		if rpcErr := decodeParams(req, &params); rpcErr != nil {
			return nil, rpcErr
		}
	}
	if params.Limit < 0 || params.Offset < 0 {
		return nil, invalidParams("limit and offset must not be negative", nil)
	}
	if params.Limit > indexer.MaxPageSize {
		return nil, invalidParams("limit exceeds maximum page size", nil)
	}
	filter := indexer.Filter{
		Type:       strings.TrimSpace(params.Type),
		FromHeight: params.FromHeight,
		ToHeight:   params.ToHeight,
		Limit:      params.Limit,
		Offset:     params.Offset,
	}
	ctx := r.Context()
	total, err := s.events.Count(ctx, filter)
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	records, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: err.Error()}
	}
	page := EventPageResult{Total: total, Events: make([]EventResult, 0, len(records))}
	for _, rec := range records {
		attrs, err := rec.Attrs()
		if err != nil {
			return nil, &RPCError{Code: codeServerError, Message: err.Error()}
		}
		page.Events = append(page.Events, EventResult{
			Height:     rec.Height,
			Timestamp:  rec.Timestamp,
			Op:         rec.Op,
			Index:      rec.Position,
			Type:       rec.Type,
			Attributes: attrs,
		})
	}
	return page, nil
}
