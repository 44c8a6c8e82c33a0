package rpc

import (
	"net/http"

	"voucherchain/core"
)

func (s *Server) registerLedger() {
	s.register("ledger_token", false, handleLedgerToken)
	s.register("ledger_tokensOfOwner", false, handleLedgerTokensOfOwner)
	s.register("ledger_tokensOfOwnerBySlot", false, handleLedgerTokensOfOwnerBySlot)
	s.register("ledger_tokensOfOwnerBySlotManager", false, handleLedgerTokensOfOwnerBySlotManager)
	s.register("ledger_managerOfToken", false, handleLedgerManagerOfToken)
	s.register("ledger_slot", false, handleLedgerSlot)
	s.register("ledger_slotManagers", false, handleLedgerSlotManagers)
	s.register("ledger_transferToAddress", true, handleLedgerTransferToAddress)
	s.register("ledger_transferToToken", true, handleLedgerTransferToToken)
	s.register("ledger_transferToken", true, handleLedgerTransferToken)
	s.register("ledger_split", true, handleLedgerSplit)
	s.register("ledger_burn", true, handleLedgerBurn)
	s.register("ledger_approve", true, handleLedgerApprove)
	s.register("ledger_setApprovalForAll", true, handleLedgerSetApprovalForAll)
}

type tokenParams struct {
	TokenID uint64 `json:"tokenId"`
}

func handleLedgerToken(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params tokenParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	var result TokenResult
	err := s.runtime.View(func(tx *core.Tx) error {
		token, err := tx.Ledger.Token(params.TokenID)
		if err != nil {
			return err
		}
		result = TokenResult{
			ID:       token.ID,
			Owner:    formatAddress(token.Owner),
			Slot:     token.Slot,
			Value:    formatAmount(token.Value),
			Approved: formatAddress(token.Approved),
		}
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

func handleLedgerTokensOfOwner(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Owner string `json:"owner"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return nil, invalidParams("invalid owner", err)
	}
	return viewTokens(s, func(tx *core.Tx) ([]uint64, error) {
		return tx.Ledger.TokensOfOwner(owner)
	})
}

func handleLedgerTokensOfOwnerBySlot(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Owner string `json:"owner"`
		Slot  uint64 `json:"slot"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return nil, invalidParams("invalid owner", err)
	}
	return viewTokens(s, func(tx *core.Tx) ([]uint64, error) {
		return tx.Ledger.TokensOfOwnerBySlot(owner, params.Slot)
	})
}

func handleLedgerTokensOfOwnerBySlotManager(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Owner   string `json:"owner"`
		Manager string `json:"manager"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		return nil, invalidParams("invalid owner", err)
	}
	manager, err := parseAddress(params.Manager)
	if err != nil {
		return nil, invalidParams("invalid manager", err)
	}
	return viewTokens(s, func(tx *core.Tx) ([]uint64, error) {
		return tx.Ledger.TokensOfOwnerBySlotManager(owner, manager)
	})
}

// viewTokens resolves the ids selected by list into token results.
func viewTokens(s *Server, list func(tx *core.Tx) ([]uint64, error)) (interface{}, *RPCError) {
	result := []TokenResult{}
	err := s.runtime.View(func(tx *core.Tx) error {
		ids, err := list(tx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			token, err := tx.Ledger.Token(id)
			if err != nil {
				return err
			}
			result = append(result, TokenResult{
				ID:       token.ID,
				Owner:    formatAddress(token.Owner),
				Slot:     token.Slot,
				Value:    formatAmount(token.Value),
				Approved: formatAddress(token.Approved),
			})
		}
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

func handleLedgerManagerOfToken(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params tokenParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	var manager [20]byte
	err := s.runtime.View(func(tx *core.Tx) error {
		var err error
		manager, err = tx.Ledger.ManagerOfToken(params.TokenID)
		return err
	})
	if err != nil {
		return nil, executionError(err)
	}
	return map[string]string{"manager": formatAddress(manager)}, nil
}

func handleLedgerSlotManagers(s *Server, _ *http.Request, _ *RPCRequest) (interface{}, *RPCError) {
	result := []string{}
	err := s.runtime.View(func(tx *core.Tx) error {
		managers, err := tx.Ledger.SlotManagers()
		if err != nil {
			return err
		}
		for _, m := range managers {
			result = append(result, formatAddress(m))
		}
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

func handleLedgerSlot(s *Server, _ *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Slot uint64 `json:"slot"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	var result SlotResult
	err := s.runtime.View(func(tx *core.Tx) error {
		slot, err := tx.Ledger.Slot(params.Slot)
		if err != nil {
			return err
		}
		count, err := tx.Ledger.TokenSupplyInSlot(params.Slot)
		if err != nil {
			return err
		}
		result = SlotResult{ID: slot.ID, Manager: formatAddress(slot.Manager), Supply: formatAmount(slot.Supply), Tokens: count}
		return nil
	})
	if err != nil {
		return nil, executionError(err)
	}
	return result, nil
}

type valueTransferParams struct {
	FromTokenID uint64 `json:"fromTokenId"`
	ToTokenID   uint64 `json:"toTokenId"`
	To          string `json:"to"`
	Value       string `json:"value"`
}

func handleLedgerTransferToAddress(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params valueTransferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	to, err := parseAddress(params.To)
	if err != nil {
		return nil, invalidParams("invalid recipient", err)
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		return nil, invalidParams("invalid value", err)
	}
	id, err := s.runtime.TransferToAddress(callerOf(r), params.FromTokenID, to, value)
	if err != nil {
		return nil, executionError(err)
	}
	return map[string]uint64{"tokenId": id}, nil
}

func handleLedgerTransferToToken(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params valueTransferParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		return nil, invalidParams("invalid value", err)
	}
	if err := s.runtime.TransferToToken(callerOf(r), params.FromTokenID, params.ToTokenID, value); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleLedgerTransferToken(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		From    string `json:"from"`
		To      string `json:"to"`
		TokenID uint64 `json:"tokenId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	from, err := parseAddress(params.From)
	if err != nil {
		return nil, invalidParams("invalid sender", err)
	}
	to, err := parseAddress(params.To)
	if err != nil {
		return nil, invalidParams("invalid recipient", err)
	}
	if err := s.runtime.TransferToken(callerOf(r), from, to, params.TokenID); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleLedgerSplit(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		TokenID uint64 `json:"tokenId"`
		Value   string `json:"value"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	value, err := parseAmount(params.Value)
	if err != nil {
		return nil, invalidParams("invalid value", err)
	}
	id, err := s.runtime.Split(callerOf(r), params.TokenID, value)
	if err != nil {
		return nil, executionError(err)
	}
	return map[string]uint64{"tokenId": id}, nil
}

func handleLedgerBurn(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params tokenParams
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	if err := s.runtime.Burn(callerOf(r), params.TokenID); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleLedgerApprove(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		To      string `json:"to"`
		TokenID uint64 `json:"tokenId"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	// An empty spender clears the approval.
	to, err := parseOptionalAddress(params.To)
	if err != nil {
		return nil, invalidParams("invalid spender", err)
	}
	if err := s.runtime.Approve(callerOf(r), to, params.TokenID); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}

func handleLedgerSetApprovalForAll(s *Server, r *http.Request, req *RPCRequest) (interface{}, *RPCError) {
	var params struct {
		Operator string `json:"operator"`
		Approved bool   `json:"approved"`
	}
	if rpcErr := decodeParams(req, &params); rpcErr != nil {
		return nil, rpcErr
	}
	operator, err := parseAddress(params.Operator)
	if err != nil {
		return nil, invalidParams("invalid operator", err)
	}
	if err := s.runtime.SetApprovalForAll(callerOf(r), operator, params.Approved); err != nil {
		return nil, executionError(err)
	}
	return true, nil
}
