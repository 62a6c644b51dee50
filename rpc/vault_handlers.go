package rpc

import (
	"encoding/json"
	"math/big"
	"net/http"
)

type vaultDepositParams struct {
	Depositor string `json:"depositor"`
	Amount    string `json:"amount"`
}

type vaultRedeemParams struct {
	Holder string `json:"holder"`
	Amount string `json:"amount"`
	MinOut string `json:"minOut,omitempty"`
}

type vaultRedeemResult struct {
	Holder string `json:"holder"`
	Payout string `json:"payout"`
}

type vaultStateResult struct {
	ActiveRateBps uint64 `json:"activeRateBps"`
	TotalReserve  string `json:"totalReserve"`
}

type okResult struct {
	OK bool `json:"ok"`
}

func (s *Server) handleVaultDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var input vaultDepositParams
	if err := json.Unmarshal(req.Params[0], &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	depositor, err := parseAddress(input.Depositor)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid depositor", err.Error())
		return
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.Deposit(depositor, amount); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleVaultRedeem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var input vaultRedeemParams
	if err := json.Unmarshal(req.Params[0], &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	holder, err := parseAddress(input.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid holder", err.Error())
		return
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	// minOut is the caller's slippage floor. Omitting it accepts any payout,
	// including the proportional shortfall after an emergency withdraw.
	minOut := big.NewInt(0)
	if input.MinOut != "" {
		minOut, err = parseAmount(input.MinOut)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minOut", err.Error())
			return
		}
	}
	payout, err := s.node.Redeem(holder, amount, minOut)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vaultRedeemResult{Holder: holder.String(), Payout: payout.String()})
}

func (s *Server) handleVaultAccrue(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	if err := s.node.AccrueInterest(); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleVaultGetState(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	rateBps, err := s.node.ActiveRate()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	reserve, err := s.node.TotalReserve()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, vaultStateResult{ActiveRateBps: rateBps, TotalReserve: reserve.String()})
}
