package rpc

import (
	"encoding/json"
	"net/http"
	"strings"

	"tidechain/native/bridge"
	"tidechain/native/vault"
)

type routeParams struct {
	Caller          string `json:"caller"`
	ID              uint64 `json:"id"`
	Peer            string `json:"peer"`
	Enabled         bool   `json:"enabled"`
	FeeBps          uint64 `json:"feeBps"`
	PerMessageCap   string `json:"perMessageCap,omitempty"`
	DailyCap        string `json:"dailyCap,omitempty"`
	RefillPerSecond uint64 `json:"refillPerSecond,omitempty"`
	Burst           uint64 `json:"burst,omitempty"`
	CostPerMessage  uint64 `json:"costPerMessage,omitempty"`
}

type vaultParamsParams struct {
	Caller               string `json:"caller"`
	BaseRateBps          uint64 `json:"baseRateBps"`
	TierDecrementBps     uint64 `json:"tierDecrementBps"`
	MinimumRateBps       uint64 `json:"minimumRateBps"`
	TierSize             string `json:"tierSize"`
	AccrualPeriodSeconds uint64 `json:"accrualPeriodSeconds"`
	MaxDailyAccrualBps   uint64 `json:"maxDailyAccrualBps"`
	ProtocolFeeBps       uint64 `json:"protocolFeeBps"`
	FeeRecipient         string `json:"feeRecipient"`
	MinDeposit           string `json:"minDeposit,omitempty"`
	PerAddressCap        string `json:"perAddressCap,omitempty"`
	GlobalCap            string `json:"globalCap,omitempty"`
	RequireAllowList     bool   `json:"requireAllowList"`
}

type allowListParams struct {
	Caller  string `json:"caller"`
	Address string `json:"address"`
	Allowed bool   `json:"allowed"`
}

type pauseParams struct {
	Caller string `json:"caller"`
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

type pausedResult struct {
	Paused []string `json:"paused"`
}

type callerAmountParams struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type callerToAmountParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type syncLockedRateParams struct {
	Caller  string `json:"caller"`
	Holder  string `json:"holder"`
	RateBps uint64 `json:"rateBps"`
}

func (s *Server) paramObject(w http.ResponseWriter, req *RPCRequest, into interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], into); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}

func (s *Server) handleAdminSetRoute(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input routeParams
	if !s.paramObject(w, req, &input) {
		return
	}
	caller, err := parseAddress(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	peer, err := parseAddress(input.Peer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid peer", err.Error())
		return
	}
	route := &bridge.Route{
		ID:      input.ID,
		Peer:    peer,
		Enabled: input.Enabled,
		FeeBps:  input.FeeBps,
		Limiter: bridge.BucketParams{
			RefillPerSecond: input.RefillPerSecond,
			Burst:           input.Burst,
			CostPerMessage:  input.CostPerMessage,
		},
	}
	if input.PerMessageCap != "" {
		route.PerMessageCap, err = parseAmount(input.PerMessageCap)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid perMessageCap", err.Error())
			return
		}
	}
	if input.DailyCap != "" {
		route.DailyCap, err = parseAmount(input.DailyCap)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid dailyCap", err.Error())
			return
		}
	}
	if err := s.node.SetRoute(caller, route.Normalize()); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminSetVaultParams(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input vaultParamsParams
	if !s.paramObject(w, req, &input) {
		return
	}
	caller, err := parseAddress(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	feeRecipient, err := parseAddress(input.FeeRecipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid feeRecipient", err.Error())
		return
	}
	tierSize, err := parseAmount(input.TierSize)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid tierSize", err.Error())
		return
	}
	params := vault.Params{
		BaseRateBps:          input.BaseRateBps,
		TierDecrementBps:     input.TierDecrementBps,
		MinimumRateBps:       input.MinimumRateBps,
		TierSize:             tierSize,
		AccrualPeriodSeconds: input.AccrualPeriodSeconds,
		MaxDailyAccrualBps:   input.MaxDailyAccrualBps,
		ProtocolFeeBps:       input.ProtocolFeeBps,
		FeeRecipient:         feeRecipient,
		RequireAllowList:     input.RequireAllowList,
	}
	if input.MinDeposit != "" {
		params.MinDeposit, err = parseAmount(input.MinDeposit)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid minDeposit", err.Error())
			return
		}
	}
	if input.PerAddressCap != "" {
		params.PerAddressCap, err = parseAmount(input.PerAddressCap)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid perAddressCap", err.Error())
			return
		}
	}
	if input.GlobalCap != "" {
		params.GlobalCap, err = parseAmount(input.GlobalCap)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid globalCap", err.Error())
			return
		}
	}
	if err := s.node.SetVaultParams(caller, params); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminSetAllowList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input allowListParams
	if !s.paramObject(w, req, &input) {
		return
	}
	caller, err := parseAddress(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	addr, err := parseAddress(input.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address", err.Error())
		return
	}
	if err := s.node.SetAllowListed(caller, addr, input.Allowed); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input pauseParams
	if !s.paramObject(w, req, &input) {
		return
	}
	caller, err := parseAddress(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	module := strings.TrimSpace(input.Module)
	if module == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "module required", nil)
		return
	}
	if err := s.node.SetPaused(caller, module, input.Paused); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminGetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	paused := s.node.Paused()
	if paused == nil {
		paused = []string{}
	}
	writeResult(w, req.ID, pausedResult{Paused: paused})
}

func (s *Server) handleAdminFundBridgeFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input callerAmountParams
	if !s.paramObject(w, req, &input) {
		return
	}
	caller, err := parseAddress(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.FundBridgeFees(caller, amount); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminCreditBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input callerToAmountParams
	if !s.paramObject(w, req, &input) {
		return
	}
	caller, err := parseAddress(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	to, err := parseAddress(input.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to", err.Error())
		return
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.CreditBalance(caller, to, amount); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminEmergencyWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input callerToAmountParams
	if !s.paramObject(w, req, &input) {
		return
	}
	caller, err := parseAddress(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	to, err := parseAddress(input.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid to", err.Error())
		return
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	if err := s.node.EmergencyWithdraw(caller, to, amount); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminResetRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input struct {
		Caller string `json:"caller"`
	}
	if !s.paramObject(w, req, &input) {
		return
	}
	caller, err := parseAddress(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	if err := s.node.ResetRate(caller); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}

func (s *Server) handleAdminSyncLockedRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var input syncLockedRateParams
	if !s.paramObject(w, req, &input) {
		return
	}
	caller, err := parseAddress(input.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid caller", err.Error())
		return
	}
	holder, err := parseAddress(input.Holder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid holder", err.Error())
		return
	}
	if err := s.node.SyncLockedRate(caller, holder, input.RateBps); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, okResult{OK: true})
}
