package rpc

import (
	"encoding/json"
	"net/http"
)

type addressParams struct {
	Address string `json:"address"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type claimsResult struct {
	Address string `json:"address"`
	Claims  string `json:"claims"`
}

type lockedRateResult struct {
	Address string `json:"address"`
	RateBps uint64 `json:"rateBps"`
	Set     bool   `json:"set"`
}

type supplyResult struct {
	TotalClaims    string `json:"totalClaims"`
	ReportedSupply string `json:"reportedSupply"`
}

func (s *Server) addressParam(w http.ResponseWriter, req *RPCRequest) (string, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected address parameter", nil)
		return "", false
	}
	var direct string
	if err := json.Unmarshal(req.Params[0], &direct); err == nil {
		return direct, true
	}
	var wrapped addressParams
	if err := json.Unmarshal(req.Params[0], &wrapped); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address parameter", err.Error())
		return "", false
	}
	return wrapped.Address, true
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	raw, ok := s.addressParam(w, req)
	if !ok {
		return
	}
	addr, err := parseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: addr.String(), Balance: balance.String()})
}

func (s *Server) handleGetClaims(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	raw, ok := s.addressParam(w, req)
	if !ok {
		return
	}
	addr, err := parseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	claims, err := s.node.Claims(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, claimsResult{Address: addr.String(), Claims: claims.String()})
}

func (s *Server) handleGetLockedRate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	raw, ok := s.addressParam(w, req)
	if !ok {
		return
	}
	addr, err := parseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	rateBps, set, err := s.node.LockedRate(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, lockedRateResult{Address: addr.String(), RateBps: rateBps, Set: set})
}

func (s *Server) handleGetSupply(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "no parameters expected", nil)
		return
	}
	totalClaims, err := s.node.TotalClaims()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	reported, err := s.node.ReportedSupply()
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, supplyResult{TotalClaims: totalClaims.String(), ReportedSupply: reported.String()})
}

func (s *Server) handleGetNativeBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	raw, ok := s.addressParam(w, req)
	if !ok {
		return
	}
	addr, err := parseAddress(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	balance, err := s.node.NativeBalance(addr)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{Address: addr.String(), Balance: balance.String()})
}
