package rpc

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"tidechain/native/bridge"
)

type bridgeSendParams struct {
	Sender    string `json:"sender"`
	RouteID   uint64 `json:"routeId"`
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type bridgeLegParams struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
}

type bridgeSendBatchParams struct {
	Sender  string            `json:"sender"`
	RouteID uint64            `json:"routeId"`
	Legs    []bridgeLegParams `json:"legs"`
}

type bridgeSendResult struct {
	TransferID string `json:"transferId"`
}

type bridgeReceiveParams struct {
	Envelope string `json:"envelope"`
}

type transferStatusResult struct {
	TransferID string `json:"transferId"`
	Processed  bool   `json:"processed"`
}

func (s *Server) handleBridgeSend(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var input bridgeSendParams
	if err := json.Unmarshal(req.Params[0], &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	sender, err := parseAddress(input.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sender", err.Error())
		return
	}
	recipient, err := parseAddress(input.Recipient)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid recipient", err.Error())
		return
	}
	amount, err := parseAmount(input.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid amount", err.Error())
		return
	}
	transferID, err := s.node.BridgeSend(sender, input.RouteID, recipient, amount)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, bridgeSendResult{TransferID: transferID})
}

func (s *Server) handleBridgeSendBatch(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var input bridgeSendBatchParams
	if err := json.Unmarshal(req.Params[0], &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	sender, err := parseAddress(input.Sender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid sender", err.Error())
		return
	}
	if len(input.Legs) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "legs required", nil)
		return
	}
	legs := make([]bridge.Leg, 0, len(input.Legs))
	for _, leg := range input.Legs {
		recipient, err := parseAddress(leg.Recipient)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid leg recipient", err.Error())
			return
		}
		amount, err := parseAmount(leg.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid leg amount", err.Error())
			return
		}
		var key [20]byte
		copy(key[:], recipient.Bytes())
		legs = append(legs, bridge.Leg{Recipient: key, Amount: amount})
	}
	transferID, err := s.node.BridgeSendBatch(sender, input.RouteID, legs)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, bridgeSendResult{TransferID: transferID})
}

func (s *Server) handleBridgeReceive(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected parameter object", nil)
		return
	}
	var input bridgeReceiveParams
	if err := json.Unmarshal(req.Params[0], &input); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return
	}
	payload := strings.TrimPrefix(strings.TrimSpace(input.Envelope), "0x")
	raw, err := hex.DecodeString(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "envelope must be hex encoded", err.Error())
		return
	}
	signed, err := bridge.DecodeEnvelope(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "malformed envelope", err.Error())
		return
	}
	if err := s.node.BridgeReceive(signed); err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, transferStatusResult{TransferID: signed.Envelope.TransferID, Processed: true})
}

func (s *Server) handleBridgeGetTransferStatus(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected transferId parameter", nil)
		return
	}
	var transferID string
	if err := json.Unmarshal(req.Params[0], &transferID); err != nil {
		var wrapped struct {
			TransferID string `json:"transferId"`
		}
		if err := json.Unmarshal(req.Params[0], &wrapped); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transferId parameter", err.Error())
			return
		}
		transferID = wrapped.TransferID
	}
	transferID = strings.TrimSpace(transferID)
	if transferID == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "transferId required", nil)
		return
	}
	processed, err := s.node.TransferProcessed(transferID)
	if err != nil {
		writeNodeError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, transferStatusResult{TransferID: transferID, Processed: processed})
}
