package airdropd

import (
	"encoding/json"
	"net/http"

	"refdrop/native/airdrop"
	api "refdrop/sdk/airdrop"
)

// statusFor maps an engine error onto an HTTP status code.
func statusFor(err error) int {
	switch airdrop.Kind(err) {
	case "CanisterKilled":
		return http.StatusServiceUnavailable
	case "CodeNotFound", "NoChildrenForCode", "NoCodeForII":
		return http.StatusNotFound
	case "CodeAlreadyRedeemed", "CannotRegisterMultipleTimes", "MaximumDepthReached", "NoMoreCodes", "InsufficientFunds":
		return http.StatusConflict
	case "UnknownAddress":
		return http.StatusBadGateway
	case "Unauthorized":
		return http.StatusForbidden
	case "AnonymousCaller":
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), airdrop.Kind(err), err.Error())
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, api.ErrorResponse{Error: kind, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
