package airdrop

import core "refdrop/native/airdrop"

// AddCodesRequest mirrors POST /v1/admin/codes.
type AddCodesRequest struct {
	Codes []core.Code `json:"codes"`
}

// AddCodesResponse reports how many codes entered the pool.
type AddCodesResponse struct {
	Added     int `json:"added"`
	Remaining int `json:"remaining"`
}

// PrincipalRequest mirrors POST /v1/admin/admins.
type PrincipalRequest struct {
	Principal core.Principal `json:"principal"`
}

// ManagerRequest mirrors POST /v1/admin/managers.
type ManagerRequest struct {
	Principal core.Principal `json:"principal"`
	Name      string         `json:"name"`
}

// ExportResponse mirrors GET /v1/admin/airdrop.
type ExportResponse struct {
	Cursor  core.Index         `json:"cursor"`
	Entries []core.PayoutEntry `json:"entries"`
	// Indices holds the ledger position of each entry in Entries.
	Indices []core.Index `json:"indices,omitempty"`
}

// AcknowledgeRequest mirrors PUT /v1/admin/airdrop.
type AcknowledgeRequest struct {
	Index core.Index       `json:"index"`
	Entry core.PayoutEntry `json:"entry"`
}

// RedeemRequest mirrors POST /v1/redeem.
type RedeemRequest struct {
	Code core.Code `json:"code"`
}

// RedeemedResponse mirrors GET /v1/redeemed.
type RedeemedResponse struct {
	Redeemed bool `json:"redeemed"`
}

// ManagerResponse mirrors GET /v1/manager.
type ManagerResponse struct {
	Manager bool `json:"manager"`
}

// EmergencyStopResponse is returned by the kill and revive endpoints.
type EmergencyStopResponse struct {
	Killed bool `json:"killed"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
