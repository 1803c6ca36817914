package airdrop

import "errors"

var (
	ErrCanisterKilled              = errors.New("airdrop: emergency stop engaged")
	ErrCodeNotFound                = errors.New("airdrop: code not found")
	ErrCodeAlreadyRedeemed         = errors.New("airdrop: code already redeemed")
	ErrCannotRegisterMultipleTimes = errors.New("airdrop: principal already registered")
	ErrNoChildrenForCode           = errors.New("airdrop: no children for code")
	ErrNoCodeForPrincipal          = errors.New("airdrop: no code for principal")
	ErrMaximumDepthReached         = errors.New("airdrop: maximum depth reached")
	ErrNoMoreCodes                 = errors.New("airdrop: code pool exhausted")
	ErrUnknownAddress              = errors.New("airdrop: unknown address")
	ErrGeneral                     = errors.New("airdrop: general error")
	ErrUnauthorized                = errors.New("airdrop: unauthorized")
	ErrAnonymousCaller             = errors.New("airdrop: anonymous caller")
	ErrInsufficientFunds           = errors.New("airdrop: insufficient funds")
)

// Kind names the error class of err as exposed on the wire. Errors that are
// not part of the airdrop error set map to GeneralError.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCanisterKilled):
		return "CanisterKilled"
	case errors.Is(err, ErrCodeNotFound):
		return "CodeNotFound"
	case errors.Is(err, ErrCodeAlreadyRedeemed):
		return "CodeAlreadyRedeemed"
	case errors.Is(err, ErrCannotRegisterMultipleTimes):
		return "CannotRegisterMultipleTimes"
	case errors.Is(err, ErrNoChildrenForCode):
		return "NoChildrenForCode"
	case errors.Is(err, ErrNoCodeForPrincipal):
		return "NoCodeForII"
	case errors.Is(err, ErrMaximumDepthReached):
		return "MaximumDepthReached"
	case errors.Is(err, ErrNoMoreCodes):
		return "NoMoreCodes"
	case errors.Is(err, ErrUnknownAddress):
		return "UnknownAddress"
	case errors.Is(err, ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, ErrAnonymousCaller):
		return "AnonymousCaller"
	case errors.Is(err, ErrInsufficientFunds):
		return "InsufficientFunds"
	default:
		return "GeneralError"
	}
}

// ErrorForKind returns the sentinel error for a wire kind, or ErrGeneral.
func ErrorForKind(kind string) error {
	switch kind {
	case "CanisterKilled":
		return ErrCanisterKilled
	case "CodeNotFound":
		return ErrCodeNotFound
	case "CodeAlreadyRedeemed":
		return ErrCodeAlreadyRedeemed
	case "CannotRegisterMultipleTimes":
		return ErrCannotRegisterMultipleTimes
	case "NoChildrenForCode":
		return ErrNoChildrenForCode
	case "NoCodeForII":
		return ErrNoCodeForPrincipal
	case "MaximumDepthReached":
		return ErrMaximumDepthReached
	case "NoMoreCodes":
		return ErrNoMoreCodes
	case "UnknownAddress":
		return ErrUnknownAddress
	case "Unauthorized":
		return ErrUnauthorized
	case "AnonymousCaller":
		return ErrAnonymousCaller
	case "InsufficientFunds":
		return ErrInsufficientFunds
	default:
		return ErrGeneral
	}
}
