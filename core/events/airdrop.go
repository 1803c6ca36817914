package events

import "strconv"

const (
	TypeAirdropCodesAdded      = "airdrop.codes.added"
	TypeAirdropCodeGenerated   = "airdrop.code.generated"
	TypeAirdropCodeRedeemed    = "airdrop.code.redeemed"
	TypeAirdropRewardQueued    = "airdrop.reward.queued"
	TypeAirdropRewardForfeited = "airdrop.reward.forfeited"
	TypeAirdropPayoutAcked     = "airdrop.payout.acknowledged"
	TypeAirdropEmergencyStop   = "airdrop.emergency_stop"
	TypeAirdropRoleGranted     = "airdrop.role.granted"
)

// Reward reasons carried by AirdropRewardQueued.
const (
	RewardReasonReferral = "referral"
	RewardReasonRedeemer = "redeemer"
)

// AirdropCodesAdded reports codes appended to the pool.
type AirdropCodesAdded struct {
	Added     int
	Remaining int
}

func (AirdropCodesAdded) EventType() string { return TypeAirdropCodesAdded }

func (e AirdropCodesAdded) Attributes() map[string]string {
	return map[string]string{
		"added":     strconv.Itoa(e.Added),
		"remaining": strconv.Itoa(e.Remaining),
	}
}

// AirdropCodeGenerated reports a root code minted for a manager.
type AirdropCodeGenerated struct {
	Manager string
	Code    string
}

func (AirdropCodeGenerated) EventType() string { return TypeAirdropCodeGenerated }

func (e AirdropCodeGenerated) Attributes() map[string]string {
	return map[string]string{"manager": e.Manager, "code": e.Code}
}

// SensitiveKeys masks the code; it is redeemable until the manager hands it out.
func (AirdropCodeGenerated) SensitiveKeys() []string { return []string{"code"} }

// AirdropCodeRedeemed reports a successful redemption.
type AirdropCodeRedeemed struct {
	Principal string
	Code      string
	Address   string
	Depth     uint64
	Deducted  uint64
	Children  int
}

func (AirdropCodeRedeemed) EventType() string { return TypeAirdropCodeRedeemed }

func (AirdropCodeRedeemed) SensitiveKeys() []string { return []string{"code"} }

func (e AirdropCodeRedeemed) Attributes() map[string]string {
	return map[string]string{
		"principal": e.Principal,
		"code":      e.Code,
		"address":   e.Address,
		"depth":     strconv.FormatUint(e.Depth, 10),
		"deducted":  strconv.FormatUint(e.Deducted, 10),
		"children":  strconv.Itoa(e.Children),
	}
}

// AirdropRewardQueued reports a payout ledger append.
type AirdropRewardQueued struct {
	Index   uint64
	Address string
	Amount  uint64
	Reason  string
}

func (AirdropRewardQueued) EventType() string { return TypeAirdropRewardQueued }

func (e AirdropRewardQueued) Attributes() map[string]string {
	return map[string]string{
		"index":   strconv.FormatUint(e.Index, 10),
		"address": e.Address,
		"amount":  strconv.FormatUint(e.Amount, 10),
		"reason":  e.Reason,
	}
}

// AirdropRewardForfeited reports a referral reward that had nowhere to go
// because the parent principal never redeemed a code.
type AirdropRewardForfeited struct {
	Parent string
	Code   string
	Amount uint64
}

func (AirdropRewardForfeited) EventType() string { return TypeAirdropRewardForfeited }

func (AirdropRewardForfeited) SensitiveKeys() []string { return []string{"code"} }

func (e AirdropRewardForfeited) Attributes() map[string]string {
	return map[string]string{
		"parent": e.Parent,
		"code":   e.Code,
		"amount": strconv.FormatUint(e.Amount, 10),
	}
}

// AirdropPayoutAcknowledged reports entries marked transferred.
type AirdropPayoutAcknowledged struct {
	From    uint64
	Address string
	Flipped int
}

func (AirdropPayoutAcknowledged) EventType() string { return TypeAirdropPayoutAcked }

func (e AirdropPayoutAcknowledged) Attributes() map[string]string {
	return map[string]string{
		"from":    strconv.FormatUint(e.From, 10),
		"address": e.Address,
		"flipped": strconv.Itoa(e.Flipped),
	}
}

// AirdropEmergencyStop reports the kill switch toggling.
type AirdropEmergencyStop struct {
	Admin   string
	Engaged bool
}

func (AirdropEmergencyStop) EventType() string { return TypeAirdropEmergencyStop }

func (e AirdropEmergencyStop) Attributes() map[string]string {
	return map[string]string{"admin": e.Admin, "engaged": strconv.FormatBool(e.Engaged)}
}

// AirdropRoleGranted reports an admin or manager grant.
type AirdropRoleGranted struct {
	Admin     string
	Principal string
	Role      string
	Name      string
}

func (AirdropRoleGranted) EventType() string { return TypeAirdropRoleGranted }

func (e AirdropRoleGranted) Attributes() map[string]string {
	attrs := map[string]string{"admin": e.Admin, "principal": e.Principal, "role": e.Role}
	if e.Name != "" {
		attrs["name"] = e.Name
	}
	return attrs
}
