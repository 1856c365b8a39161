package domain

// CustomReward describes a channel-points reward. ID is empty when the
// client proposes a reward that does not exist yet.
type CustomReward struct {
	ID                      string `json:"id,omitempty"`
	Title                   string `json:"title"`
	Prompt                  string `json:"prompt"`
	Cost                    int    `json:"cost"`
	IsEnabled               bool   `json:"is_enabled"`
	IsGlobalCooldownEnabled bool   `json:"is_global_cooldown_enabled"`
	GlobalCooldownSeconds   int    `json:"global_cooldown_seconds"`
}

// RewardPatch is a partial update; nil fields stay untouched upstream.
type RewardPatch struct {
	Cost                    *int    `json:"cost,omitempty"`
	Prompt                  *string `json:"prompt,omitempty"`
	IsEnabled               *bool   `json:"is_enabled,omitempty"`
	IsGlobalCooldownEnabled *bool   `json:"is_global_cooldown_enabled,omitempty"`
	GlobalCooldownSeconds   *int    `json:"global_cooldown_seconds,omitempty"`
}

// Empty reports whether the patch would change nothing.
func (p RewardPatch) Empty() bool {
	return p.Cost == nil && p.Prompt == nil && p.IsEnabled == nil &&
		p.IsGlobalCooldownEnabled == nil && p.GlobalCooldownSeconds == nil
}

// Estados de redención que acepta Helix.
const (
	RedemptionFulfilled = "FULFILLED"
	RedemptionCanceled  = "CANCELED"
)
