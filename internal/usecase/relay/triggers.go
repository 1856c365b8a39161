package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"stageLink/internal/app/protocol"
	"stageLink/internal/domain"
)

// sendFunc queues one frame for the requesting client.
type sendFunc func(msg any) error

// Triggers ejecuta las acciones de Twitch que pide el cliente.
type Triggers struct {
	rewards domain.RewardsAPI
	auth    domain.TwitchAuth
	log     *slog.Logger
}

func NewTriggers(rewards domain.RewardsAPI, auth domain.TwitchAuth, log *slog.Logger) *Triggers {
	return &Triggers{rewards: rewards, auth: auth, log: log}
}

// Handle runs one trigger. retry=true means the token was refreshed
// after a 401 and the caller should run the same trigger once more. A
// non-nil error is fatal for the connection; per-call upstream
// failures are reported to the client and swallowed instead.
func (t *Triggers) Handle(ctx context.Context, cctx *ClientContext, req *protocol.TwitchTriggerRequest, send sendFunc) (retry bool, err error) {
	token := cctx.Twitch()

	switch req.Type {
	case protocol.TriggerChannelPointsFulfill:
		if err := t.rewards.SetRedemptionStatus(ctx, token, req.RewardID, req.RedemptionID, domain.RedemptionFulfilled); err != nil {
			// la fuente conserva la grafía histórica del protocolo
			return t.recover(ctx, cctx, err, "twitch_fullfill_redemption", req.RequestID, send)
		}
		_ = send(protocol.NewTaskResponse(req.RequestID, true))

	case protocol.TriggerChannelPointsCancel:
		if err := t.rewards.SetRedemptionStatus(ctx, token, req.RewardID, req.RedemptionID, domain.RedemptionCanceled); err != nil {
			return t.recover(ctx, cctx, err, "twitch_cancel_redemption", req.RequestID, send)
		}
		_ = send(protocol.NewTaskResponse(req.RequestID, true))

	case protocol.TriggerUpdateCustomRewards:
		existing, err := t.rewards.ManageableRewards(ctx, token)
		if err != nil {
			return t.recover(ctx, cctx, err, "twitch_set_custom_rewards", req.RequestID, send)
		}
		t.reconcile(ctx, token, existing, req.Rewards, req.RequestID, send)
		_ = send(protocol.NewTaskResponse(req.RequestID, true))

	case protocol.TriggerGetCustomRewards:
		rewards, err := t.rewards.ManageableRewards(ctx, token)
		if err != nil {
			return t.recover(ctx, cctx, err, "twitch_get_custom_rewards", req.RequestID, send)
		}
		_ = send(protocol.NewCustomRewards(rewards))
		_ = send(protocol.NewTaskResponse(req.RequestID, true))

	default:
		return false, fmt.Errorf("unknown twitch trigger %q", req.Type)
	}

	return false, nil
}

// recover is the 401 hook: refresh the token and ask for one retry.
// Any other failure goes to the client as an Error frame and the
// connection carries on. A failed refresh is the one fatal case.
func (t *Triggers) recover(ctx context.Context, cctx *ClientContext, opErr error, source string, requestID int, send sendFunc) (bool, error) {
	if errors.Is(opErr, domain.ErrUnauthorized) {
		token := cctx.Twitch()
		refreshed, err := t.auth.RefreshOrValidate(ctx, token.Access, token.Refresh)
		if err != nil {
			return false, fmt.Errorf("refreshing twitch token: %w", err)
		}
		cctx.SetTwitch(refreshed)
		t.log.Info("triggers: twitch token refreshed", "login", refreshed.Login)
		return true, nil
	}

	_ = send(protocol.NewError(requestID, source, opErr.Error()))
	return false, nil
}

// reconcile diffs desired against existing by title: update what
// changed, create what is missing, delete the rest. Per-item failures
// are reported and skipped so one bad reward cannot wedge the batch.
func (t *Triggers) reconcile(ctx context.Context, token *domain.TwitchToken, existing, desired []domain.CustomReward, requestID int, send sendFunc) {
	byTitle := make(map[string]domain.CustomReward, len(existing))
	for _, reward := range existing {
		byTitle[reward.Title] = reward
	}

	wanted := make(map[string]bool, len(desired))
	for _, want := range desired {
		wanted[want.Title] = true

		current, ok := byTitle[want.Title]
		if !ok {
			if err := t.rewards.CreateReward(ctx, token, want); err != nil {
				t.log.Warn("triggers: create reward", "title", want.Title, "error", err)
				_ = send(protocol.NewError(requestID, "twitch_create_custom_reward", err.Error()))
			}
			continue
		}

		patch := diffReward(current, want)
		if patch.Empty() {
			continue
		}
		if err := t.rewards.UpdateReward(ctx, token, current.ID, patch); err != nil {
			t.log.Warn("triggers: update reward", "title", want.Title, "error", err)
			_ = send(protocol.NewError(requestID, "twitch_update_custom_reward", err.Error()))
		}
	}

	for _, reward := range existing {
		if wanted[reward.Title] {
			continue
		}
		if err := t.rewards.DeleteReward(ctx, token, reward.ID); err != nil {
			t.log.Warn("triggers: delete reward", "title", reward.Title, "error", err)
			_ = send(protocol.NewError(requestID, "twitch_disable_custom_reward", err.Error()))
		}
	}
}

func diffReward(current, want domain.CustomReward) domain.RewardPatch {
	var patch domain.RewardPatch
	if current.Cost != want.Cost {
		patch.Cost = &want.Cost
	}
	if current.Prompt != want.Prompt {
		patch.Prompt = &want.Prompt
	}
	if current.IsEnabled != want.IsEnabled {
		patch.IsEnabled = &want.IsEnabled
	}
	if current.IsGlobalCooldownEnabled != want.IsGlobalCooldownEnabled {
		patch.IsGlobalCooldownEnabled = &want.IsGlobalCooldownEnabled
	}
	if current.GlobalCooldownSeconds != want.GlobalCooldownSeconds {
		patch.GlobalCooldownSeconds = &want.GlobalCooldownSeconds
	}
	return patch
}
