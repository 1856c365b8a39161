package relay

import (
	"encoding/json"
	"fmt"

	"stageLink/internal/app/protocol"
	"stageLink/internal/domain"
)

// twitchMessages turns one EventSub notification into the ordered
// frames every sibling should see. Subscription types without a
// translation produce nothing; redemption updates are received but
// deliberately not relayed.
func twitchMessages(notification domain.EventSubNotification) ([]any, error) {
	switch notification.Type {
	case domain.EventRedemptionAdd:
		var event domain.RedemptionEvent
		if err := json.Unmarshal(notification.Event, &event); err != nil {
			return nil, fmt.Errorf("decode redemption: %w", err)
		}
		return []any{protocol.NewTwitchEvent(event.UserLogin, event.UserName, protocol.ChannelPointsSource{
			Type:       protocol.EventSourceChannelPoints,
			RewardID:   event.Reward.ID,
			RewardName: event.Reward.Title,
		})}, nil

	case domain.EventBitsUse:
		var event domain.BitsEvent
		if err := json.Unmarshal(notification.Event, &event); err != nil {
			return nil, fmt.Errorf("decode bits use: %w", err)
		}
		source := protocol.BitDonationSource{
			Type:   protocol.EventSourceBitDonation,
			Amount: event.Bits,
		}
		if event.Message != nil {
			text := event.Message.Text
			source.Message = &text
			emojis := make([]string, 0, len(event.Message.Fragments))
			for _, fragment := range event.Message.Fragments {
				if fragment.Type == "emote" || fragment.Type == "cheermote" {
					emojis = append(emojis, fragment.Text)
				}
			}
			source.Emojis = emojis
		}
		return []any{protocol.NewTwitchEvent(event.UserLogin, event.UserName, source)}, nil

	case domain.EventWhisper:
		var event domain.WhisperEvent
		if err := json.Unmarshal(notification.Event, &event); err != nil {
			return nil, fmt.Errorf("decode whisper: %w", err)
		}
		// El Notify va siempre antes que el evento.
		return []any{
			protocol.NewNotify(event.FromUserName, event.Whisper.Text),
			protocol.NewTwitchEvent(event.FromUserLogin, event.FromUserName, protocol.WhisperSource{
				Type:    protocol.EventSourceWhisper,
				Sender:  event.FromUserName,
				Message: event.Whisper.Text,
			}),
		}, nil

	case domain.EventChatMessage:
		var event domain.ChatMessageEvent
		if err := json.Unmarshal(notification.Event, &event); err != nil {
			return nil, fmt.Errorf("decode chat message: %w", err)
		}
		return []any{protocol.NewTwitchEvent(event.ChatterUserID, event.ChatterUserName, protocol.MessageSource{
			Type:    protocol.EventSourceMessage,
			Sender:  event.ChatterUserName,
			Message: event.Message.Text,
		})}, nil
	}

	return nil, nil
}

// streamLabsItems parses one socket.io emit's arguments. Anything that
// does not look like a Streamlabs event passes through wrapped as
// "unknown" with the raw value attached.
func streamLabsItems(payloads []json.RawMessage) []protocol.StreamLabsEventItem {
	items := make([]protocol.StreamLabsEventItem, 0, len(payloads))
	for _, raw := range payloads {
		var item protocol.StreamLabsEventItem
		if err := json.Unmarshal(raw, &item); err != nil || item.Type == "" {
			items = append(items, protocol.StreamLabsEventItem{
				Type:    "unknown",
				Message: raw,
			})
			continue
		}
		items = append(items, item)
	}
	return items
}
