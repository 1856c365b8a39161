package domain

import "encoding/json"

// Subscription types consumed over the EventSub websocket transport.
const (
	EventBitsUse          = "channel.bits.use"
	EventRedemptionAdd    = "channel.channel_points_custom_reward_redemption.add"
	EventRedemptionUpdate = "channel.channel_points_custom_reward_redemption.update"
	EventChatMessage      = "channel.chat.message"
	EventChatNotification = "channel.chat.notification"
	EventWhisper          = "user.whisper.message"
)

// EventSubNotification es una notificación ya desenvuelta: tipo de
// suscripción más el payload del evento sin decodificar.
type EventSubNotification struct {
	Type  string
	Event json.RawMessage
}

// RedemptionEvent is the payload of
// channel.channel_points_custom_reward_redemption.add.
type RedemptionEvent struct {
	UserID    string `json:"user_id"`
	UserLogin string `json:"user_login"`
	UserName  string `json:"user_name"`
	Reward    struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"reward"`
}

// BitsEvent is the payload of channel.bits.use. Message is nil for
// uses without an attached chat message.
type BitsEvent struct {
	UserID    string       `json:"user_id"`
	UserLogin string       `json:"user_login"`
	UserName  string       `json:"user_name"`
	Bits      int          `json:"bits"`
	Message   *ChatMessage `json:"message"`
}

type ChatMessage struct {
	Text      string         `json:"text"`
	Fragments []ChatFragment `json:"fragments"`
}

// ChatFragment types are lowercase on the wire: text, emote, cheermote.
type ChatFragment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// WhisperEvent is the payload of user.whisper.message.
type WhisperEvent struct {
	FromUserID    string `json:"from_user_id"`
	FromUserLogin string `json:"from_user_login"`
	FromUserName  string `json:"from_user_name"`
	Whisper       struct {
		Text string `json:"text"`
	} `json:"whisper"`
}

// ChatMessageEvent is the payload of channel.chat.message.
type ChatMessageEvent struct {
	ChatterUserID    string      `json:"chatter_user_id"`
	ChatterUserLogin string      `json:"chatter_user_login"`
	ChatterUserName  string      `json:"chatter_user_name"`
	Message          ChatMessage `json:"message"`
}
