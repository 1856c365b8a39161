// Package protocol define los frames JSON que cruzan el WebSocket con
// los clientes de escritorio y overlay.
package protocol

import (
	"encoding/json"

	"stageLink/internal/domain"
)

// Client→server frame types.
const (
	TypeCodeRequest   = "codeRequest"
	TypeConnect       = "connect"
	TypeTwitchTrigger = "twitchTrigger"
)

// Server→client frame types.
const (
	TypeCodeResponse    = "codeResponse"
	TypeConnectResponse = "connectResponse"
	TypeCustomRewards   = "customRewards"
	TypeNotify          = "notify"
	TypeTwitchEvent     = "twitchEvent"
	TypeStreamLabsEvent = "streamLabsEvent"
	TypeError           = "error"
	TypeTaskResponse    = "taskResponse"
)

// TwitchTriggerRequest variants.
const (
	TriggerChannelPointsFulfill = "ChannelPointsFulfill"
	TriggerChannelPointsCancel  = "ChannelPointsCancel"
	TriggerUpdateCustomRewards  = "UpdateCustomRewards"
	TriggerGetCustomRewards     = "GetCustomRewards"
)

// TwitchEvent payload variants.
const (
	EventSourceChannelPoints = "ChannelPoints"
	EventSourceBitDonation   = "BitDonation"
	EventSourceWhisper       = "Whisper"
	EventSourceMessage       = "Message"
)

// ----- client → server -----

// ClientMessage is the envelope for incoming frames. Exactly the
// payload matching Type is non-nil; the others stay nil.
type ClientMessage struct {
	Type           string                `json:"type"`
	CodeRequest    *CodeRequest          `json:"CodeRequest,omitempty"`
	ConnectRequest *ConnectRequest       `json:"ConnectRequest,omitempty"`
	TwitchTrigger  *TwitchTriggerRequest `json:"TwitchTriggerRequest,omitempty"`
}

// CodeRequest pide un state token nuevo. ClientVersion es opcional.
type CodeRequest struct {
	ClientVersion *string `json:"client_version"`
}

// ConnectRequest resumes a session under an existing state token.
type ConnectRequest struct {
	StateToken    string  `json:"state_token"`
	ClientVersion *string `json:"client_version"`
}

// TwitchTriggerRequest is one client-initiated Twitch action. The
// fields beyond Type and RequestID depend on the variant.
type TwitchTriggerRequest struct {
	Type         string                `json:"type"`
	RequestID    int                   `json:"request_id"`
	RewardID     string                `json:"reward_id,omitempty"`
	RedemptionID string                `json:"redemption_id,omitempty"`
	Rewards      []domain.CustomReward `json:"rewards,omitempty"`
}

// ----- server → client -----

type CodeResponse struct {
	Type       string `json:"type"`
	StateToken string `json:"state_token"`
}

func NewCodeResponse(stateToken string) CodeResponse {
	return CodeResponse{Type: TypeCodeResponse, StateToken: stateToken}
}

// ConnectResponse reports which providers are linked to the session.
// Absent provider fields serialize as explicit nulls.
type ConnectResponse struct {
	Type           string  `json:"type"`
	HasTwitch      bool    `json:"has_twitch"`
	HasStreamlabs  bool    `json:"has_streamlabs"`
	TwitchID       *int64  `json:"twitch_id"`
	TwitchName     *string `json:"twitch_name"`
	StreamlabsID   *string `json:"streamlabs_id"`
	StreamlabsName *string `json:"streamlabs_name"`
}

func NewConnectResponse() ConnectResponse {
	return ConnectResponse{Type: TypeConnectResponse}
}

type CustomRewards struct {
	Type    string                `json:"type"`
	Rewards []domain.CustomReward `json:"rewards"`
}

func NewCustomRewards(rewards []domain.CustomReward) CustomRewards {
	return CustomRewards{Type: TypeCustomRewards, Rewards: rewards}
}

type Notify struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func NewNotify(title, message string) Notify {
	return Notify{Type: TypeNotify, Title: title, Message: message}
}

// TwitchEvent envuelve un evento de Twitch ya traducido. Event es una
// de las variantes *Source de abajo.
type TwitchEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	Event    any    `json:"event"`
}

func NewTwitchEvent(userID, userName string, event any) TwitchEvent {
	return TwitchEvent{Type: TypeTwitchEvent, UserID: userID, UserName: userName, Event: event}
}

type ChannelPointsSource struct {
	Type       string `json:"type"`
	RewardID   string `json:"reward_id"`
	RewardName string `json:"reward_name"`
}

// BitDonationSource carries nulls when the cheer had no message.
type BitDonationSource struct {
	Type    string   `json:"type"`
	Amount  int      `json:"amount"`
	Message *string  `json:"message"`
	Emojis  []string `json:"emojis"`
}

type WhisperSource struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type MessageSource struct {
	Type    string `json:"type"`
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

// StreamLabsEvent relays one socket.io emit as a batch of items.
type StreamLabsEvent struct {
	Type   string                `json:"type"`
	Events []StreamLabsEventItem `json:"events"`
}

func NewStreamLabsEvent(events []StreamLabsEventItem) StreamLabsEvent {
	return StreamLabsEvent{Type: TypeStreamLabsEvent, Events: events}
}

// StreamLabsEventItem mirrors the upstream payload shape. Values that
// do not parse into it are wrapped whole as type "unknown" with the
// raw value in Message.
type StreamLabsEventItem struct {
	EventID *string         `json:"event_id"`
	For     *string         `json:"for"`
	Message json.RawMessage `json:"message"`
	Type    string          `json:"type"`
}

type ErrorMessage struct {
	Type      string `json:"type"`
	RequestID int    `json:"request_id"`
	Source    string `json:"source"`
	Message   string `json:"message"`
}

func NewError(requestID int, source, message string) ErrorMessage {
	return ErrorMessage{Type: TypeError, RequestID: requestID, Source: source, Message: message}
}

type TaskResponse struct {
	Type      string  `json:"type"`
	RequestID int     `json:"request_id"`
	Success   bool    `json:"success"`
	Message   *string `json:"message"`
}

func NewTaskResponse(requestID int, success bool) TaskResponse {
	return TaskResponse{Type: TypeTaskResponse, RequestID: requestID, Success: success}
}
