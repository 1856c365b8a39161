package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMessagePayloadsAreNested(t *testing.T) {
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "connect",
		"ConnectRequest": {"state_token": "abc", "client_version": "1.2.3"}
	}`), &msg))

	assert.Equal(t, TypeConnect, msg.Type)
	require.NotNil(t, msg.ConnectRequest)
	assert.Equal(t, "abc", msg.ConnectRequest.StateToken)
	require.NotNil(t, msg.ConnectRequest.ClientVersion)
	assert.Equal(t, "1.2.3", *msg.ConnectRequest.ClientVersion)
	assert.Nil(t, msg.CodeRequest)
	assert.Nil(t, msg.TwitchTrigger)
}

func TestCodeRequestPayloadIsOptional(t *testing.T) {
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(`{"type": "codeRequest"}`), &msg))

	assert.Equal(t, TypeCodeRequest, msg.Type)
	assert.Nil(t, msg.CodeRequest)
}

func TestTwitchTriggerParsesInlineVariant(t *testing.T) {
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "twitchTrigger",
		"TwitchTriggerRequest": {
			"type": "ChannelPointsFulfill",
			"request_id": 7,
			"reward_id": "r-1",
			"redemption_id": "d-1"
		}
	}`), &msg))

	require.NotNil(t, msg.TwitchTrigger)
	assert.Equal(t, TriggerChannelPointsFulfill, msg.TwitchTrigger.Type)
	assert.Equal(t, 7, msg.TwitchTrigger.RequestID)
	assert.Equal(t, "r-1", msg.TwitchTrigger.RewardID)
	assert.Equal(t, "d-1", msg.TwitchTrigger.RedemptionID)
}

// Los clientes distinguen "campo ausente" de "campo null": los
// opcionales tienen que viajar como null explícito.
func TestConnectResponseKeepsExplicitNulls(t *testing.T) {
	data, err := json.Marshal(NewConnectResponse())
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	for _, field := range []string{"twitch_id", "twitch_name", "streamlabs_id", "streamlabs_name"} {
		raw, ok := decoded[field]
		require.True(t, ok, "missing field %s", field)
		assert.Equal(t, "null", string(raw), field)
	}
	assert.Equal(t, "false", string(decoded["has_twitch"]))
}

func TestBitDonationWithoutMessageSerializesNulls(t *testing.T) {
	data, err := json.Marshal(BitDonationSource{
		Type:   EventSourceBitDonation,
		Amount: 100,
	})
	require.NoError(t, err)

	assert.Contains(t, string(data), `"message":null`)
	assert.Contains(t, string(data), `"emojis":null`)
}

func TestBitDonationEmptyEmojiListStaysAList(t *testing.T) {
	text := "cheer100"
	data, err := json.Marshal(BitDonationSource{
		Type:    EventSourceBitDonation,
		Amount:  100,
		Message: &text,
		Emojis:  []string{},
	})
	require.NoError(t, err)

	assert.Contains(t, string(data), `"emojis":[]`)
}

func TestTaskResponseMessageDefaultsToNull(t *testing.T) {
	data, err := json.Marshal(NewTaskResponse(3, true))
	require.NoError(t, err)

	assert.JSONEq(t, `{"type":"taskResponse","request_id":3,"success":true,"message":null}`, string(data))
}
