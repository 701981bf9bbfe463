package events

import (
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carevine/carevine/core"
)

func TestNewMessage(t *testing.T) {
	timestamp := time.Date(2024, 5, 12, 9, 30, 0, 0, time.UTC)
	message, err := newMessage("reminder", core.OperationCreate,
		[]byte(`{"title":"morning medication"}`), timestamp)
	require.NoError(t, err)

	// keyed by resource, so one resource stays on one partition
	assert.Equal(t, []byte("reminder"), message.Key)

	var notification Notification
	require.NoError(t, json.Unmarshal(message.Value, &notification))
	assert.Equal(t, "reminder", notification.Resource)
	assert.Equal(t, core.OperationCreate, notification.Operation)
	assert.Equal(t, timestamp, notification.Timestamp)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(notification.Payload, &payload))
	assert.Equal(t, "morning medication", payload["title"])
}

func TestNewMessageWithoutPayload(t *testing.T) {
	message, err := newMessage("reminder", core.OperationDelete, nil, time.Now().UTC())
	require.NoError(t, err)

	var notification Notification
	require.NoError(t, json.Unmarshal(message.Value, &notification))
	assert.Empty(t, notification.Payload)
}
