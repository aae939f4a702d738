package handlers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/vgrab-go/internal/domain"
)

func TestProgressHub_PublishWithoutClients(t *testing.T) {
	hub := NewProgressHub(zap.NewNop())
	hub.Publish(domain.ProgressEvent{RunID: "r1", Downloaded: 10})

	ch, last := hub.subscribe()
	defer hub.unsubscribe(ch)

	var ev domain.ProgressEvent
	require.NoError(t, json.Unmarshal(last, &ev))
	assert.Equal(t, int64(10), ev.Downloaded)
}

func TestProgressHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewProgressHub(zap.NewNop())
	ch, _ := hub.subscribe()

	for i := 0; i < clientBuffer*2; i++ {
		hub.Publish(domain.ProgressEvent{Ordinal: 1, Downloaded: int64(i)})
	}
	assert.Len(t, ch, clientBuffer)

	hub.unsubscribe(ch)
	assert.Zero(t, hub.ClientCount())
}
