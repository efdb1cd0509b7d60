package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"ai-consultation-be/internal/pkg/logger"
	"ai-consultation-be/pkg/consultation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub(nil, logger.NewNopLogger())
	go hub.Run(ctx)
	return hub
}

func watch(t *testing.T, hub *Hub, sessionID string, buffer int) *Client {
	t.Helper()
	c := &Client{Hub: hub, SessionID: sessionID, Send: make(chan []byte, buffer)}
	require.True(t, hub.join(c))
	return c
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return Message{}
	}
}

func TestEmitReachesOnlyThatSession(t *testing.T) {
	hub := startHub(t)
	a := watch(t, hub, "a", 4)
	b := watch(t, hub, "b", 4)
	require.Eventually(t, func() bool { return hub.ClientCount("a") == 1 && hub.ClientCount("b") == 1 }, time.Second, time.Millisecond)

	err := hub.Emit(context.Background(), []consultation.TurnRecord{
		{SessionID: "a", Seq: 1, Name: "User", Text: "hello"},
	})
	require.NoError(t, err)

	msg := receive(t, a)
	assert.Equal(t, MessageTypeTurn, msg.Type)
	assert.Equal(t, "a", msg.SessionID)
	assert.Empty(t, b.Send)
}

func TestRelayDeliversLocally(t *testing.T) {
	hub := startHub(t)
	c := watch(t, hub, "s1", 4)
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, time.Millisecond)

	require.NoError(t, hub.Relay(context.Background(), consultation.TurnRecord{SessionID: "s1", Seq: 3}))

	msg := receive(t, c)
	data := msg.Data.(map[string]interface{})
	assert.EqualValues(t, 3, data["seq"])
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t)
	watch(t, hub, "s1", 0)
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, time.Millisecond)

	hub.Notify(context.Background(), "s1", MessageTypeSessionEnded, nil)

	assert.Eventually(t, func() bool { return hub.ClientCount("s1") == 0 }, time.Second, time.Millisecond)
}

func TestNotifySkipsUnencodablePayload(t *testing.T) {
	hub := startHub(t)
	c := watch(t, hub, "s1", 4)
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, time.Millisecond)

	assert.NotPanics(t, func() {
		hub.Notify(context.Background(), "s1", MessageTypeSessionEnded, map[string]interface{}{"bad": make(chan int)})
	})
	assert.Empty(t, c.Send)
	assert.Equal(t, 1, hub.ClientCount("s1"))
}

func TestEncodeCluster(t *testing.T) {
	data, err := json.Marshal(Message{Type: MessageTypeSessionEnded, SessionID: "s1"})
	require.NoError(t, err)

	envelope, err := encodeCluster("node-a", "s1", data)
	require.NoError(t, err)
	var decoded clusterMessage
	require.NoError(t, json.Unmarshal(envelope, &decoded))
	assert.Equal(t, "node-a", decoded.Origin)
	assert.JSONEq(t, string(data), string(decoded.Message))

	_, err = encodeCluster("node-a", "s1", []byte(`{"type":`))
	assert.Error(t, err)
}

func TestJoinFailsAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, logger.NewNopLogger())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	assert.False(t, hub.join(&Client{Hub: hub, SessionID: "s1", Send: make(chan []byte, 1)}))
}

func recordedTurns(sessionID string, n int) Backlog {
	return func(afterSeq int64) ([]consultation.TurnRecord, error) {
		var out []consultation.TurnRecord
		for seq := int64(1); seq <= int64(n); seq++ {
			if seq > afterSeq {
				out = append(out, consultation.TurnRecord{SessionID: sessionID, Seq: seq})
			}
		}
		return out, nil
	}
}

func seqOf(t *testing.T, msg Message) int64 {
	t.Helper()
	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	return int64(data["seq"].(float64))
}

func TestNewClientQueuesBacklogFirst(t *testing.T) {
	hub := startHub(t)
	c := newClient(hub, nil, "s1", 1, recordedTurns("s1", 3))
	require.True(t, hub.join(c))
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, time.Millisecond)

	require.NoError(t, hub.Relay(context.Background(), consultation.TurnRecord{SessionID: "s1", Seq: 4}))

	assert.Equal(t, int64(2), seqOf(t, receive(t, c)))
	assert.Equal(t, int64(3), seqOf(t, receive(t, c)))
	assert.Equal(t, int64(4), seqOf(t, receive(t, c)))
}

func TestReplayFrameResendsTurns(t *testing.T) {
	hub := startHub(t)
	c := newClient(hub, nil, "s1", 3, recordedTurns("s1", 3))
	require.True(t, hub.join(c))
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, time.Millisecond)
	assert.Empty(t, c.Send)

	c.handleControl([]byte(`{"type":"replay","after_seq":1}`))
	assert.Equal(t, int64(2), seqOf(t, receive(t, c)))
	assert.Equal(t, int64(3), seqOf(t, receive(t, c)))

	c.handleControl([]byte(`not json`))
	c.handleControl([]byte(`{"type":"subscribe"}`))
	assert.Empty(t, c.Send)
}

func TestReplayStopsWhenBufferIsFull(t *testing.T) {
	hub := startHub(t)
	c := &Client{Hub: hub, SessionID: "s1", Send: make(chan []byte, 1), backlog: recordedTurns("s1", 3)}
	require.True(t, hub.join(c))
	require.Eventually(t, func() bool { return hub.ClientCount("s1") == 1 }, time.Second, time.Millisecond)

	c.handleControl([]byte(`{"type":"replay","after_seq":0}`))

	assert.Len(t, c.Send, 1)
	assert.Equal(t, int64(1), seqOf(t, receive(t, c)))
}

func TestSendToUnknownClientFails(t *testing.T) {
	hub := startHub(t)
	stranger := &Client{Hub: hub, SessionID: "s1", Send: make(chan []byte, 1)}
	assert.False(t, hub.sendTo(stranger, []byte("{}")))
}
