package wire_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/driftline/wsrpc/pkg/wsrpc/wire"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []*wire.Message{
		mustRequest(t, "ping", "sess-1", 42, map[string]string{"a": "b"}),
		mustReply(t, 42, "sess-1", map[string]int{"n": 7}),
		wire.NewErrorReply(42, "sess-1", "NOT_FOUND"),
		mustNotification(t, "sess-1", "sub-7", map[string]string{"tick": "1"}),
	}

	for _, want := range cases {
		frame := wire.Encode(want)

		got, err := wire.Decode(frame)
		require.NoError(t, err)
		require.Equal(t, want.Variant, got.Variant)
		require.Equal(t, want.RequestID, got.RequestID)
		require.Equal(t, want.SessionID, got.SessionID)
		require.Equal(t, want.Route, got.Route)
		require.Equal(t, want.Status, got.Status)
		require.Equal(t, want.SubscriptionID, got.SubscriptionID)
		require.JSONEq(t, string(orEmptyJSON(want.Payload)), string(orEmptyJSON(got.Payload)))
	}
}

func TestDecodeRejectsShortOrMalformedFrames(t *testing.T) {
	_, err := wire.Decode(nil)
	require.ErrorIs(t, err, wire.ErrInvalidFrame)

	_, err = wire.Decode([]byte{0, 1, 2, 3})
	require.ErrorIs(t, err, wire.ErrInvalidFrame)

	frame := wire.Encode(mustRequest(t, "ping", "s", 1, nil))
	frame = append(frame, 0xFF) // trailing garbage breaks the length check
	_, err = wire.Decode(frame)
	require.ErrorIs(t, err, wire.ErrInvalidFrame)
}

func TestJSONEncodingRoundTrip(t *testing.T) {
	want := mustRequest(t, "ping", "sess-1", 1, map[string]string{"x": "y"})

	data, err := wire.EncodeJSON(want)
	require.NoError(t, err)

	got, err := wire.DecodeJSON(data)
	require.NoError(t, err)
	require.Equal(t, want.Route, got.Route)
	require.Equal(t, want.RequestID, got.RequestID)
}

func TestNextRequestIDIsMonotonicAndUnique(t *testing.T) {
	seen := make(map[uint64]bool)
	var prev uint64
	for i := 0; i < 100; i++ {
		id := wire.NextRequestID()
		require.False(t, seen[id], "request id reused: %d", id)
		require.Greater(t, id, prev, "request id not increasing: %d after %d", id, prev)
		seen[id] = true
		prev = id
	}
}

func mustRequest(t *testing.T, route, sessionID string, id uint64, payload any) *wire.Message {
	t.Helper()
	m, err := wire.NewRequest(route, sessionID, id, payload)
	require.NoError(t, err)
	return m
}

func mustReply(t *testing.T, id uint64, sessionID string, payload any) *wire.Message {
	t.Helper()
	m, err := wire.NewReply(id, sessionID, payload)
	require.NoError(t, err)
	return m
}

func mustNotification(t *testing.T, sessionID, subID string, payload any) *wire.Message {
	t.Helper()
	m, err := wire.NewNotification(sessionID, subID, payload)
	require.NoError(t, err)
	return m
}

func orEmptyJSON(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}

	return b
}
