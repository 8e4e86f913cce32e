package worker_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftline/wsrpc/pkg/wsrpc/session"
	"github.com/driftline/wsrpc/pkg/wsrpc/transport"
	"github.com/driftline/wsrpc/pkg/wsrpc/wire"
	"github.com/driftline/wsrpc/pkg/wsrpc/worker"
)

type fakeTransport struct {
	mu  sync.Mutex
	obs transport.Observer
	out [][]byte
}

func (f *fakeTransport) SetObserver(obs transport.Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = obs
}

func (f *fakeTransport) Connect(string) error {
	f.mu.Lock()
	obs := f.obs
	f.mu.Unlock()
	if obs != nil {
		obs.OnOpen()
	}
	return nil
}

func (f *fakeTransport) Disconnect() {}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	f.out = append(f.out, append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) lastSent() *wire.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.out) == 0 {
		return nil
	}
	msg, _ := wire.Decode(f.out[len(f.out)-1])
	return msg
}

func (f *fakeTransport) deliver(msg *wire.Message) {
	f.mu.Lock()
	obs := f.obs
	f.mu.Unlock()
	if obs != nil {
		obs.OnBytes(wire.Encode(msg))
	}
}

type pingSpec struct{}

func (pingSpec) Route() string { return "ping" }

func (pingSpec) Decode(payload []byte) (any, error) {
	var v struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v.Message, nil
}

func testConfig() session.Config {
	return session.Config{
		URL:                  "ws://test/",
		MaxReconnectAttempts: 3,
		ReconnectInterval:    50 * time.Millisecond,
		KeepaliveInterval:    time.Hour,
		MaxKeepaliveFailures: 3,
	}
}

func drainUntilConnected(t *testing.T, ft *fakeTransport, sessionID string) {
	t.Helper()

	require.Eventually(t, func() bool {
		return ft.lastSent() != nil && ft.lastSent().Route == wire.RouteSessionCreate
	}, time.Second, 5*time.Millisecond)

	createReq := ft.lastSent()
	reply, err := wire.NewReply(createReq.RequestID, "", wire.SessionCreateResult{SessionID: sessionID})
	require.NoError(t, err)
	ft.deliver(reply)
}

func TestShellConnectLifecycle(t *testing.T) {
	ft := &fakeTransport{}
	reg := worker.NewRegistry()
	sh := worker.New(ft, reg)
	defer sh.Dispose()

	sh.Commands() <- worker.Connect{RequestID: "c1", Config: testConfig()}

	drainUntilConnected(t, ft, "sess-1")

	var gotStateChanged, gotReply bool
	deadline := time.After(time.Second)
	for !gotReply {
		select {
		case ev := <-sh.Events():
			switch e := ev.(type) {
			case worker.StateChanged:
				if e.Status.State == session.Connected {
					gotStateChanged = true
				}
			case worker.Reply:
				if e.RequestID == "c1" {
					require.False(t, e.IsError)
					gotReply = true
				}
			}
		case <-deadline:
			t.Fatal("timed out waiting for connect reply")
		}
	}

	require.True(t, gotStateChanged)

	sh.Commands() <- worker.Disconnect{RequestID: "d1"}

	deadline = time.After(time.Second)
	for {
		select {
		case ev := <-sh.Events():
			if r, ok := ev.(worker.Reply); ok && r.RequestID == "d1" {
				require.False(t, r.IsError)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for disconnect reply")
		}
	}
}

func TestShellSendRequestRoundTrip(t *testing.T) {
	ft := &fakeTransport{}
	reg := worker.NewRegistry()
	reg.RegisterRequest("Ping", pingSpec{})

	sh := worker.New(ft, reg)
	defer sh.Dispose()

	sh.Commands() <- worker.Connect{RequestID: "c1", Config: testConfig()}
	drainUntilConnected(t, ft, "sess-2")

	// drain until Connected before issuing the application request.
	require.Eventually(t, func() bool {
		select {
		case ev := <-sh.Events():
			sc, ok := ev.(worker.StateChanged)
			return ok && sc.Status.State == session.Connected
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	sh.Commands() <- worker.SendRequest{RequestID: "r1", CommandType: "Ping", Timeout: time.Second}

	require.Eventually(t, func() bool {
		return ft.lastSent() != nil && ft.lastSent().Route == "ping"
	}, time.Second, 5*time.Millisecond)

	req := ft.lastSent()
	reply, err := wire.NewReply(req.RequestID, "sess-2", map[string]string{"message": "pong"})
	require.NoError(t, err)
	ft.deliver(reply)

	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-sh.Events():
			if r, ok := ev.(worker.Reply); ok && r.RequestID == "r1" {
				require.False(t, r.IsError)
				require.Equal(t, "pong", r.Data)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for ping reply")
		}
	}
}

func TestShellSendRequestUnknownCommandType(t *testing.T) {
	ft := &fakeTransport{}
	reg := worker.NewRegistry()
	sh := worker.New(ft, reg)
	defer sh.Dispose()

	sh.Commands() <- worker.SendRequest{RequestID: "r1", CommandType: "Nope", Timeout: time.Second}

	select {
	case ev := <-sh.Events():
		r, ok := ev.(worker.Reply)
		require.True(t, ok)
		require.True(t, r.IsError)
		require.Equal(t, "UnknownCommandType", r.ErrorCode)
	case <-time.After(time.Second):
		t.Fatal("expected an error reply")
	}
}
