package correlator_test

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driftline/wsrpc/pkg/wsrpc/correlator"
	"github.com/driftline/wsrpc/pkg/wsrpc/session"
	"github.com/driftline/wsrpc/pkg/wsrpc/transport"
	"github.com/driftline/wsrpc/pkg/wsrpc/wire"
)

// fakeTransport lets tests drive Session without a real socket: Send
// appends to an outbox a test goroutine can inspect and reply to via
// deliver().
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

// connectedHarness brings up a Session all the way to Connected using a
// fakeTransport, returning the transport and a ready Correlator.
func connectedHarness(t *testing.T, sessionID string) (*fakeTransport, *session.Session, *correlator.Correlator) {
	t.Helper()

	ft := &fakeTransport{}
	sess := session.New(ft, nil)
	t.Cleanup(sess.Dispose)

	cor := correlator.New(sess, nil)

	sess.Connect(session.Config{
		URL:                  "ws://test/",
		MaxReconnectAttempts: 3,
		ReconnectInterval:    50 * time.Millisecond,
		KeepaliveInterval:    time.Hour,
		MaxKeepaliveFailures: 3,
	})

	require.Eventually(t, func() bool {
		return ft.lastSent() != nil && ft.lastSent().Route == wire.RouteSessionCreate
	}, time.Second, 5*time.Millisecond)

	createReq := ft.lastSent()
	reply, err := wire.NewReply(createReq.RequestID, "", wire.SessionCreateResult{SessionID: sessionID})
	require.NoError(t, err)
	ft.deliver(reply)

	require.Eventually(t, func() bool {
		return sess.Status().State == session.Connected
	}, time.Second, 5*time.Millisecond)

	return ft, sess, cor
}

type pingResult struct {
	Message string `json:"message"`
}

func decodePing(payload []byte) (any, error) {
	var r pingResult
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, err
	}
	return r, nil
}

func TestSendRequest_ResolvesOnMatchingReply(t *testing.T) {
	ft, sess, cor := connectedHarness(t, "sess-A")

	var (
		mu   sync.Mutex
		got  any
		err  error
		done bool
	)

	cor.SendRequest("ping", map[string]string{"x": "y"}, decodePing, time.Second, func(v any, e error) {
		mu.Lock()
		got, err, done = v, e, true
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		return ft.lastSent() != nil && ft.lastSent().Route == "ping"
	}, time.Second, 5*time.Millisecond)

	reqMsg := ft.lastSent()
	reply, rerr := wire.NewReply(reqMsg.RequestID, sess.Status().SessionID, pingResult{Message: "pong"})
	require.NoError(t, rerr)
	ft.deliver(reply)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return done
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, err)
	require.Equal(t, pingResult{Message: "pong"}, got)
}

func TestSendRequest_TimesOutWithoutReply(t *testing.T) {
	_, _, cor := connectedHarness(t, "sess-B")

	resultCh := make(chan error, 1)
	cor.SendRequest("ping", nil, decodePing, 30*time.Millisecond, func(_ any, err error) {
		resultCh <- err
	})

	select {
	case err := <-resultCh:
		require.Error(t, err)
		var timeoutErr *correlator.TimeoutError
		require.ErrorAs(t, err, &timeoutErr)
	case <-time.After(time.Second):
		t.Fatal("request did not time out")
	}

	require.Equal(t, 0, cor.PendingCount())
}

func TestSendRequest_ServerErrorSurfacesCode(t *testing.T) {
	ft, _, cor := connectedHarness(t, "sess-C")

	resultCh := make(chan error, 1)
	cor.SendRequest("boom", nil, decodePing, time.Second, func(_ any, err error) {
		resultCh <- err
	})

	require.Eventually(t, func() bool {
		return ft.lastSent() != nil && ft.lastSent().Route == "boom"
	}, time.Second, 5*time.Millisecond)

	req := ft.lastSent()
	ft.deliver(wire.NewErrorReply(req.RequestID, req.SessionID, "NOT_FOUND"))

	select {
	case err := <-resultCh:
		var serverErr *correlator.ServerError
		require.ErrorAs(t, err, &serverErr)
		require.Equal(t, "NOT_FOUND", serverErr.Code)
	case <-time.After(time.Second):
		t.Fatal("did not receive server error")
	}
}

func TestSendRequest_RejectsSynchronouslyWhenNotConnected(t *testing.T) {
	ft := &fakeTransport{}
	sess := session.New(ft, nil)
	defer sess.Dispose()

	cor := correlator.New(sess, nil)

	var gotErr error
	cor.SendRequest("ping", nil, decodePing, time.Second, func(_ any, err error) {
		gotErr = err
	})

	require.ErrorIs(t, gotErr, transport.ErrNotConnected)
}

func TestSubscribeAndNotificationRouting(t *testing.T) {
	ft, sess, cor := connectedHarness(t, "sess-D")

	spec := tickerSpec{}

	var received atomic.Int32
	var subID string
	doneCh := make(chan struct{})
	cor.Subscribe(spec, nil, "internal-1", func(any) {
		received.Add(1)
	}, func(error) {}, time.Second, func(id string, err error) {
		subID = id
		require.NoError(t, err)
		close(doneCh)
	})

	require.Eventually(t, func() bool {
		return ft.lastSent() != nil && ft.lastSent().Route == "ticker.subscribe"
	}, time.Second, 5*time.Millisecond)

	req := ft.lastSent()
	reply, err := wire.NewReply(req.RequestID, sess.Status().SessionID, map[string]string{"subscriptionId": "sub-7"})
	require.NoError(t, err)
	ft.deliver(reply)

	<-doneCh
	require.Equal(t, "sub-7", subID)
	require.Equal(t, 1, cor.ActiveSubscriptionCount())

	notif, err := wire.NewNotification(sess.Status().SessionID, "sub-7", map[string]string{"tick": "1"})
	require.NoError(t, err)
	ft.deliver(notif)
	ft.deliver(notif)
	ft.deliver(notif)

	require.Eventually(t, func() bool {
		return received.Load() == 3
	}, time.Second, 5*time.Millisecond)

	cor.Unsubscribe(subID, time.Second)
	require.Equal(t, 0, cor.ActiveSubscriptionCount())

	// a fourth notification after unsubscribe must be dropped silently.
	ft.deliver(notif)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(3), received.Load())
}

type tickerSpec struct{}

func (tickerSpec) SubscribeRequest(params any) (string, any) {
	return "ticker.subscribe", map[string]string{}
}

func (tickerSpec) UnsubscribeRequest(subscriptionID string) (string, any) {
	return "ticker.unsubscribe", map[string]string{"subscriptionId": subscriptionID}
}

func (tickerSpec) Deserialize(payload []byte) (any, error) {
	var v map[string]string
	if err := json.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}
