// Package facade implements the host side of the host/worker split
// described by spec.md §4.5: a single Client per session, owning the
// worker handle and two maps — pending requests by requestId and
// active subscriptions by internalId — that turn the worker's
// Command/Event channels into promise-like Futures and callbacks.
package facade

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/wsrpc/pkg/wsrpc/session"
	"github.com/driftline/wsrpc/pkg/wsrpc/transport"
	"github.com/driftline/wsrpc/pkg/wsrpc/worker"
)

type subState int

const (
	subPending subState = iota
	subActive
	subClosed
)

type subEntry struct {
	mu             sync.Mutex
	state          subState
	subscriptionID string
	onData         func(any)
	onError        func(error)
}

// Client is the single entry point a consumer uses per session. Every
// method is safe to call from any goroutine; the Futures and callbacks
// it hands back are resolved/invoked from Client's own internal event
// loop goroutine, never concurrently with one another — mirroring
// spec.md §5's "single-threaded host context". The one exception is
// Unsubscribe of an unknown internalId, whose Future is resolved with
// ErrUnknownSubscription before Unsubscribe returns.
type Client struct {
	sh     *worker.Shell
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]func(any, error)
	subs    map[string]*subEntry

	hooksMu            sync.Mutex
	onConnectedHooks   []func(sessionID string)
	onDisconnectedHook []func()
	onConnErrorHooks   []func(error)

	done      chan struct{}
	wg        sync.WaitGroup
	disposing atomic.Bool
}

// New builds a Client around a fresh worker.Shell wrapping t, and
// starts the Client's own event loop immediately.
func New(t transport.Transport, registry *worker.Registry, opts ...worker.Option) *Client {
	logger := slog.Default()

	c := &Client{
		sh:      worker.New(t, registry, opts...),
		logger:  logger,
		pending: make(map[string]func(any, error)),
		subs:    make(map[string]*subEntry),
		done:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.loop()

	return c
}

// OnConnected registers a hook fired with the server-assigned session
// id every time the session reaches Connected.
func (c *Client) OnConnected(fn func(sessionID string)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onConnectedHooks = append(c.onConnectedHooks, fn)
}

// OnDisconnected registers a hook fired every time the session reaches
// Disconnected. The facade never reconnects on its own; the consumer
// decides.
func (c *Client) OnDisconnected(fn func()) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onDisconnectedHook = append(c.onDisconnectedHook, fn)
}

// OnConnectionError registers a hook fired when the worker is lost.
func (c *Client) OnConnectionError(fn func(error)) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.onConnErrorHooks = append(c.onConnErrorHooks, fn)
}

// Connect resolves once the session reaches Connected, or rejects with
// ConnectionClosed if it falls back to Disconnected/Error first.
func (c *Client) Connect(cfg session.Config) *Future[struct{}] {
	fut, resolve := newFuture[struct{}]()

	reqID := uuid.NewString()
	c.registerPending(reqID, func(_ any, err error) { resolve(struct{}{}, err) })

	c.sh.Commands() <- worker.Connect{RequestID: reqID, Config: cfg}

	return fut
}

// Disconnect resolves once the session reaches Disconnected.
func (c *Client) Disconnect() *Future[struct{}] {
	fut, resolve := newFuture[struct{}]()

	reqID := uuid.NewString()
	c.registerPending(reqID, func(_ any, err error) { resolve(struct{}{}, err) })

	c.sh.Commands() <- worker.Disconnect{RequestID: reqID}

	return fut
}

// Request serializes commandType + params over the worker boundary and
// resolves with the decoded reply, type-asserted to T. Go has no
// generic methods, so this is a package-level function the way
// spec.md §4.5's request(command, timeoutMs) -> promise<T> translates.
func Request[T any](c *Client, commandType string, params any, timeout time.Duration) *Future[T] {
	fut, resolve := newFuture[T]()

	reqID := uuid.NewString()
	c.registerPending(reqID, func(data any, err error) {
		if err != nil {
			var zero T
			resolve(zero, err)
			return
		}

		v, ok := data.(T)
		if !ok {
			var zero T
			resolve(zero, ErrReplyTypeMismatch)
			return
		}

		resolve(v, nil)
	})

	c.sh.Commands() <- worker.SendRequest{RequestID: reqID, CommandType: commandType, Params: params, Timeout: timeout}

	return fut
}

// Subscribe issues subscriptionName's subscribe request and resolves
// with a worker-stable internalId once the server acknowledges it.
// onData receives each decoded notification in order. onError is stored
// with the subscription but Client never calls it: a notification that
// fails to decode inside the worker is logged and dropped there, and a
// session drop closes the subscription without a call to onError.
func (c *Client) Subscribe(subscriptionName string, params any, onData func(any), onError func(error), timeout time.Duration) *Future[string] {
	fut, resolve := newFuture[string]()

	internalID := uuid.NewString()
	entry := &subEntry{state: subPending, onData: onData, onError: onError}

	c.mu.Lock()
	c.subs[internalID] = entry
	c.mu.Unlock()

	reqID := uuid.NewString()
	c.registerPending(reqID, func(data any, err error) {
		if err != nil {
			c.mu.Lock()
			delete(c.subs, internalID)
			c.mu.Unlock()

			resolve("", err)
			return
		}

		subscriptionID, _ := data.(string)

		entry.mu.Lock()
		entry.subscriptionID = subscriptionID
		entry.state = subActive
		entry.mu.Unlock()

		resolve(internalID, nil)
	})

	c.sh.Commands() <- worker.Subscribe{
		RequestID:        reqID,
		SubscriptionName: subscriptionName,
		Params:           params,
		InternalID:       internalID,
		Timeout:          timeout,
	}

	return fut
}

// Unsubscribe removes the local routing entry immediately — so any
// notification bearing internalID that arrives after this call returns
// is dropped silently — and instructs the worker to unsubscribe.
func (c *Client) Unsubscribe(internalID string, timeout time.Duration) *Future[struct{}] {
	fut, resolve := newFuture[struct{}]()

	c.mu.Lock()
	entry, ok := c.subs[internalID]
	if ok {
		delete(c.subs, internalID)
	}
	c.mu.Unlock()

	if !ok {
		resolve(struct{}{}, ErrUnknownSubscription)
		return fut
	}

	entry.mu.Lock()
	entry.state = subClosed
	subscriptionID := entry.subscriptionID
	entry.mu.Unlock()

	reqID := uuid.NewString()
	c.registerPending(reqID, func(_ any, err error) { resolve(struct{}{}, err) })

	c.sh.Commands() <- worker.Unsubscribe{RequestID: reqID, SubscriptionID: subscriptionID, Timeout: timeout}

	return fut
}

// Dispose stops the Client's event loop and the underlying worker.
// Safe to call more than once.
func (c *Client) Dispose() {
	select {
	case <-c.done:
		return
	default:
	}

	c.disposing.Store(true)
	close(c.done)
	c.sh.Dispose()
	c.wg.Wait()
}

func (c *Client) registerPending(requestID string, onDone func(any, error)) {
	c.mu.Lock()
	c.pending[requestID] = onDone
	c.mu.Unlock()
}

func (c *Client) loop() {
	defer c.wg.Done()

	for {
		ev, ok := <-c.sh.Events()
		if !ok {
			if !c.disposing.Load() {
				c.handleWorkerLost()
			}
			return
		}

		c.handleEvent(ev)
	}
}

func (c *Client) handleEvent(ev worker.Event) {
	switch e := ev.(type) {
	case worker.Reply:
		c.handleReply(e)
	case worker.Notification:
		c.handleNotification(e)
	case worker.StateChanged:
		c.handleStateChanged(e)
	}
}

func (c *Client) handleReply(r worker.Reply) {
	c.mu.Lock()
	onDone, ok := c.pending[r.RequestID]
	if ok {
		delete(c.pending, r.RequestID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Warn("facade: reply for unknown request", "requestId", r.RequestID)
		return
	}

	if r.IsError {
		onDone(nil, &ReplyError{Code: r.ErrorCode, Message: r.ErrorMessage})
		return
	}

	onDone(r.Data, nil)
}

func (c *Client) handleNotification(n worker.Notification) {
	c.mu.Lock()
	entry, ok := c.subs[n.InternalID]
	c.mu.Unlock()

	if !ok {
		return
	}

	entry.mu.Lock()
	state := entry.state
	onData := entry.onData
	entry.mu.Unlock()

	if state != subActive {
		return
	}

	onData(n.Data)
}

func (c *Client) handleStateChanged(sc worker.StateChanged) {
	switch sc.Status.State {
	case session.Connected:
		for _, hook := range c.snapshotConnectedHooks() {
			hook(sc.Status.SessionID)
		}
	case session.Disconnected:
		c.closeAllSubscriptions()

		for _, hook := range c.snapshotDisconnectedHooks() {
			hook()
		}
	}
}

func (c *Client) closeAllSubscriptions() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*subEntry)
	c.mu.Unlock()

	for _, entry := range subs {
		entry.mu.Lock()
		entry.state = subClosed
		entry.mu.Unlock()
	}
}

func (c *Client) handleWorkerLost() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]func(any, error))
	c.mu.Unlock()

	for _, onDone := range pending {
		onDone(nil, ErrWorkerLost)
	}

	c.closeAllSubscriptions()

	for _, hook := range c.snapshotConnErrorHooks() {
		hook(ErrWorkerLost)
	}
}

func (c *Client) snapshotConnectedHooks() []func(string) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	return append(([]func(string))(nil), c.onConnectedHooks...)
}

func (c *Client) snapshotDisconnectedHooks() []func() {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	return append(([]func())(nil), c.onDisconnectedHook...)
}

func (c *Client) snapshotConnErrorHooks() []func(error) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	return append(([]func(error))(nil), c.onConnErrorHooks...)
}
