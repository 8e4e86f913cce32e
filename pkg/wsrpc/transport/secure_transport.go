package transport

import (
	"encoding/json"
	"sync"
)

// SecureTransport wraps another Transport and adds an ECDH/MQV handshake
// plus AES-256-GCM encryption of every frame's payload. Session, the
// wire codec, and everything above them are unaware this is happening —
// OnOpen only fires once the handshake has completed, and Send/OnBytes
// deal exclusively in plaintext framed bytes.
type SecureTransport struct {
	inner       Transport
	cfg         *TLSConfig
	isInitiator bool

	mu      sync.Mutex
	channel *secureChannel
	obs     Observer
}

// NewSecureTransport wraps inner with app-layer encryption. isInitiator
// must be true on the dialing side and false on the accepting side — it
// picks which party sends the first handshake message.
func NewSecureTransport(inner Transport, cfg *TLSConfig, isInitiator bool) *SecureTransport {
	st := &SecureTransport{
		inner:       inner,
		cfg:         cfg,
		isInitiator: isInitiator,
	}
	inner.SetObserver(st)

	return st
}

func (st *SecureTransport) SetObserver(obs Observer) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.obs = obs
}

func (st *SecureTransport) observer() Observer {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.obs
}

func (st *SecureTransport) Connect(url string) error {
	channel, err := newSecureChannel(st.cfg, st.isInitiator)
	if err != nil {
		return err
	}

	st.mu.Lock()
	st.channel = channel
	st.mu.Unlock()

	return st.inner.Connect(url)
}

func (st *SecureTransport) Disconnect() {
	st.inner.Disconnect()

	st.mu.Lock()
	st.channel = nil
	st.mu.Unlock()
}

// Send encrypts data and forwards it to the inner transport. It fails
// fast with ErrNotConnected if the handshake has not completed yet.
func (st *SecureTransport) Send(data []byte) error {
	st.mu.Lock()
	channel := st.channel
	st.mu.Unlock()

	if channel == nil || !channel.handshakeDone {
		return ErrNotConnected
	}

	ciphertext, err := channel.encrypt(data)
	if err != nil {
		return err
	}

	return st.inner.Send(ciphertext)
}

// OnOpen begins the handshake: the initiator sends first, the responder
// waits for the initiator's message before replying.
func (st *SecureTransport) OnOpen() {
	if !st.isInitiator {
		return
	}

	st.mu.Lock()
	channel := st.channel
	st.mu.Unlock()

	msg, err := channel.createHandshakeMessage()
	if err != nil {
		st.failHandshake(err)
		return
	}

	if err := st.sendHandshake(msg); err != nil {
		st.failHandshake(err)
	}
}

func (st *SecureTransport) OnBytes(data []byte) {
	st.mu.Lock()
	channel := st.channel
	handshakeDone := channel != nil && channel.handshakeDone
	st.mu.Unlock()

	if !handshakeDone {
		st.handleHandshakeBytes(channel, data)
		return
	}

	plaintext, err := channel.decrypt(data)
	if err != nil {
		if obs := st.observer(); obs != nil {
			obs.OnError(err)
		}

		return
	}

	if obs := st.observer(); obs != nil {
		obs.OnBytes(plaintext)
	}
}

func (st *SecureTransport) handleHandshakeBytes(channel *secureChannel, data []byte) {
	var msg handshakeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		st.failHandshake(err)
		return
	}

	if err := channel.processPeerHandshake(&msg); err != nil {
		st.failHandshake(err)
		return
	}

	if !st.isInitiator {
		reply, err := channel.createHandshakeMessage()
		if err != nil {
			st.failHandshake(err)
			return
		}

		if err := st.sendHandshake(reply); err != nil {
			st.failHandshake(err)
			return
		}
	}

	if obs := st.observer(); obs != nil {
		obs.OnOpen()
	}
}

func (st *SecureTransport) sendHandshake(msg *handshakeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return st.inner.Send(data)
}

func (st *SecureTransport) failHandshake(err error) {
	if obs := st.observer(); obs != nil {
		obs.OnError(err)
		obs.OnClose(err)
	}

	st.inner.Disconnect()
}

func (st *SecureTransport) OnClose(err error) {
	if obs := st.observer(); obs != nil {
		obs.OnClose(err)
	}
}

func (st *SecureTransport) OnError(err error) {
	if obs := st.observer(); obs != nil {
		obs.OnError(err)
	}
}
