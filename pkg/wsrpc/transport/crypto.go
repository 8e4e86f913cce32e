package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"
)

// Errors surfaced by the handshake and frame encryption/decryption of
// secureChannel.
var (
	ErrHandshakeFailed = errors.New("transport: handshake failed")
	ErrInvalidCert     = errors.New("transport: invalid certificate")
	ErrInvalidKey      = errors.New("transport: invalid public key")
	ErrCertNotTrusted  = errors.New("transport: certificate not signed by a trusted CA")
	ErrPeerIDMismatch  = errors.New("transport: peer id does not match expected")
)

// phiBitLength bounds the MQV blinding exponent computed by blindingFactor.
const phiBitLength = 128

// TLSConfig configures the optional application-layer encryption a
// SecureTransport adds on top of a plain Transport. It is unrelated to
// Go's crypto/tls — the name matches the teacher's for continuity with
// its handshake/certificate shape.
type TLSConfig struct {
	CertificatePEM []byte
	PrivateKeyPEM  []byte
	RootCAs        *x509.CertPool
	ExpectedPeerID string
}

// handshakeMessage is exchanged once per connection to derive a shared
// AES-256 key via an MQV-style key agreement over P-256.
type handshakeMessage struct {
	EphemeralKey string `json:"ephemeralKey"`
	Certificate  string `json:"certificate"`
}

// secureChannel performs the ECDH/MQV handshake and AES-256-GCM framing
// for one connection. It has no notion of Transport; SecureTransport
// drives it.
type secureChannel struct {
	staticPriv *ecdsa.PrivateKey
	staticPub  *ecdsa.PublicKey
	localID    string
	certPEM    []byte

	ephemPriv *big.Int
	ephemPubX *big.Int
	ephemPubY *big.Int

	curve         elliptic.Curve
	aead          cipher.AEAD
	handshakeDone bool
	isInitiator   bool

	peerID     string
	peerPubX   *big.Int
	peerPubY   *big.Int
	peerStatic *ecdsa.PublicKey

	rootCAs        *x509.CertPool
	expectedPeerID string
}

func newSecureChannel(cfg *TLSConfig, isInitiator bool) (*secureChannel, error) {
	if cfg == nil {
		return nil, errors.New("transport: TLSConfig is required for a secure channel")
	}

	certBlock, _ := pem.Decode(cfg.CertificatePEM)
	if certBlock == nil {
		return nil, ErrInvalidCert
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, err
	}

	keyBlock, _ := pem.Decode(cfg.PrivateKeyPEM)
	if keyBlock == nil {
		return nil, ErrInvalidKey
	}

	privKey, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, err
	}

	if !privKey.PublicKey.Equal(cert.PublicKey) {
		return nil, errors.New("transport: private key does not match certificate")
	}

	localID := cert.Subject.CommonName
	if localID == "" {
		return nil, errors.New("transport: certificate must carry a CommonName id")
	}

	return &secureChannel{
		staticPriv:     privKey,
		staticPub:      &privKey.PublicKey,
		localID:        localID,
		certPEM:        cfg.CertificatePEM,
		curve:          elliptic.P256(),
		isInitiator:    isInitiator,
		rootCAs:        cfg.RootCAs,
		expectedPeerID: cfg.ExpectedPeerID,
	}, nil
}

// createHandshakeMessage generates (if needed) this side's ephemeral key
// pair and packages it with the static certificate.
func (sc *secureChannel) createHandshakeMessage() (*handshakeMessage, error) {
	if sc.ephemPriv == nil {
		if err := sc.generateEphemeral(); err != nil {
			return nil, err
		}
	}

	vBytes := elliptic.Marshal(sc.curve, sc.ephemPubX, sc.ephemPubY)

	return &handshakeMessage{
		EphemeralKey: base64.StdEncoding.EncodeToString(vBytes),
		Certificate:  string(sc.certPEM),
	}, nil
}

// processPeerHandshake consumes the peer's handshake message, verifies
// its certificate, and — once both ephemeral keys are known — derives
// the shared AES-256-GCM key.
func (sc *secureChannel) processPeerHandshake(msg *handshakeMessage) error {
	if sc.ephemPriv == nil {
		if err := sc.generateEphemeral(); err != nil {
			return err
		}
	}

	vBytes, err := base64.StdEncoding.DecodeString(msg.EphemeralKey)
	if err != nil {
		return ErrInvalidKey
	}

	px, py := elliptic.Unmarshal(sc.curve, vBytes)
	if px == nil {
		return ErrInvalidKey
	}

	sc.peerPubX = px
	sc.peerPubY = py

	certBlock, _ := pem.Decode([]byte(msg.Certificate))
	if certBlock == nil {
		return ErrInvalidCert
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return err
	}

	if err := sc.verifyPeerCertificate(cert); err != nil {
		return err
	}

	sc.peerID = cert.Subject.CommonName
	if sc.peerID == "" {
		return errors.New("transport: peer certificate must carry a CommonName id")
	}

	peerStatic, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return ErrInvalidKey
	}

	sc.peerStatic = peerStatic

	return sc.deriveSharedKey()
}

func (sc *secureChannel) verifyPeerCertificate(cert *x509.Certificate) error {
	if sc.rootCAs != nil {
		opts := x509.VerifyOptions{
			Roots: sc.rootCAs,
			KeyUsages: []x509.ExtKeyUsage{
				x509.ExtKeyUsageClientAuth,
				x509.ExtKeyUsageServerAuth,
			},
		}

		if _, err := cert.Verify(opts); err != nil {
			return ErrCertNotTrusted
		}
	}

	if sc.expectedPeerID != "" && cert.Subject.CommonName != sc.expectedPeerID {
		return ErrPeerIDMismatch
	}

	return nil
}

func (sc *secureChannel) generateEphemeral() error {
	priv, x, y, err := elliptic.GenerateKey(sc.curve, rand.Reader)
	if err != nil {
		return err
	}

	sc.ephemPriv = new(big.Int).SetBytes(priv)
	sc.ephemPubX = x
	sc.ephemPubY = y

	return nil
}

// mqvRole pairs one side's identity and ephemeral public point for the
// purpose of the canonical initiator/responder hash ordering MQV
// requires: both parties must hash "initiator id, responder id, the
// other party's V" the same way no matter which one is computing it.
type mqvRole struct {
	id    string
	vx    *big.Int
	vy    *big.Int
	blind *big.Int
}

// deriveSharedKey implements a two-party MQV key agreement over the
// static (certificate) and ephemeral (per-connection) key pairs, then
// derives an AES-256-GCM AEAD from the resulting shared point. Rather
// than branch on isInitiator at every step, it first pins down which
// side is the initiator and which the responder exactly once, computes
// both of their blinding factors from that fixed ordering, and only
// branches at the end to pick which of the two is "ours".
func (sc *secureChannel) deriveSharedKey() error {
	curve := sc.curve
	N := curve.Params().N

	initiator := mqvRole{id: sc.localID, vx: sc.ephemPubX, vy: sc.ephemPubY}
	responder := mqvRole{id: sc.peerID, vx: sc.peerPubX, vy: sc.peerPubY}
	if !sc.isInitiator {
		initiator, responder = mqvRole{id: sc.peerID, vx: sc.peerPubX, vy: sc.peerPubY},
			mqvRole{id: sc.localID, vx: sc.ephemPubX, vy: sc.ephemPubY}
	}

	initiator.blind = blindingFactor(curve, initiator.vx, initiator.vy,
		hashContext(initiator.id, responder.id, elliptic.Marshal(curve, responder.vx, responder.vy)))
	responder.blind = blindingFactor(curve, responder.vx, responder.vy,
		hashContext(responder.id, initiator.id, elliptic.Marshal(curve, initiator.vx, initiator.vy)))

	own, peer := initiator, responder
	if !sc.isInitiator {
		own, peer = responder, initiator
	}

	term := new(big.Int).Mul(own.blind, sc.staticPriv.D)
	s := new(big.Int).Sub(sc.ephemPriv, term)
	s.Mod(s, N)

	blindedPeerStaticX, blindedPeerStaticY := curve.ScalarMult(sc.peerStatic.X, sc.peerStatic.Y, peer.blind.Bytes())
	negY := new(big.Int).Sub(curve.Params().P, blindedPeerStaticY)
	negY.Mod(negY, curve.Params().P)

	tx, ty := curve.Add(peer.vx, peer.vy, blindedPeerStaticX, negY)
	kx, _ := curve.ScalarMult(tx, ty, s.Bytes())

	if kx == nil {
		return errors.New("transport: derived shared point at infinity")
	}

	sharedKey := sha256.Sum256(kx.Bytes())

	block, err := aes.NewCipher(sharedKey[:])
	if err != nil {
		return err
	}

	sc.aead, err = cipher.NewGCM(block)
	if err != nil {
		return err
	}

	sc.handshakeDone = true

	return nil
}

func hashContext(id1, id2 string, vBytes []byte) []byte {
	h := sha256.New()
	h.Write([]byte(id1))
	h.Write([]byte(id2))
	h.Write(vBytes)

	return h.Sum(nil)
}

// blindingFactor computes MQV's phi(V, X): a value in [2^l, 2^(l+1)) used
// to blind the ephemeral private key against small-subgroup attacks.
func blindingFactor(curve elliptic.Curve, vx, vy *big.Int, context []byte) *big.Int {
	h := sha256.New()
	h.Write(elliptic.Marshal(curve, vx, vy))
	h.Write(context)
	digest := h.Sum(nil)

	res := new(big.Int).SetBytes(digest[:16])

	mod := new(big.Int).Lsh(big.NewInt(1), phiBitLength)
	res.Mod(res, mod)
	res.Add(res, mod)

	return res
}

// encrypt seals plaintext with a fresh random nonce, returning
// nonce||ciphertext.
func (sc *secureChannel) encrypt(plaintext []byte) ([]byte, error) {
	if !sc.handshakeDone {
		return nil, ErrHandshakeFailed
	}

	nonce := make([]byte, sc.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return sc.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens a nonce||ciphertext frame produced by encrypt.
func (sc *secureChannel) decrypt(framed []byte) ([]byte, error) {
	if !sc.handshakeDone {
		return nil, ErrHandshakeFailed
	}

	ns := sc.aead.NonceSize()
	if len(framed) < ns {
		return nil, errors.New("transport: encrypted frame too short")
	}

	nonce, ciphertext := framed[:ns], framed[ns:]

	return sc.aead.Open(nil, nonce, ciphertext, nil)
}
