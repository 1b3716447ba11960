// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package route

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/flynn/noise"
	"github.com/samber/oops"
	"golang.org/x/crypto/curve25519"
)

// Noise XX gives both sides the other's static key, so every channel is
// mutually authenticated.
//
//	-> e
//	<- e, ee, s, es
//	-> s, se
const (
	noisePrologue = "route/noise/1"
	maxNoiseMsg   = 65535
	maxPlaintext  = maxNoiseMsg - 16 // ChaCha20-Poly1305 tag
)

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// Identity is a static Curve25519 key pair used in the secure handshake.
type Identity struct {
	key noise.DHKey
}

// GenerateIdentity returns a fresh random identity.
func GenerateIdentity() (Identity, error) {
	key, err := noise.DH25519.GenerateKeypair(rand.Reader)
	if err != nil {
		return Identity{}, oops.In("identity").Wrapf(err, "generate keypair")
	}
	return Identity{key: key}, nil
}

// IdentityFromPrivate rebuilds an identity from its 32-byte private key.
func IdentityFromPrivate(priv []byte) (Identity, error) {
	if len(priv) != curve25519.ScalarSize {
		return Identity{}, oops.In("identity").Wrapf(ErrInvalidInput, "private key is %d bytes, want %d", len(priv), curve25519.ScalarSize)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return Identity{}, oops.In("identity").Wrapf(errors.Join(ErrInvalidInput, err), "derive public key")
	}
	return Identity{key: noise.DHKey{
		Private: append([]byte(nil), priv...),
		Public:  pub,
	}}, nil
}

// IsZero reports whether the identity holds no key.
func (id Identity) IsZero() bool { return len(id.key.Private) == 0 }

// Public returns the public key.
func (id Identity) Public() []byte { return append([]byte(nil), id.key.Public...) }

// Private returns the private key.
func (id Identity) Private() []byte { return append([]byte(nil), id.key.Private...) }

// String returns the hex public key.
func (id Identity) String() string { return hex.EncodeToString(id.key.Public) }

// Verifier decides whether a peer, known by its static public key, may use
// the channel.
type Verifier func(remoteStatic []byte) error

// secureConn encrypts a net.Conn with the cipher states from the handshake.
// Every ciphertext is framed with a 2-byte length.
type secureConn struct {
	net.Conn

	send *noise.CipherState
	recv *noise.CipherState

	remoteStatic []byte

	readMu  sync.Mutex
	writeMu sync.Mutex
	readBuf []byte
}

// secure runs the handshake over nc and returns the encrypted connection.
// ctx bounds the handshake only.
func secure(ctx context.Context, nc net.Conn, id Identity, initiator bool, verify Verifier) (*secureConn, error) {
	errb := oops.In("secure").With("initiator", initiator)

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		Prologue:      []byte(noisePrologue),
		StaticKeypair: id.key,
	})
	if err != nil {
		return nil, errb.Wrapf(errors.Join(ErrHandshake, err), "handshake state")
	}

	stop := arm(ctx, nc.SetDeadline)
	var send, recv *noise.CipherState
	if initiator {
		send, recv, err = initiatorHandshake(nc, hs)
	} else {
		send, recv, err = responderHandshake(nc, hs)
	}
	stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, errb.Wrapf(errors.Join(ErrHandshake, err), "handshake")
	}
	// leave the conn without a deadline for the channel
	_ = nc.SetDeadline(time.Time{})

	remote := hs.PeerStatic()
	if len(remote) != curve25519.PointSize {
		return nil, errb.Wrapf(ErrHandshake, "remote static key is %d bytes", len(remote))
	}
	if verify != nil {
		if err := verify(remote); err != nil {
			return nil, errb.With("remote", hex.EncodeToString(remote)).Wrapf(errors.Join(ErrHandshake, err), "peer rejected")
		}
	}

	return &secureConn{
		Conn:         nc,
		send:         send,
		recv:         recv,
		remoteStatic: append([]byte(nil), remote...),
	}, nil
}

func initiatorHandshake(rw io.ReadWriter, hs *noise.HandshakeState) (*noise.CipherState, *noise.CipherState, error) {
	msg1, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := writeNoiseFrame(rw, msg1); err != nil {
		return nil, nil, err
	}

	msg2, err := readNoiseFrame(rw)
	if err != nil {
		return nil, nil, err
	}
	if _, _, _, err := hs.ReadMessage(nil, msg2); err != nil {
		return nil, nil, err
	}

	msg3, cs1, cs2, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := writeNoiseFrame(rw, msg3); err != nil {
		return nil, nil, err
	}
	return cs1, cs2, nil
}

func responderHandshake(rw io.ReadWriter, hs *noise.HandshakeState) (*noise.CipherState, *noise.CipherState, error) {
	msg1, err := readNoiseFrame(rw)
	if err != nil {
		return nil, nil, err
	}
	if _, _, _, err := hs.ReadMessage(nil, msg1); err != nil {
		return nil, nil, err
	}

	msg2, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := writeNoiseFrame(rw, msg2); err != nil {
		return nil, nil, err
	}

	msg3, err := readNoiseFrame(rw)
	if err != nil {
		return nil, nil, err
	}
	_, cs1, cs2, err := hs.ReadMessage(nil, msg3)
	if err != nil {
		return nil, nil, err
	}
	// cs1 encrypts initiator to responder
	return cs2, cs1, nil
}

// RemoteStatic returns the peer's static public key.
func (c *secureConn) RemoteStatic() []byte {
	return c.remoteStatic
}

func (c *secureConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.readBuf) == 0 {
		msg, err := readNoiseFrame(c.Conn)
		if err != nil {
			return 0, err
		}
		plain, err := c.recv.Decrypt(nil, nil, msg)
		if err != nil {
			return 0, oops.In("secure").Wrapf(err, "decrypt")
		}
		c.readBuf = plain
	}

	n := copy(p, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

func (c *secureConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for written < len(p) {
		end := min(written+maxPlaintext, len(p))
		ct, err := c.send.Encrypt(nil, nil, p[written:end])
		if err != nil {
			return written, oops.In("secure").Wrapf(err, "encrypt")
		}
		if err := writeNoiseFrame(c.Conn, ct); err != nil {
			return written, err
		}
		written = end
	}
	return written, nil
}

// writeNoiseFrame writes [2 len][data] in one call.
func writeNoiseFrame(w io.Writer, data []byte) error {
	if len(data) > maxNoiseMsg {
		return oops.In("secure").With("size", len(data)).Wrapf(ErrFrameTooLarge, "noise message")
	}
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

func readNoiseFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	data := make([]byte, binary.BigEndian.Uint16(lenBuf[:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
