package protocol

import (
	"errors"
	"fmt"
)

const (
	headerSize = 3 // packet id (uint16) + flags (uint8)

	flagEncrypted uint8 = 1 << 0

	// MaxFrameSize bounds a single frame on any transport
	MaxFrameSize = 1 << 20
)

// Protocol errors
var (
	ErrMalformed       = errors.New("malformed packet")
	ErrUnknownPacket   = errors.New("unknown packet id")
	ErrNoCipher        = errors.New("encrypted packet received before crypto handshake")
	ErrMustBeEncrypted = errors.New("packet must be encrypted")
	ErrFrameTooLarge   = errors.New("frame exceeds maximum size")
)

// Cipher seals and opens packet bodies. Implemented by the session's crypto box.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// Codec converts between typed packets and frames:
//
//	[2 bytes: packet id (big-endian)][1 byte: flags][N bytes: body]
//
// Encrypted bodies are a 24-byte nonce followed by the sealed box.
type Codec struct {
	factories map[uint16]func() Packet
}

// NewCodec creates a Codec that knows every client and server packet
func NewCodec() *Codec {
	c := &Codec{factories: make(map[uint16]func() Packet)}

	c.register(func() Packet { return &PingPacket{} })
	c.register(func() Packet { return &CryptoHandshakeStartPacket{} })
	c.register(func() Packet { return &KeepalivePacket{} })
	c.register(func() Packet { return &LoginPacket{} })
	c.register(func() Packet { return &DisconnectPacket{} })
	c.register(func() Packet { return &KeepaliveTCPPacket{} })
	c.register(func() Packet { return &ConnectionTestPacket{} })

	c.register(func() Packet { return &PingResponsePacket{} })
	c.register(func() Packet { return &CryptoHandshakeResponsePacket{} })
	c.register(func() Packet { return &KeepaliveResponsePacket{} })
	c.register(func() Packet { return &ServerDisconnectPacket{} })
	c.register(func() Packet { return &LoggedInPacket{} })
	c.register(func() Packet { return &LoginFailedPacket{} })
	c.register(func() Packet { return &ProtocolMismatchPacket{} })
	c.register(func() Packet { return &KeepaliveTCPResponsePacket{} })
	c.register(func() Packet { return &ServerBannedPacket{} })
	c.register(func() Packet { return &ConnectionTestResponsePacket{} })

	return c
}

func (c *Codec) register(factory func() Packet) {
	c.factories[factory().ID()] = factory
}

// Encode frames pkt. Encrypted packets require a non-nil cipher.
func (c *Codec) Encode(pkt Packet, cipher Cipher) ([]byte, error) {
	body := NewByteWriter(64)
	pkt.encode(body)

	w := NewByteWriter(headerSize + len(body.Bytes()) + 40)
	w.WriteU16(pkt.ID())

	if !pkt.Encrypted() {
		w.WriteU8(0)
		w.WriteRaw(body.Bytes())
		return c.checkSize(w.Bytes())
	}

	if cipher == nil {
		return nil, fmt.Errorf("encode packet %d: %w", pkt.ID(), ErrNoCipher)
	}
	sealed, err := cipher.Seal(body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("encode packet %d: %w", pkt.ID(), err)
	}
	w.WriteU8(flagEncrypted)
	w.WriteRaw(sealed)
	return c.checkSize(w.Bytes())
}

func (c *Codec) checkSize(frame []byte) ([]byte, error) {
	if len(frame) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	return frame, nil
}

// Decode parses a frame into a typed packet, opening encrypted bodies with cipher
func (c *Codec) Decode(frame []byte, cipher Cipher) (Packet, error) {
	if len(frame) > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}

	r := NewByteReader(frame)
	id := r.ReadU16()
	flags := r.ReadU8()
	if err := r.Err(); err != nil {
		return nil, err
	}

	factory, ok := c.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPacket, id)
	}
	pkt := factory()

	body := r.ReadRest()
	encrypted := flags&flagEncrypted != 0
	if pkt.Encrypted() && !encrypted {
		return nil, fmt.Errorf("packet %d: %w", id, ErrMustBeEncrypted)
	}
	if encrypted {
		if cipher == nil {
			return nil, fmt.Errorf("packet %d: %w", id, ErrNoCipher)
		}
		opened, err := cipher.Open(body)
		if err != nil {
			return nil, fmt.Errorf("packet %d: %w: %v", id, ErrMalformed, err)
		}
		body = opened
	}

	br := NewByteReader(body)
	pkt.decode(br)
	if err := br.Err(); err != nil {
		return nil, fmt.Errorf("packet %d: %w", id, err)
	}
	return pkt, nil
}

// PeekID returns the packet id of a frame without decoding the body
func PeekID(frame []byte) (uint16, error) {
	r := NewByteReader(frame)
	id := r.ReadU16()
	return id, r.Err()
}
