package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mcoot/relaygate/internal/cryptobox"
	"github.com/mcoot/relaygate/internal/protocol"
)

// Client errors
var (
	ErrProtocolMismatch = errors.New("server speaks a different protocol version")
	ErrUnexpectedPacket = errors.New("unexpected packet")
)

// Client is a TCP relay client, used by the probe command and tests
type Client struct {
	conn   net.Conn
	reader *bufio.Reader
	codec  *protocol.Codec
	keys   *cryptobox.KeyPair
	box    *cryptobox.Box
}

// Dial connects to a relay's TCP transport
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	keys, err := cryptobox.GenerateKeyPair()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &Client{
		conn:   conn,
		reader: bufio.NewReader(conn),
		codec:  protocol.NewCodec(),
		keys:   keys,
	}, nil
}

// SetDeadline bounds every later read and write
func (c *Client) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Send frames pkt, sealing it once the handshake has completed
func (c *Client) Send(pkt protocol.Packet) error {
	frame, err := c.codec.Encode(pkt, c.cipher())
	if err != nil {
		return err
	}
	return WriteFrame(c.conn, frame)
}

// Receive reads and decodes the next packet
func (c *Client) Receive() (protocol.Packet, error) {
	frame, err := ReadFrame(c.reader)
	if err != nil {
		return nil, err
	}
	return c.codec.Decode(frame, c.cipher())
}

// Handshake negotiates the session box. version is normally protocol.Version;
// protocol.VersionProbe asks the server to answer whatever its version is.
func (c *Client) Handshake(version uint16) ([cryptobox.KeySize]byte, error) {
	var serverKey [cryptobox.KeySize]byte
	if err := c.Send(&protocol.CryptoHandshakeStartPacket{Protocol: version, Key: c.keys.Public}); err != nil {
		return serverKey, err
	}

	pkt, err := c.Receive()
	if err != nil {
		return serverKey, err
	}
	switch p := pkt.(type) {
	case *protocol.CryptoHandshakeResponsePacket:
		box, err := cryptobox.NewBox(&p.Key, &c.keys.Secret)
		if err != nil {
			return serverKey, err
		}
		c.box = box
		return p.Key, nil
	case *protocol.ProtocolMismatchPacket:
		return serverKey, fmt.Errorf("%w: server %d, client %d", ErrProtocolMismatch, p.Protocol, version)
	default:
		return serverKey, fmt.Errorf("%w: %d", ErrUnexpectedPacket, pkt.ID())
	}
}

// Ping sends a ping and returns the server's answer
func (c *Client) Ping(id uint32) (*protocol.PingResponsePacket, error) {
	if err := c.Send(&protocol.PingPacket{PingID: id}); err != nil {
		return nil, err
	}
	pkt, err := c.Receive()
	if err != nil {
		return nil, err
	}
	resp, ok := pkt.(*protocol.PingResponsePacket)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedPacket, pkt.ID())
	}
	return resp, nil
}

// Login sends a login and returns the server's answer: a LoggedInPacket on
// success, otherwise the failure packet the server closed with.
func (c *Client) Login(pkt *protocol.LoginPacket) (protocol.Packet, error) {
	if err := c.Send(pkt); err != nil {
		return nil, err
	}
	return c.Receive()
}

func (c *Client) cipher() protocol.Cipher {
	if c.box == nil {
		return nil
	}
	return c.box
}
