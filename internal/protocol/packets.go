package protocol

import (
	"github.com/mcoot/relaygate/internal/model"
)

const (
	// Version is the protocol version this server speaks
	Version uint16 = 11
	// VersionProbe is sent by clients discovering the server version.
	// The handshake proceeds, the client disconnects on its own afterwards.
	VersionProbe uint16 = 0xffff

	// KeySize is the size of an X25519 public key
	KeySize = 32
)

// Client packet ids
const (
	PingPacketID                 uint16 = 10000
	CryptoHandshakeStartPacketID uint16 = 10001
	KeepalivePacketID            uint16 = 10002
	LoginPacketID                uint16 = 10003
	DisconnectPacketID           uint16 = 10004
	KeepaliveTCPPacketID         uint16 = 10005
	ConnectionTestPacketID       uint16 = 10010
)

// Server packet ids
const (
	PingResponsePacketID            uint16 = 20000
	CryptoHandshakeResponsePacketID uint16 = 20001
	KeepaliveResponsePacketID       uint16 = 20002
	ServerDisconnectPacketID        uint16 = 20003
	LoggedInPacketID                uint16 = 20004
	LoginFailedPacketID             uint16 = 20005
	ProtocolMismatchPacketID        uint16 = 20006
	KeepaliveTCPResponsePacketID    uint16 = 20007
	ServerBannedPacketID            uint16 = 20008
	ConnectionTestResponsePacketID  uint16 = 20010
)

// Packet is a typed message that the Codec can frame
type Packet interface {
	// ID returns the packet id written in the frame header
	ID() uint16
	// Encrypted reports whether the body must be sealed with the session box
	Encrypted() bool

	encode(w *ByteWriter)
	decode(r *ByteReader)
}

// plain packets are never encrypted
type plain struct{}

func (plain) Encrypted() bool { return false }

// Client packets

type PingPacket struct {
	plain
	PingID uint32
}

func (*PingPacket) ID() uint16             { return PingPacketID }
func (p *PingPacket) encode(w *ByteWriter) { w.WriteU32(p.PingID) }
func (p *PingPacket) decode(r *ByteReader) { p.PingID = r.ReadU32() }

type CryptoHandshakeStartPacket struct {
	plain
	Protocol uint16
	Key      [KeySize]byte
}

func (*CryptoHandshakeStartPacket) ID() uint16 { return CryptoHandshakeStartPacketID }

func (p *CryptoHandshakeStartPacket) encode(w *ByteWriter) {
	w.WriteU16(p.Protocol)
	w.WriteRaw(p.Key[:])
}

func (p *CryptoHandshakeStartPacket) decode(r *ByteReader) {
	p.Protocol = r.ReadU16()
	copy(p.Key[:], r.ReadRaw(KeySize))
}

type KeepalivePacket struct{ plain }

func (*KeepalivePacket) ID() uint16         { return KeepalivePacketID }
func (*KeepalivePacket) encode(*ByteWriter) {}
func (*KeepalivePacket) decode(*ByteReader) {}

// LoginPacket carries the client's claimed identity. Always encrypted.
type LoginPacket struct {
	SecretKey          uint32
	AccountID          int32
	UserID             int32
	Name               string
	Token              string
	Icons              model.PlayerIconData
	FragmentationLimit uint16
}

func (*LoginPacket) ID() uint16      { return LoginPacketID }
func (*LoginPacket) Encrypted() bool { return true }

func (p *LoginPacket) encode(w *ByteWriter) {
	w.WriteU32(p.SecretKey)
	w.WriteI32(p.AccountID)
	w.WriteI32(p.UserID)
	w.WriteString(p.Name)
	w.WriteString(p.Token)
	writeIcons(w, p.Icons)
	w.WriteU16(p.FragmentationLimit)
}

func (p *LoginPacket) decode(r *ByteReader) {
	p.SecretKey = r.ReadU32()
	p.AccountID = r.ReadI32()
	p.UserID = r.ReadI32()
	p.Name = r.ReadString()
	p.Token = r.ReadString()
	p.Icons = readIcons(r)
	p.FragmentationLimit = r.ReadU16()
}

type DisconnectPacket struct{ plain }

func (*DisconnectPacket) ID() uint16         { return DisconnectPacketID }
func (*DisconnectPacket) encode(*ByteWriter) {}
func (*DisconnectPacket) decode(*ByteReader) {}

type KeepaliveTCPPacket struct{ plain }

func (*KeepaliveTCPPacket) ID() uint16         { return KeepaliveTCPPacketID }
func (*KeepaliveTCPPacket) encode(*ByteWriter) {}
func (*KeepaliveTCPPacket) decode(*ByteReader) {}

type ConnectionTestPacket struct {
	plain
	UID  uint32
	Data []byte
}

func (*ConnectionTestPacket) ID() uint16 { return ConnectionTestPacketID }

func (p *ConnectionTestPacket) encode(w *ByteWriter) {
	w.WriteU32(p.UID)
	w.WriteBytes(p.Data)
}

func (p *ConnectionTestPacket) decode(r *ByteReader) {
	p.UID = r.ReadU32()
	p.Data = r.ReadBytes()
}

// Server packets

type PingResponsePacket struct {
	plain
	PingID      uint32
	PlayerCount uint32
}

func (*PingResponsePacket) ID() uint16 { return PingResponsePacketID }

func (p *PingResponsePacket) encode(w *ByteWriter) {
	w.WriteU32(p.PingID)
	w.WriteU32(p.PlayerCount)
}

func (p *PingResponsePacket) decode(r *ByteReader) {
	p.PingID = r.ReadU32()
	p.PlayerCount = r.ReadU32()
}

type CryptoHandshakeResponsePacket struct {
	plain
	Key [KeySize]byte
}

func (*CryptoHandshakeResponsePacket) ID() uint16             { return CryptoHandshakeResponsePacketID }
func (p *CryptoHandshakeResponsePacket) encode(w *ByteWriter) { w.WriteRaw(p.Key[:]) }
func (p *CryptoHandshakeResponsePacket) decode(r *ByteReader) { copy(p.Key[:], r.ReadRaw(KeySize)) }

type KeepaliveResponsePacket struct {
	plain
	PlayerCount uint32
}

func (*KeepaliveResponsePacket) ID() uint16             { return KeepaliveResponsePacketID }
func (p *KeepaliveResponsePacket) encode(w *ByteWriter) { w.WriteU32(p.PlayerCount) }
func (p *KeepaliveResponsePacket) decode(r *ByteReader) { p.PlayerCount = r.ReadU32() }

type ServerDisconnectPacket struct {
	plain
	Message string
}

func (*ServerDisconnectPacket) ID() uint16             { return ServerDisconnectPacketID }
func (p *ServerDisconnectPacket) encode(w *ByteWriter) { w.WriteString(p.Message) }
func (p *ServerDisconnectPacket) decode(r *ByteReader) { p.Message = r.ReadString() }

type LoggedInPacket struct {
	plain
	TPS             uint32
	SpecialUserData *model.SpecialUserData
	AllRoles        []model.Role
}

func (*LoggedInPacket) ID() uint16 { return LoggedInPacketID }

func (p *LoggedInPacket) encode(w *ByteWriter) {
	w.WriteU32(p.TPS)
	w.WriteBool(p.SpecialUserData != nil)
	if p.SpecialUserData != nil {
		w.WriteString(p.SpecialUserData.NameColor)
		w.WriteU16(uint16(len(p.SpecialUserData.Roles)))
		for _, id := range p.SpecialUserData.Roles {
			w.WriteString(id)
		}
	}
	w.WriteU16(uint16(len(p.AllRoles)))
	for _, role := range p.AllRoles {
		w.WriteString(role.ID)
		w.WriteI32(role.Priority)
		w.WriteString(role.Badge)
		w.WriteString(role.NameColor)
		w.WriteU32(uint32(role.Permissions))
	}
}

func (p *LoggedInPacket) decode(r *ByteReader) {
	p.TPS = r.ReadU32()
	if r.ReadBool() {
		sud := &model.SpecialUserData{NameColor: r.ReadString()}
		n := int(r.ReadU16())
		for i := 0; i < n && r.Err() == nil; i++ {
			sud.Roles = append(sud.Roles, r.ReadString())
		}
		p.SpecialUserData = sud
	}
	n := int(r.ReadU16())
	p.AllRoles = make([]model.Role, 0, n)
	for i := 0; i < n && r.Err() == nil; i++ {
		p.AllRoles = append(p.AllRoles, model.Role{
			ID:          r.ReadString(),
			Priority:    r.ReadI32(),
			Badge:       r.ReadString(),
			NameColor:   r.ReadString(),
			Permissions: model.PermissionSet(r.ReadU32()),
		})
	}
}

type LoginFailedPacket struct {
	plain
	Message string
}

func (*LoginFailedPacket) ID() uint16             { return LoginFailedPacketID }
func (p *LoginFailedPacket) encode(w *ByteWriter) { w.WriteString(p.Message) }
func (p *LoginFailedPacket) decode(r *ByteReader) { p.Message = r.ReadString() }

type ProtocolMismatchPacket struct {
	plain
	Protocol uint16
}

func (*ProtocolMismatchPacket) ID() uint16             { return ProtocolMismatchPacketID }
func (p *ProtocolMismatchPacket) encode(w *ByteWriter) { w.WriteU16(p.Protocol) }
func (p *ProtocolMismatchPacket) decode(r *ByteReader) { p.Protocol = r.ReadU16() }

type KeepaliveTCPResponsePacket struct{ plain }

func (*KeepaliveTCPResponsePacket) ID() uint16         { return KeepaliveTCPResponsePacketID }
func (*KeepaliveTCPResponsePacket) encode(*ByteWriter) {}
func (*KeepaliveTCPResponsePacket) decode(*ByteReader) {}

// ServerBannedPacket tells a banned client why and until when (unix seconds)
type ServerBannedPacket struct {
	plain
	Message   string
	Timestamp int64
}

func (*ServerBannedPacket) ID() uint16 { return ServerBannedPacketID }

func (p *ServerBannedPacket) encode(w *ByteWriter) {
	w.WriteString(p.Message)
	w.WriteI64(p.Timestamp)
}

func (p *ServerBannedPacket) decode(r *ByteReader) {
	p.Message = r.ReadString()
	p.Timestamp = r.ReadI64()
}

type ConnectionTestResponsePacket struct {
	plain
	UID  uint32
	Data []byte
}

func (*ConnectionTestResponsePacket) ID() uint16 { return ConnectionTestResponsePacketID }

func (p *ConnectionTestResponsePacket) encode(w *ByteWriter) {
	w.WriteU32(p.UID)
	w.WriteBytes(p.Data)
}

func (p *ConnectionTestResponsePacket) decode(r *ByteReader) {
	p.UID = r.ReadU32()
	p.Data = r.ReadBytes()
}

func writeIcons(w *ByteWriter, icons model.PlayerIconData) {
	for _, v := range []int16{
		icons.Cube, icons.Ship, icons.Ball, icons.Ufo, icons.Wave,
		icons.Robot, icons.Spider, icons.Swing, icons.Jetpack,
	} {
		w.WriteI16(v)
	}
	w.WriteU8(icons.DeathEffect)
	w.WriteI16(icons.Color1)
	w.WriteI16(icons.Color2)
	w.WriteI16(icons.GlowColor)
}

func readIcons(r *ByteReader) model.PlayerIconData {
	return model.PlayerIconData{
		Cube:        r.ReadI16(),
		Ship:        r.ReadI16(),
		Ball:        r.ReadI16(),
		Ufo:         r.ReadI16(),
		Wave:        r.ReadI16(),
		Robot:       r.ReadI16(),
		Spider:      r.ReadI16(),
		Swing:       r.ReadI16(),
		Jetpack:     r.ReadI16(),
		DeathEffect: r.ReadU8(),
		Color1:      r.ReadI16(),
		Color2:      r.ReadI16(),
		GlowColor:   r.ReadI16(),
	}
}
