package cryptobox

import (
	"errors"
	"sync/atomic"
)

// ErrAlreadyEstablished is returned when a handshake is attempted on a slot
// that already holds a box
var ErrAlreadyEstablished = errors.New("crypto context already established")

// Slot holds at most one Box for the lifetime of a connection.
// The first successful Establish wins; every later or racing attempt fails.
type Slot struct {
	box atomic.Pointer[Box]
}

// Establish derives a box from the client's public key and the server key pair
// and installs it. It returns the server public key to send back to the client.
func (s *Slot) Establish(clientPublic [KeySize]byte, server *KeyPair) ([KeySize]byte, error) {
	if s.box.Load() != nil {
		return [KeySize]byte{}, ErrAlreadyEstablished
	}

	b, err := NewBox(&clientPublic, &server.Secret)
	if err != nil {
		return [KeySize]byte{}, err
	}

	if !s.box.CompareAndSwap(nil, b) {
		return [KeySize]byte{}, ErrAlreadyEstablished
	}
	return server.Public, nil
}

// Get returns the installed box, or nil before the handshake
func (s *Slot) Get() *Box {
	return s.box.Load()
}

// Established reports whether a box has been installed
func (s *Slot) Established() bool {
	return s.box.Load() != nil
}
