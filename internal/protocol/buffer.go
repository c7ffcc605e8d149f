package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// maxStringLength bounds every length-prefixed string on the wire
const maxStringLength = math.MaxUint16

// ByteWriter appends big-endian encoded values to a growing buffer
type ByteWriter struct {
	buf []byte
}

// NewByteWriter creates a ByteWriter with the given initial capacity
func NewByteWriter(capacity int) *ByteWriter {
	return &ByteWriter{buf: make([]byte, 0, capacity)}
}

// Bytes returns the written data
func (w *ByteWriter) Bytes() []byte {
	return w.buf
}

func (w *ByteWriter) WriteBool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *ByteWriter) WriteU8(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *ByteWriter) WriteU16(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *ByteWriter) WriteI16(v int16) {
	w.WriteU16(uint16(v))
}

func (w *ByteWriter) WriteU32(v uint32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *ByteWriter) WriteI32(v int32) {
	w.WriteU32(uint32(v))
}

func (w *ByteWriter) WriteI64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

// WriteString writes a uint16 length prefix followed by the UTF-8 bytes.
// Strings longer than the prefix allows are truncated.
func (w *ByteWriter) WriteString(s string) {
	if len(s) > maxStringLength {
		s = s[:maxStringLength]
	}
	w.WriteU16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// WriteBytes writes a uint32 length prefix followed by the raw bytes
func (w *ByteWriter) WriteBytes(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteRaw appends b without a length prefix
func (w *ByteWriter) WriteRaw(b []byte) {
	w.buf = append(w.buf, b...)
}

// ByteReader consumes big-endian encoded values. The first failed read is
// remembered and every later read returns zero values; check Err once at the end.
type ByteReader struct {
	data []byte
	pos  int
	err  error
}

// NewByteReader creates a ByteReader over data
func NewByteReader(data []byte) *ByteReader {
	return &ByteReader{data: data}
}

// Err returns the first error encountered while reading
func (r *ByteReader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes
func (r *ByteReader) Remaining() int {
	return len(r.data) - r.pos
}

func (r *ByteReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.Remaining() < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrMalformed, n, r.pos, r.Remaining())
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *ByteReader) ReadBool() bool {
	return r.ReadU8() != 0
}

func (r *ByteReader) ReadU8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *ByteReader) ReadU16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *ByteReader) ReadI16() int16 {
	return int16(r.ReadU16())
}

func (r *ByteReader) ReadU32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *ByteReader) ReadI32() int32 {
	return int32(r.ReadU32())
}

func (r *ByteReader) ReadI64() int64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func (r *ByteReader) ReadString() string {
	n := r.ReadU16()
	return string(r.take(int(n)))
}

// ReadBytes reads a uint32 length-prefixed byte slice. The result is a copy.
func (r *ByteReader) ReadBytes() []byte {
	n := r.ReadU32()
	if r.err == nil && int(n) > r.Remaining() {
		r.err = fmt.Errorf("%w: byte field of %d bytes exceeds frame", ErrMalformed, n)
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// ReadRaw reads exactly n bytes without a length prefix
func (r *ByteReader) ReadRaw(n int) []byte {
	return r.take(n)
}

// ReadRest returns every unread byte
func (r *ByteReader) ReadRest() []byte {
	return r.take(r.Remaining())
}
