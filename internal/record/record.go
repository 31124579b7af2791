// Package record decodes the fixed-layout external records the protocol depends on:
// price feeds, authorization entries, identity tiers and external pool state.
//
// Every layout starts with an 8-byte discriminator followed by little-endian fields.
// Decoders check the minimum length before reading any field.
package record

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	discriminatorLen = 8
	idLen            = 32
)

var (
	// ErrTooShort indicates a record shorter than its schema requires.
	ErrTooShort = errors.New("record too short")
	// ErrUnknownSchema indicates a discriminator no decoder understands.
	ErrUnknownSchema = errors.New("unknown record schema")
)

// ID is a 32-byte record key.
type ID [idLen]byte

// KeyOf derives the record key for an identity string.
func KeyOf(identity string) ID {
	return ID(sha256.Sum256([]byte(identity)))
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Discriminator derives the 8-byte schema tag for a record type name.
func Discriminator(name string) [discriminatorLen]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var d [discriminatorLen]byte
	copy(d[:], sum[:discriminatorLen])
	return d
}

func requireLen(data []byte, n int, schema string) error {
	if len(data) < n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrTooShort, schema, n, len(data))
	}
	return nil
}

func readID(data []byte, off int) ID {
	var id ID
	copy(id[:], data[off:off+idLen])
	return id
}

func readU64(data []byte, off int) uint64 {
	return binary.LittleEndian.Uint64(data[off : off+8])
}

func readTime(data []byte, off int) time.Time {
	return time.Unix(int64(readU64(data, off)), 0)
}

type writer struct {
	buf []byte
}

func newWriter(disc [discriminatorLen]byte, size int) *writer {
	w := &writer{buf: make([]byte, 0, size)}
	w.buf = append(w.buf, disc[:]...)
	return w
}

func (w *writer) id(id ID)         { w.buf = append(w.buf, id[:]...) }
func (w *writer) u8(v uint8)       { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16)     { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u64(v uint64)     { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) time(t time.Time) { w.u64(uint64(t.Unix())) }

func (w *writer) bool(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}
