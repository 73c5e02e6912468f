// Package binreader is a positioned cursor over an immutable byte buffer.
//
// All multi-byte values are little-endian except ReadBigEndianFloat. Reads
// never panic: the first failure (out of range, failed position assertion,
// varint overflow) is recorded and every later read returns a zero value.
// Callers check Err once after a group of reads.
package binreader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrOutOfRange is returned when a read or seek leaves the buffer.
	ErrOutOfRange = errors.New("binreader: out of range")

	// ErrPosition is returned when AssertAt finds the cursor somewhere else.
	ErrPosition = errors.New("binreader: unexpected position")

	// ErrVarintOverflow is returned when a varint does not terminate before 62 bits.
	ErrVarintOverflow = errors.New("binreader: varint overflow")
)

// Reader reads fixed-width values from data. Zero is the origin used by
// AssertAt and At for relative addressing.
type Reader struct {
	data []byte
	off  int
	zero int
	err  error
}

// New returns a Reader positioned at the start of data.
func New(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Len returns the size of the underlying buffer.
func (r *Reader) Len() int {
	return len(r.data)
}

// Tell returns the absolute position.
func (r *Reader) Tell() int {
	return r.off
}

// Remaining returns the number of bytes after the cursor.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Zero returns the relative-addressing origin.
func (r *Reader) Zero() int {
	return r.zero
}

// SetZero fixes the relative-addressing origin at pos.
func (r *Reader) SetZero(pos int) {
	r.zero = pos
}

// ResetZero fixes the relative-addressing origin at the current position.
func (r *Reader) ResetZero() {
	r.zero = r.off
}

// Seek moves the cursor to an absolute position. Seeking to Len() is allowed.
func (r *Reader) Seek(pos int) {
	if r.err != nil {
		return
	}
	if pos < 0 || pos > len(r.data) {
		r.fail(fmt.Errorf("%w: seek to %d, size %d", ErrOutOfRange, pos, len(r.data)))
		return
	}
	r.off = pos
}

// SeekRel moves the cursor to Zero()+rel.
func (r *Reader) SeekRel(rel int) {
	r.Seek(r.zero + rel)
}

// Shift moves the cursor by delta bytes.
func (r *Reader) Shift(delta int) {
	r.Seek(r.off + delta)
}

// At reports whether the cursor sits at Zero()+rel. A zero rel only matches
// the absolute start of the buffer.
func (r *Reader) At(rel uint32) bool {
	if rel == 0 {
		return r.off == 0
	}
	return r.off == r.zero+int(rel)
}

// AssertAt records ErrPosition unless the cursor sits at Zero()+rel.
// A zero rel means "no offset recorded" and is not checked.
func (r *Reader) AssertAt(rel uint32) {
	if r.err != nil || rel == 0 {
		return
	}
	want := r.zero + int(rel)
	if r.off != want {
		r.fail(fmt.Errorf("%w: at %d, want %d (zero %d, rel %d)", ErrPosition, r.off, want, r.zero, rel))
	}
}

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// take returns the next n bytes and advances, or nil after recording an error.
func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.data)-r.off {
		r.fail(fmt.Errorf("%w: read %d bytes at %d, size %d", ErrOutOfRange, n, r.off, len(r.data)))
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// ReadBytes returns the next n bytes. The slice aliases the buffer.
func (r *Reader) ReadBytes(n int) []byte {
	return r.take(n)
}

func (r *Reader) ReadU8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadU16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) ReadU32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) ReadI32() int32 {
	return int32(r.ReadU32())
}

func (r *Reader) ReadF32() float32 {
	return math.Float32frombits(r.ReadU32())
}

// ReadBigEndianFloat reads an IEEE-754 float stored most significant byte first.
func (r *Reader) ReadBigEndianFloat() float32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

// ReadCString reads a NUL-terminated string and consumes the terminator.
func (r *Reader) ReadCString() string {
	if r.err != nil {
		return ""
	}
	for i := r.off; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := decodeString(r.data[r.off:i])
			r.off = i + 1
			return s
		}
	}
	r.fail(fmt.Errorf("%w: unterminated string at %d", ErrOutOfRange, r.off))
	return ""
}

// ReadFixedString reads an n-byte field and cuts it at the first NUL.
func (r *Reader) ReadFixedString(n int) string {
	b := r.take(n)
	for i, c := range b {
		if c == 0 {
			return decodeString(b[:i])
		}
	}
	return decodeString(b)
}

// decodeString maps legacy Windows-1252 bytes to UTF-8.
func decodeString(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}
	s, err := charmap.Windows1252.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}
