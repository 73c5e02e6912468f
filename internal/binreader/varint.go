package binreader

import "fmt"

// ReadVarInt reads the signed variable-length integer used by scene-tree
// documents. Each byte contributes its low 7 bits, least significant group
// first, while bit 0x80 is set. Bit 0x40 of the final byte is a sign flag:
// when set, 1<<shift is subtracted from the accumulated value.
func (r *Reader) ReadVarInt() int64 {
	var (
		num   int64
		shift uint
		b     byte
	)
	for {
		b = r.ReadU8()
		if r.err != nil {
			return 0
		}
		num |= int64(b&0x7f) << shift
		shift += 7
		if shift >= 62 {
			r.fail(fmt.Errorf("%w: at %d", ErrVarintOverflow, r.off))
			return 0
		}
		if b&0x80 == 0 {
			break
		}
	}
	if b&0x40 != 0 {
		num -= int64(1) << shift
	}
	return num
}
