package binreader

import "fmt"

// Table readers check that the cursor sits at the recorded relative offset
// (see AssertAt) and then read n consecutive values.

func (r *Reader) ReadU16Table(n int32, rel uint32) []uint16 {
	r.AssertAt(rel)
	if !r.fits(n, 2) {
		return nil
	}
	out := make([]uint16, n)
	for i := range out {
		out[i] = r.ReadU16()
	}
	return out
}

func (r *Reader) ReadU32Table(n int32, rel uint32) []uint32 {
	r.AssertAt(rel)
	if !r.fits(n, 4) {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = r.ReadU32()
	}
	return out
}

func (r *Reader) ReadI32Table(n int32, rel uint32) []int32 {
	r.AssertAt(rel)
	if !r.fits(n, 4) {
		return nil
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = r.ReadI32()
	}
	return out
}

func (r *Reader) ReadF32Table(n int32, rel uint32) []float32 {
	r.AssertAt(rel)
	if !r.fits(n, 4) {
		return nil
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = r.ReadF32()
	}
	return out
}

// fits validates a table length before allocating for it.
func (r *Reader) fits(n int32, size int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || int64(n)*int64(size) > int64(r.Remaining()) {
		r.fail(fmt.Errorf("%w: table of %d x %d bytes at %d, size %d", ErrOutOfRange, n, size, r.off, len(r.data)))
		return false
	}
	return true
}
