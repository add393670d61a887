package fiberloop

// Encoder and Decoder implement the same compact, sign-extension-aware
// variable-length integer encoding as the original runtime's Archive
// (spec §4 "Archive", supplemented): payload bits are emitted 7 at a time,
// least-significant group first, with the top bit of each emitted byte used
// as a continuation flag. Encoding stops as soon as one more byte would be
// pure sign-extension of what has already been emitted, so small positive
// and small negative values both encode to one byte.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with an empty buffer.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the accumulated encoded output.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

const (
	varintGroupBits = 7
	varintContinue  = 0x80
	varintPayload   = 0x7F
)

// PutVarint appends the variable-length encoding of v.
func (e *Encoder) PutVarint(v int64) {
	for {
		group := byte(v) & varintPayload
		v >>= varintGroupBits

		// Stop once the remaining bits are redundant sign-extension of
		// what we just emitted: shifting one more group either way lands
		// on the same value, meaning every further byte would repeat the
		// sign bit already implied by group's top bit.
		if (v == 0 && group&0x40 == 0) || (v == -1 && group&0x40 != 0) {
			e.buf = append(e.buf, group)
			return
		}
		e.buf = append(e.buf, group|varintContinue)
	}
}

// PutUint appends the variable-length encoding of an unsigned value. It is
// its own loop over the same 7-bit group layout the signed encoder uses,
// and stops as soon as the remaining value is zero (there is no
// sign-extension termination rule).
func (e *Encoder) PutUint(v uint64) {
	for {
		group := byte(v) & varintPayload
		v >>= varintGroupBits
		if v == 0 {
			e.buf = append(e.buf, group)
			return
		}
		e.buf = append(e.buf, group|varintContinue)
	}
}

// PutBytes appends a length-prefixed byte slice.
func (e *Encoder) PutBytes(b []byte) {
	e.PutUint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

// Decoder reads values encoded by Encoder back out of a byte slice.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a Decoder reading from buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining reports how many unread bytes are left.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Varint decodes a signed variable-length integer, sign-extending from the
// last byte's top payload bit.
func (d *Decoder) Varint() (int64, error) {
	var result int64
	var shift uint
	for {
		if d.pos >= len(d.buf) {
			return 0, ErrTruncatedVarint
		}
		b := d.buf[d.pos]
		d.pos++
		result |= int64(b&varintPayload) << shift
		shift += varintGroupBits
		if b&varintContinue == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
}

// Uint decodes an unsigned variable-length integer.
func (d *Decoder) Uint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if d.pos >= len(d.buf) {
			return 0, ErrTruncatedVarint
		}
		b := d.buf[d.pos]
		d.pos++
		result |= uint64(b&varintPayload) << shift
		shift += varintGroupBits
		if b&varintContinue == 0 {
			return result, nil
		}
	}
}

// Bytes decodes a length-prefixed byte slice.
func (d *Decoder) Bytes() ([]byte, error) {
	n, err := d.Uint()
	if err != nil {
		return nil, err
	}
	if uint64(d.Remaining()) < n {
		return nil, ErrTruncatedVarint
	}
	b := d.buf[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return b, nil
}
