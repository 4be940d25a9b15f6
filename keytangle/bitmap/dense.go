package bitmap

// A Dense is a bitmap where every bit is explicitly represented. Bit i lives in
// byte i/8 at position i%8. Padding bits past Size() in the final byte are kept
// zero, so byte-wise operations never observe stale data.
type Dense struct {
	bits []byte
	len  int
}

// NewDense returns a new dense bitmap whose contents are a copy of data, and
// whose length is bitLen. If bitLen is longer than data, then trailing zeros
// are added. If bitLen is negative, then it is inferred from data.
func NewDense(data []byte, bitLen int) Dense {
	if bitLen < 0 {
		bitLen = len(data) * byteSize
	}
	r := Dense{
		bits: make([]byte, BytesFor(bitLen)),
		len:  bitLen,
	}
	copy(r.bits, data)
	r.clearTail()
	return r
}

// Get returns the i-th bit in this bitmap. Out of range bits read as zero.
func (d Dense) Get(i int) bool {
	if i < 0 || i >= d.len {
		return false
	}
	return 0 < d.bits[i/byteSize]&(1<<(i%byteSize))
}

// Size returns the number of bits in this bitmap.
func (d Dense) Size() int {
	return d.len
}

// SizeBytes returns the number of bytes needed to hold this bitmap.
func (d Dense) SizeBytes() int {
	return BytesFor(d.len)
}

// Data returns a copy of the bytes underlying this bitmap.
func (d Dense) Data() []byte {
	r := make([]byte, d.SizeBytes())
	copy(r, d.bits)
	return r
}

// AppendBit adds a single bit to the end of d. Copies of d may share its
// backing array, so bytes already holding bits are never written in place.
func (d *Dense) AppendBit(bit bool) {
	i, pos := d.len/byteSize, d.len%byteSize
	var last byte
	if pos != 0 {
		last = d.bits[i]
	}
	if bit {
		last |= 1 << pos
	}
	d.bits = append(d.bits[:i:i], last)
	d.len++
}

// Append adds the contents of d2 to the end of d. Like AppendBit, it leaves
// any copies of d untouched.
func (d *Dense) Append(d2 Dense) {
	if n := d.SizeBytes(); d.len%byteSize == 0 {
		d.bits = append(d.bits[:n:n], d2.bits[:d2.SizeBytes()]...)
		d.len += d2.len
		return
	}
	for i := 0; i < d2.len; i++ {
		d.AppendBit(d2.Get(i))
	}
}

func (d *Dense) clearTail() {
	if off := d.len % byteSize; off != 0 {
		d.bits[d.len/byteSize] &= byte(1<<off) - 1
	}
}
