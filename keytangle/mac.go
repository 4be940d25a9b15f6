package keytangle

import (
	"fmt"

	"github.com/alan-christopher/keytanglement/keytangle/bitmap"
)

// A toeplitzHash is an m-row Toeplitz matrix over F_2, used as a universal
// hash. It is described by its diagonal constants, starting from the bottom
// left and ending with the top right; hashing an n-bit message needs at least
// m+n-1 of them.
type toeplitzHash struct {
	diags bitmap.Dense
	m     int
}

// Sum returns the m-bit product of the matrix and msg.
func (h toeplitzHash) Sum(msg bitmap.Dense) (bitmap.Dense, error) {
	n := msg.Size()
	if h.diags.Size() < h.m+n-1 {
		return bitmap.Empty(), fmt.Errorf("hashing %d bits needs %d toeplitz diagonals, have %d", n, h.m+n-1, h.diags.Size())
	}
	var sum bitmap.Dense
	for row := 0; row < h.m; row++ {
		off := h.m - 1 - row
		diag, err := bitmap.Slice(h.diags, off, off+n)
		if err != nil {
			return bitmap.Empty(), err
		}
		sum.AppendBit(bitmap.Parity(bitmap.And(diag, msg)))
	}
	return sum, nil
}
