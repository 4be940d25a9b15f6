package keytangle

import (
	"fmt"

	"github.com/alan-christopher/keytanglement/keytangle/bitmap"
)

// groupingBits holds each grouping's two-bit code, high bit first.
var groupingBits = func() (codes [NumGroupings]bitmap.Dense) {
	for g := range codes {
		codes[g] = bitmap.NewDense([]byte{byte(g>>1&1 | (g&1)<<1)}, 2)
	}
	return codes
}()

// GenerateCode encodes each grouping as its two-bit code, in order, so the
// result is exactly 2*len(groupings) bits long.
func GenerateCode(groupings []Grouping) (bitmap.Dense, error) {
	var code bitmap.Dense
	for i, g := range groupings {
		if !g.Valid() {
			return bitmap.Empty(), fmt.Errorf("%w: %d at position %d", ErrInvalidGrouping, uint8(g), i)
		}
		code.Append(groupingBits[g])
	}
	return code, nil
}
