package keytangle

import "fmt"

// Sift keeps, for both parties, only the rounds at indices. indices must be
// strictly ascending and in range, as produced by VerifySession. The returned
// material is freshly allocated; alice and bob are left untouched.
func Sift(alice, bob Material, indices []int) (aliceSifted, bobSifted Material, err error) {
	if alice.Len() != bob.Len() {
		return Material{}, Material{}, fmt.Errorf("sifting %d alice rounds against %d bob rounds", alice.Len(), bob.Len())
	}
	aliceSifted, bobSifted = newMaterial(len(indices)), newMaterial(len(indices))
	prev := -1
	for _, i := range indices {
		if i <= prev || i >= alice.Len() {
			return Material{}, Material{}, fmt.Errorf("sifting: index %d is out of order or out of range [0, %d)", i, alice.Len())
		}
		prev = i
		aliceSifted.append(alice.Round(i))
		bobSifted.append(bob.Round(i))
	}
	return aliceSifted, bobSifted, nil
}
