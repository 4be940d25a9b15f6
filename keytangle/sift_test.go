package keytangle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSift(t *testing.T) {
	alice, bob := mustGenerate(t, 10, 8), mustGenerate(t, 11, 8)
	aliceBefore, bobBefore := alice.clone(), bob.clone()

	tcs := []struct {
		name    string
		indices []int
	}{
		{"none", nil},
		{"empty", []int{}},
		{"some", []int{0, 2, 3, 7}},
		{"all", []int{0, 1, 2, 3, 4, 5, 6, 7}},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			as, bs, err := Sift(alice, bob, tc.indices)
			require.NoError(t, err)
			require.Equal(t, len(tc.indices), as.Len())
			require.Equal(t, len(tc.indices), bs.Len())
			require.NoError(t, as.Validate())
			require.NoError(t, bs.Validate())
			for j, i := range tc.indices {
				assert.Equal(t, alice.Round(i), as.Round(j))
				assert.Equal(t, bob.Round(i), bs.Round(j))
			}
		})
	}

	assert.Equal(t, aliceBefore, alice, "sifting mutated alice's material")
	assert.Equal(t, bobBefore, bob, "sifting mutated bob's material")
}

func TestSiftRejectsBadIndices(t *testing.T) {
	m := mustGenerate(t, 12, 4)
	for name, indices := range map[string][]int{
		"out of range": {1, 4},
		"negative":     {-1},
		"descending":   {2, 1},
		"duplicate":    {1, 1},
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := Sift(m, m, indices)
			assert.Error(t, err)
		})
	}
}
