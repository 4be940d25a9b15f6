package main

import (
	"testing"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupInput(t *testing.T) {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.IntSlice("rounds", []int{240}, "")
	fs.IntSlice("k", []int{}, "")
	fs.Float64Slice("forge", []float64{0, 0.5}, "")

	got, err := lookupInput(fs, "rounds")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{240}, got)

	got, err = lookupInput(fs, "forge")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{0.0, 0.5}, got)

	_, err = lookupInput(fs, "k")
	assert.ErrorContains(t, err, "at least one value")

	_, err = lookupInput(fs, "shots")
	assert.Error(t, err)
}

func TestApplyCartesian(t *testing.T) {
	var got [][]interface{}
	applyCartesian(func(x []interface{}) {
		got = append(got, x)
	}, [][]interface{}{{1, 2}, {"a"}, {0.5, 1.5, 2.5}})
	assert.Len(t, got, 6)
	assert.Equal(t, []interface{}{1, "a", 0.5}, got[0])
	assert.Equal(t, []interface{}{2, "a", 2.5}, got[5])
}
