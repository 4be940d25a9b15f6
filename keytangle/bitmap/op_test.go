package bitmap

import (
	"testing"
)

func TestBinaryOperators(t *testing.T) {
	tcs := []struct {
		name string
		a, b Dense
		eout Dense
		op   func(a, b Dense) Dense
	}{
		{
			name: "AND aligned",
			a:    mustDense(t, "10100000"),
			b:    mustDense(t, "01100000"),
			eout: mustDense(t, "00100000"),
			op:   And,
		}, {
			name: "AND short a",
			a:    mustDense(t, "101"),
			b:    mustDense(t, "01111000"),
			eout: mustDense(t, "001"),
			op:   And,
		}, {
			name: "AND multibyte",
			b:    mustDense(t, "0111 1000 1011 1011"),
			a:    mustDense(t, "1010 1010 1100 0110"),
			eout: mustDense(t, "0010 1000 1000 0010"),
			op:   And,
		}, {
			name: "XOR aligned",
			a:    mustDense(t, "10100000"),
			b:    mustDense(t, "01100000"),
			eout: mustDense(t, "11000000"),
			op:   XOr,
		}, {
			name: "XOR short a",
			a:    mustDense(t, "101"),
			b:    mustDense(t, "01111000"),
			eout: mustDense(t, "11011000"),
			op:   XOr,
		}, {
			name: "XOR short b",
			a:    mustDense(t, "01111000"),
			b:    mustDense(t, "101"),
			eout: mustDense(t, "11011000"),
			op:   XOr,
		}, {
			name: "XOR empty",
			a:    mustDense(t, ""),
			b:    mustDense(t, ""),
			eout: mustDense(t, ""),
			op:   XOr,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out := tc.op(tc.a, tc.b)
			if !Equal(out, tc.eout) {
				t.Errorf("op(%v, %v) == %v, want %v", tc.a, tc.b, out, tc.eout)
			}
		})
	}
}

func TestSlice(t *testing.T) {
	tcs := []struct {
		name       string
		data       Dense
		start, end int
		eout       string
		wantErr    bool
	}{
		{name: "prefix", data: mustDense(t, "1011 0111 01"), start: 0, end: 4, eout: "1011"},
		{name: "aligned", data: mustDense(t, "1011 0111 01"), start: 8, end: 10, eout: "01"},
		{name: "unaligned", data: mustDense(t, "1011 0111 01"), start: 3, end: 9, eout: "101110"},
		{name: "empty", data: mustDense(t, "1011"), start: 4, end: 4, eout: ""},
		{name: "whole", data: mustDense(t, "1011 0111"), start: 0, end: 8, eout: "10110111"},
		{name: "past end", data: mustDense(t, "1011"), start: 1, end: 5, wantErr: true},
		{name: "negative start", data: mustDense(t, "1011"), start: -1, end: 2, wantErr: true},
		{name: "inverted", data: mustDense(t, "1011"), start: 3, end: 2, wantErr: true},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Slice(tc.data, tc.start, tc.end)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Slice(%v, %d, %d) error = %v, wantErr %v", tc.data, tc.start, tc.end, err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if out.String() != tc.eout {
				t.Errorf("Slice(%v, %d, %d) == %v, want %v", tc.data, tc.start, tc.end, out, tc.eout)
			}
			// Padding past the slice must not leak into byte-wise operations.
			if CountOnes(out) != CountOnes(mustDense(t, tc.eout)) {
				t.Errorf("Slice(%v, %d, %d) carries stale padding: %b", tc.data, tc.start, tc.end, out.Data())
			}
		})
	}
}
