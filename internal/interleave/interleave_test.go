package interleave

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestInterleaveRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(1, 400).Draw(rt, "size")
		b := New(size)
		data := make([]byte, size)
		for i := range data {
			data[i] = byte(rapid.IntRange(0, 255).Draw(rt, "byte"))
		}
		got := b.Deinterleave(b.Interleave(data))
		require.Equal(t, data, got)
	})
}
