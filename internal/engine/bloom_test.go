package engine

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBloomNoFalseNegatives(t *testing.T) {
	filter := NewBloom(1000, 0.01)

	keys := make([]string, 0, 1000)
	for i := 0; i < 1000; i++ {
		keys = append(keys, "key-"+strconv.Itoa(i))
	}
	for _, k := range keys {
		filter.Add(k)
	}

	for _, k := range keys {
		require.True(t, filter.Contains(k), "bloom filter must never false-negative on an inserted key: %s", k)
	}
}

func TestBloomEncodeDecodeRoundTrip(t *testing.T) {
	filter := NewBloom(50, 0.05)
	for i := 0; i < 50; i++ {
		filter.Add("k" + strconv.Itoa(i))
	}

	blob := filter.Encode()
	decoded, err := DecodeBloom(blob)
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.True(t, decoded.Contains("k"+strconv.Itoa(i)))
	}
}

func TestDecodeBloomRejectsCorruptBlob(t *testing.T) {
	_, err := DecodeBloom([]byte{1, 2, 3})
	require.Error(t, err)

	_, err = DecodeBloom(nil)
	require.Error(t, err)
}

func TestBloomSmallInputsDoNotPanic(t *testing.T) {
	filter := NewBloom(0, 0)
	filter.Add("x")
	require.True(t, filter.Contains("x"))
}
