package cipher

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	plaintext := make([]byte, 64*1024)
	_, err = rand.Read(plaintext)
	require.NoError(t, err)

	envelope, err := Encrypt(key, plaintext)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(envelope, []byte{0x53, 0x45, 0x43, 0x01, 0x01}))

	got, err := Decrypt(key, envelope)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	key1 := bytes.Repeat([]byte{0x11}, 32)
	key2 := bytes.Repeat([]byte{0x22}, 32)
	plaintext := []byte("hello sectify")

	envelope, err := Encrypt(key1, plaintext)
	require.NoError(t, err)

	_, err = Decrypt(key2, envelope)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestDecryptTamperedByteFails(t *testing.T) {
	key := bytes.Repeat([]byte{0x33}, 32)
	plaintext := []byte("some audio bytes, pretend")

	envelope, err := Encrypt(key, plaintext)
	require.NoError(t, err)

	tampered := append([]byte(nil), envelope...)
	tampered[len(tampered)-10] ^= 0xFF

	_, err = Decrypt(key, tampered)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestDecryptMalformedHeaderFails(t *testing.T) {
	_, err := Decrypt(bytes.Repeat([]byte{0x01}, 32), []byte("too short"))
	require.ErrorIs(t, err, ErrIntegrity)

	bogus := append([]byte{0xAA, 0xBB, 0xCC, 0xDD}, bytes.Repeat([]byte{0}, 64)...)
	_, err = Decrypt(bytes.Repeat([]byte{0x01}, 32), bogus)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestKeystreamDeterministicPerKeyNonce(t *testing.T) {
	key := bytes.Repeat([]byte{0x44}, 32)
	nonce := bytes.Repeat([]byte{0x01}, NonceSize)

	a := make([]byte, 256)
	Transform(key, nonce, a)

	b := make([]byte, 256)
	Transform(key, nonce, b)
	require.Equal(t, a, b, "keystream must be a deterministic function of (key, nonce)")
}

func TestKeystreamDiffersAcrossNonces(t *testing.T) {
	key := bytes.Repeat([]byte{0x55}, 32)
	a := make([]byte, 256)
	Transform(key, bytes.Repeat([]byte{0x01}, NonceSize), a)
	b := make([]byte, 256)
	Transform(key, bytes.Repeat([]byte{0x02}, NonceSize), b)
	require.NotEqual(t, a, b)
}

// TestKeystreamByteDistribution is a coarse sanity check that the keystream
// is not degenerate (e.g. all zero, or a short repeating cycle) — a loose
// proxy for spec.md §4.2's chi-square uniformity property without requiring
// a full statistical test harness.
func TestKeystreamByteDistribution(t *testing.T) {
	key := bytes.Repeat([]byte{0x66}, 32)
	nonce := bytes.Repeat([]byte{0x03}, NonceSize)
	ks := NewKeystream(key, nonce)

	var counts [256]int
	const n = 1 << 16
	for i := 0; i < n; i++ {
		counts[ks.NextByte()]++
	}
	for b, c := range counts {
		if c == 0 {
			t.Fatalf("byte value %d never appeared in %d samples", b, n)
		}
	}
}
