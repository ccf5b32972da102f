// Package watermark embeds and (offline, admin-only) detects the inaudible
// per-session fingerprint described in spec.md §4.3 (C3). The fingerprint
// lives in the 17-19 kHz band, carried on an 18 kHz tone, modulated by a
// direct-sequence spread-spectrum chip sequence so a single bit survives
// lossy re-encoding better than a lone tone would.
package watermark

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"math"

	"golang.org/x/crypto/hkdf"
)

const (
	// SampleRate is the fixed PCM sample rate this package operates on.
	SampleRate = 44100
	// CarrierHz is the watermark's carrier frequency.
	CarrierHz = 18000.0
	// ChipsPerBit is the number of PCM samples spent spreading one payload bit.
	ChipsPerBit = 1024
	// PayloadBits is the number of bits encoded per watermark cycle.
	PayloadBits = 64
	// AmplitudeDB is the embedding amplitude, expressed in dBFS relative to
	// a full-scale int16 peak.
	AmplitudeDB = -40.0
)

// amplitudeScale converts AmplitudeDB to a linear int16-domain scale.
func amplitudeScale() float64 {
	return math.Pow(10, AmplitudeDB/20.0) * math.MaxInt16
}

// deriveBits expands HKDF(sessionID, "wm") into a 64-bit payload, per
// spec.md §4.3: "encodes 64 bits derived from HKDF(session_id, 'wm')".
func deriveBits(sessionID string) uint64 {
	r := hkdf.New(sha256.New, []byte(sessionID), nil, []byte("wm"))
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		panic("watermark: hkdf expand failed: " + err.Error())
	}
	return binary.BigEndian.Uint64(buf[:])
}

// deriveChipSequence expands a session-specific pseudorandom +/-1 spreading
// sequence shared by every payload bit, distinct from the payload itself so
// knowing one does not reveal the other.
func deriveChipSequence(sessionID string) []float64 {
	r := hkdf.New(sha256.New, []byte(sessionID), nil, []byte("wm-chip"))
	raw := make([]byte, ChipsPerBit)
	if _, err := io.ReadFull(r, raw); err != nil {
		panic("watermark: hkdf expand failed: " + err.Error())
	}
	chips := make([]float64, ChipsPerBit)
	for i, b := range raw {
		if b&1 == 0 {
			chips[i] = -1
		} else {
			chips[i] = 1
		}
	}
	return chips
}

// Signal synthesizes the raw (unscaled to amplitude) watermark waveform for
// sessionID over length samples — bit(n) ⊕ chip(n) modulated onto the
// carrier. Both Embed and Detect build this same waveform; Detect correlates
// against it after the same high-pass filter it applies to the candidate.
func Signal(sessionID string, length int) []float64 {
	bits := deriveBits(sessionID)
	chips := deriveChipSequence(sessionID)
	out := make([]float64, length)
	for n := 0; n < length; n++ {
		bitIdx := (n / ChipsPerBit) % PayloadBits
		bitVal := 1.0
		if bits&(1<<uint(63-bitIdx)) == 0 {
			bitVal = -1.0
		}
		chip := chips[n%ChipsPerBit]
		carrier := math.Sin(2 * math.Pi * CarrierHz * float64(n) / SampleRate)
		out[n] = bitVal * chip * carrier
	}
	return out
}

// Embed returns a copy of pcm with sessionID's watermark additively mixed
// in at AmplitudeDB. pcm is treated as one sample sequence: for interleaved
// stereo, successive waveform samples alternate between the two channels
// rather than being repeated on each.
func Embed(pcm []int16, sessionID string) []int16 {
	sig := Signal(sessionID, len(pcm))
	scale := amplitudeScale()
	out := make([]int16, len(pcm))
	for i, s := range pcm {
		v := float64(s) + sig[i]*scale
		out[i] = clampInt16(v)
	}
	return out
}

func clampInt16(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
