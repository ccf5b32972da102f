package watermark

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func syntheticPCM(n int, seed int64) []int16 {
	rng := rand.New(rand.NewSource(seed))
	pcm := make([]int16, n)
	for i := range pcm {
		// A quiet sine "source" plus a little dither, well below full scale
		// so there's headroom for the watermark.
		pcm[i] = int16(8000*math.Sin(2*math.Pi*440*float64(i)/SampleRate) + float64(rng.Intn(50)))
	}
	return pcm
}

func TestEmbedPreservesLength(t *testing.T) {
	pcm := syntheticPCM(ChipsPerBit*PayloadBits, 1)
	out := Embed(pcm, "session-a")
	require.Len(t, out, len(pcm))
}

func TestEmbedIsInaudibleAmplitude(t *testing.T) {
	pcm := make([]int16, ChipsPerBit*PayloadBits)
	out := Embed(pcm, "session-a")
	maxDelta := 0
	for i := range pcm {
		d := int(out[i]) - int(pcm[i])
		if d < 0 {
			d = -d
		}
		if d > maxDelta {
			maxDelta = d
		}
	}
	// -40 dBFS of a 16-bit peak is about 327 counts; allow headroom.
	require.Less(t, maxDelta, 400)
}

func TestDetectIdentifiesCorrectSession(t *testing.T) {
	length := ChipsPerBit * PayloadBits * 2
	source := syntheticPCM(length, 42)

	sessions := []string{"session-alice", "session-bob", "session-carol"}
	correct := 0
	for _, target := range sessions {
		watermarked := Embed(source, target)
		got, score := Detect(watermarked, sessions)
		if got == target {
			correct++
		}
		require.GreaterOrEqual(t, score, 0.0)
	}
	require.Equal(t, len(sessions), correct, "extractor must identify every session from its own watermarked render")
}

func TestDetectNoMatchBelowThreshold(t *testing.T) {
	length := ChipsPerBit * PayloadBits
	unwatermarked := syntheticPCM(length, 7)
	got, score := Detect(unwatermarked, []string{"session-x", "session-y"})
	require.Empty(t, got)
	require.Less(t, score, Tau)
}

func TestDeriveBitsStableForSameSession(t *testing.T) {
	require.Equal(t, deriveBits("s1"), deriveBits("s1"))
	require.NotEqual(t, deriveBits("s1"), deriveBits("s2"))
}
