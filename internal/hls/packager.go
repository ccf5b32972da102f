// Package hls implements C4 (HLSPackager): it slices a decoded PCM track into
// ~4-second segments, AES-128-CBC-encrypts each one under a single fresh
// per-(track_id, session_id) key, and writes a VOD media playlist built with
// github.com/mogiioin/hls-m3u8 alongside the segment files, per spec.md §4.4.
package hls

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"

	m3u8 "github.com/mogiioin/hls-m3u8/m3u8"

	"github.com/sectify/sectify/internal/metrics"
)

const (
	// SegmentSeconds is the nominal segment duration spec.md §4.4 calls for
	// ("4s ± 10%"). We hold it exact; the ±10% tolerance exists for players,
	// not packagers.
	SegmentSeconds = 4.0
	// KeySize is the AES-128 key size in bytes.
	KeySize = 16
)

// PlaylistName and segmentExt name the on-disk manifest and the file
// extension of each segment written beside it.
const (
	PlaylistName = "playlist.m3u8"
	segmentExt   = ".ts"
)

// KeyMinter mints a short-lived alias for an AES key so the manifest's
// #EXT-X-KEY URI never carries raw key bytes. ownerUserID is empty for a
// public track, which tells the store to skip its owner check on resolve.
// Implemented by internal/keyalias.Store.
type KeyMinter interface {
	Mint(key []byte, ownerUserID, ip string) (alias string, err error)
}

// Packager writes HLS artifacts to disk under root/<track_id>/<session_id>/.
type Packager struct {
	root    string
	keys    KeyMinter
	sf      singleflight.Group
	urlBase func(trackID, alias string) string
}

// New constructs a Packager rooted at hlsRoot (spec.md HLS_ROOT). urlBase
// builds the key URI embedded in the manifest's single EXT-X-KEY line from a
// track ID and a minted key alias; the orchestrator supplies this so the
// package stays decoupled from the HTTP mux's route shape.
func New(hlsRoot string, keys KeyMinter, urlBase func(trackID, alias string) string) *Packager {
	return &Packager{root: hlsRoot, keys: keys, urlBase: urlBase}
}

// SegmentPath returns the on-disk path of segment idx for (trackID,
// sessionID), matching the naming packageOnce writes — the httpapi layer
// uses this to serve GET /api/v1/stream/segment/{track_id}/{n} without needing to
// parse the manifest on every request.
func SegmentPath(root, trackID, sessionID string, idx int) string {
	return filepath.Join(root, trackID, sessionID, fmt.Sprintf("seg_%03d%s", idx, segmentExt))
}

// Result describes a completed packaging run.
type Result struct {
	PlaylistPath string
	SegmentPaths []string
	KeyAlias     string
}

// Package segments pcm (interleaved int16, already watermarked for this
// session by the caller) into 4-second chunks, encrypts each under one fresh
// AES-128 key, and writes playlist.m3u8 plus seg_NNN.ts files to
// <root>/<trackID>/<sessionID>/. Concurrent calls for the same
// (trackID, sessionID) collapse into one packaging run via singleflight, so
// a racing pair of requests never writes the directory twice — spec.md §4.4's
// "idempotent per (track_id, session_id)".
func (p *Packager) Package(ctx context.Context, trackID, sessionID, ownerUserID, ip string, pcm []int16, sampleRate int) (Result, error) {
	sfKey := trackID + "\x00" + sessionID
	v, err, _ := p.sf.Do(sfKey, func() (interface{}, error) {
		return p.packageOnce(ctx, trackID, sessionID, ownerUserID, ip, pcm, sampleRate)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (p *Packager) packageOnce(ctx context.Context, trackID, sessionID, ownerUserID, ip string, pcm []int16, sampleRate int) (res Result, err error) {
	dir := filepath.Join(p.root, trackID, sessionID)
	playlistPath := filepath.Join(dir, PlaylistName)

	if existing, statErr := readExisting(dir, playlistPath); statErr == nil {
		metrics.PackagingRuns.WithLabelValues("reused").Inc()
		return existing, nil
	}

	if err = os.MkdirAll(dir, 0o750); err != nil {
		return res, fmt.Errorf("hls: mkdir %s: %w", dir, err)
	}

	key := make([]byte, KeySize)
	if _, err = rand.Read(key); err != nil {
		return res, fmt.Errorf("hls: key generation: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return res, fmt.Errorf("hls: aes cipher: %w", err)
	}

	samplesPerSegment := int(SegmentSeconds * float64(sampleRate))
	if samplesPerSegment <= 0 {
		samplesPerSegment = int(SegmentSeconds * 44100)
	}

	var written []string
	defer func() {
		if err != nil {
			for _, f := range written {
				os.Remove(f)
			}
			os.Remove(playlistPath)
			os.Remove(dir)
		}
	}()

	playlist, plErr := m3u8.NewMediaPlaylist(0, uint(len(pcm)/samplesPerSegment+1))
	if plErr != nil {
		return res, fmt.Errorf("hls: new playlist: %w", plErr)
	}

	alias, mintErr := p.keys.Mint(key, ownerUserID, ip)
	if mintErr != nil {
		err = fmt.Errorf("hls: mint key alias: %w", mintErr)
		return res, err
	}
	keyURI := p.urlBase(trackID, alias)
	if keyErr := playlist.SetDefaultKey("AES-128", keyURI, "", "", ""); keyErr != nil {
		err = fmt.Errorf("hls: set key: %w", keyErr)
		return res, err
	}

	segIndex := 0
	for off := 0; off < len(pcm); off += samplesPerSegment {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
			return res, err
		}

		end := off + samplesPerSegment
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := pcm[off:end]
		duration := float64(len(chunk)) / float64(sampleRate)

		plaintext := pcmToBytes(chunk)
		iv := segmentIV(segIndex)
		ciphertext := encryptCBC(block, iv, plaintext)

		name := fmt.Sprintf("seg_%03d%s", segIndex, segmentExt)
		segPath := filepath.Join(dir, name)
		if writeErr := os.WriteFile(segPath, ciphertext, 0o640); writeErr != nil {
			err = fmt.Errorf("hls: write segment %s: %w", name, writeErr)
			return res, err
		}
		written = append(written, segPath)

		if appendErr := playlist.Append(name, duration, ""); appendErr != nil {
			err = fmt.Errorf("hls: append segment %s: %w", name, appendErr)
			return res, err
		}
		segIndex++
	}
	playlist.Close()

	if writeErr := os.WriteFile(playlistPath, playlist.Encode().Bytes(), 0o640); writeErr != nil {
		err = fmt.Errorf("hls: write playlist: %w", writeErr)
		return res, err
	}

	metrics.PackagingRuns.WithLabelValues("packaged").Inc()
	return Result{PlaylistPath: playlistPath, SegmentPaths: written, KeyAlias: alias}, nil
}

// segmentIV renders the segment index as a big-endian 16-byte AES-CBC IV,
// per spec.md §4.4 ("IV=big-endian segment index"). The encoded manifest's
// single EXT-X-KEY line cannot also declare this per-segment; its own IV
// attribute is left unset so compliant clients fall back to the sequence
// number, matching segment 0 by construction.
func segmentIV(index int) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv[8:], uint64(index))
	return iv
}

func pcmToBytes(pcm []int16) []byte {
	buf := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func encryptCBC(block cipher.Block, iv []byte, plaintext []byte) []byte {
	padded := pkcs7Pad(plaintext, block.BlockSize())
	out := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, iv)
	mode.CryptBlocks(out, padded)
	return out
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

// readExisting recovers the Result of a prior packaging run from the
// artifacts already on disk, so a repeated Package call for the same
// (track_id, session_id) is a true no-op rather than a re-encode, per
// spec.md §4.4. The key alias is never persisted by the key store itself
// (C5's "not persisted" invariant), but it is already embedded in the
// manifest's single EXT-X-KEY URI, so recovering it here means decoding
// that line rather than re-minting a key no client has.
func readExisting(dir, playlistPath string) (Result, error) {
	raw, err := os.ReadFile(playlistPath)
	if err != nil {
		return Result{}, err
	}

	playlist, err := m3u8.NewMediaPlaylist(0, 1)
	if err != nil {
		return Result{}, err
	}
	if err := playlist.Decode(*bytes.NewBuffer(raw), false); err != nil {
		return Result{}, fmt.Errorf("hls: decode existing playlist: %w", err)
	}

	var segPaths []string
	for _, seg := range playlist.Segments {
		if seg == nil {
			continue
		}
		segPaths = append(segPaths, filepath.Join(dir, seg.URI))
	}

	alias := ""
	if playlist.Key != nil {
		alias = filepath.Base(playlist.Key.URI)
	}

	return Result{PlaylistPath: playlistPath, SegmentPaths: segPaths, KeyAlias: alias}, nil
}
