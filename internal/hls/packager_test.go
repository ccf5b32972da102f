package hls

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/matryer/is"
)

type fakeMinter struct {
	aliasOf map[string]string
	n       int
}

func (f *fakeMinter) Mint(key []byte, ownerUserID, ip string) (string, error) {
	f.n++
	alias := "alias-" + strconv.Itoa(f.n)
	if f.aliasOf == nil {
		f.aliasOf = map[string]string{}
	}
	f.aliasOf[alias] = string(key)
	return alias, nil
}

func testURLBase(trackID, alias string) string {
	return "/api/v1/stream/key/" + alias
}

func sineInt16(n int) []int16 {
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16((i % 2000) - 1000)
	}
	return pcm
}

func TestPackageWritesPlaylistAndSegments(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	minter := &fakeMinter{}
	p := New(dir, minter, testURLBase)

	pcm := sineInt16(44100 * 10) // 10s of mono audio -> 3 segments at 4s nominal
	res, err := p.Package(context.Background(), "track-1", "session-1", "user-1", "127.0.0.1", pcm, 44100)
	is.NoErr(err)
	is.True(len(res.SegmentPaths) >= 2)
	is.True(res.KeyAlias != "")

	raw, err := os.ReadFile(res.PlaylistPath)
	is.NoErr(err)
	manifest := string(raw)
	is.Equal(strings.Count(manifest, "#EXT-X-KEY"), 1)
	is.True(strings.Contains(manifest, res.KeyAlias))
	is.True(strings.Contains(manifest, "#EXT-X-ENDLIST"))

	for _, seg := range res.SegmentPaths {
		info, statErr := os.Stat(seg)
		is.NoErr(statErr)
		is.True(info.Size() > 0)
	}
}

func TestPackageIsIdempotent(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	minter := &fakeMinter{}
	p := New(dir, minter, testURLBase)
	pcm := sineInt16(44100 * 5)

	first, err := p.Package(context.Background(), "track-2", "session-2", "user-1", "127.0.0.1", pcm, 44100)
	is.NoErr(err)

	second, err := p.Package(context.Background(), "track-2", "session-2", "user-1", "127.0.0.1", pcm, 44100)
	is.NoErr(err)

	is.Equal(first.PlaylistPath, second.PlaylistPath)
	is.Equal(first.KeyAlias, second.KeyAlias)
	is.Equal(1, minter.n) // no second key minted on the idempotent path
}

func TestPackageConcurrentCallsCollapseViaSingleflight(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	minter := &fakeMinter{}
	p := New(dir, minter, testURLBase)
	pcm := sineInt16(44100 * 5)

	const n = 8
	results := make(chan Result, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			res, err := p.Package(context.Background(), "track-3", "session-3", "user-1", "127.0.0.1", pcm, 44100)
			results <- res
			errs <- err
		}()
	}

	var first Result
	for i := 0; i < n; i++ {
		err := <-errs
		is.NoErr(err)
		res := <-results
		if i == 0 {
			first = res
		} else {
			is.Equal(first.PlaylistPath, res.PlaylistPath)
		}
	}
}
