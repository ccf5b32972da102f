package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sectify/sectify/internal/apierr"
	"github.com/sectify/sectify/internal/authz"
	"github.com/sectify/sectify/internal/cipher"
	"github.com/sectify/sectify/internal/hls"
	"github.com/sectify/sectify/internal/metrics"
	"github.com/sectify/sectify/internal/store"
	"github.com/sectify/sectify/internal/tokens"
	"github.com/sectify/sectify/internal/watermark"
)

const grantTTL = time.Hour

type streamHandlers struct {
	d Deps
}

// optionalUserID extracts a caller's user ID from a Bearer access token if
// one is present, without rejecting the request when it is absent — public
// tracks are reachable anonymously.
func (h *streamHandlers) optionalUserID(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	if !strings.HasPrefix(hdr, "Bearer ") {
		return ""
	}
	claims, err := h.d.Tokens.Verify(strings.TrimPrefix(hdr, "Bearer "), tokens.PurposeAccess, clientIP(r))
	if err != nil {
		return ""
	}
	return claims.Subject
}

// playlist implements GET /api/v1/stream/playlist/{track_id}. It authorizes the
// caller, establishes (or reuses) an AccessGrant session bound to this
// (track_id, user, ip), watermarks and packages the track for that session
// if it has not been packaged yet, and returns the manifest. sid is an
// extension beyond spec.md's literal path template: it lets a single
// (track_id) route address a specific session's independently-watermarked
// HLS rendition, which the literal path alone cannot name.
func (h *streamHandlers) playlist(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "track_id")
	userID := h.optionalUserID(r)
	ip := clientIP(r)
	sid := r.URL.Query().Get("sid")

	if err := h.d.AuthZ.CheckTrackAccess(trackID, userID, sid, ip, authz.OpStream); err != nil {
		apierr.Write(w, apierr.As(err))
		return
	}

	if sid == "" {
		grant, err := h.d.AuthZ.Grant(trackID, userID, ip, grantTTL)
		if err != nil {
			apierr.Write(w, apierr.IntegrityError())
			return
		}
		sid = grant.SessionID
	}

	track, err := h.d.DB.GetTrackByID(r.Context(), trackID)
	if errors.Is(err, store.ErrNotFound) {
		apierr.Write(w, apierr.NotFound("track not found"))
		return
	}
	if err != nil {
		apierr.Write(w, apierr.Transient("could not load track"))
		return
	}

	pcm, sampleRate, err := h.decryptTrack(r.Context(), track)
	if err != nil {
		apierr.Write(w, apierr.IntegrityError())
		return
	}
	watermarked := watermark.Embed(pcm, sid)

	keyOwner := track.OwnerUserID
	if track.Public {
		keyOwner = ""
	}
	res, err := h.d.Packager.Package(r.Context(), trackID, sid, keyOwner, ip, watermarked, sampleRate)
	if err != nil {
		apierr.Write(w, apierr.Transient("could not package stream"))
		return
	}

	w.Header().Set("X-Sectify-Session-Id", sid)
	http.ServeFile(w, r, res.PlaylistPath)
}

// decryptTrack fetches a track's at-rest envelope and decrypts it under its
// derived file key.
func (h *streamHandlers) decryptTrack(ctx context.Context, track store.Track) ([]int16, int, error) {
	size, err := h.d.Files.Size(ctx, track.FileKey)
	if err != nil {
		return nil, 0, err
	}
	rc, err := h.d.Files.GetRange(ctx, track.FileKey, 0, size)
	if err != nil {
		return nil, 0, err
	}
	defer rc.Close()

	buf := make([]byte, size)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return nil, 0, err
	}

	key := h.d.KDF.DeriveFileKey(track.OwnerUserID, track.ID)
	plain, err := cipher.Decrypt(key, buf)
	if err != nil {
		return nil, 0, err
	}

	pcm := bytesToInt16(plain)
	sampleRate := track.SampleRate
	if sampleRate == 0 {
		sampleRate = 44100
	}
	return pcm, sampleRate, nil
}

// segment implements GET /api/v1/stream/segment/{track_id}/{n}: it serves the
// already-encrypted .ts file straight off disk. The client decrypts it
// locally after resolving the key via /stream/key/{alias}.
func (h *streamHandlers) segment(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "track_id")
	n := chi.URLParam(r, "n")
	sid := r.URL.Query().Get("sid")
	userID := h.optionalUserID(r)
	ip := clientIP(r)

	if err := h.d.AuthZ.CheckTrackAccess(trackID, userID, sid, ip, authz.OpStream); err != nil {
		apierr.Write(w, apierr.As(err))
		return
	}
	if sid == "" {
		apierr.Write(w, apierr.Invalid("sid query parameter is required"))
		return
	}

	idx, err := strconv.Atoi(n)
	if err != nil || idx < 0 {
		apierr.Write(w, apierr.Invalid("invalid segment number"))
		return
	}

	segPath := hls.SegmentPath(h.d.HLSRoot, trackID, sid, idx)
	f, err := os.Open(segPath)
	if err != nil {
		apierr.Write(w, apierr.NotFound("segment not found"))
		return
	}
	defer f.Close()

	metrics.SegmentsServed.Inc()
	w.Header().Set("Content-Type", "video/mp2t")
	http.ServeContent(w, r, segPath, time.Time{}, f)
}

// key implements GET /api/v1/stream/key/{alias}: resolves a minted key alias to
// its raw AES-128 key, bound to the caller's (user, ip), per spec.md §4.5.
func (h *streamHandlers) key(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	userID := h.optionalUserID(r)
	ip := clientIP(r)

	key, err := h.d.Keys.Resolve(alias, userID, ip)
	if err != nil {
		apierr.Write(w, apierr.As(err))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(key)
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(uint16(b[i*2]) | uint16(b[i*2+1])<<8)
	}
	return out
}
