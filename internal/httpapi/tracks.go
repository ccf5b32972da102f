package httpapi

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/sectify/sectify/internal/apierr"
	"github.com/sectify/sectify/internal/cipher"
	"github.com/sectify/sectify/internal/store"
)

type trackHandlers struct {
	d Deps
}

func (h *trackHandlers) listPublic(w http.ResponseWriter, r *http.Request) {
	tracks, err := h.d.DB.ListPublicTracks(r.Context())
	if err != nil {
		apierr.Write(w, apierr.Transient("could not list tracks"))
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// upload accepts a raw PCM (s16le) body, encrypts it at rest under a key
// derived from (owner, track_id) via internal/kdf, and stores the envelope
// through the configured internal/objstore backend — spec.md §4.2/§4.9's
// "file-at-rest" path. duration_ms, sample_rate and channels are carried as
// query parameters since this endpoint takes a raw audio stream, not a
// multipart form; a richer upload pipeline (format transcode, metadata
// extraction) is explicitly out of scope per spec.md's Non-goals.
func (h *trackHandlers) upload(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromCtx(r.Context())
	if userID == "" {
		apierr.Write(w, apierr.AuthRequired("authentication required"))
		return
	}

	title := r.URL.Query().Get("title")
	if title == "" {
		apierr.Write(w, apierr.Invalid("title query parameter is required"))
		return
	}
	public := r.URL.Query().Get("public") == "true"
	sampleRate := queryInt(r, "sample_rate", 44100)
	channels := queryInt(r, "channels", 2)
	durationMs := queryInt(r, "duration_ms", 0)

	pcm, err := io.ReadAll(io.LimitReader(r.Body, 512<<20))
	if err != nil {
		apierr.Write(w, apierr.Invalid("could not read request body"))
		return
	}
	if len(pcm) == 0 {
		apierr.Write(w, apierr.Invalid("empty audio body"))
		return
	}

	trackID := uuid.New().String()
	fileKey := "tracks/" + trackID + ".sec"

	dataKey := h.d.KDF.DeriveFileKey(userID, trackID)
	envelope, err := cipher.Encrypt(dataKey, pcm)
	if err != nil {
		apierr.Write(w, apierr.IntegrityError())
		return
	}

	if err := h.d.Files.Put(r.Context(), fileKey, bytes.NewReader(envelope), int64(len(envelope))); err != nil {
		apierr.Write(w, apierr.Transient("could not store audio"))
		return
	}

	track, err := h.d.DB.CreateTrack(r.Context(), store.CreateTrackParams{
		ID:          trackID,
		OwnerUserID: userID,
		Title:       title,
		Public:      public,
		FileKey:     fileKey,
		DurationMs:  durationMs,
		SampleRate:  sampleRate,
		Channels:    channels,
	})
	if err != nil {
		_ = h.d.Files.Delete(r.Context(), fileKey)
		apierr.Write(w, apierr.Transient("could not record track"))
		return
	}

	writeJSON(w, http.StatusCreated, track)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
