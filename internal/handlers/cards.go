package handlers

import (
	"bytes"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/go-chi/chi/v5"
	"github.com/lehigh-university-libraries/stereocards/internal/cards"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
)

// HandleCardImage serves one face of a card as PNG.
func (h *Handler) HandleCardImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	side, err := cards.ParseSide(chi.URLParam(r, "side"))
	if err != nil {
		h.writeError(w, imaging.New(imaging.KindInvalidInput, "side", err))
		return
	}

	res, err := h.viewer.LoadSide(r.Context(), id, side)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, res.Bitmap.Image()); err != nil {
		h.writeError(w, fmt.Errorf("failed to encode image: %w", err))
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(buf.Bytes()))
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, max-age=300")
	if res.Color != nil {
		w.Header().Set("X-Background-Color", res.Color.Hex())
	}
	if match := r.Header.Get("If-None-Match"); match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// HandleStoredImage serves the encoded bytes saved for a face at import
// time, without going through the image service.
func (h *Handler) HandleStoredImage(w http.ResponseWriter, r *http.Request) {
	side, err := cards.ParseSide(chi.URLParam(r, "side"))
	if err != nil {
		h.writeError(w, imaging.New(imaging.KindInvalidInput, "side", err))
		return
	}
	data, err := h.viewer.StoredImage(r.Context(), chi.URLParam(r, "id"), side)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// HandlePrefetch loads both faces of a card into the cache.
func (h *Handler) HandlePrefetch(w http.ResponseWriter, r *http.Request) {
	if err := h.viewer.Prefetch(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCard returns a card's metadata.
func (h *Handler) HandleCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.viewer.Card(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, card)
}

type cacheResponse struct {
	Entries    int    `json:"entries"`
	Bytes      int64  `json:"bytes"`
	LimitBytes int64  `json:"limit_bytes"`
	Hits       uint64 `json:"hits"`
	Misses     uint64 `json:"misses"`
	Evicted    uint64 `json:"evicted"`
	Fetches    uint64 `json:"fetches"`
	Coalesced  uint64 `json:"coalesced"`

	OldestAccess *time.Time `json:"oldest_access,omitempty"`
}

// HandleCacheStats reports cache occupancy and counters.
func (h *Handler) HandleCacheStats(w http.ResponseWriter, r *http.Request) {
	st := h.cache.Stats()
	m := h.metrics.Snapshot()
	resp := cacheResponse{
		Entries:    st.Entries,
		Bytes:      st.Bytes,
		LimitBytes: st.LimitBytes,
		Hits:       m.Hits,
		Misses:     m.Misses,
		Evicted:    m.Evicted,
		Fetches:    m.Fetches,
		Coalesced:  m.Coalesced,
	}
	if !st.OldestAccess.IsZero() {
		resp.OldestAccess = &st.OldestAccess
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleClearCache drops every cached bitmap.
func (h *Handler) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	w.WriteHeader(http.StatusNoContent)
}
