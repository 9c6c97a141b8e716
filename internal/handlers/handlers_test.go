package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/stereocards/internal/cards"
	"github.com/lehigh-university-libraries/stereocards/internal/catalog"
	"github.com/lehigh-university-libraries/stereocards/internal/imagecache"
	"github.com/lehigh-university-libraries/stereocards/internal/images"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
	"github.com/lehigh-university-libraries/stereocards/internal/importer"
	"github.com/lehigh-university-libraries/stereocards/internal/metrics"
	"github.com/lehigh-university-libraries/stereocards/internal/viewer"
)

type testEnv struct {
	router  http.Handler
	store   *catalog.Store
	fetches func() int
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 30, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			img.Set(x, y, color.RGBA{R: 0xaa, G: 0xbb, B: 0xcc, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	payload := buf.Bytes()

	var count atomic.Int32
	imageSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
		if strings.HasPrefix(r.URL.Query().Get("id"), "img-") {
			_, _ = w.Write(payload)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(imageSrv.Close)

	store, err := catalog.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	rec := cards.Record{Identifier: "card-1", Titles: []string{"Broadway"}, ImageIDs: cards.ImageIDs{Front: "img-1f", Back: "img-1b"}}
	if err := store.Save(context.Background(), rec, nil, nil); err != nil {
		t.Fatalf("failed to save card: %v", err)
	}

	m := metrics.NewSimple()
	cache := imagecache.New(1<<20, imagecache.WithMetrics(m))
	fetcher := images.NewFetcher(imageSrv.URL)
	loader := images.NewLoader(cache, fetcher, imaging.NewStdDecoder(), images.WithLoaderMetrics(m))

	h := New(context.Background(), Deps{
		Viewer:   viewer.NewService(store, loader),
		Importer: importer.New(fetcher, store),
		Cache:    cache,
		Metrics:  m,
	})
	return &testEnv{router: h.Router(), store: store, fetches: func() int { return int(count.Load()) }}
}

func (e *testEnv) do(t *testing.T, method, path string, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthcheck(t *testing.T) {
	env := setup(t)
	rec := env.do(t, http.MethodGet, "/healthcheck", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("Unexpected healthcheck response %d %q", rec.Code, rec.Body.String())
	}
}

func TestCardImage(t *testing.T) {
	env := setup(t)

	rec := env.do(t, http.MethodGet, "/cards/card-1/back", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Expected image/png, got %s", ct)
	}
	if c := rec.Header().Get("X-Background-Color"); c != "#aabbcc" {
		t.Errorf("Expected background color #aabbcc, got %q", c)
	}
	if _, err := png.Decode(rec.Body); err != nil {
		t.Errorf("Expected a valid PNG body: %v", err)
	}

	etag := rec.Header().Get("ETag")
	rec = env.do(t, http.MethodGet, "/cards/card-1/back", "", http.Header{"If-None-Match": {etag}})
	if rec.Code != http.StatusNotModified {
		t.Errorf("Expected 304, got %d", rec.Code)
	}
	if env.fetches() != 1 {
		t.Errorf("Expected the second request to be served from cache, got %d fetches", env.fetches())
	}

	card, err := env.store.Card(context.Background(), "card-1")
	if err != nil {
		t.Fatalf("Card failed: %v", err)
	}
	if card.BackgroundColor != "#aabbcc" {
		t.Errorf("Expected persisted color, got %q", card.BackgroundColor)
	}
}

func TestCardImageErrors(t *testing.T) {
	env := setup(t)
	tests := []struct {
		path string
		code int
	}{
		{"/cards/card-1/sideways", http.StatusBadRequest},
		{"/cards/unknown/front", http.StatusNotFound},
		{"/cards/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, "", nil)
			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestCacheEndpoints(t *testing.T) {
	env := setup(t)
	env.do(t, http.MethodGet, "/cards/card-1/front", "", nil)

	rec := env.do(t, http.MethodGet, "/cache", "", nil)
	var stats cacheResponse
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Entries != 1 || stats.Bytes != 30*30*4 || stats.Fetches != 1 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	if rec := env.do(t, http.MethodDelete, "/cache", "", nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/cache", "", nil)
	stats = cacheResponse{}
	_ = json.NewDecoder(rec.Body).Decode(&stats)
	if stats.Entries != 0 || stats.Bytes != 0 {
		t.Errorf("Expected empty cache, got %+v", stats)
	}
}

func TestPrefetch(t *testing.T) {
	env := setup(t)

	if rec := env.do(t, http.MethodPost, "/cards/card-1/prefetch", "", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.fetches() != 2 {
		t.Errorf("Expected both faces fetched, got %d fetches", env.fetches())
	}

	rec := env.do(t, http.MethodGet, "/cache", "", nil)
	var stats cacheResponse
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.Entries != 2 || stats.OldestAccess == nil {
		t.Errorf("Unexpected stats after prefetch %+v", stats)
	}

	if rec := env.do(t, http.MethodGet, "/cards/card-1/front", "", nil); rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if env.fetches() != 2 {
		t.Errorf("Expected prefetched face to be served from cache, got %d fetches", env.fetches())
	}

	if rec := env.do(t, http.MethodPost, "/cards/unknown/prefetch", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown card, got %d", rec.Code)
	}
}

func TestImportEndpoints(t *testing.T) {
	env := setup(t)
	dir := t.TempDir()
	record := `{"identifier":"card-2","titles":["Chicago"],"authors":[],"subjects":[],"dates":[],"image_ids":{"front":"img-2f","back":"missing"}}`
	if err := os.WriteFile(filepath.Join(dir, "card-2.json"), []byte(record), 0644); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}

	rec := env.do(t, http.MethodPost, "/imports", `{"directory":`+jsonString(dir)+`}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var started runResponse
	if err := json.NewDecoder(rec.Body).Decode(&started); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	var detail runResponse
	for time.Now().Before(deadline) {
		rec = env.do(t, http.MethodGet, "/imports/"+started.RunID, "", nil)
		detail = runResponse{}
		_ = json.NewDecoder(rec.Body).Decode(&detail)
		if detail.State == "completed" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if detail.State != "completed" || detail.Progress.Completed != 1 || detail.Summary.MissingBack != 1 {
		t.Fatalf("Unexpected run detail %+v", detail)
	}

	card, err := env.store.Card(context.Background(), "card-2")
	if err != nil {
		t.Fatalf("expected imported card: %v", err)
	}
	if !card.HasFrontImage || card.HasBackImage {
		t.Errorf("Expected only the front image, got %+v", card)
	}

	rec = env.do(t, http.MethodGet, "/cards/card-2/front/stored", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Errorf("Expected stored PNG, got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec := env.do(t, http.MethodGet, "/cards/card-2/back/stored", "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing stored back, got %d", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/imports/"+started.RunID, "", nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 forgetting a finished run, got %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/imports/"+started.RunID, "", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for a forgotten run, got %d", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/imports/current", "", nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/imports/current", "", nil)
	var current runResponse
	_ = json.NewDecoder(rec.Body).Decode(&current)
	if current.State != "idle" {
		t.Errorf("Expected idle after cancel, got %s", current.State)
	}
}

func TestStartImportValidation(t *testing.T) {
	env := setup(t)
	for body, code := range map[string]int{
		`not json`:                           http.StatusBadRequest,
		`{"directory":""}`:                   http.StatusBadRequest,
		`{"directory":"/no/such/dir/exists"}`: http.StatusBadRequest,
	} {
		rec := env.do(t, http.MethodPost, "/imports", body, nil)
		if rec.Code != code {
			t.Errorf("%s: expected %d, got %d", body, code, rec.Code)
		}
	}
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
