package images

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/stereocards/internal/cards"
	"github.com/lehigh-university-libraries/stereocards/internal/imagecache"
	"github.com/lehigh-university-libraries/stereocards/internal/imaging"
	"github.com/lehigh-university-libraries/stereocards/internal/metrics"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 180, B: 140, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// fakeSource counts fetches and optionally blocks until release is closed.
type fakeSource struct {
	data    map[string][]byte
	err     error
	calls   atomic.Int32
	release chan struct{}
}

func (f *fakeSource) Fetch(ctx context.Context, id string) ([]byte, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[id]
	if !ok {
		return nil, imaging.Status("fetch", http.StatusNotFound)
	}
	return data, nil
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey("abc", cards.Front); got != "abc_front" {
		t.Errorf("Expected abc_front, got %s", got)
	}
	if CacheKey("abc", cards.Front) == CacheKey("abc", cards.Back) {
		t.Error("Front and back keys must differ")
	}
}

func TestLoadCachesAndHits(t *testing.T) {
	src := &fakeSource{data: map[string][]byte{"card1": pngBytes(t, 12, 10)}}
	cache := imagecache.New(1 << 20)
	l := NewLoader(cache, src, imaging.NewStdDecoder())
	ctx := context.Background()

	first, err := l.Load(ctx, "card1", cards.Front)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	second, err := l.Load(ctx, "card1", cards.Front)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if first != second {
		t.Error("Expected the cached bitmap on the second load")
	}
	if src.calls.Load() != 1 {
		t.Errorf("Expected 1 fetch, got %d", src.calls.Load())
	}
}

func TestLoadFrontAndBackAreDistinctEntries(t *testing.T) {
	src := &fakeSource{data: map[string][]byte{"card1": pngBytes(t, 4, 4)}}
	cache := imagecache.New(1 << 20)
	l := NewLoader(cache, src, imaging.NewStdDecoder())

	if err := l.Prefetch(context.Background(), cards.ImageIDs{Front: "card1", Back: "card1"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cache.Len() != 2 {
		t.Errorf("Expected 2 cache entries, got %d", cache.Len())
	}
	for _, key := range []string{"card1_front", "card1_back"} {
		if !cache.Contains(key) {
			t.Errorf("Expected %s to be cached", key)
		}
	}
}

func TestLoadCoalescesConcurrentRequests(t *testing.T) {
	src := &fakeSource{
		data:    map[string][]byte{"card1": pngBytes(t, 8, 8)},
		release: make(chan struct{}),
	}
	m := metrics.NewSimple()
	l := NewLoader(imagecache.New(1<<20), src, imaging.NewStdDecoder(), WithLoaderMetrics(m))

	const n = 16
	var wg sync.WaitGroup
	results := make([]*imaging.Bitmap, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = l.Load(context.Background(), "card1", cards.Back)
		}(i)
	}
	close(src.release)
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 fetch, got %d", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: unexpected error %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d received a different bitmap", i)
		}
	}
}

func TestLoadCountsOnlyWaitersAsCoalesced(t *testing.T) {
	t.Run("single caller", func(t *testing.T) {
		m := metrics.NewSimple()
		src := &fakeSource{data: map[string][]byte{"card1": pngBytes(t, 8, 8)}}
		l := NewLoader(imagecache.New(1<<20), src, imaging.NewStdDecoder(), WithLoaderMetrics(m))
		if _, err := l.Load(context.Background(), "card1", cards.Front); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got := m.Snapshot().Coalesced; got != 0 {
			t.Errorf("Expected 0 coalesced, got %d", got)
		}
	})

	t.Run("leader and waiters", func(t *testing.T) {
		m := metrics.NewSimple()
		src := &fakeSource{
			data:    map[string][]byte{"card1": pngBytes(t, 8, 8)},
			release: make(chan struct{}),
		}
		l := NewLoader(imagecache.New(1<<20), src, imaging.NewStdDecoder(), WithLoaderMetrics(m))

		const n = 8
		var ready, done sync.WaitGroup
		ready.Add(n)
		done.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer done.Done()
				ready.Done()
				if _, err := l.Load(context.Background(), "card1", cards.Front); err != nil {
					t.Errorf("Unexpected error: %v", err)
				}
			}()
		}
		ready.Wait()
		// Give every caller time to join the flight held open by release.
		time.Sleep(100 * time.Millisecond)
		close(src.release)
		done.Wait()

		if got := src.calls.Load(); got != 1 {
			t.Errorf("Expected exactly 1 fetch, got %d", got)
		}
		if got := m.Snapshot().Coalesced; got != n-1 {
			t.Errorf("Expected %d coalesced, got %d", n-1, got)
		}
	})
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("empty identifier", func(t *testing.T) {
		src := &fakeSource{}
		l := NewLoader(imagecache.New(1024), src, imaging.NewStdDecoder())
		_, err := l.Load(ctx, "  ", cards.Front)
		if !imaging.IsKind(err, imaging.KindInvalidInput) {
			t.Errorf("Expected invalid input, got %v", err)
		}
		if src.calls.Load() != 0 {
			t.Error("Expected no fetch for an empty identifier")
		}
	})

	t.Run("status", func(t *testing.T) {
		l := NewLoader(imagecache.New(1024), &fakeSource{data: map[string][]byte{}}, imaging.NewStdDecoder())
		_, err := l.Load(ctx, "missing", cards.Front)
		if code, ok := imaging.StatusCode(err); !ok || code != http.StatusNotFound {
			t.Errorf("Expected status 404, got %v", err)
		}
	})

	t.Run("decode", func(t *testing.T) {
		cache := imagecache.New(1024)
		l := NewLoader(cache, &fakeSource{data: map[string][]byte{"bad": []byte("garbage")}}, imaging.NewStdDecoder())
		_, err := l.Load(ctx, "bad", cards.Front)
		if !imaging.IsKind(err, imaging.KindDecode) {
			t.Errorf("Expected decode error, got %v", err)
		}
		if cache.Len() != 0 {
			t.Error("Failed loads must not populate the cache")
		}
	})

	t.Run("decoder without kind is wrapped", func(t *testing.T) {
		dec := imaging.DecoderFunc(func(context.Context, []byte) (*imaging.Bitmap, error) {
			return nil, errors.New("codec exploded")
		})
		l := NewLoader(imagecache.New(1024), &fakeSource{data: map[string][]byte{"x": {1}}}, dec)
		_, err := l.Load(ctx, "x", cards.Front)
		if !imaging.IsKind(err, imaging.KindDecode) {
			t.Errorf("Expected decode error, got %v", err)
		}
	})
}

func TestLoadSurvivesCallerCancellation(t *testing.T) {
	src := &fakeSource{data: map[string][]byte{"card1": pngBytes(t, 4, 4)}}
	cache := imagecache.New(1 << 20)
	l := NewLoader(cache, src, imaging.NewStdDecoder())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := l.Load(ctx, "card1", cards.Front); err != nil {
		t.Fatalf("Expected load to complete despite cancelled caller, got %v", err)
	}
	if !cache.Contains("card1_front") {
		t.Error("Expected the bitmap to be cached")
	}
}

func TestFetcher(t *testing.T) {
	payload := pngBytes(t, 2, 2)
	var gotQuery atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		switch r.URL.Query().Get("id") {
		case "ok":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(payload)
		case "accepted":
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write(payload)
		case "boom":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL + "/images")
	ctx := context.Background()

	data, err := f.Fetch(ctx, "ok")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("Expected the served payload")
	}
	if q := gotQuery.Load().(string); q != "id=ok&size=large" {
		t.Errorf("Expected query id=ok&size=large, got %s", q)
	}

	if _, err := f.Fetch(ctx, "accepted"); err != nil {
		t.Errorf("Expected any 2xx to succeed, got %v", err)
	}

	for id, code := range map[string]int{"boom": 500, "nope": 404} {
		_, err := f.Fetch(ctx, id)
		if got, ok := imaging.StatusCode(err); !ok || got != code {
			t.Errorf("%s: expected status %d, got %v", id, code, err)
		}
	}

	if _, err := f.Fetch(ctx, ""); !imaging.IsKind(err, imaging.KindInvalidInput) {
		t.Errorf("Expected invalid input, got %v", err)
	}

	srv.Close()
	if _, err := f.Fetch(ctx, "ok"); !imaging.IsKind(err, imaging.KindNetwork) {
		t.Errorf("Expected network error after server shutdown, got %v", err)
	}
}
