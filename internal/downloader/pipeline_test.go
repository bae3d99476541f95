package downloader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaharvest/pkg/config"
	"mediaharvest/pkg/dedup"
	"mediaharvest/pkg/fetch"
	"mediaharvest/pkg/logger"
	"mediaharvest/pkg/models"
	"mediaharvest/pkg/phash"
	"mediaharvest/pkg/storage"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// gradientPNG produces visually distinct images per size.
func gradientPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / w),
				G: uint8(y * 255 / h),
				B: uint8((x + y) * 255 / (w + h)),
				A: 255,
			})
		}
	}
	return encodePNG(t, img)
}

// solidPNG produces images that hash identically at any size.
func solidPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 120, B: 120, A: 255})
		}
	}
	return encodePNG(t, img)
}

type servedFile struct {
	data        []byte
	contentType string
}

func mediaServer(files map[string]servedFile) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", f.contentType)
		w.Write(f.data)
	}))
}

func newTestPipeline(t *testing.T, cfg *config.Config, algorithm string) (*Pipeline, *storage.Manager) {
	t.Helper()
	store, err := storage.NewManager(t.TempDir())
	require.NoError(t, err)
	hasher, err := phash.NewHasher(algorithm)
	require.NoError(t, err)
	index := dedup.New(phash.DefaultMaxDistance, cfg.Dedup.MoveDuplicates, store.DuplicatesDir())
	client := fetch.NewClient(10*time.Second, "", logger.NewTestLogger())
	return New(client, store, index, hasher, cfg), store
}

func pageItems(srvURL string, paths ...string) []models.MediaItem {
	items := make([]models.MediaItem, 0, len(paths))
	for _, p := range paths {
		items = append(items, models.MediaItem{
			URL:           srvURL + p,
			SourcePageURL: srvURL + "/gallery",
		})
	}
	return items
}

func TestProcessQueueSizeFilterAndBudget(t *testing.T) {
	widths := []int{200, 600, 800, 900, 1000}
	files := map[string]servedFile{}
	paths := make([]string, 0, len(widths))
	for i, w := range widths {
		p := fmt.Sprintf("/img%d.png", i)
		files[p] = servedFile{data: gradientPNG(t, w, 600), contentType: "image/png"}
		paths = append(paths, p)
	}
	srv := mediaServer(files)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = false
	cfg.Download.MinWidth = 512
	cfg.Download.MaxFiles = 3

	p, _ := newTestPipeline(t, cfg, string(phash.AlgorithmNone))
	rc := NewRunContext(&models.RunStats{}, cfg.Download.MaxFiles, 0)

	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, paths...), "Gallery")

	assert.Equal(t, 5, rc.Stats.FilesFound)
	// The 200px image is fetched and rejected; the fifth item is never
	// attempted because the budget is already spent.
	assert.Equal(t, 4, rc.Stats.DownloadsAttempted)
	assert.Equal(t, 1, rc.Stats.SkippedSmall)
	assert.Equal(t, 3, rc.Stats.ImagesDownloaded)
	assert.Equal(t, 0, rc.Stats.FailedDownloads)

	recs := rc.Records()
	require.Len(t, recs, 3)
	got := make([]int, 0, 3)
	for _, rec := range recs {
		got = append(got, rec.Width)
		assert.FileExists(t, rec.FilePath)
	}
	sort.Ints(got)
	assert.Equal(t, []int{600, 800, 900}, got)
}

func TestProcessQueueReplacesLowerResolutionDuplicate(t *testing.T) {
	srv := mediaServer(map[string]servedFile{
		"/small.png": {data: solidPNG(t, 800, 600), contentType: "image/png"},
		"/big.png":   {data: solidPNG(t, 1200, 900), contentType: "image/png"},
	})
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = false

	p, _ := newTestPipeline(t, cfg, string(phash.AlgorithmAverage))
	rc := NewRunContext(&models.RunStats{}, 0, 0)

	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, "/small.png"), "")
	require.Len(t, rc.Records(), 1)
	oldPath := rc.Records()[0].FilePath
	require.FileExists(t, oldPath)

	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, "/big.png"), "")

	recs := rc.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, 1200, recs[0].Width)
	assert.Equal(t, 900, recs[0].Height)
	assert.FileExists(t, recs[0].FilePath)

	_, err := os.Stat(oldPath)
	assert.True(t, os.IsNotExist(err), "replaced file should be deleted")

	assert.Equal(t, 1, rc.Stats.DuplicatesRemoved)
	assert.Equal(t, 0, rc.Stats.DuplicatesMoved)
	assert.Equal(t, 1, rc.Stats.ImagesDownloaded)
	assert.Equal(t, 2, rc.Stats.DownloadsAttempted)
}

func TestProcessQueueMovesDiscardedDuplicate(t *testing.T) {
	srv := mediaServer(map[string]servedFile{
		"/big.png":   {data: solidPNG(t, 1200, 900), contentType: "image/png"},
		"/small.png": {data: solidPNG(t, 800, 600), contentType: "image/png"},
	})
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = false
	cfg.Dedup.MoveDuplicates = true

	p, store := newTestPipeline(t, cfg, string(phash.AlgorithmAverage))
	rc := NewRunContext(&models.RunStats{}, 0, 0)

	// Higher resolution arrives first, so the later copy is the loser.
	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, "/big.png", "/small.png"), "")

	recs := rc.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, 1200, recs[0].Width)

	assert.Equal(t, 1, rc.Stats.DuplicatesRemoved)
	assert.Equal(t, 1, rc.Stats.DuplicatesMoved)

	entries, err := os.ReadDir(store.DuplicatesDir())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcessQueueCountsOnlyActualMoves(t *testing.T) {
	srv := mediaServer(map[string]servedFile{
		"/small.png": {data: solidPNG(t, 800, 600), contentType: "image/png"},
		"/big.png":   {data: solidPNG(t, 1200, 900), contentType: "image/png"},
	})
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = false
	cfg.Dedup.MoveDuplicates = true

	p, store := newTestPipeline(t, cfg, string(phash.AlgorithmAverage))
	rc := NewRunContext(&models.RunStats{}, 0, 0)

	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, "/small.png"), "")
	require.Len(t, rc.Records(), 1)

	// The losing file disappears before its replacement arrives; the
	// collision still counts, but no move happened.
	require.NoError(t, os.Remove(rc.Records()[0].FilePath))
	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, "/big.png"), "")

	assert.Equal(t, 1, rc.Stats.DuplicatesRemoved)
	assert.Equal(t, 0, rc.Stats.DuplicatesMoved)
	assert.NoDirExists(t, store.DuplicatesDir())
}

func TestProcessQueueCancellationKeepsCompletedWork(t *testing.T) {
	files := map[string][]byte{}
	paths := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		p := fmt.Sprintf("/img%d.png", i)
		files[p] = gradientPNG(t, 600+i*10, 600)
		paths = append(paths, p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var served atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if served.Add(1) == 5 {
			cancel()
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(files[r.URL.Path])
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = false

	p, _ := newTestPipeline(t, cfg, string(phash.AlgorithmNone))
	rc := NewRunContext(&models.RunStats{}, 0, 0)

	p.ProcessQueue(ctx, rc, pageItems(srv.URL, paths...), "")

	assert.Equal(t, 4, rc.Stats.ImagesDownloaded)
	assert.Equal(t, 1, rc.Stats.FailedDownloads)
	assert.Equal(t, 5, rc.Stats.DownloadsAttempted)
	require.Len(t, rc.Records(), 4)
	for _, rec := range rc.Records() {
		assert.FileExists(t, rec.FilePath)
	}
}

func TestProcessQueueParallelMatchesSequential(t *testing.T) {
	files := map[string]servedFile{}
	paths := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		p := fmt.Sprintf("/img%d.png", i)
		files[p] = servedFile{data: gradientPNG(t, 700+i*20, 500), contentType: "image/png"}
		paths = append(paths, p)
	}
	srv := mediaServer(files)
	defer srv.Close()

	run := func(parallel bool) (*models.RunStats, []string) {
		cfg := config.DefaultConfig()
		cfg.Download.Parallel = parallel
		cfg.Download.Workers = 4

		p, _ := newTestPipeline(t, cfg, string(phash.AlgorithmNone))
		rc := NewRunContext(&models.RunStats{}, 0, 0)
		p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, paths...), "")

		names := make([]string, 0, len(rc.Records()))
		for _, rec := range rc.Records() {
			names = append(names, rec.Filename)
		}
		sort.Strings(names)
		return rc.Stats, names
	}

	seqStats, seqNames := run(false)
	parStats, parNames := run(true)

	assert.Equal(t, seqNames, parNames)
	assert.Equal(t, seqStats.ImagesDownloaded, parStats.ImagesDownloaded)
	assert.Equal(t, seqStats.DownloadsAttempted, parStats.DownloadsAttempted)
	assert.Equal(t, seqStats.FilesFound, parStats.FilesFound)
	assert.Equal(t, seqStats.FailedDownloads, parStats.FailedDownloads)
}

func TestProcessQueueParallelHonorsBudget(t *testing.T) {
	files := map[string]servedFile{}
	paths := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		p := fmt.Sprintf("/img%d.png", i)
		files[p] = servedFile{data: gradientPNG(t, 640+i*16, 480), contentType: "image/png"}
		paths = append(paths, p)
	}
	srv := mediaServer(files)
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = true
	cfg.Download.Workers = 4
	cfg.Download.MaxFiles = 3

	p, _ := newTestPipeline(t, cfg, string(phash.AlgorithmNone))
	rc := NewRunContext(&models.RunStats{}, cfg.Download.MaxFiles, 0)

	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, paths...), "")

	assert.Equal(t, 3, rc.Stats.ImagesDownloaded)
	assert.Len(t, rc.Records(), 3)
}

func TestProcessQueueOffDomainPolicy(t *testing.T) {
	srv := mediaServer(map[string]servedFile{
		"/cdn.png": {data: gradientPNG(t, 800, 600), contentType: "image/png"},
	})
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = false
	require.True(t, cfg.Crawl.SameDomainOnly)

	p, _ := newTestPipeline(t, cfg, string(phash.AlgorithmNone))
	rc := NewRunContext(&models.RunStats{}, 0, 0)

	items := []models.MediaItem{
		{URL: srv.URL + "/cdn.png?copy=blocked", SourcePageURL: "https://elsewhere.example/page"},
		{URL: srv.URL + "/cdn.png?copy=trusted", SourcePageURL: "https://elsewhere.example/page", TrustedCDN: true},
	}

	p.ProcessQueue(context.Background(), rc, items, "")

	assert.Equal(t, 1, rc.Stats.SkippedOffDomain)
	// The blocked item never reaches the network.
	assert.Equal(t, 1, rc.Stats.DownloadsAttempted)
	assert.Equal(t, 1, rc.Stats.ImagesDownloaded)
}

func TestProcessQueueSkipsDisabledAndNonMedia(t *testing.T) {
	srv := mediaServer(map[string]servedFile{
		"/clip.mp4": {data: []byte("not really an mp4"), contentType: "video/mp4"},
		"/page":     {data: []byte("<html><body>hi</body></html>"), contentType: "text/html"},
	})
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = false
	cfg.Download.IncludeVideos = false

	p, _ := newTestPipeline(t, cfg, string(phash.AlgorithmNone))
	rc := NewRunContext(&models.RunStats{}, 0, 0)

	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, "/clip.mp4", "/page"), "")

	assert.Equal(t, 2, rc.Stats.SkippedNotMedia)
	assert.Equal(t, 2, rc.Stats.DownloadsAttempted)
	assert.Equal(t, 0, rc.Stats.FailedDownloads)
	assert.Empty(t, rc.Records())
}

func TestProcessQueueCountsRepeatedItemsOnce(t *testing.T) {
	srv := mediaServer(map[string]servedFile{
		"/one.png": {data: gradientPNG(t, 800, 600), contentType: "image/png"},
	})
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = false

	p, _ := newTestPipeline(t, cfg, string(phash.AlgorithmNone))
	rc := NewRunContext(&models.RunStats{}, 0, 0)

	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, "/one.png", "/one.png"), "")

	assert.Equal(t, 2, rc.Stats.FilesFound)
	assert.Equal(t, 1, rc.Stats.SkippedAlreadyProcessed)
	assert.Equal(t, 1, rc.Stats.ImagesDownloaded)
	assert.Len(t, rc.Records(), 1)
}

func TestProcessQueueWritesSidecars(t *testing.T) {
	srv := mediaServer(map[string]servedFile{
		"/one.png": {data: gradientPNG(t, 800, 600), contentType: "image/png"},
	})
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = false
	cfg.Output.WriteSidecars = true

	p, _ := newTestPipeline(t, cfg, string(phash.AlgorithmNone))
	rc := NewRunContext(&models.RunStats{}, 0, 0)

	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, "/one.png"), "Sunset")

	recs := rc.Records()
	require.Len(t, recs, 1)
	assert.FileExists(t, recs[0].FilePath+".json")
	// Page title seeds the filename slug when the item has no title.
	assert.Contains(t, recs[0].Filename, "sunset")
}

func TestProcessQueueVideoSavedWithoutDecode(t *testing.T) {
	payload := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'}
	srv := mediaServer(map[string]servedFile{
		"/clip.mp4": {data: payload, contentType: "video/mp4"},
	})
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Download.Parallel = false
	cfg.Download.MinWidth = 512 // must not apply to video

	p, _ := newTestPipeline(t, cfg, string(phash.AlgorithmPHash))
	rc := NewRunContext(&models.RunStats{}, 0, 0)

	p.ProcessQueue(context.Background(), rc, pageItems(srv.URL, "/clip.mp4"), "")

	recs := rc.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, models.MediaTypeVideo, recs[0].Type)
	assert.Empty(t, recs[0].Hash)
	assert.Equal(t, int64(len(payload)), recs[0].FileSize)
	assert.Equal(t, 1, rc.Stats.VideosDownloaded)
}
