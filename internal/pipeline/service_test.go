package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"catalog-enricher/internal/ai"
	"catalog-enricher/internal/ai/aimock"
	"catalog-enricher/internal/fetcher"
	"catalog-enricher/internal/lock"
	"catalog-enricher/internal/models"
	"catalog-enricher/internal/selector"
)

type fakeFetcher struct {
	raws []models.RawProduct
	err  error
}

func (f fakeFetcher) Name() string { return "fake" }

func (f fakeFetcher) FetchAll(context.Context) ([]models.RawProduct, error) {
	return f.raws, f.err
}

func newTestService(h *harness, f fetcher.Fetcher, caps Capabilities) *Service {
	return NewService(Deps{
		Store: h.products,
		Sink:  h.sink,
		Locks: h.locks,
		NewFetcher: func(models.SourceConfig) (fetcher.Fetcher, error) {
			return f, nil
		},
		Caps:    caps,
		Workers: 2,
		Logger:  zap.NewNop(),
	})
}

func wineJob() models.Job {
	return models.Job{
		DBName: "wine",
		Source: models.SourceConfig{
			Platform:        models.PlatformShopify,
			BaseURL:         "https://wine.example",
			PriceMinorUnits: true,
		},
		Vocabulary: models.Vocabulary{Categories: []string{"יין אדום"}},
	}
}

func TestSyncEnrichesFetchedCatalog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	raw := models.RawProduct{
		ID:          "p1",
		Title:       "Red Wine",
		Description: "<p>Dry red wine from the Galilee</p>",
		StockStatus: "instock",
		Variants: []models.RawVariant{{
			ID:      "v1",
			Price:   "10000",
			Options: []models.Option{{Name: "Size", Value: "750ml"}},
		}},
		PriceInMinorUnits: true,
	}

	ctrl := gomock.NewController(t)
	gen := aimock.NewMockGenerator(ctrl)
	gen.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(ai.Result{Text: `{"category":["יין אדום","יין לבן"]}`})

	caps := Capabilities{
		Classifier: ai.NewClassificationClient(gen, nil, zap.NewNop()),
		Embedder:   fakeEmbedder{vector: []float32{0.3, 0.4}},
	}
	svc := newTestService(h, fakeFetcher{raws: []models.RawProduct{raw}}, caps)

	sum, err := svc.Sync(ctx, wineJob())
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, sum.State)
	assert.Equal(t, 1, sum.Total)
	assert.Zero(t, sum.Failed)

	p, err := h.products.FindByID(ctx, "wine", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"יין אדום"}, p.Category)
	assert.Equal(t, 100.0, p.Price)
	assert.Equal(t, []string{"750ml"}, p.Sizes)
	assert.Equal(t, "Dry red wine from the Galilee", p.Description)
	assert.Equal(t, []float32{0.3, 0.4}, p.Embedding)
	assert.NotEmpty(t, p.SourceHash)
	assert.NotNil(t, p.CategoryTypeProcessedAt)

	status, err := svc.Status(ctx, "wine")
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, status.State)
	assert.Equal(t, 100, status.Progress)
	assert.False(t, h.locks.IsHeld(ctx, "wine"))
}

func TestSyncFetchFailureEndsInError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newTestService(h, fakeFetcher{err: errors.New("401 unauthorized")}, Capabilities{})

	sum, err := svc.Sync(ctx, wineJob())
	require.Error(t, err)
	assert.Equal(t, models.StateError, sum.State)

	status, err := svc.Status(ctx, "wine")
	require.NoError(t, err)
	assert.Equal(t, models.StateError, status.State)
	assert.Contains(t, status.Logs[len(status.Logs)-1], "401 unauthorized")
	assert.False(t, h.locks.IsHeld(ctx, "wine"))
}

func TestSyncRejectsJobWithoutSource(t *testing.T) {
	h := newHarness(t)
	svc := newTestService(h, fakeFetcher{}, Capabilities{})

	_, err := svc.Sync(context.Background(), models.Job{DBName: "wine"})
	assert.ErrorIs(t, err, models.ErrInvalidJob)
}

func TestReprocessClassifiesEligibleOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.products.Put("wine", storedProduct(1))
	out := storedProduct(2)
	out.StockStatus = models.OutOfStock
	h.products.Put("wine", out)

	classifier := &fakeClassifier{result: models.Classification{Category: []string{"יין אדום"}, Type: []string{}, SoftCategory: []string{}}}
	svc := newTestService(h, fakeFetcher{}, Capabilities{Classifier: classifier})

	sum, err := svc.Reprocess(ctx, models.Job{DBName: "wine", Vocabulary: testVocab})
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, sum.State)
	assert.Equal(t, 1, sum.Total)
	assert.Equal(t, 1, classifier.count())

	p1, err := h.products.FindByID(ctx, "wine", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"יין אדום"}, p1.Category)
	assert.Zero(t, h.products.Writes("wine", "p2"))
}

func TestReprocessStoppedEndsIdle(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for i := 1; i <= 10; i++ {
		h.products.Put("wine", storedProduct(i))
	}

	classifier := &fakeClassifier{
		result: models.EmptyClassification(),
		onCall: func(n int, _ ai.ClassifyInput) {
			if n == 2 {
				require.NoError(t, h.locks.Revoke(ctx, "wine"))
			}
		},
	}
	svc := newTestService(h, fakeFetcher{}, Capabilities{Classifier: classifier})

	sum, err := svc.Reprocess(ctx, models.Job{DBName: "wine", Vocabulary: testVocab})
	require.NoError(t, err)
	assert.True(t, sum.Stopped)
	assert.Equal(t, models.StateIdle, sum.State)

	status, err := svc.Status(ctx, "wine")
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, status.State)
	assert.True(t, status.Stopped)
}

func TestStartReprocessConflictsWithRunningJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	svc := newTestService(h, fakeFetcher{}, Capabilities{})

	other := lock.NewFileLock(filepath.Dir(h.locks.Path("wine")), time.Minute, zap.NewNop())
	require.NoError(t, other.Acquire(ctx, "wine"))
	defer other.Release(ctx, "wine")

	err := svc.StartReprocess(ctx, models.Job{DBName: "wine"})
	assert.ErrorIs(t, err, lock.ErrLocked)
}

func TestStartReprocessRunsInBackground(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.products.Put("wine", storedProduct(1))
	svc := newTestService(h, fakeFetcher{}, Capabilities{Classifier: &fakeClassifier{result: models.EmptyClassification()}})

	require.NoError(t, svc.StartReprocess(ctx, models.Job{DBName: "wine", Vocabulary: testVocab}))
	svc.Wait()

	status, err := svc.Status(ctx, "wine")
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, status.State)
	assert.ErrorIs(t, svc.Stop(ctx, "wine"), lock.ErrNotLocked)
}

func TestIngestSkipsUnchangedContent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	raw := models.RawProduct{ID: "p1", Title: "Red Wine", Description: "Dry red", Price: "40", StockStatus: "instock"}
	classifier := &fakeClassifier{result: models.EmptyClassification()}
	in := NewIngester(h.products, h.locks, h.sink, Capabilities{
		Classifier: classifier,
		Embedder:   fakeEmbedder{vector: []float32{1}},
	}, 2, zap.NewNop())

	res, err := in.Run(ctx, "wine", []models.RawProduct{raw, raw}, wineJob())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Enriched)

	raw.Price = "35"
	res, err = in.Run(ctx, "wine", []models.RawProduct{raw}, wineJob())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unchanged)
	assert.Equal(t, 1, classifier.count())

	p, err := h.products.FindByID(ctx, "wine", "p1")
	require.NoError(t, err)
	assert.Equal(t, 35.0, p.Price)
}

func TestIngestStopsBeforeSubmitting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	in := NewIngester(h.products, h.locks, h.sink, Capabilities{}, 2, zap.NewNop())
	res, err := in.Run(ctx, "wine", []models.RawProduct{{ID: "p1", Title: "Red Wine"}}, wineJob())
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Zero(t, h.products.Writes("wine", "p1"))
}

func TestSourceHashIgnoresPriceAndStock(t *testing.T) {
	a := models.RawProduct{ID: "p1", Title: "Red Wine", Price: "10", StockStatus: "instock"}
	b := a
	b.Price, b.StockStatus = "12", "outofstock"
	assert.Equal(t, sourceHash(a), sourceHash(b))

	b.Title = "Rosé"
	assert.NotEqual(t, sourceHash(a), sourceHash(b))
}

func softBackfillJob() models.Job {
	return models.Job{DBName: "wine", Vocabulary: testVocab, OnlyMissingSoftCategory: true}
}

func labeledProduct() models.Product {
	p := storedProduct(1)
	p.Category = []string{"יין אדום"}
	p.Type = []string{"כשר"}
	return p
}

func failureLines(lines []string) []string {
	var out []string
	for _, l := range lines {
		if strings.HasPrefix(l, "❌") {
			out = append(out, l)
		}
	}
	return out
}

func TestReprocessProviderFailureKeepsLabels(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.products.Put("wine", labeledProduct())

	ctrl := gomock.NewController(t)
	gen := aimock.NewMockGenerator(ctrl)
	gen.EXPECT().Generate(gomock.Any(), gomock.Any()).Return(ai.Result{Err: errors.New("503 model overloaded")})

	svc := newTestService(h, fakeFetcher{}, Capabilities{Classifier: ai.NewClassificationClient(gen, nil, zap.NewNop())})

	sum, err := svc.Reprocess(ctx, softBackfillJob())
	require.NoError(t, err)
	assert.Equal(t, models.StateDone, sum.State)
	assert.Equal(t, 1, sum.Total)

	failures := failureLines(sum.Logs)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "p1")

	p, err := h.products.FindByID(ctx, "wine", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"יין אדום"}, p.Category)
	assert.Equal(t, []string{"כשר"}, p.Type)
	assert.Nil(t, p.SoftCategory)
	assert.NotNil(t, p.CategoryTypeProcessedAt)
	assert.True(t, selector.ForJob(softBackfillJob()).Matches(*p))
}

func TestReprocessSoftBackfillWritesOnlySoftCategory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.products.Put("wine", labeledProduct())

	classifier := &fakeClassifier{result: models.Classification{
		Category:     []string{"יין לבן"},
		Type:         []string{},
		SoftCategory: []string{"מתנה"},
	}}
	svc := newTestService(h, fakeFetcher{}, Capabilities{Classifier: classifier})

	sum, err := svc.Reprocess(ctx, softBackfillJob())
	require.NoError(t, err)
	assert.Empty(t, failureLines(sum.Logs))

	p, err := h.products.FindByID(ctx, "wine", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"יין אדום"}, p.Category)
	assert.Equal(t, []string{"כשר"}, p.Type)
	assert.Equal(t, []string{"מתנה"}, p.SoftCategory)
	assert.False(t, selector.ForJob(softBackfillJob()).Matches(*p))
}

func TestIngestDegradedClassificationLeavesUnstamped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	raw := models.RawProduct{ID: "p1", Title: "Red Wine", Description: "Dry red", Price: "40", StockStatus: "instock"}
	in := NewIngester(h.products, h.locks, h.sink, Capabilities{
		Classifier: &fakeClassifier{result: models.DegradedClassification()},
		Embedder:   fakeEmbedder{vector: []float32{1}},
	}, 2, zap.NewNop())

	res, err := in.Run(ctx, "wine", []models.RawProduct{raw}, wineJob())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Enriched)

	p, err := h.products.FindByID(ctx, "wine", "p1")
	require.NoError(t, err)
	assert.Nil(t, p.Category)
	assert.Nil(t, p.CategoryTypeProcessedAt)
	assert.Equal(t, 40.0, p.Price)
	assert.True(t, selector.ForJob(models.Job{Mode: models.ModeText}).Matches(*p))
}

func TestIngestPoolBoundsConcurrency(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	var inFlight, peak atomic.Int32
	classifier := &fakeClassifier{
		result: models.EmptyClassification(),
		onCall: func(int, ai.ClassifyInput) {
			n := inFlight.Add(1)
			for {
				cur := peak.Load()
				if n <= cur || peak.CompareAndSwap(cur, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
		},
	}
	in := NewIngester(h.products, h.locks, h.sink, Capabilities{Classifier: classifier}, 2, zap.NewNop())

	var raws []models.RawProduct
	for i := 1; i <= 6; i++ {
		raws = append(raws, models.RawProduct{
			ID:          storedProduct(i).ID,
			Title:       storedProduct(i).Name,
			Description: "Dry red",
			Price:       "40",
			StockStatus: "instock",
		})
	}

	res, err := in.Run(ctx, "wine", raws, wineJob())
	require.NoError(t, err)
	assert.Equal(t, 6, res.Enriched)
	assert.Equal(t, 6, classifier.count())
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestIngestIsolatesPanickingProduct(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	classifier := &fakeClassifier{
		result: models.EmptyClassification(),
		onCall: func(_ int, in ai.ClassifyInput) {
			if in.ProductName == "Wine p2" {
				panic("provider exploded")
			}
		},
	}
	in := NewIngester(h.products, h.locks, h.sink, Capabilities{Classifier: classifier}, 2, zap.NewNop())

	var raws []models.RawProduct
	for i := 1; i <= 3; i++ {
		raws = append(raws, models.RawProduct{
			ID:          storedProduct(i).ID,
			Title:       storedProduct(i).Name,
			Description: "Dry red",
			Price:       "40",
			StockStatus: "instock",
		})
	}

	res, err := in.Run(ctx, "wine", raws, wineJob())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Enriched)
	assert.Zero(t, h.products.Writes("wine", "p2"))

	failures := failureLines(h.sink.Lines("wine"))
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "p2")
	assert.Contains(t, failures[0], "panic")
}

// blockingClassifier frena la primera clasificación hasta que se cierre release
func blockingClassifier() (c *fakeClassifier, started, release chan struct{}) {
	started, release = make(chan struct{}), make(chan struct{})
	c = &fakeClassifier{
		result: models.EmptyClassification(),
		onCall: func(n int, _ ai.ClassifyInput) {
			if n == 1 {
				close(started)
				<-release
			}
		},
	}
	return c, started, release
}

func TestShutdownStopsBackgroundRuns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for i := 1; i <= 5; i++ {
		h.products.Put("wine", storedProduct(i))
	}
	classifier, started, release := blockingClassifier()
	svc := newTestService(h, fakeFetcher{}, Capabilities{Classifier: classifier})

	require.NoError(t, svc.StartReprocess(ctx, models.Job{DBName: "wine", Vocabulary: testVocab}))
	<-started

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	result := make(chan error, 1)
	go func() { result <- svc.Shutdown(shutdownCtx) }()

	require.Eventually(t, func() bool { return !h.locks.IsHeld(ctx, "wine") }, time.Second, 5*time.Millisecond)
	close(release)
	require.NoError(t, <-result)

	assert.Equal(t, 1, classifier.count())
	status, err := svc.Status(ctx, "wine")
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, status.State)
	assert.True(t, status.Stopped)
}

func TestShutdownGivesUpAtDeadline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.products.Put("wine", storedProduct(1))
	classifier, started, release := blockingClassifier()
	svc := newTestService(h, fakeFetcher{}, Capabilities{Classifier: classifier})

	require.NoError(t, svc.StartReprocess(ctx, models.Job{DBName: "wine", Vocabulary: testVocab}))
	<-started

	shutdownCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Shutdown(shutdownCtx), context.DeadlineExceeded)

	close(release)
	svc.Wait()
}

func TestShutdownWithoutRunsReturnsImmediately(t *testing.T) {
	h := newHarness(t)
	svc := newTestService(h, fakeFetcher{}, Capabilities{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, svc.Shutdown(ctx))
}
