package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catalog-enricher/internal/ai"
	"catalog-enricher/internal/lock"
	"catalog-enricher/internal/models"
	"catalog-enricher/internal/progress"
	"catalog-enricher/internal/repository"
)

var testVocab = models.Vocabulary{
	Categories:     []string{"יין אדום", "יין לבן"},
	Types:          []string{"כשר"},
	SoftCategories: []string{"מתנה"},
}

// fakeClassifier devuelve etiquetas fijas y permite enganchar un callback por llamada
type fakeClassifier struct {
	mu     sync.Mutex
	calls  []string
	inputs []ai.ClassifyInput
	result models.Classification
	onCall func(n int, in ai.ClassifyInput)
}

func (f *fakeClassifier) Classify(_ context.Context, in ai.ClassifyInput) models.Classification {
	f.mu.Lock()
	f.calls = append(f.calls, in.ProductName)
	f.inputs = append(f.inputs, in)
	n := len(f.calls)
	f.mu.Unlock()
	if f.onCall != nil {
		f.onCall(n, in)
	}
	return f.result
}

func (f *fakeClassifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeEmbedder struct{ vector []float32 }

func (f fakeEmbedder) Embed(context.Context, string) []float32 { return f.vector }

func storedProduct(i int) models.Product {
	id := fmt.Sprintf("p%d", i)
	return models.Product{
		ID:          id,
		Name:        "Wine " + id,
		Description: "<p>Dry red wine " + id + "</p>",
		StockStatus: models.InStock,
		Embedding:   []float32{0.1, 0.2},
		Price:       50,
	}
}

type harness struct {
	products *repository.MemoryProductStore
	statuses *repository.MemoryStatusStore
	sink     *progress.Sink
	locks    *lock.FileLock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	statuses := repository.NewMemoryStatusStore()
	return &harness{
		products: repository.NewMemoryProductStore(),
		statuses: statuses,
		sink:     progress.NewSink(statuses, 100, zap.NewNop()),
		locks:    lock.NewFileLock(t.TempDir(), time.Minute, zap.NewNop()),
	}
}

func TestBatchIsolatesFailingProduct(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	var eligible []models.Product
	fresh := map[string]models.RawProduct{}
	for i := 1; i <= 5; i++ {
		p := storedProduct(i)
		h.products.Put("wine", p)
		eligible = append(eligible, p)
		fresh[p.ID] = models.RawProduct{
			ID:          p.ID,
			Title:       p.Name,
			Price:       "75.50",
			StockStatus: "instock",
			URL:         "https://shop.example/" + p.ID,
			Images:      []string{"https://cdn.example/" + p.ID + ".jpg"},
		}
	}

	classifier := &fakeClassifier{
		result: models.Classification{Category: []string{"יין אדום"}, Type: []string{}, SoftCategory: []string{}},
		onCall: func(_ int, in ai.ClassifyInput) {
			if in.ProductName == "Wine p3" {
				panic("provider exploded")
			}
		},
	}
	b := NewBatchProcessor(h.products, h.locks, h.sink, Capabilities{Classifier: classifier}, zap.NewNop())

	lines, outcome := b.Run(ctx, "wine", eligible, models.Job{DBName: "wine", Mode: models.ModeText}, fresh)
	assert.Equal(t, OutcomeDone, outcome)

	var failures []string
	for _, l := range lines {
		if strings.HasPrefix(l, "❌") {
			failures = append(failures, l)
		}
	}
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0], "p3")
	assert.Equal(t, 5, classifier.count())

	p3, err := h.products.FindByID(ctx, "wine", "p3")
	require.NoError(t, err)
	assert.Equal(t, 75.5, p3.Price)
	assert.Equal(t, "https://cdn.example/p3.jpg", p3.Image)
	assert.Equal(t, "https://shop.example/p3", p3.URL)
	assert.NotNil(t, p3.CategoryTypeProcessedAt)
	assert.Nil(t, p3.Category)

	p4, err := h.products.FindByID(ctx, "wine", "p4")
	require.NoError(t, err)
	assert.Equal(t, []string{"יין אדום"}, p4.Category)
	assert.Equal(t, []string{}, p4.SoftCategory)
}

func TestBatchStopsWhenLockRevoked(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	var eligible []models.Product
	for i := 1; i <= 10; i++ {
		p := storedProduct(i)
		h.products.Put("wine", p)
		eligible = append(eligible, p)
	}

	classifier := &fakeClassifier{
		result: models.EmptyClassification(),
		onCall: func(n int, _ ai.ClassifyInput) {
			if n == 2 {
				require.NoError(t, h.locks.Revoke(ctx, "wine"))
			}
		},
	}
	b := NewBatchProcessor(h.products, h.locks, h.sink, Capabilities{Classifier: classifier}, zap.NewNop())

	lines, outcome := b.Run(ctx, "wine", eligible, models.Job{DBName: "wine", Mode: models.ModeText}, nil)
	assert.Equal(t, OutcomeStopped, outcome)
	assert.Equal(t, "🛑 Stop requested, 2/10 products processed", lines[len(lines)-1])

	writes := 0
	for _, p := range eligible {
		writes += h.products.Writes("wine", p.ID)
	}
	assert.Equal(t, 2, writes)
}

func TestBatchSkipsProductWithoutDescription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	p := storedProduct(1)
	p.Description = "   "
	h.products.Put("wine", p)

	classifier := &fakeClassifier{result: models.EmptyClassification()}
	b := NewBatchProcessor(h.products, h.locks, h.sink, Capabilities{Classifier: classifier}, zap.NewNop())

	lines, outcome := b.Run(ctx, "wine", []models.Product{p}, models.Job{DBName: "wine"}, nil)
	assert.Equal(t, OutcomeDone, outcome)
	assert.Contains(t, lines[0], "no description")
	assert.Zero(t, classifier.count())

	got, err := h.products.FindByID(ctx, "wine", "p1")
	require.NoError(t, err)
	assert.NotNil(t, got.CategoryTypeProcessedAt)
}

func TestBatchRespectsToggles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	p := storedProduct(1)
	p.Category = []string{"יין לבן"}
	h.products.Put("wine", p)

	classifier := &fakeClassifier{result: models.Classification{
		Category:     []string{"יין אדום"},
		Type:         []string{"כשר"},
		SoftCategory: []string{"מתנה"},
	}}
	b := NewBatchProcessor(h.products, h.locks, h.sink, Capabilities{Classifier: classifier}, zap.NewNop())

	job := models.Job{DBName: "wine", Reprocess: models.Toggles{SoftCategories: true}}
	_, outcome := b.Run(ctx, "wine", []models.Product{p}, job, nil)
	assert.Equal(t, OutcomeDone, outcome)

	got, err := h.products.FindByID(ctx, "wine", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"יין לבן"}, got.Category)
	assert.Nil(t, got.Type)
	assert.Equal(t, []string{"מתנה"}, got.SoftCategory)
}

func TestBatchWithoutClassifierRefreshesOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	p := storedProduct(1)
	p.Variants = []models.Variant{{ID: "v1", Price: 10, Options: []models.Option{{Name: "Size", Value: "750ml"}}}}
	h.products.Put("wine", p)

	b := NewBatchProcessor(h.products, h.locks, h.sink, Capabilities{}, zap.NewNop())
	lines, outcome := b.Run(ctx, "wine", []models.Product{p}, models.Job{DBName: "wine"}, nil)
	assert.Equal(t, OutcomeDone, outcome)
	assert.Contains(t, lines[0], "Classification unavailable")

	got, err := h.products.FindByID(ctx, "wine", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"750ml"}, got.Sizes)
	assert.NotNil(t, got.CategoryTypeProcessedAt)
	assert.Nil(t, got.Category)
}

func TestBatchImageModeUsesFreshImages(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	enriched := "Deep ruby red with cherry notes"
	p1 := storedProduct(1)
	p1.Description1 = &enriched
	p1.Images = []string{"https://cdn.example/p1-old.jpg"}
	p2 := storedProduct(2)
	p2.Images = []string{"https://cdn.example/p2.jpg"}
	h.products.Put("wine", p1)
	h.products.Put("wine", p2)

	fresh := map[string]models.RawProduct{
		"p1": {ID: "p1", Title: p1.Name, Price: "60", StockStatus: "instock", Images: []string{"https://cdn.example/p1-new.jpg"}},
	}

	classifier := &fakeClassifier{result: models.Classification{Category: []string{"יין אדום"}, Type: []string{}, SoftCategory: []string{}}}
	b := NewBatchProcessor(h.products, h.locks, h.sink, Capabilities{Classifier: classifier}, zap.NewNop())

	job := models.Job{DBName: "wine", Mode: models.ModeImage, Vocabulary: testVocab}
	_, outcome := b.Run(ctx, "wine", []models.Product{p1, p2}, job, fresh)
	assert.Equal(t, OutcomeDone, outcome)

	require.Len(t, classifier.inputs, 2)
	assert.Equal(t, enriched, classifier.inputs[0].Text)
	assert.Equal(t, []string{"https://cdn.example/p1-new.jpg"}, classifier.inputs[0].ImageURLs)
	assert.Equal(t, testVocab, classifier.inputs[0].Vocab)
	assert.Equal(t, "Dry red wine p2", classifier.inputs[1].Text)
	assert.Equal(t, []string{"https://cdn.example/p2.jpg"}, classifier.inputs[1].ImageURLs)
}

func TestBatchDegradedClassificationKeepsLabels(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.locks.Acquire(ctx, "wine"))
	defer h.locks.Release(ctx, "wine")

	p := storedProduct(1)
	p.Category = []string{"יין אדום"}
	p.Type = []string{"כשר"}
	h.products.Put("wine", p)

	classifier := &fakeClassifier{result: models.DegradedClassification()}
	b := NewBatchProcessor(h.products, h.locks, h.sink, Capabilities{Classifier: classifier}, zap.NewNop())

	lines, outcome := b.Run(ctx, "wine", []models.Product{p}, models.Job{DBName: "wine", Vocabulary: testVocab}, nil)
	assert.Equal(t, OutcomeDone, outcome)
	assert.True(t, strings.HasPrefix(lines[0], "❌ [p1]"))

	got, err := h.products.FindByID(ctx, "wine", "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"יין אדום"}, got.Category)
	assert.Equal(t, []string{"כשר"}, got.Type)
	assert.Nil(t, got.SoftCategory)
	assert.NotNil(t, got.CategoryTypeProcessedAt)
}

func TestLabelToggles(t *testing.T) {
	all := models.Toggles{Categories: true, Types: true, SoftCategories: true}
	assert.Equal(t, all, labelToggles(models.Job{}))
	assert.Equal(t, models.Toggles{Types: true}, labelToggles(models.Job{Reprocess: models.Toggles{Types: true}}))
	assert.Equal(t, models.Toggles{SoftCategories: true}, labelToggles(models.Job{OnlyMissingSoftCategory: true, Reprocess: all}))
}
