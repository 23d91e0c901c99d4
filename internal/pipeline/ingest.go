package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"catalog-enricher/internal/ai"
	"catalog-enricher/internal/lock"
	"catalog-enricher/internal/metrics"
	"catalog-enricher/internal/models"
	"catalog-enricher/internal/normalize"
	"catalog-enricher/internal/progress"
	"catalog-enricher/internal/repository"
)

const DefaultWorkers = 4

// IngestResult resume una ingesta completa
type IngestResult struct {
	Total     int
	Enriched  int
	Unchanged int
	Failed    int
	Stopped   bool
}

// Ingester enriquece el catálogo recién bajado con un pool de workers de ancho fijo.
// Cada worker es dueño de un producto distinto y solo comparte el upsert final.
type Ingester struct {
	store   repository.ProductStore
	locks   lock.Manager
	sink    *progress.Sink
	caps    Capabilities
	workers int
	logger  *zap.Logger
	now     func() time.Time
}

func NewIngester(store repository.ProductStore, locks lock.Manager, sink *progress.Sink, caps Capabilities, workers int, logger *zap.Logger) *Ingester {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.L()
	}
	return &Ingester{
		store:   store,
		locks:   locks,
		sink:    sink,
		caps:    caps,
		workers: workers,
		logger:  logger.Named("ingest"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run reparte los productos en el pool; el lock se verifica antes de cada envío,
// un worker que ya empezó termina su producto.
func (in *Ingester) Run(ctx context.Context, dbName string, raws []models.RawProduct, job models.Job) (IngestResult, error) {
	raws = dedupeByID(raws)
	res := IngestResult{Total: len(raws)}

	hashes, err := in.store.SourceHashes(ctx, dbName)
	if err != nil {
		in.logger.Warn("load source hashes failed, enriching everything", zap.String("db", dbName), zap.Error(err))
		hashes = map[string]string{}
	}

	pool, err := ants.NewPool(in.workers)
	if err != nil {
		return res, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	var (
		wg                          sync.WaitGroup
		done, enriched, same, fails atomic.Int64
	)
	finish := func(outcome string) {
		switch outcome {
		case "enriched":
			enriched.Add(1)
		case "unchanged":
			same.Add(1)
		default:
			fails.Add(1)
		}
		metrics.Product("ingest", outcome)
		in.sink.Tick(ctx, dbName, int(done.Add(1)), len(raws))
	}

	for _, raw := range raws {
		if ctx.Err() != nil || !in.locks.IsHeld(ctx, dbName) {
			res.Stopped = true
			in.sink.Append(ctx, dbName, "🛑 Stop requested, waiting for in-flight products")
			break
		}

		prev := hashes[raw.ID]
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			finish(in.ingestSafely(ctx, dbName, raw, job, prev))
		})
		if err != nil {
			wg.Done()
			in.sink.Append(ctx, dbName, fmt.Sprintf("❌ [%s] %s: %v", raw.ID, raw.Title, err))
			finish("error")
		}
	}
	wg.Wait()

	res.Enriched = int(enriched.Load())
	res.Unchanged = int(same.Load())
	res.Failed = int(fails.Load())
	return res, nil
}

func (in *Ingester) ingestSafely(ctx context.Context, dbName string, raw models.RawProduct, job models.Job, prevHash string) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			in.sink.Append(ctx, dbName, fmt.Sprintf("❌ [%s] %s: panic: %v", raw.ID, raw.Title, r))
			in.logger.Error("product panicked", zap.String("db", dbName), zap.String("product_id", raw.ID), zap.Any("panic", r))
			outcome = "error"
		}
	}()

	outcome, err := in.ingest(ctx, dbName, raw, job, prevHash)
	if err != nil {
		in.sink.Append(ctx, dbName, fmt.Sprintf("❌ [%s] %s: %v", raw.ID, raw.Title, err))
		in.logger.Error("product failed", zap.String("db", dbName), zap.String("product_id", raw.ID), zap.Error(err))
		return "error"
	}
	return outcome
}

func (in *Ingester) ingest(ctx context.Context, dbName string, raw models.RawProduct, job models.Job, prevHash string) (string, error) {
	now := in.now()
	update := ingestUpdate(raw, now)

	hash := sourceHash(raw)
	if prevHash != "" && prevHash == hash {
		// contenido igual: solo precio, stock y variantes
		if err := in.store.UpsertProduct(ctx, dbName, raw.ID, update); err != nil {
			return "", err
		}
		return "unchanged", nil
	}

	text := *update.Description
	description1 := text
	if in.caps.Describer != nil && (text != "" || len(raw.Images) > 0) {
		described, err := in.caps.Describer.DescribeWithVision(ctx, describeInput(raw.Title, text, raw.Metadata), raw.Images)
		if err != nil {
			in.logger.Warn("describe failed, using source description", zap.String("product_id", raw.ID), zap.Error(err))
		} else if described != "" {
			description1 = described
		}
	}
	if description1 != "" {
		update.Description1 = &description1
	}

	if in.caps.Embedder != nil && description1 != "" {
		if vector := in.caps.Embedder.Embed(ctx, raw.Title+"\n"+description1); vector != nil {
			update.Embedding = vector
			update.SourceHash = &hash
		}
	}

	if in.caps.Classifier != nil && description1 != "" {
		input := ai.ClassifyInput{
			Text:        description1,
			ProductName: raw.Title,
			Vocab:       job.Vocabulary,
			Variants:    update.Variants,
		}
		if job.Mode == models.ModeImage {
			input.ImageURLs = raw.Images
		}
		labels := in.caps.Classifier.Classify(ctx, input)
		if labels.Degraded {
			// sin sello: el próximo reproceso incremental lo vuelve a tomar
			in.sink.Append(ctx, dbName, fmt.Sprintf("⚠️ [%s] %s: %v", raw.ID, raw.Title, errLabelsKept))
		} else {
			applyLabels(&update, labels, models.Toggles{Categories: true, Types: true, SoftCategories: true})
			update.CategoryTypeProcessedAt = &now
		}
	}

	if err := in.store.UpsertProduct(ctx, dbName, raw.ID, update); err != nil {
		return "", err
	}
	return "enriched", nil
}

// ingestUpdate son los campos que vienen directo de la plataforma
func ingestUpdate(raw models.RawProduct, now time.Time) models.ProductUpdate {
	n := normalize.Normalize(raw)
	price := normalize.ProductPrice(raw, n)
	stock := normalize.NormalizeStockStatus(raw.StockStatus)
	name := raw.Title
	description := normalize.HTMLToText(raw.Description)

	u := models.ProductUpdate{
		Name:             &name,
		Description:      &description,
		Price:            &price,
		StockStatus:      &stock,
		Variants:         n.Variants,
		Sizes:            n.Sizes,
		Colors:           n.Colors,
		SourceCategories: raw.Categories,
		Metadata:         raw.Metadata,
		FetchedAt:        &now,
	}
	if raw.URL != "" {
		url := raw.URL
		u.URL = &url
	}
	if len(raw.Images) > 0 {
		image := raw.Images[0]
		u.Image = &image
		u.Images = raw.Images
	}
	return u
}

func describeInput(title, text string, meta map[string]string) string {
	var b strings.Builder
	b.WriteString(title)
	if text != "" {
		b.WriteString("\n")
		b.WriteString(text)
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, meta[k])
	}
	return b.String()
}

// sourceHash resume el contenido que alimenta a la IA; precio y stock quedan fuera
func sourceHash(raw models.RawProduct) string {
	data, _ := json.Marshal(struct {
		Title       string            `json:"t"`
		Description string            `json:"d"`
		Images      []string          `json:"i"`
		Categories  []string          `json:"c"`
		Metadata    map[string]string `json:"m"`
	}{raw.Title, raw.Description, raw.Images, raw.Categories, raw.Metadata})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func dedupeByID(raws []models.RawProduct) []models.RawProduct {
	out := make([]models.RawProduct, 0, len(raws))
	seen := make(map[string]struct{}, len(raws))
	for _, r := range raws {
		if r.ID == "" {
			continue
		}
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
