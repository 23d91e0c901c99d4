package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"catalog-enricher/internal/ai"
	"catalog-enricher/internal/lock"
	"catalog-enricher/internal/metrics"
	"catalog-enricher/internal/models"
	"catalog-enricher/internal/normalize"
	"catalog-enricher/internal/progress"
	"catalog-enricher/internal/repository"
)

// errLabelsKept: el clasificador degradó y las etiquetas guardadas no se tocan
var errLabelsKept = errors.New("classification unavailable, stored labels kept")

// RunOutcome indica cómo terminó una pasada
type RunOutcome int

const (
	OutcomeDone RunOutcome = iota
	OutcomeStopped
)

func (o RunOutcome) String() string {
	if o == OutcomeStopped {
		return "stopped"
	}
	return "done"
}

// BatchProcessor reprocesa secuencialmente los productos elegibles.
// Antes de cada producto verifica el lock; si desapareció, corta limpio.
type BatchProcessor struct {
	store  repository.ProductStore
	locks  lock.Manager
	sink   *progress.Sink
	caps   Capabilities
	logger *zap.Logger
	now    func() time.Time
}

func NewBatchProcessor(store repository.ProductStore, locks lock.Manager, sink *progress.Sink, caps Capabilities, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.L()
	}
	return &BatchProcessor{
		store:  store,
		locks:  locks,
		sink:   sink,
		caps:   caps,
		logger: logger.Named("batch"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run procesa eligible en orden. fresh trae los datos recién bajados de la plataforma por id (puede ser nil).
func (b *BatchProcessor) Run(ctx context.Context, dbName string, eligible []models.Product, job models.Job, fresh map[string]models.RawProduct) ([]string, RunOutcome) {
	var lines []string
	logf := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		lines = append(lines, line)
		b.sink.Append(ctx, dbName, line)
	}

	if b.caps.Classifier == nil {
		logf("⚠️ Classification unavailable, refreshing variants and stamps only")
	}

	total := len(eligible)
	for i, p := range eligible {
		if ctx.Err() != nil || !b.locks.IsHeld(ctx, dbName) {
			logf("🛑 Stop requested, %d/%d products processed", i, total)
			return lines, OutcomeStopped
		}

		outcome, err := b.processSafely(ctx, dbName, p, job, fresh)
		switch {
		case err != nil:
			logf("❌ [%s] %s: %v", p.ID, p.Name, err)
			b.logger.Error("product failed", zap.String("db", dbName), zap.String("product_id", p.ID), zap.Error(err))
			metrics.Product("reprocess", "error")
		default:
			logf("%s", outcome)
			metrics.Product("reprocess", "ok")
		}
		b.sink.Tick(ctx, dbName, i+1, total)
	}

	logf("✅ Reprocess finished: %d products", total)
	return lines, OutcomeDone
}

// processSafely aísla el producto: un panic o error no corta el lote
func (b *BatchProcessor) processSafely(ctx context.Context, dbName string, p models.Product, job models.Job, fresh map[string]models.RawProduct) (line string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return b.process(ctx, dbName, p, job, fresh)
}

func (b *BatchProcessor) process(ctx context.Context, dbName string, p models.Product, job models.Job, fresh map[string]models.RawProduct) (string, error) {
	now := b.now()
	raw, hasFresh := fresh[p.ID]
	update := refreshUpdate(p, raw, hasFresh)
	update.CategoryTypeProcessedAt = &now

	text := enrichableText(p)
	if text == "" {
		if err := b.store.UpsertProduct(ctx, dbName, p.ID, update); err != nil {
			return "", err
		}
		return fmt.Sprintf("⏭️ [%s] %s: no description, stamped", p.ID, p.Name), nil
	}

	var (
		labels   models.Classification
		classErr error
	)
	if b.caps.Classifier != nil {
		labels, classErr = b.classify(ctx, p, job, update, raw, hasFresh, text)
		if classErr == nil && labels.Degraded {
			classErr = errLabelsKept
		}
		if classErr == nil {
			applyLabels(&update, labels, labelToggles(job))
		}
	}

	// los campos no clasificatorios y el sello se escriben aunque falle la clasificación
	if err := b.store.UpsertProduct(ctx, dbName, p.ID, update); err != nil {
		return "", err
	}
	if classErr != nil {
		return "", classErr
	}
	if b.caps.Classifier == nil {
		return fmt.Sprintf("🔄 [%s] %s: refreshed", p.ID, p.Name), nil
	}
	return fmt.Sprintf("🏷️ [%s] %s → category=%v type=%v softCategory=%v",
		p.ID, p.Name, labels.Category, labels.Type, labels.SoftCategory), nil
}

// classify corre la rama de visión o de texto; un panic del cliente vuelve como error
func (b *BatchProcessor) classify(ctx context.Context, p models.Product, job models.Job, update models.ProductUpdate, raw models.RawProduct, hasFresh bool, text string) (c models.Classification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classification panic: %v", r)
		}
	}()

	in := ai.ClassifyInput{
		ProductName: p.Name,
		Vocab:       job.Vocabulary,
		Variants:    update.Variants,
	}

	if job.Mode == models.ModeImage {
		in.Text = text
		in.ImageURLs = p.Images
		if hasFresh && len(raw.Images) > 0 {
			in.ImageURLs = raw.Images
		}
		return b.caps.Classifier.Classify(ctx, in), nil
	}

	meta, cats := p.Metadata, p.SourceCategories
	if hasFresh {
		meta, cats = raw.Metadata, raw.Categories
	}
	in.Text = b.enrichedText(ctx, normalize.HTMLToText(p.Description), meta, cats)
	if in.Text == "" {
		in.Text = text
	}
	return b.caps.Classifier.Classify(ctx, in), nil
}

// enrichedText concatena descripción, resumen de metadata y categorías de origen
func (b *BatchProcessor) enrichedText(ctx context.Context, description string, meta map[string]string, categories []string) string {
	parts := []string{}
	if description != "" {
		parts = append(parts, description)
	}

	if b.caps.Describer != nil && len(meta) > 0 {
		summary, err := b.caps.Describer.SummarizeMetadata(ctx, meta)
		if err != nil {
			b.logger.Debug("metadata summary failed", zap.Error(err))
			summary = ""
		}
		if summary != "" {
			parts = append(parts, summary)
		}
	}
	if len(categories) > 0 {
		parts = append(parts, "Categories: "+strings.Join(categories, ", "))
	}
	return strings.Join(parts, "\n")
}

// enrichableText: la descripción enriquecida, o la descripción original sin HTML
func enrichableText(p models.Product) string {
	if p.HasEnrichedDescription() {
		return strings.TrimSpace(*p.Description1)
	}
	return normalize.HTMLToText(p.Description)
}

// refreshUpdate renormaliza las variantes y, si hay datos frescos, precio, imagen y url
func refreshUpdate(p models.Product, raw models.RawProduct, hasFresh bool) models.ProductUpdate {
	var u models.ProductUpdate

	if !hasFresh {
		raw = models.RawProduct{ID: p.ID}
		for _, v := range p.Variants {
			raw.Variants = append(raw.Variants, v.Raw())
		}
		n := normalize.Normalize(raw)
		u.Variants, u.Sizes, u.Colors = n.Variants, n.Sizes, n.Colors
		return u
	}

	n := normalize.Normalize(raw)
	price := normalize.ProductPrice(raw, n)
	stock := normalize.NormalizeStockStatus(raw.StockStatus)
	u.Variants, u.Sizes, u.Colors = n.Variants, n.Sizes, n.Colors
	u.Price = &price
	u.StockStatus = &stock
	if raw.URL != "" {
		u.URL = &raw.URL
	}
	if len(raw.Images) > 0 {
		image := raw.Images[0]
		u.Image = &image
		u.Images = raw.Images
	}
	return u
}

// labelToggles: la pasada de soft categories faltantes solo escribe softCategory
func labelToggles(job models.Job) models.Toggles {
	if job.OnlyMissingSoftCategory {
		return models.Toggles{SoftCategories: true}
	}
	return job.Reprocess.Effective()
}

// applyLabels escribe solo las familias habilitadas
func applyLabels(u *models.ProductUpdate, c models.Classification, t models.Toggles) {
	if t.Categories {
		u.Category = nonNil(c.Category)
	}
	if t.Types {
		u.Type = nonNil(c.Type)
	}
	if t.SoftCategories {
		u.SoftCategory = nonNil(c.SoftCategory)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
