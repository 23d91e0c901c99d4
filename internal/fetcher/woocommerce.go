package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"catalog-enricher/internal/metrics"
	"catalog-enricher/internal/models"
)

// WooFetcher pagina la REST API de WooCommerce por número de página
type WooFetcher struct {
	cfg models.SourceConfig
	t   *transport
}

func NewWooFetcher(cfg models.SourceConfig, t *transport) *WooFetcher {
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	return &WooFetcher{cfg: cfg, t: t}
}

func (f *WooFetcher) Name() string { return string(models.PlatformWooCommerce) }

type wooMeta struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type wooProduct struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Type             string `json:"type"`
	Permalink        string `json:"permalink"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
	SKU              string `json:"sku"`
	Price            string `json:"price"`
	RegularPrice     string `json:"regular_price"`
	SalePrice        string `json:"sale_price"`
	StockStatus      string `json:"stock_status"`
	StockQuantity    *int   `json:"stock_quantity"`
	Categories       []struct {
		Name string `json:"name"`
	} `json:"categories"`
	Images []struct {
		Src string `json:"src"`
	} `json:"images"`
	Attributes []struct {
		Name      string   `json:"name"`
		Variation bool     `json:"variation"`
		Options   []string `json:"options"`
	} `json:"attributes"`
	MetaData []wooMeta `json:"meta_data"`
}

type wooVariation struct {
	ID            int64  `json:"id"`
	SKU           string `json:"sku"`
	Price         string `json:"price"`
	RegularPrice  string `json:"regular_price"`
	SalePrice     string `json:"sale_price"`
	StockStatus   string `json:"stock_status"`
	StockQuantity *int   `json:"stock_quantity"`
	Attributes    []struct {
		Name   string `json:"name"`
		Option string `json:"option"`
	} `json:"attributes"`
}

func (f *WooFetcher) url(path string, page int) string {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(f.cfg.PageSize))
	q.Set("consumer_key", f.cfg.ConsumerKey)
	q.Set("consumer_secret", f.cfg.ConsumerSecret)
	return strings.TrimRight(f.cfg.BaseURL, "/") + "/wp-json/wc/v3/" + path + "?" + q.Encode()
}

// FetchAll recorre las páginas 1..N hasta una página vacía o N > X-WP-TotalPages
func (f *WooFetcher) FetchAll(ctx context.Context) ([]models.RawProduct, error) {
	var products []models.RawProduct

	for page := 1; ; page++ {
		var items []wooProduct
		header, err := f.t.doJSON(ctx, "GET", f.url("products", page), nil, nil, &items)
		if err != nil {
			return nil, fmt.Errorf("woocommerce page %d: %w", page, err)
		}
		metrics.FetchPage(f.Name())
		if len(items) == 0 {
			break
		}
		f.t.logger.Debug("page fetched", zap.Int("page", page), zap.Int("items", len(items)))

		for _, p := range items {
			raw := f.toRaw(p)
			if p.Type == "variable" {
				variants, err := f.fetchVariations(ctx, p.ID)
				if err != nil {
					return nil, fmt.Errorf("woocommerce variations of %d: %w", p.ID, err)
				}
				raw.Variants = variants
			}
			products = append(products, raw)
		}

		// sin header se sigue hasta una página vacía
		if totalPages, err := strconv.Atoi(header.Get("X-WP-TotalPages")); err == nil && page >= totalPages {
			break
		}
	}
	return products, nil
}

func (f *WooFetcher) fetchVariations(ctx context.Context, productID int64) ([]models.RawVariant, error) {
	var out []models.RawVariant
	for page := 1; ; page++ {
		var items []wooVariation
		header, err := f.t.doJSON(ctx, "GET", f.url(fmt.Sprintf("products/%d/variations", productID), page), nil, nil, &items)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return out, nil
		}
		for _, v := range items {
			out = append(out, wooVariant(v))
		}
		if tp, err := strconv.Atoi(header.Get("X-WP-TotalPages")); err == nil && page >= tp {
			return out, nil
		}
	}
}

func wooVariant(v wooVariation) models.RawVariant {
	rv := models.RawVariant{
		ID:       strconv.FormatInt(v.ID, 10),
		Price:    v.Price,
		Quantity: v.StockQuantity,
	}
	if v.SKU != "" {
		sku := v.SKU
		rv.SKU = &sku
	}
	if v.SalePrice != "" && v.RegularPrice != "" {
		rv.CompareAtPrice = v.RegularPrice
	}
	available := v.StockStatus != "outofstock"
	rv.Available = &available

	titles := make([]string, 0, len(v.Attributes))
	for _, a := range v.Attributes {
		rv.Options = append(rv.Options, models.Option{Name: a.Name, Value: a.Option})
		titles = append(titles, a.Option)
	}
	rv.Title = strings.Join(titles, " / ")
	return rv
}

func (f *WooFetcher) toRaw(p wooProduct) models.RawProduct {
	description := p.Description
	if strings.TrimSpace(description) == "" {
		description = p.ShortDescription
	}

	price := p.Price
	if price == "" {
		price = p.RegularPrice
	}

	raw := models.RawProduct{
		ID:                strconv.FormatInt(p.ID, 10),
		Title:             p.Name,
		Description:       description,
		URL:               p.Permalink,
		Price:             price,
		StockStatus:       p.StockStatus,
		PriceInMinorUnits: f.cfg.PriceMinorUnits,
		Metadata:          map[string]string{},
	}
	for _, img := range p.Images {
		raw.Images = append(raw.Images, img.Src)
	}
	for _, c := range p.Categories {
		raw.Categories = append(raw.Categories, c.Name)
	}
	for _, m := range p.MetaData {
		if m.Key == "" || strings.HasPrefix(m.Key, "_") {
			continue
		}
		if s, err := cast.ToStringE(m.Value); err == nil && strings.TrimSpace(s) != "" {
			raw.Metadata[m.Key] = s
		}
	}
	for _, a := range p.Attributes {
		if !a.Variation && len(a.Options) > 0 {
			raw.Metadata[a.Name] = strings.Join(a.Options, ", ")
		}
	}

	if p.Type != "variable" {
		v := models.RawVariant{ID: raw.ID, Title: p.Name, Price: price, Quantity: p.StockQuantity}
		if p.SKU != "" {
			sku := p.SKU
			v.SKU = &sku
		}
		if p.SalePrice != "" && p.RegularPrice != "" {
			v.CompareAtPrice = p.RegularPrice
		}
		for _, a := range p.Attributes {
			if len(a.Options) == 1 {
				v.Options = append(v.Options, models.Option{Name: a.Name, Value: a.Options[0]})
			}
		}
		raw.Variants = []models.RawVariant{v}
	}
	return raw
}
