package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"catalog-enricher/internal/metrics"
	"catalog-enricher/internal/models"
)

const defaultShopifyAPIVersion = "2024-10"

const shopifyProductsQuery = `query Products($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    pageInfo { hasNextPage endCursor }
    edges {
      node {
        id
        title
        handle
        vendor
        productType
        tags
        onlineStoreUrl
        descriptionHtml
        availableForSale
        priceRange { minVariantPrice { amount } }
        images(first: 10) { edges { node { url } } }
        collections(first: 10) { edges { node { title } } }
        variants(first: 100) {
          edges {
            node {
              id
              title
              sku
              availableForSale
              quantityAvailable
              price { amount }
              compareAtPrice { amount }
              selectedOptions { name value }
            }
          }
        }
      }
    }
  }
}`

// ShopifyFetcher pagina la Storefront GraphQL API por cursor
type ShopifyFetcher struct {
	cfg models.SourceConfig
	t   *transport
}

func NewShopifyFetcher(cfg models.SourceConfig, t *transport) *ShopifyFetcher {
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultShopifyAPIVersion
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 250 {
		cfg.PageSize = 50
	}
	return &ShopifyFetcher{cfg: cfg, t: t}
}

func (f *ShopifyFetcher) Name() string { return string(models.PlatformShopify) }

func (f *ShopifyFetcher) endpoint() string {
	base := strings.TrimRight(f.cfg.BaseURL, "/")
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	return fmt.Sprintf("%s/api/%s/graphql.json", base, f.cfg.APIVersion)
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type money struct {
	Amount string `json:"amount"`
}

type shopifyVariant struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	SKU               *string `json:"sku"`
	AvailableForSale  *bool   `json:"availableForSale"`
	QuantityAvailable *int    `json:"quantityAvailable"`
	Price             *money  `json:"price"`
	CompareAtPrice    *money  `json:"compareAtPrice"`
	SelectedOptions   []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"selectedOptions"`
}

type shopifyProduct struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Handle           string   `json:"handle"`
	Vendor           string   `json:"vendor"`
	ProductType      string   `json:"productType"`
	Tags             []string `json:"tags"`
	OnlineStoreURL   *string  `json:"onlineStoreUrl"`
	DescriptionHTML  string   `json:"descriptionHtml"`
	AvailableForSale bool     `json:"availableForSale"`
	PriceRange       struct {
		MinVariantPrice money `json:"minVariantPrice"`
	} `json:"priceRange"`
	Images struct {
		Edges []struct {
			Node struct {
				URL string `json:"url"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"images"`
	Collections struct {
		Edges []struct {
			Node struct {
				Title string `json:"title"`
			} `json:"node"`
		} `json:"edges"`
	} `json:"collections"`
	Variants struct {
		Edges []struct {
			Node shopifyVariant `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

type shopifyProductsResponse struct {
	Data struct {
		Products struct {
			PageInfo struct {
				HasNextPage bool    `json:"hasNextPage"`
				EndCursor   *string `json:"endCursor"`
			} `json:"pageInfo"`
			Edges []struct {
				Node shopifyProduct `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

// FetchAll sigue pidiendo páginas mientras hasNextPage sea verdadero
func (f *ShopifyFetcher) FetchAll(ctx context.Context) ([]models.RawProduct, error) {
	var (
		products []models.RawProduct
		cursor   *string
	)
	headers := map[string]string{"X-Shopify-Storefront-Access-Token": f.cfg.AccessToken}

	for page := 1; ; page++ {
		body, err := json.Marshal(graphQLRequest{
			Query:     shopifyProductsQuery,
			Variables: map[string]any{"first": f.cfg.PageSize, "after": cursor},
		})
		if err != nil {
			return nil, err
		}

		var resp shopifyProductsResponse
		if _, err := f.t.doJSON(ctx, "POST", f.endpoint(), body, headers, &resp); err != nil {
			return nil, fmt.Errorf("shopify page %d: %w", page, err)
		}
		if len(resp.Errors) > 0 {
			return nil, fmt.Errorf("shopify page %d: %w", page, graphQLErrors(resp.Errors))
		}
		metrics.FetchPage(f.Name())

		conn := resp.Data.Products
		for _, edge := range conn.Edges {
			products = append(products, f.toRaw(edge.Node))
		}
		f.t.logger.Debug("page fetched", zap.Int("page", page), zap.Int("items", len(conn.Edges)))

		if !conn.PageInfo.HasNextPage {
			break
		}
		if conn.PageInfo.EndCursor == nil || *conn.PageInfo.EndCursor == "" {
			f.t.logger.Warn("hasNextPage without endCursor, stopping", zap.Int("page", page))
			break
		}
		cursor = conn.PageInfo.EndCursor
	}
	return products, nil
}

func graphQLErrors(errs []graphQLError) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return errors.New("graphql: " + strings.Join(msgs, "; "))
}

func (f *ShopifyFetcher) toRaw(p shopifyProduct) models.RawProduct {
	raw := models.RawProduct{
		ID:                gidTail(p.ID),
		Title:             p.Title,
		Description:       p.DescriptionHTML,
		Price:             p.PriceRange.MinVariantPrice.Amount,
		StockStatus:       p.AvailableForSale,
		PriceInMinorUnits: f.cfg.PriceMinorUnits,
		Metadata:          map[string]string{},
	}

	if p.OnlineStoreURL != nil && *p.OnlineStoreURL != "" {
		raw.URL = *p.OnlineStoreURL
	} else if p.Handle != "" {
		raw.URL = strings.TrimRight(f.cfg.BaseURL, "/") + "/products/" + p.Handle
	}

	for _, e := range p.Images.Edges {
		raw.Images = append(raw.Images, e.Node.URL)
	}
	if p.ProductType != "" {
		raw.Categories = append(raw.Categories, p.ProductType)
		raw.Metadata["productType"] = p.ProductType
	}
	for _, e := range p.Collections.Edges {
		raw.Categories = append(raw.Categories, e.Node.Title)
	}
	if p.Vendor != "" {
		raw.Metadata["vendor"] = p.Vendor
	}
	if len(p.Tags) > 0 {
		raw.Metadata["tags"] = strings.Join(p.Tags, ", ")
	}

	for _, e := range p.Variants.Edges {
		v := e.Node
		rv := models.RawVariant{
			ID:        gidTail(v.ID),
			Title:     v.Title,
			SKU:       v.SKU,
			Available: v.AvailableForSale,
			Quantity:  v.QuantityAvailable,
		}
		if v.Price != nil {
			rv.Price = v.Price.Amount
		}
		if v.CompareAtPrice != nil {
			rv.CompareAtPrice = v.CompareAtPrice.Amount
		}
		for _, o := range v.SelectedOptions {
			rv.Options = append(rv.Options, models.Option{Name: o.Name, Value: o.Value})
		}
		raw.Variants = append(raw.Variants, rv)
	}
	return raw
}

// gidTail convierte gid://shopify/Product/123 en 123
func gidTail(gid string) string {
	if i := strings.LastIndexByte(gid, '/'); i >= 0 && i < len(gid)-1 {
		return gid[i+1:]
	}
	return gid
}
