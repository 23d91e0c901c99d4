package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"catalog-enricher/internal/models"
)

func testOptions() Options {
	return Options{
		Timeout: 2 * time.Second,
		Retry:   RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond},
		Logger:  zap.NewNop(),
	}
}

func shopifyPage(ids []string, next string) string {
	edges := ""
	for i, id := range ids {
		if i > 0 {
			edges += ","
		}
		edges += fmt.Sprintf(`{"node":{
			"id":"gid://shopify/Product/%s","title":"Product %s","handle":"product-%s",
			"productType":"Wine","vendor":"Golan","tags":["red","dry"],
			"descriptionHtml":"<p>Dry red</p>","availableForSale":true,
			"priceRange":{"minVariantPrice":{"amount":"89.90"}},
			"images":{"edges":[{"node":{"url":"https://cdn.example.com/%s.jpg"}}]},
			"collections":{"edges":[{"node":{"title":"Reds"}}]},
			"variants":{"edges":[{"node":{"id":"gid://shopify/ProductVariant/9%s","title":"750ml","sku":"SKU-%s",
				"availableForSale":true,"quantityAvailable":4,"price":{"amount":"89.90"},"compareAtPrice":null,
				"selectedOptions":[{"name":"Size","value":"750ml"}]}}]}
		}}`, id, id, id, id, id, id)
	}
	hasNext := next != ""
	cursor := "null"
	if hasNext {
		cursor = `"` + next + `"`
	}
	return fmt.Sprintf(`{"data":{"products":{"pageInfo":{"hasNextPage":%v,"endCursor":%s},"edges":[%s]}}}`, hasNext, cursor, edges)
}

func TestShopifyFetchAllFollowsCursor(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/2024-10/graphql.json", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("X-Shopify-Storefront-Access-Token"))

		var req graphQLRequest
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &req))

		n := calls.Add(1)
		if n == 1 {
			// first call fails with a transient status and is retried
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if req.Variables["after"] == nil {
			_, _ = io.WriteString(w, shopifyPage([]string{"1", "2"}, "c1"))
			return
		}
		assert.Equal(t, "c1", req.Variables["after"])
		_, _ = io.WriteString(w, shopifyPage([]string{"3"}, ""))
	}))
	defer srv.Close()

	f, err := New(models.SourceConfig{Platform: models.PlatformShopify, BaseURL: srv.URL, AccessToken: "tok"}, testOptions())
	require.NoError(t, err)

	products, err := f.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 3)
	assert.EqualValues(t, 3, calls.Load())

	p := products[0]
	assert.Equal(t, "1", p.ID)
	assert.Equal(t, srv.URL+"/products/product-1", p.URL)
	assert.Equal(t, []string{"Wine", "Reds"}, p.Categories)
	assert.Equal(t, "red, dry", p.Metadata["tags"])
	assert.Equal(t, true, p.StockStatus)
	require.Len(t, p.Variants, 1)
	assert.Equal(t, "91", p.Variants[0].ID)
	assert.Equal(t, "89.90", p.Variants[0].Price)
	assert.Equal(t, []models.Option{{Name: "Size", Value: "750ml"}}, p.Variants[0].Options)
}

func TestShopifyGraphQLErrorsAbort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"errors":[{"message":"Field 'foo' doesn't exist"}]}`)
	}))
	defer srv.Close()

	f, err := New(models.SourceConfig{Platform: models.PlatformShopify, BaseURL: srv.URL}, testOptions())
	require.NoError(t, err)

	_, err = f.FetchAll(context.Background())
	assert.ErrorContains(t, err, "Field 'foo' doesn't exist")
}

func TestShopifyStopsWithoutCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"products":{"pageInfo":{"hasNextPage":true,"endCursor":null},"edges":[]}}}`)
	}))
	defer srv.Close()

	f, err := New(models.SourceConfig{Platform: models.PlatformShopify, BaseURL: srv.URL}, testOptions())
	require.NoError(t, err)

	products, err := f.FetchAll(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, products)
}

func TestWooFetchAllPages(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ck", r.URL.Query().Get("consumer_key"))
		w.Header().Set("X-WP-TotalPages", "2")

		switch r.URL.Path {
		case "/wp-json/wc/v3/products":
			page := r.URL.Query().Get("page")
			pages = append(pages, page)
			if page == "1" {
				_, _ = io.WriteString(w, `[{"id":10,"name":"Runner","type":"variable","permalink":"https://shoes/runner",
					"description":"","short_description":"<b>Light</b> shoe","price":"120","stock_status":"instock",
					"categories":[{"name":"Shoes"}],"images":[{"src":"https://shoes/1.jpg"}],
					"attributes":[{"name":"Material","variation":false,"options":["Mesh"]}],
					"meta_data":[{"key":"_private","value":"x"},{"key":"weight_g","value":250}]}]`)
				return
			}
			_, _ = io.WriteString(w, `[{"id":11,"name":"Sock","type":"simple","price":"","regular_price":"9.50",
				"sale_price":"","stock_status":"onbackorder","sku":"S-1",
				"attributes":[{"name":"Color","variation":false,"options":["White"]}]}]`)
		case "/wp-json/wc/v3/products/10/variations":
			w.Header().Set("X-WP-TotalPages", "1")
			_, _ = io.WriteString(w, `[{"id":101,"price":"99","regular_price":"120","sale_price":"99","stock_status":"instock",
				"attributes":[{"name":"Size","option":"42"},{"name":"Color","option":"Black"}]}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f, err := New(models.SourceConfig{Platform: models.PlatformWooCommerce, BaseURL: srv.URL, ConsumerKey: "ck", ConsumerSecret: "cs"}, testOptions())
	require.NoError(t, err)

	products, err := f.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, pages, "stops at X-WP-TotalPages without an extra request")
	require.Len(t, products, 2)

	runner := products[0]
	assert.Equal(t, "10", runner.ID)
	assert.Equal(t, "<b>Light</b> shoe", runner.Description)
	assert.Equal(t, map[string]string{"weight_g": "250", "Material": "Mesh"}, runner.Metadata)
	require.Len(t, runner.Variants, 1)
	assert.Equal(t, "42 / Black", runner.Variants[0].Title)
	assert.Equal(t, "120", runner.Variants[0].CompareAtPrice)

	sock := products[1]
	assert.Equal(t, "9.50", sock.Price)
	assert.Equal(t, "onbackorder", sock.StockStatus)
	require.Len(t, sock.Variants, 1)
	assert.Equal(t, "S-1", *sock.Variants[0].SKU)
	assert.Equal(t, []models.Option{{Name: "Color", Value: "White"}}, sock.Variants[0].Options)
}

func TestWooEmptyPageStops(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	f, err := New(models.SourceConfig{Platform: models.PlatformWooCommerce, BaseURL: srv.URL}, testOptions())
	require.NoError(t, err)

	products, err := f.FetchAll(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, products)
}

func TestNewRejectsUnknownPlatform(t *testing.T) {
	_, err := New(models.SourceConfig{Platform: "magento", BaseURL: "https://x"}, testOptions())
	assert.ErrorIs(t, err, models.ErrInvalidJob)
}
