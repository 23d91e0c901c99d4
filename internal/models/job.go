package models

import (
	"errors"
	"fmt"
)

// SyncMode define cómo se reclasifican los productos
type SyncMode string

const (
	ModeText  SyncMode = "text"
	ModeImage SyncMode = "image"
)

// Platform identifica la API de origen del catálogo
type Platform string

const (
	PlatformShopify     Platform = "shopify"
	PlatformWooCommerce Platform = "woocommerce"
)

var ErrInvalidJob = errors.New("invalid job")

// SourceConfig son las credenciales y parámetros de la plataforma de origen
type SourceConfig struct {
	Platform        Platform `json:"platform" yaml:"platform"`
	BaseURL         string   `json:"baseUrl" yaml:"base_url"`
	AccessToken     string   `json:"accessToken,omitempty" yaml:"access_token"`
	ConsumerKey     string   `json:"consumerKey,omitempty" yaml:"consumer_key"`
	ConsumerSecret  string   `json:"consumerSecret,omitempty" yaml:"consumer_secret"`
	APIVersion      string   `json:"apiVersion,omitempty" yaml:"api_version"`
	PageSize        int      `json:"pageSize,omitempty" yaml:"page_size"`
	PriceMinorUnits bool     `json:"priceMinorUnits,omitempty" yaml:"price_minor_units"`
}

// Toggles activa la reescritura de cada familia de etiquetas al reprocesar
type Toggles struct {
	Categories     bool `json:"categories" yaml:"categories"`
	Types          bool `json:"types" yaml:"types"`
	SoftCategories bool `json:"softCategories" yaml:"soft_categories"`
}

// Effective devuelve los toggles a aplicar; sin ninguno activo se reescriben todas las familias
func (t Toggles) Effective() Toggles {
	if !t.Categories && !t.Types && !t.SoftCategories {
		return Toggles{Categories: true, Types: true, SoftCategories: true}
	}
	return t
}

// Job describe una corrida del pipeline para una tienda
type Job struct {
	DBName                  string       `json:"dbName" yaml:"db_name"`
	Source                  SourceConfig `json:"source" yaml:"source"`
	Vocabulary              Vocabulary   `json:"vocabulary" yaml:"vocabulary"`
	Mode                    SyncMode     `json:"mode" yaml:"mode"`
	Reprocess               Toggles      `json:"reprocess" yaml:"reprocess"`
	CategoryFilter          string       `json:"categoryFilter,omitempty" yaml:"category_filter"`
	OnlyMissingSoftCategory bool         `json:"onlyMissingSoftCategory,omitempty" yaml:"only_missing_soft_category"`
	RefetchOnReprocess      bool         `json:"refetchOnReprocess,omitempty" yaml:"refetch_on_reprocess"`
	Schedule                string       `json:"schedule,omitempty" yaml:"schedule"`
}

// HasSource indica si el job trae credenciales de catálogo
func (j *Job) HasSource() bool {
	return j.Source.Platform != "" && j.Source.BaseURL != ""
}

// Validate valida los campos requeridos del job
func (j *Job) Validate() error {
	if j.DBName == "" {
		return fmt.Errorf("%w: dbName is required", ErrInvalidJob)
	}
	if j.Mode == "" {
		j.Mode = ModeText
	}
	if j.Mode != ModeText && j.Mode != ModeImage {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidJob, j.Mode)
	}
	switch j.Source.Platform {
	case "", PlatformShopify, PlatformWooCommerce:
	default:
		return fmt.Errorf("%w: unknown platform %q", ErrInvalidJob, j.Source.Platform)
	}
	return nil
}
