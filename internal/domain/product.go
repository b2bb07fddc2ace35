package domain

import "time"

// ProductStatus is the lifecycle state of a catalog product.
type ProductStatus string

const (
	ProductStatusDraft     ProductStatus = "draft"
	ProductStatusProposed  ProductStatus = "proposed"
	ProductStatusPublished ProductStatus = "published"
	ProductStatusRejected  ProductStatus = "rejected"
)

// Eligibility is the minimal row the collector needs to classify an ID.
// Status is empty for entities without a publication lifecycle.
type Eligibility struct {
	ID        string
	Status    string
	DeletedAt *time.Time
}

// ProductRecord is a product as loaded from the system of record, with the
// relations the search document needs.
type ProductRecord struct {
	ID             string
	Title          string
	Subtitle       string
	Handle         string
	Description    string
	Status         ProductStatus
	Thumbnail      string
	BasePrice      int64
	Currency       string
	Type           *ProductType
	Tags           []ProductTag
	Categories     []Category
	Collection     *Collection
	Brand          *Brand
	Variants       []Variant
	StockLocations []StockLocationRecord
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

type ProductType struct {
	ID    string
	Value string
}

type ProductTag struct {
	ID    string
	Value string
}

type Category struct {
	ID     string
	Name   string
	Handle string
}

type Collection struct {
	ID     string
	Title  string
	Handle string
}

type Brand struct {
	ID   string
	Name string
}

type Variant struct {
	ID    string
	Title string
	SKU   string
	Price int64
}

// StockLocationRecord is a warehouse holding inventory for a product.
type StockLocationRecord struct {
	ID          string
	Name        string
	CountryCode string
}

// ProductDocument is the flattened product stored in the products index.
type ProductDocument struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Subtitle       string             `json:"subtitle,omitempty"`
	Handle         string             `json:"handle"`
	Description    string             `json:"description,omitempty"`
	Thumbnail      string             `json:"thumbnail,omitempty"`
	BasePrice      int64              `json:"base_price"`
	Currency       string             `json:"currency,omitempty"`
	Type           *ValueDocument     `json:"type,omitempty"`
	Tags           []ValueDocument    `json:"tags"`
	Categories     []CategoryDocument `json:"categories"`
	Collection     *CollectionDoc     `json:"collection,omitempty"`
	Brand          string             `json:"brand,omitempty"`
	Variants       []VariantDocument  `json:"variants"`
	StockLocations []LocationDocument `json:"stock_locations"`
	Countries      []string           `json:"countries"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// DocumentID implements Document.
func (d *ProductDocument) DocumentID() string { return d.ID }

type ValueDocument struct {
	Value string `json:"value"`
}

type CategoryDocument struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CollectionDoc struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type VariantDocument struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	SKU   string `json:"sku,omitempty"`
	Price int64  `json:"price"`
}

type LocationDocument struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CountryCode string `json:"country_code,omitempty"`
}
