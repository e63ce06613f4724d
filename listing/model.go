package listing

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/marketsearch/core"
	"github.com/poiesic/marketsearch/index"
	"gorm.io/gorm"
)

const (
	KindProduct         = "product"
	KindService         = "service"
	KindSupplierProduct = "supplier_product"

	// StatusActive is the status of a newly created listing.
	StatusActive = "active"
)

// Kinds lists every listing type, each indexed as its own source kind.
var Kinds = []string{KindProduct, KindService, KindSupplierProduct}

// ValidType reports whether t is a known listing type.
func ValidType(t string) bool {
	return slices.Contains(Kinds, core.NormalizeKind(t))
}

// Listing is an item offered on the marketplace.
type Listing struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	ListingType string   `gorm:"column:listing_type;size:20;not null;index" json:"listing_type"`
	SellerID    string   `gorm:"column:seller_id;not null;index" json:"seller_id"`
	Seller      string   `gorm:"column:seller" json:"seller"`
	Name        string   `gorm:"column:name;size:255;not null" json:"name"`
	Location    string   `gorm:"column:location;size:255" json:"location"`
	Price       float64  `gorm:"column:price;not null" json:"price"`
	Quantity    *float64 `gorm:"column:quantity" json:"quantity,omitempty"`
	Unit        string   `gorm:"column:unit;size:50" json:"unit"`
	Description string   `gorm:"column:description" json:"description"`
	Status      string   `gorm:"column:status;size:20;not null;default:'active'" json:"status"`
	Category    string   `gorm:"column:category;size:100" json:"category"`
	Organic     *bool    `gorm:"column:organic" json:"organic,omitempty"`
	Provider    string   `gorm:"column:provider;size:255" json:"provider"`
	Supplier    string   `gorm:"column:supplier;size:255" json:"supplier"`
	ImageURL    string   `gorm:"column:image_url" json:"image_url"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Listing) TableName() string { return "listings" }

var _ index.Searchable = (*Listing)(nil)

func (l *Listing) SourceKind() string {
	return core.NormalizeKind(l.ListingType)
}

func (l *Listing) SourceID() string {
	if l.ID == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(l.ID), 10)
}

// ToSearchDocument projects the listing. The embedding text is the name,
// category and description.
func (l *Listing) ToSearchDocument() (*core.Document, error) {
	if strings.TrimSpace(l.Name) == "" {
		return nil, fmt.Errorf("listing %d has no name", l.ID)
	}

	metadata := map[string]any{
		"price":     l.Price,
		"unit":      l.Unit,
		"image":     l.ImageURL,
		"category":  l.Category,
		"seller":    l.Seller,
		"seller_id": l.SellerID,
		"location":  l.Location,
		"status":    l.Status,
	}
	if l.Quantity != nil {
		metadata["quantity"] = *l.Quantity
	}
	if l.Organic != nil {
		metadata["organic"] = *l.Organic
	}
	if l.Provider != "" {
		metadata["provider"] = l.Provider
	}
	if l.Supplier != "" {
		metadata["supplier"] = l.Supplier
	}
	if !l.CreatedAt.IsZero() {
		metadata["created_at"] = l.CreatedAt.UTC().Format(time.RFC3339)
	}

	return &core.Document{
		Title:         l.Name,
		Description:   l.Description,
		EmbeddingText: strings.Join(strings.Fields(l.Name+" "+l.Category+" "+l.Description), " "),
		Metadata:      metadata,
	}, nil
}

func parseID(id string) (uint, bool) {
	n, err := strconv.ParseUint(id, 10, 0)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
