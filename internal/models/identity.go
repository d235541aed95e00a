package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type Category string

const (
	CategoryOwner  Category = "owner"
	CategoryTenant Category = "tenant"
	CategoryStaff  Category = "staff"
)

// Identity is a resident or staff record. The engine only reads it.
type Identity struct {
	ID          uuid.UUID `json:"id" db:"id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Category    Category  `json:"category" db:"category"`
	Active      bool      `json:"active" db:"active"`
}

// GalleryFilter restricts which identities a verification searches.
// The zero value searches everyone.
type GalleryFilter struct {
	Category Category `json:"category,omitempty"`
}

func AllIdentities() GalleryFilter { return GalleryFilter{} }

func ByCategory(c Category) GalleryFilter { return GalleryFilter{Category: c} }

// ParseGalleryFilter accepts "all", "owner(s)", "tenant(s)" and "staff".
// An empty string means all.
func ParseGalleryFilter(s string) (GalleryFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return AllIdentities(), nil
	case "owner", "owners":
		return ByCategory(CategoryOwner), nil
	case "tenant", "tenants":
		return ByCategory(CategoryTenant), nil
	case "staff":
		return ByCategory(CategoryStaff), nil
	default:
		return GalleryFilter{}, fmt.Errorf("unknown gallery filter %q", s)
	}
}

func (f GalleryFilter) IsAll() bool { return f.Category == "" }

// Matches reports whether id belongs to the filtered population.
// Inactive identities never match.
func (f GalleryFilter) Matches(id Identity) bool {
	if !id.Active {
		return false
	}
	return f.IsAll() || id.Category == f.Category
}

func (f GalleryFilter) String() string {
	if f.IsAll() {
		return "all"
	}
	return string(f.Category)
}
