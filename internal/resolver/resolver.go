// Package resolver maps the human-readable keys used in import files
// (category names, modifier group keys, size codes, kitchen section names)
// to concrete catalog identifiers or to rows staged in the same session.
package resolver

import (
	"strings"

	"github.com/google/uuid"

	"catalog-import-service/internal/models"
)

// CatalogLookup is the read-side of the live catalog the resolver consults.
// Implementations must match case-insensitively on names and keys.
type CatalogLookup interface {
	CategoryIDByName(tenantID, name string) (uuid.UUID, bool, error)
	KitchenSectionIDByName(tenantID, name string) (uuid.UUID, bool, error)
	ItemIDByName(tenantID, name string) (uuid.UUID, bool, error)
	ItemSizeIDByCode(tenantID, code string) (uuid.UUID, bool, error)
	ModifierGroupIDByKey(tenantID, key string) (uuid.UUID, bool, error)
}

// Resolution is the outcome of resolving one reference. Exactly one of three
// cases holds: a live catalog entity (Found && !InSession), a row staged in
// this session (Found && InSession, ID is Nil until commit assigns one), or
// unresolved (!Found).
type Resolution struct {
	ID        uuid.UUID
	Found     bool
	InSession bool
}

// Resolver resolves references for one session. Results are cached so a name
// appearing in many rows always resolves to the same identifier, and catalog
// lookups run at most once per distinct key.
type Resolver struct {
	tenantID string
	catalog  CatalogLookup
	data     *models.ParsedDataset
	cache    map[string]Resolution
}

// New builds a resolver over a session's staged dataset
func New(tenantID string, catalog CatalogLookup, data *models.ParsedDataset) *Resolver {
	return &Resolver{
		tenantID: tenantID,
		catalog:  catalog,
		data:     data,
		cache:    make(map[string]Resolution),
	}
}

// NormalizeKey lowercases and trims a reference key for matching
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// GroupKey derives the referenceable key for a modifier group name
// (modifier_groups.csv carries no explicit key column)
func GroupKey(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	var result strings.Builder
	for _, r := range slug {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// Category resolves a category name
func (r *Resolver) Category(name string) (Resolution, error) {
	return r.resolve("category:"+NormalizeKey(name), func() (Resolution, error) {
		for _, row := range r.data.Categories {
			if NormalizeKey(row.Name) == NormalizeKey(name) {
				return Resolution{Found: true, InSession: true}, nil
			}
		}
		id, ok, err := r.catalog.CategoryIDByName(r.tenantID, name)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{ID: id, Found: ok}, nil
	})
}

// KitchenSection resolves a kitchen section name. Sections are never part of
// the import payload, so only the live catalog is consulted.
func (r *Resolver) KitchenSection(name string) (Resolution, error) {
	return r.resolve("kitchen_section:"+NormalizeKey(name), func() (Resolution, error) {
		id, ok, err := r.catalog.KitchenSectionIDByName(r.tenantID, name)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{ID: id, Found: ok}, nil
	})
}

// Item resolves an item name
func (r *Resolver) Item(name string) (Resolution, error) {
	return r.resolve("item:"+NormalizeKey(name), func() (Resolution, error) {
		for _, row := range r.data.Items {
			if NormalizeKey(row.Name) == NormalizeKey(name) {
				return Resolution{Found: true, InSession: true}, nil
			}
		}
		id, ok, err := r.catalog.ItemIDByName(r.tenantID, name)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{ID: id, Found: ok}, nil
	})
}

// Size resolves a size code
func (r *Resolver) Size(code string) (Resolution, error) {
	return r.resolve("size:"+NormalizeKey(code), func() (Resolution, error) {
		for _, row := range r.data.ItemSizes {
			if NormalizeKey(row.SizeCode) == NormalizeKey(code) {
				return Resolution{Found: true, InSession: true}, nil
			}
		}
		id, ok, err := r.catalog.ItemSizeIDByCode(r.tenantID, code)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{ID: id, Found: ok}, nil
	})
}

// ModifierGroup resolves a group key against staged group names (via their
// derived keys) and the live catalog. The reference is slugged first, so a
// group's display name ("Pizza Toppings") and its derived key
// ("pizza-toppings") resolve to the same group.
func (r *Resolver) ModifierGroup(key string) (Resolution, error) {
	slug := GroupKey(key)
	return r.resolve("modifier_group:"+slug, func() (Resolution, error) {
		for _, row := range r.data.ModifierGroups {
			if GroupKey(row.Name) == slug {
				return Resolution{Found: true, InSession: true}, nil
			}
		}
		id, ok, err := r.catalog.ModifierGroupIDByKey(r.tenantID, slug)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{ID: id, Found: ok}, nil
	})
}

func (r *Resolver) resolve(cacheKey string, lookup func() (Resolution, error)) (Resolution, error) {
	if cached, ok := r.cache[cacheKey]; ok {
		return cached, nil
	}
	res, err := lookup()
	if err != nil {
		return Resolution{}, err
	}
	r.cache[cacheKey] = res
	return res, nil
}
