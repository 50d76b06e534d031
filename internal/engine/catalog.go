package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"concierge/internal/compiler"
	"concierge/internal/domain"
	"concierge/internal/events"
)

// ParseCatalogDocument decodes a catalog file. JSON documents are accepted
// too since they are valid YAML. Unknown keys are rejected.
func ParseCatalogDocument(data []byte) (domain.CatalogDocument, error) {
	var doc domain.CatalogDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return doc, invalidf("catalog document: %v", err)
	}
	return doc, nil
}

// ValidateCatalogDocument checks GUIDs, names, prices and selection bounds.
func ValidateCatalogDocument(doc domain.CatalogDocument) error {
	if err := checkGUID("restaurant.guid", doc.Restaurant.GUID); err != nil {
		return err
	}
	if strings.TrimSpace(doc.Restaurant.Name) == "" {
		return invalidf("restaurant.name is required")
	}
	seen := map[string]string{}
	claim := func(field, guid string) error {
		if err := checkGUID(field, guid); err != nil {
			return err
		}
		key := strings.ToLower(guid)
		if prev, dup := seen[key]; dup {
			return invalidf("%s duplicates guid %s already used by %s", field, guid, prev)
		}
		seen[key] = field
		return nil
	}
	for i, it := range doc.MenuItems {
		field := fmt.Sprintf("menu_items[%d]", i)
		if err := claim(field+".guid", it.GUID); err != nil {
			return err
		}
		if strings.TrimSpace(it.Name) == "" {
			return invalidf("%s.name is required", field)
		}
		if _, err := compiler.ParseMoney(it.Price); err != nil {
			return invalidf("%s.price: %v", field, err)
		}
		for j, g := range it.ModifierGroups {
			gfield := fmt.Sprintf("%s.modifier_groups[%d]", field, j)
			if err := claim(gfield+".guid", g.GUID); err != nil {
				return err
			}
			if strings.TrimSpace(g.Name) == "" {
				return invalidf("%s.name is required", gfield)
			}
			if g.MinSelections < 0 {
				return invalidf("%s.min_selections must be >= 0", gfield)
			}
			if g.MaxSelections != nil && *g.MaxSelections < g.MinSelections {
				return invalidf("%s.max_selections must be >= min_selections", gfield)
			}
			for k, o := range g.Options {
				ofield := fmt.Sprintf("%s.options[%d]", gfield, k)
				if err := claim(ofield+".guid", o.GUID); err != nil {
					return err
				}
				if strings.TrimSpace(o.Name) == "" {
					return invalidf("%s.name is required", ofield)
				}
				if _, err := compiler.ParseMoney(o.Price); err != nil {
					return invalidf("%s.price: %v", ofield, err)
				}
			}
		}
	}
	return nil
}

// checkGUID accepts only the canonical hyphenated form, which is what the
// canonical order artifact later requires.
func checkGUID(field, v string) error {
	if len(v) != 36 {
		return invalidf("%s must be a UUID, got %q", field, v)
	}
	if _, err := uuid.Parse(v); err != nil {
		return invalidf("%s must be a UUID, got %q", field, v)
	}
	return nil
}

// ImportCatalog replaces a restaurant's menu with doc in one transaction.
func (e Engine) ImportCatalog(ctx context.Context, doc domain.CatalogDocument, actorID string) (domain.Restaurant, error) {
	if err := ValidateCatalogDocument(doc); err != nil {
		return domain.Restaurant{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Restaurant{}, err
	}
	defer tx.Rollback()

	rest := domain.Restaurant{GUID: doc.Restaurant.GUID, Name: strings.TrimSpace(doc.Restaurant.Name), CreatedAt: now, UpdatedAt: now}
	if err := e.Repo.UpsertRestaurantTx(ctx, tx, rest); err != nil {
		return domain.Restaurant{}, fmt.Errorf("upsert restaurant: %w", err)
	}
	if err := e.Repo.ReplaceCatalogTx(ctx, tx, rest.GUID, doc.MenuItems); err != nil {
		return domain.Restaurant{}, err
	}
	groups, options := 0, 0
	for _, it := range doc.MenuItems {
		groups += len(it.ModifierGroups)
		for _, g := range it.ModifierGroups {
			options += len(g.Options)
		}
	}
	if err := e.Events.Append(ctx, tx, events.CatalogImported, rest.GUID, "restaurant", rest.GUID, actorID, events.EventPayload{
		"name":             rest.Name,
		"menu_items":       len(doc.MenuItems),
		"modifier_groups":  groups,
		"modifier_options": options,
	}); err != nil {
		return domain.Restaurant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Restaurant{}, err
	}
	if e.catalogs != nil {
		e.catalogs.Remove(rest.GUID)
	}
	rest.ItemCount = len(doc.MenuItems)
	e.log().Info("catalog imported",
		zap.String("restaurant", rest.GUID),
		zap.Int("menu_items", len(doc.MenuItems)),
		zap.Int("modifier_groups", groups),
		zap.Int("modifier_options", options),
		zap.String("actor", actorID))
	return e.Repo.GetRestaurant(ctx, rest.GUID)
}

// Catalog returns the restaurant's catalog snapshot, from cache when possible.
// Callers must treat the returned value as read-only.
func (e Engine) Catalog(ctx context.Context, restaurantGUID string) (compiler.Catalog, error) {
	if e.catalogs != nil {
		if cat, ok := e.catalogs.Get(restaurantGUID); ok {
			e.metrics().CatalogCache.WithLabelValues("hit").Inc()
			return cat, nil
		}
	}
	e.metrics().CatalogCache.WithLabelValues("miss").Inc()
	cat, err := e.Repo.LoadCatalog(ctx, restaurantGUID)
	if err != nil {
		return compiler.Catalog{}, err
	}
	if e.catalogs != nil {
		e.catalogs.Add(restaurantGUID, cat)
	}
	return cat, nil
}

// CatalogDocument rebuilds the import document for a stored restaurant.
func (e Engine) CatalogDocument(ctx context.Context, restaurantGUID string) (domain.CatalogDocument, error) {
	rest, err := e.Repo.GetRestaurant(ctx, restaurantGUID)
	if err != nil {
		return domain.CatalogDocument{}, err
	}
	cat, err := e.Catalog(ctx, restaurantGUID)
	if err != nil {
		return domain.CatalogDocument{}, err
	}
	doc := domain.CatalogDocument{
		Restaurant: domain.CatalogRestaurant{GUID: rest.GUID, Name: rest.Name},
		MenuItems:  make([]domain.CatalogMenuItem, 0, len(cat.MenuItems)),
	}
	for _, it := range cat.MenuItems {
		item := domain.CatalogMenuItem{GUID: it.MenuItemGUID, Name: it.Name, Description: it.Description, Price: it.Price}
		for _, g := range cat.ItemGroups(it) {
			group := domain.CatalogModifierGroup{
				GUID:          g.ModifierGroupGUID,
				Name:          g.Name,
				MinSelections: g.MinSelections,
				MaxSelections: g.MaxSelections,
				IsRequired:    g.IsRequired,
				IsMultiSelect: g.IsMultiSelect,
				Options:       []domain.CatalogModifierOption{},
			}
			for _, o := range cat.GroupOptions(g) {
				group.Options = append(group.Options, domain.CatalogModifierOption{GUID: o.ModifierOptionGUID, Name: o.Name, Price: o.Price})
			}
			item.ModifierGroups = append(item.ModifierGroups, group)
		}
		doc.MenuItems = append(doc.MenuItems, item)
	}
	return doc, nil
}

// IsInvalidInput reports whether err was caused by caller data.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}
