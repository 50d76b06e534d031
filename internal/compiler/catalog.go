package compiler

// MenuItem is a catalog row as supplied by the persistence layer.
type MenuItem struct {
	ID           int64  `json:"id"`
	MenuItemGUID string `json:"menuItemGuid"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Price        string `json:"price"`
}

// ModifierGroup belongs to exactly one menu item via MenuItemID.
// MaxSelections is nil when the group has no upper bound.
type ModifierGroup struct {
	ID                int64  `json:"id"`
	ModifierGroupGUID string `json:"modifierGroupGuid"`
	MenuItemID        int64  `json:"menuItemId"`
	Name              string `json:"name"`
	MinSelections     int    `json:"minSelections"`
	MaxSelections     *int   `json:"maxSelections,omitempty"`
	IsRequired        bool   `json:"isRequired"`
	IsMultiSelect     bool   `json:"isMultiSelect"`
}

// ModifierOption belongs to exactly one group via ModifierGroupID.
type ModifierOption struct {
	ID                 int64  `json:"id"`
	ModifierOptionGUID string `json:"modifierOptionGuid"`
	ModifierGroupID    int64  `json:"modifierGroupId"`
	Name               string `json:"name"`
	Price              string `json:"price"`
}

// Catalog is an immutable snapshot of one restaurant's menu.
type Catalog struct {
	MenuItems       []MenuItem       `json:"menuItems"`
	ModifierGroups  []ModifierGroup  `json:"modifierGroups"`
	ModifierOptions []ModifierOption `json:"modifierOptions"`
}

// catalogIndex holds the lookups one compilation needs. It is built per call
// so the Catalog itself is never touched.
type catalogIndex struct {
	itemsByGUID   map[string]MenuItem
	groupsByItem  map[int64][]ModifierGroup
	optionsByGUID map[string]ModifierOption
}

func indexCatalog(c Catalog) catalogIndex {
	idx := catalogIndex{
		itemsByGUID:   make(map[string]MenuItem, len(c.MenuItems)),
		groupsByItem:  make(map[int64][]ModifierGroup),
		optionsByGUID: make(map[string]ModifierOption, len(c.ModifierOptions)),
	}
	for _, it := range c.MenuItems {
		if _, dup := idx.itemsByGUID[it.MenuItemGUID]; !dup {
			idx.itemsByGUID[it.MenuItemGUID] = it
		}
	}
	for _, g := range c.ModifierGroups {
		idx.groupsByItem[g.MenuItemID] = append(idx.groupsByItem[g.MenuItemID], g)
	}
	for _, o := range c.ModifierOptions {
		if _, dup := idx.optionsByGUID[o.ModifierOptionGUID]; !dup {
			idx.optionsByGUID[o.ModifierOptionGUID] = o
		}
	}
	return idx
}

// ItemGroups returns the modifier groups attached to a menu item, in catalog order.
func (c Catalog) ItemGroups(item MenuItem) []ModifierGroup {
	var out []ModifierGroup
	for _, g := range c.ModifierGroups {
		if g.MenuItemID == item.ID {
			out = append(out, g)
		}
	}
	return out
}

// GroupOptions returns the options of a group, in catalog order.
func (c Catalog) GroupOptions(group ModifierGroup) []ModifierOption {
	var out []ModifierOption
	for _, o := range c.ModifierOptions {
		if o.ModifierGroupID == group.ID {
			out = append(out, o)
		}
	}
	return out
}
