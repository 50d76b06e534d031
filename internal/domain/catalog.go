package domain

// CatalogDocument is the import/export shape of one restaurant's menu. The
// same document is accepted as YAML or JSON.
type CatalogDocument struct {
	Restaurant CatalogRestaurant `json:"restaurant" yaml:"restaurant"`
	MenuItems  []CatalogMenuItem `json:"menu_items" yaml:"menu_items"`
}

type CatalogRestaurant struct {
	GUID string `json:"guid" yaml:"guid"`
	Name string `json:"name" yaml:"name"`
}

type CatalogMenuItem struct {
	GUID           string                 `json:"guid" yaml:"guid"`
	Name           string                 `json:"name" yaml:"name"`
	Description    string                 `json:"description,omitempty" yaml:"description,omitempty"`
	Price          string                 `json:"price" yaml:"price"`
	ModifierGroups []CatalogModifierGroup `json:"modifier_groups,omitempty" yaml:"modifier_groups,omitempty"`
}

type CatalogModifierGroup struct {
	GUID          string                  `json:"guid" yaml:"guid"`
	Name          string                  `json:"name" yaml:"name"`
	MinSelections int                     `json:"min_selections" yaml:"min_selections" required:"false"`
	MaxSelections *int                    `json:"max_selections,omitempty" yaml:"max_selections,omitempty"`
	IsRequired    bool                    `json:"is_required" yaml:"is_required" required:"false"`
	IsMultiSelect bool                    `json:"is_multi_select" yaml:"is_multi_select" required:"false"`
	Options       []CatalogModifierOption `json:"options" yaml:"options"`
}

type CatalogModifierOption struct {
	GUID  string `json:"guid" yaml:"guid"`
	Name  string `json:"name" yaml:"name"`
	Price string `json:"price" yaml:"price"`
}
