// Package compiler validates guest item selections against a restaurant
// catalog snapshot and prices them.
//
// Compilation never fails: every request item is checked on its own and
// problems come back as issues on the result.
package compiler

import (
	"fmt"
	"sort"
)

// MaxQuantity is the largest quantity accepted for one request line.
const MaxQuantity = 999

// CompileOrderWithCatalog validates and prices requestItems against cat.
// Only items without issues count towards the subtotal.
func CompileOrderWithCatalog(requestItems []OrderRequestItem, cat Catalog) CompiledOrderResult {
	idx := indexCatalog(cat)
	res := CompiledOrderResult{
		Items:  []CompiledOrderItem{},
		Issues: []CompilationIssue{},
	}
	for _, req := range requestItems {
		item, issues, ok := compileItem(req, idx)
		res.Issues = append(res.Issues, issues...)
		if !ok {
			continue
		}
		res.Items = append(res.Items, item)
		if len(issues) > 0 {
			continue
		}
		sum, ok := res.Subtotal.Plus(item.TotalPrice)
		if !ok {
			res.Issues = append(res.Issues, CompilationIssue{
				Code:         IssueInvalidPrice,
				Message:      "order subtotal is out of range",
				MenuItemGUID: item.MenuItemGUID,
			})
			continue
		}
		res.Subtotal = sum
	}
	res.Status = deriveStatus(res.Issues)
	return res
}

func compileItem(req OrderRequestItem, idx catalogIndex) (CompiledOrderItem, []CompilationIssue, bool) {
	var issues []CompilationIssue
	item, found := idx.itemsByGUID[req.MenuItemGUID]
	if !found {
		issues = append(issues, CompilationIssue{
			Code:         IssueMenuItemNotFound,
			Message:      fmt.Sprintf("menu item %s not found", req.MenuItemGUID),
			MenuItemGUID: req.MenuItemGUID,
		})
		return CompiledOrderItem{}, issues, false
	}
	qtyOK := req.Quantity >= 1 && req.Quantity <= MaxQuantity
	if !qtyOK {
		issues = append(issues, CompilationIssue{
			Code:         IssueInvalidQuantity,
			Message:      fmt.Sprintf("quantity for %s must be between 1 and %d, got %d", item.Name, MaxQuantity, req.Quantity),
			MenuItemGUID: item.MenuItemGUID,
		})
	}

	base, err := ParseMoney(item.Price)
	if err != nil {
		base = 0
		issues = append(issues, CompilationIssue{
			Code:         IssueInvalidPrice,
			Message:      fmt.Sprintf("menu item %s has an unreadable price %q", item.Name, item.Price),
			MenuItemGUID: item.MenuItemGUID,
		})
	}

	groups := idx.groupsByItem[item.ID]
	issues = append(issues, unknownGroups(req, item, groups)...)

	details := []ModifierDetail{}
	var modifierPrice Money
	for _, group := range groups {
		selected, groupIssues := checkSelectionCount(req.SelectedModifiers[group.ModifierGroupGUID], item, group)
		issues = append(issues, groupIssues...)

		detail := ModifierDetail{
			GroupID:   group.ModifierGroupGUID,
			GroupName: group.Name,
			Options:   []ModifierOptionDetail{},
		}
		for _, optionGUID := range selected {
			opt, found := idx.optionsByGUID[optionGUID]
			switch {
			case !found:
				issues = append(issues, CompilationIssue{
					Code:         IssueModifierOptionNotFound,
					Message:      fmt.Sprintf("modifier option %s not found", optionGUID),
					MenuItemGUID: item.MenuItemGUID,
					GroupID:      group.ModifierGroupGUID,
					OptionID:     optionGUID,
				})
				continue
			case opt.ModifierGroupID != group.ID:
				issues = append(issues, CompilationIssue{
					Code:         IssueModifierOptionNotInGroup,
					Message:      fmt.Sprintf("option %s does not belong to group %s", opt.Name, group.Name),
					MenuItemGUID: item.MenuItemGUID,
					GroupID:      group.ModifierGroupGUID,
					OptionID:     optionGUID,
				})
				continue
			}
			price, err := ParseMoney(opt.Price)
			if err != nil {
				price = 0
				issues = append(issues, CompilationIssue{
					Code:         IssueInvalidPrice,
					Message:      fmt.Sprintf("modifier option %s has an unreadable price %q", opt.Name, opt.Price),
					MenuItemGUID: item.MenuItemGUID,
					GroupID:      group.ModifierGroupGUID,
					OptionID:     optionGUID,
				})
			}
			sum, ok := modifierPrice.Plus(price)
			if !ok {
				issues = append(issues, CompilationIssue{
					Code:         IssueInvalidPrice,
					Message:      fmt.Sprintf("modifier total for %s is out of range", item.Name),
					MenuItemGUID: item.MenuItemGUID,
					GroupID:      group.ModifierGroupGUID,
					OptionID:     optionGUID,
				})
				sum = modifierPrice
			}
			modifierPrice = sum
			detail.Options = append(detail.Options, ModifierOptionDetail{
				OptionID:    opt.ModifierOptionGUID,
				OptionName:  opt.Name,
				OptionPrice: price.Fixed(),
			})
		}
		if len(detail.Options) > 0 {
			details = append(details, detail)
		}
	}

	unit, unitOK := base.Plus(modifierPrice)
	total, totalOK := unit.Times(req.Quantity)
	if !qtyOK {
		total, totalOK = 0, true
	}
	if !unitOK || !totalOK {
		unit, total = 0, 0
		issues = append(issues, CompilationIssue{
			Code:         IssueInvalidPrice,
			Message:      fmt.Sprintf("price for %s is out of range", item.Name),
			MenuItemGUID: item.MenuItemGUID,
		})
	}
	qty := req.Quantity
	return CompiledOrderItem{
		MenuItemGUID:    item.MenuItemGUID,
		ItemName:        item.Name,
		BasePrice:       base,
		ModifierPrice:   modifierPrice,
		UnitPrice:       unit,
		Quantity:        qty,
		TotalPrice:      total,
		ModifierDetails: details,
	}, issues, true
}

// checkSelectionCount de-duplicates the guest's picks for one group and checks
// them against the group's required flag and min/max bounds.
func checkSelectionCount(picked []string, item MenuItem, group ModifierGroup) ([]string, []CompilationIssue) {
	var issues []CompilationIssue
	selected := make([]string, 0, len(picked))
	seen := make(map[string]struct{}, len(picked))
	for _, guid := range picked {
		if _, dup := seen[guid]; dup {
			issues = append(issues, CompilationIssue{
				Code:         IssueDuplicateSelection,
				Message:      fmt.Sprintf("option %s selected more than once in %s", guid, group.Name),
				MenuItemGUID: item.MenuItemGUID,
				GroupID:      group.ModifierGroupGUID,
				OptionID:     guid,
			})
			continue
		}
		seen[guid] = struct{}{}
		selected = append(selected, guid)
	}

	count := len(selected)
	required := group.IsRequired || group.MinSelections > 0
	if required && count == 0 {
		issues = append(issues, CompilationIssue{
			Code:         IssueRequiredModifierMissing,
			Message:      fmt.Sprintf("%s requires a selection for %s", item.Name, group.Name),
			MenuItemGUID: item.MenuItemGUID,
			GroupID:      group.ModifierGroupGUID,
		})
		return selected, issues
	}
	if count == 0 {
		return selected, issues
	}
	lo, hi, bounded := selectionBounds(group)
	if count < lo || (bounded && count > hi) {
		issues = append(issues, CompilationIssue{
			Code:         IssueSelectionCountOutOfRange,
			Message:      fmt.Sprintf("%s for %s allows %s selections, got %d", group.Name, item.Name, boundsText(lo, hi, bounded), count),
			MenuItemGUID: item.MenuItemGUID,
			GroupID:      group.ModifierGroupGUID,
		})
	}
	return selected, issues
}

// selectionBounds returns the effective [lo, hi] for a group. Single-select
// groups never allow more than one pick.
func selectionBounds(g ModifierGroup) (lo, hi int, bounded bool) {
	lo = max(g.MinSelections, 0)
	if g.MaxSelections != nil {
		hi, bounded = *g.MaxSelections, true
	}
	if !g.IsMultiSelect && (!bounded || hi > 1) {
		hi, bounded = 1, true
	}
	return lo, hi, bounded
}

func boundsText(lo, hi int, bounded bool) string {
	switch {
	case !bounded:
		return fmt.Sprintf("at least %d", lo)
	case lo == hi:
		return fmt.Sprintf("exactly %d", lo)
	default:
		return fmt.Sprintf("%d to %d", lo, hi)
	}
}

// unknownGroups flags selections keyed by a group the item does not have.
func unknownGroups(req OrderRequestItem, item MenuItem, groups []ModifierGroup) []CompilationIssue {
	if len(req.SelectedModifiers) == 0 {
		return nil
	}
	own := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		own[g.ModifierGroupGUID] = struct{}{}
	}
	keys := make([]string, 0, len(req.SelectedModifiers))
	for k := range req.SelectedModifiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var issues []CompilationIssue
	for _, k := range keys {
		if _, ok := own[k]; ok || len(req.SelectedModifiers[k]) == 0 {
			continue
		}
		issues = append(issues, CompilationIssue{
			Code:         IssueUnknownModifierGroup,
			Message:      fmt.Sprintf("modifier group %s does not belong to %s", k, item.Name),
			MenuItemGUID: item.MenuItemGUID,
			GroupID:      k,
		})
	}
	return issues
}
