package compiler

// Status classifies how far a compiled order is from being executable.
type Status string

const (
	StatusReadyToExecute Status = "ready_to_execute"
	StatusNeedsUserInput Status = "needs_user_input"
	StatusUnfulfillable  Status = "unfulfillable"
)

// IssueCode identifies one compilation problem.
type IssueCode string

const (
	IssueMenuItemNotFound         IssueCode = "menu_item_not_found"
	IssueRequiredModifierMissing  IssueCode = "required_modifier_missing"
	IssueModifierOptionNotInGroup IssueCode = "modifier_option_not_in_group"
	IssueSelectionCountOutOfRange IssueCode = "selection_count_out_of_range"
	IssueModifierOptionNotFound   IssueCode = "modifier_option_not_found"
	IssueDuplicateSelection       IssueCode = "duplicate_selection"
	IssueInvalidQuantity          IssueCode = "invalid_quantity"
	IssueUnknownModifierGroup     IssueCode = "unknown_modifier_group"
	IssueInvalidPrice             IssueCode = "invalid_price"
)

// Structural reports whether the guest cannot fix the issue by giving more input.
func (c IssueCode) Structural() bool {
	switch c {
	case IssueMenuItemNotFound,
		IssueModifierOptionNotInGroup,
		IssueModifierOptionNotFound,
		IssueUnknownModifierGroup,
		IssueInvalidPrice:
		return true
	}
	return false
}

// OrderRequestItem is the guest's intent for one line: a menu item plus the
// options picked per modifier group GUID.
type OrderRequestItem struct {
	MenuItemGUID      string              `json:"menuItemGuid"`
	Quantity          int                 `json:"quantity"`
	SelectedModifiers map[string][]string `json:"selectedModifiers,omitempty"`
}

type ModifierOptionDetail struct {
	OptionID    string `json:"optionId"`
	OptionName  string `json:"optionName"`
	OptionPrice string `json:"optionPrice"`
}

type ModifierDetail struct {
	GroupID   string                 `json:"groupId"`
	GroupName string                 `json:"groupName"`
	Options   []ModifierOptionDetail `json:"options"`
}

// CompiledOrderItem is one priced line. UnitPrice is BasePrice+ModifierPrice
// and TotalPrice is UnitPrice*Quantity.
type CompiledOrderItem struct {
	MenuItemGUID    string           `json:"menuItemGuid"`
	ItemName        string           `json:"itemName"`
	BasePrice       Money            `json:"basePrice"`
	ModifierPrice   Money            `json:"modifierPrice"`
	UnitPrice       Money            `json:"unitPrice"`
	Quantity        int              `json:"quantity"`
	TotalPrice      Money            `json:"totalPrice"`
	ModifierDetails []ModifierDetail `json:"modifierDetails"`
}

type CompilationIssue struct {
	Code         IssueCode `json:"code"`
	Message      string    `json:"message"`
	MenuItemGUID string    `json:"menuItemGuid,omitempty"`
	GroupID      string    `json:"groupId,omitempty"`
	OptionID     string    `json:"optionId,omitempty"`
}

type CompiledOrderResult struct {
	Status   Status              `json:"status"`
	Items    []CompiledOrderItem `json:"items"`
	Issues   []CompilationIssue  `json:"issues"`
	Subtotal Money               `json:"subtotal"`
}

// HasIssue reports whether any issue carries the given code.
func (r CompiledOrderResult) HasIssue(code IssueCode) bool {
	for _, is := range r.Issues {
		if is.Code == code {
			return true
		}
	}
	return false
}

func deriveStatus(issues []CompilationIssue) Status {
	if len(issues) == 0 {
		return StatusReadyToExecute
	}
	for _, is := range issues {
		if is.Code.Structural() {
			return StatusUnfulfillable
		}
	}
	return StatusNeedsUserInput
}
