package compiler

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	burgerGUID  = "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a01"
	saladGUID   = "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a02"
	cookGUID    = "7a1d3e40-8b2c-4f6a-b1d9-2e5f6a7b8c01"
	toppingGUID = "7a1d3e40-8b2c-4f6a-b1d9-2e5f6a7b8c02"
	dressGUID   = "7a1d3e40-8b2c-4f6a-b1d9-2e5f6a7b8c03"
	rareGUID    = "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e01"
	wellGUID    = "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e02"
	baconGUID   = "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e03"
	cheeseGUID  = "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e04"
	ranchGUID   = "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e05"
)

func intPtr(v int) *int { return &v }

// testCatalog: a $10 burger with a required single-select "Cook" group
// ($2 options) and an optional multi-select "Toppings" group, plus a salad
// with an optional dressing.
func testCatalog() Catalog {
	return Catalog{
		MenuItems: []MenuItem{
			{ID: 1, MenuItemGUID: burgerGUID, Name: "Burger", Description: "beef patty", Price: "10.00"},
			{ID: 2, MenuItemGUID: saladGUID, Name: "House Salad", Price: "8.5"},
		},
		ModifierGroups: []ModifierGroup{
			{ID: 10, ModifierGroupGUID: cookGUID, MenuItemID: 1, Name: "Cook", MinSelections: 1, MaxSelections: intPtr(1), IsRequired: true},
			{ID: 11, ModifierGroupGUID: toppingGUID, MenuItemID: 1, Name: "Toppings", MaxSelections: intPtr(2), IsMultiSelect: true},
			{ID: 20, ModifierGroupGUID: dressGUID, MenuItemID: 2, Name: "Dressing"},
		},
		ModifierOptions: []ModifierOption{
			{ID: 100, ModifierOptionGUID: rareGUID, ModifierGroupID: 10, Name: "Rare", Price: "2.00"},
			{ID: 101, ModifierOptionGUID: wellGUID, ModifierGroupID: 10, Name: "Well Done", Price: "2"},
			{ID: 110, ModifierOptionGUID: baconGUID, ModifierGroupID: 11, Name: "Bacon", Price: "1.50"},
			{ID: 111, ModifierOptionGUID: cheeseGUID, ModifierGroupID: 11, Name: "Cheese", Price: "0.75"},
			{ID: 200, ModifierOptionGUID: ranchGUID, ModifierGroupID: 20, Name: "Ranch", Price: "0"},
		},
	}
}

func TestCompileFullyValidOrder(t *testing.T) {
	res := CompileOrderWithCatalog([]OrderRequestItem{{
		MenuItemGUID:      burgerGUID,
		Quantity:          2,
		SelectedModifiers: map[string][]string{cookGUID: {rareGUID}},
	}}, testCatalog())

	require.Equal(t, StatusReadyToExecute, res.Status)
	require.Empty(t, res.Issues)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, Money(1000), item.BasePrice)
	assert.Equal(t, Money(200), item.ModifierPrice)
	assert.Equal(t, 12.0, item.UnitPrice.Float64())
	assert.Equal(t, Money(2400), item.TotalPrice)
	assert.Equal(t, 24.0, res.Subtotal.Float64())
	assert.Equal(t, []ModifierDetail{{
		GroupID:   cookGUID,
		GroupName: "Cook",
		Options:   []ModifierOptionDetail{{OptionID: rareGUID, OptionName: "Rare", OptionPrice: "2.00"}},
	}}, item.ModifierDetails)
}

func TestCompileMultiModifierSubtotalIsSumOfLines(t *testing.T) {
	res := CompileOrderWithCatalog([]OrderRequestItem{
		{
			MenuItemGUID: burgerGUID,
			Quantity:     1,
			SelectedModifiers: map[string][]string{
				cookGUID:    {wellGUID},
				toppingGUID: {baconGUID, cheeseGUID},
			},
		},
		{MenuItemGUID: saladGUID, Quantity: 3},
	}, testCatalog())

	require.Equal(t, StatusReadyToExecute, res.Status)
	require.Len(t, res.Items, 2)
	assert.Equal(t, Money(1425), res.Items[0].UnitPrice)
	assert.Equal(t, Money(2550), res.Items[1].TotalPrice)
	assert.Equal(t, res.Items[0].TotalPrice+res.Items[1].TotalPrice, res.Subtotal)
	assert.Len(t, res.Items[0].ModifierDetails, 2)
	assert.Empty(t, res.Items[1].ModifierDetails)
	assert.NotNil(t, res.Items[1].ModifierDetails)
}

func TestCompileMissingRequiredModifier(t *testing.T) {
	res := CompileOrderWithCatalog([]OrderRequestItem{{MenuItemGUID: burgerGUID, Quantity: 1}}, testCatalog())

	assert.Equal(t, StatusNeedsUserInput, res.Status)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, IssueRequiredModifierMissing, res.Issues[0].Code)
	assert.Equal(t, cookGUID, res.Issues[0].GroupID)
	assert.Len(t, res.Items, 1, "recoverable items are still listed")
	assert.Zero(t, res.Subtotal)
}

func TestCompileOptionFromOtherGroup(t *testing.T) {
	res := CompileOrderWithCatalog([]OrderRequestItem{{
		MenuItemGUID:      burgerGUID,
		Quantity:          1,
		SelectedModifiers: map[string][]string{cookGUID: {baconGUID}},
	}}, testCatalog())

	assert.Equal(t, StatusUnfulfillable, res.Status)
	assert.True(t, res.HasIssue(IssueModifierOptionNotInGroup))
}

func TestCompileIssues(t *testing.T) {
	cases := []struct {
		name   string
		items  []OrderRequestItem
		code   IssueCode
		status Status
	}{
		{
			name:   "unknown menu item",
			items:  []OrderRequestItem{{MenuItemGUID: "00000000-0000-4000-8000-000000000000", Quantity: 1}},
			code:   IssueMenuItemNotFound,
			status: StatusUnfulfillable,
		},
		{
			name: "unknown option",
			items: []OrderRequestItem{{MenuItemGUID: burgerGUID, Quantity: 1, SelectedModifiers: map[string][]string{
				cookGUID: {"00000000-0000-4000-8000-000000000001"},
			}}},
			code:   IssueModifierOptionNotFound,
			status: StatusUnfulfillable,
		},
		{
			name: "too many for single select",
			items: []OrderRequestItem{{MenuItemGUID: burgerGUID, Quantity: 1, SelectedModifiers: map[string][]string{
				cookGUID: {rareGUID, wellGUID},
			}}},
			code:   IssueSelectionCountOutOfRange,
			status: StatusNeedsUserInput,
		},
		{
			name: "duplicate pick",
			items: []OrderRequestItem{{MenuItemGUID: burgerGUID, Quantity: 1, SelectedModifiers: map[string][]string{
				cookGUID:    {rareGUID},
				toppingGUID: {baconGUID, baconGUID},
			}}},
			code:   IssueDuplicateSelection,
			status: StatusNeedsUserInput,
		},
		{
			name: "group of another item",
			items: []OrderRequestItem{{MenuItemGUID: saladGUID, Quantity: 1, SelectedModifiers: map[string][]string{
				cookGUID: {rareGUID},
			}}},
			code:   IssueUnknownModifierGroup,
			status: StatusUnfulfillable,
		},
		{
			name:   "zero quantity",
			items:  []OrderRequestItem{{MenuItemGUID: saladGUID, Quantity: 0}},
			code:   IssueInvalidQuantity,
			status: StatusNeedsUserInput,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := CompileOrderWithCatalog(tc.items, testCatalog())
			assert.Equal(t, tc.status, res.Status)
			assert.True(t, res.HasIssue(tc.code), "issues: %+v", res.Issues)
		})
	}
}

func TestCompileDoesNotShortCircuit(t *testing.T) {
	res := CompileOrderWithCatalog([]OrderRequestItem{
		{MenuItemGUID: "00000000-0000-4000-8000-000000000000", Quantity: 1},
		{MenuItemGUID: burgerGUID, Quantity: 1},
		{MenuItemGUID: saladGUID, Quantity: 2},
	}, testCatalog())

	assert.Equal(t, StatusUnfulfillable, res.Status)
	assert.True(t, res.HasIssue(IssueMenuItemNotFound))
	assert.True(t, res.HasIssue(IssueRequiredModifierMissing))
	require.Len(t, res.Items, 2)
	assert.Equal(t, Money(1700), res.Subtotal, "only the clean salad line counts")
}

func TestCompileInvalidCatalogPrice(t *testing.T) {
	cat := testCatalog()
	cat.MenuItems[1].Price = "market price"
	res := CompileOrderWithCatalog([]OrderRequestItem{{MenuItemGUID: saladGUID, Quantity: 1}}, cat)

	assert.Equal(t, StatusUnfulfillable, res.Status)
	assert.True(t, res.HasIssue(IssueInvalidPrice))
	require.Len(t, res.Items, 1)
	assert.Zero(t, res.Items[0].BasePrice)
}

func TestCompileLeavesCatalogUntouched(t *testing.T) {
	cat := testCatalog()
	before := testCatalog()
	_ = CompileOrderWithCatalog([]OrderRequestItem{{MenuItemGUID: burgerGUID, Quantity: 1, SelectedModifiers: map[string][]string{cookGUID: {rareGUID}}}}, cat)
	assert.Equal(t, before, cat)
}

func TestParseMoney(t *testing.T) {
	cases := map[string]Money{"10": 1000, "10.5": 1050, "0.755": 76, " 3.20 ": 320, "0": 0}
	for in, want := range cases {
		got, err := ParseMoney(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	top, err := ParseMoney("100000000.00")
	require.NoError(t, err)
	assert.Equal(t, MaxPrice, top)
	for _, bad := range []string{"", "abc", "-1.00", "NaN", "100000000.01", "1e17", "99999999999999999999"} {
		_, err := ParseMoney(bad)
		assert.ErrorIs(t, err, ErrInvalidPrice, bad)
	}
}

func TestCompileQuantityLimit(t *testing.T) {
	withCook := map[string][]string{cookGUID: {rareGUID}}
	for _, qty := range []int{MaxQuantity + 1, 3_000_000_000, 1 << 60} {
		res := CompileOrderWithCatalog([]OrderRequestItem{{MenuItemGUID: burgerGUID, Quantity: qty, SelectedModifiers: withCook}}, testCatalog())
		assert.Equal(t, StatusNeedsUserInput, res.Status, "qty %d", qty)
		assert.True(t, res.HasIssue(IssueInvalidQuantity), "qty %d", qty)
		assert.Zero(t, res.Subtotal, "qty %d", qty)
		require.Len(t, res.Items, 1)
		assert.GreaterOrEqual(t, int64(res.Items[0].TotalPrice), int64(0))
	}

	res := CompileOrderWithCatalog([]OrderRequestItem{{MenuItemGUID: burgerGUID, Quantity: MaxQuantity, SelectedModifiers: withCook}}, testCatalog())
	require.Equal(t, StatusReadyToExecute, res.Status)
	assert.Equal(t, Money(1200*MaxQuantity), res.Subtotal)
}

func TestCompileRejectsOversizedCatalogPrice(t *testing.T) {
	cat := testCatalog()
	cat.MenuItems[1].Price = "100000000000000000"
	res := CompileOrderWithCatalog([]OrderRequestItem{{MenuItemGUID: saladGUID, Quantity: 2}}, cat)

	assert.Equal(t, StatusUnfulfillable, res.Status)
	assert.True(t, res.HasIssue(IssueInvalidPrice))
	assert.Zero(t, res.Subtotal)
}

func TestMoneyCheckedArithmetic(t *testing.T) {
	m, ok := Money(1200).Times(3)
	assert.True(t, ok)
	assert.Equal(t, Money(3600), m)
	_, ok = Money(1 << 40).Times(1 << 30)
	assert.False(t, ok)
	_, ok = Money(math.MaxInt64).Plus(1)
	assert.False(t, ok)

	_, ok = MoneyFromDecimal(decimal.New(1, 17))
	assert.False(t, ok)
}

func TestMoneyJSON(t *testing.T) {
	b, err := Money(1250).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "12.5", string(b))

	var m Money
	require.NoError(t, m.UnmarshalJSON([]byte("12.5")))
	assert.Equal(t, Money(1250), m)
	assert.Error(t, m.UnmarshalJSON([]byte("1.234")))
	assert.Error(t, m.UnmarshalJSON([]byte(`"12.50"`)))
	assert.Equal(t, "12.50", Money(1250).Fixed())
}
