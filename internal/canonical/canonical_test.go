package canonical

import (
	"encoding/json"
	"testing"
	"time"

	"concierge/internal/compiler"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 18, 30, 0, 123456789, time.UTC)

func sampleItems() []compiler.CompiledOrderItem {
	return []compiler.CompiledOrderItem{
		{
			MenuItemGUID:  "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a01",
			ItemName:      "Burger",
			BasePrice:     1000,
			ModifierPrice: 350,
			UnitPrice:     1350,
			Quantity:      2,
			TotalPrice:    2700,
			ModifierDetails: []compiler.ModifierDetail{
				{
					GroupID:   "7a1d3e40-8b2c-4f6a-b1d9-2e5f6a7b8c01",
					GroupName: "Cook",
					Options: []compiler.ModifierOptionDetail{
						{OptionID: "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e01", OptionName: "Rare", OptionPrice: "2.00"},
					},
				},
				{
					GroupID:   "7a1d3e40-8b2c-4f6a-b1d9-2e5f6a7b8c02",
					GroupName: "Toppings",
					Options: []compiler.ModifierOptionDetail{
						{OptionID: "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e03", OptionName: "Bacon", OptionPrice: "1.50"},
					},
				},
			},
		},
		{
			MenuItemGUID:    "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a02",
			ItemName:        "House Salad",
			BasePrice:       850,
			UnitPrice:       850,
			Quantity:        1,
			TotalPrice:      850,
			ModifierDetails: []compiler.ModifierDetail{},
		},
	}
}

func storedMetadata(t *testing.T, a Artifact) map[string]any {
	t.Helper()
	data, err := json.Marshal(WithArtifact(map[string]any{"source": "concierge"}, a))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestBuildStampsArtifact(t *testing.T) {
	a := BuildAt(sampleItems(), 3550, fixedNow)

	assert.Equal(t, CompilerVersion, a.CompilerVersion)
	assert.Equal(t, "2026-03-14T18:30:00.123456789Z", a.CompiledAt)
	assert.Equal(t, "ready_to_execute", a.Status.String())
	assert.Equal(t, 2, a.ItemCount)
	assert.Equal(t, sampleItems(), a.Items)
}

func TestBuildCopiesItems(t *testing.T) {
	items := sampleItems()
	a := BuildAt(items, 3550, fixedNow)
	items[0].ItemName = "changed"
	items[0].ModifierDetails[0].Options[0].OptionName = "changed"

	assert.Equal(t, "Burger", a.Items[0].ItemName)
	assert.Equal(t, "Rare", a.Items[0].ModifierDetails[0].Options[0].OptionName)
}

func TestBuildWithNoItemsMarshalsEmptyArray(t *testing.T) {
	data, err := json.Marshal(BuildCanonicalOrderArtifact(nil, 0))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"items":[]`)
	assert.Contains(t, string(data), `"status":"ready_to_execute"`)
}

func TestRoundTrip(t *testing.T) {
	a := BuildAt(sampleItems(), 3550, fixedNow)
	got, ok := ExtractCanonicalOrderArtifact(storedMetadata(t, a))
	require.True(t, ok)
	assert.Equal(t, a.ItemCount, got.ItemCount)
	assert.Equal(t, a.Subtotal, got.Subtotal)
	assert.Equal(t, a.Items, got.Items)
	assert.Equal(t, a, got)
}

func TestRoundTripIsByteStable(t *testing.T) {
	a := BuildAt(sampleItems(), 3550, fixedNow)
	first, err := json.Marshal(a)
	require.NoError(t, err)

	got, ok := ExtractCanonicalOrderArtifact(json.RawMessage(`{"canonicalOrder":` + string(first) + `}`))
	require.True(t, ok)
	second, err := json.Marshal(got)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestExtractAcceptsSeveralMetadataForms(t *testing.T) {
	a := BuildAt(sampleItems(), 3550, fixedNow)
	raw, err := json.Marshal(WithArtifact(nil, a))
	require.NoError(t, err)

	forms := map[string]any{
		"typed map":   WithArtifact(nil, a),
		"raw message": json.RawMessage(raw),
		"bytes":       raw,
		"text":        string(raw),
		"decoded":     storedMetadata(t, a),
		"struct":      struct{ CanonicalOrder Artifact `json:"canonicalOrder"` }{a},
	}
	for name, md := range forms {
		t.Run(name, func(t *testing.T) {
			got, ok := ExtractCanonicalOrderArtifact(md)
			require.True(t, ok)
			assert.Equal(t, a, got)
		})
	}
}

func TestExtractRejects(t *testing.T) {
	valid := func(t *testing.T) map[string]any {
		return storedMetadata(t, BuildAt(sampleItems(), 3550, fixedNow))
	}
	order := func(md map[string]any) map[string]any { return md[MetadataKey].(map[string]any) }
	item := func(md map[string]any) map[string]any { return order(md)["items"].([]any)[0].(map[string]any) }
	option := func(md map[string]any) map[string]any {
		details := item(md)["modifierDetails"].([]any)
		return details[0].(map[string]any)["options"].([]any)[0].(map[string]any)
	}

	cases := map[string]func(md map[string]any){
		"wrong version":       func(md map[string]any) { order(md)["compilerVersion"] = "canonical-v0" },
		"other status":        func(md map[string]any) { order(md)["status"] = "needs_user_input" },
		"bad timestamp":       func(md map[string]any) { order(md)["compiledAt"] = "yesterday" },
		"item count mismatch": func(md map[string]any) { order(md)["itemCount"] = 3 },
		"fractional count":    func(md map[string]any) { order(md)["itemCount"] = 1.5 },
		"subtotal as string":  func(md map[string]any) { order(md)["subtotal"] = "35.50" },
		"negative subtotal":   func(md map[string]any) { order(md)["subtotal"] = -1 },
		"extra field":         func(md map[string]any) { order(md)["note"] = "x" },
		"missing items":       func(md map[string]any) { delete(order(md), "items") },
		"items not array":     func(md map[string]any) { order(md)["items"] = map[string]any{} },
		"bad item guid":       func(md map[string]any) { item(md)["menuItemGuid"] = "burger" },
		"braced item guid":    func(md map[string]any) { item(md)["menuItemGuid"] = "{5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a01}" },
		"zero quantity":       func(md map[string]any) { item(md)["quantity"] = 0 },
		"tampered unit price": func(md map[string]any) { item(md)["unitPrice"] = 1 },
		"tampered total":      func(md map[string]any) { item(md)["totalPrice"] = 99 },
		"sub-cent price":      func(md map[string]any) { item(md)["basePrice"] = 10.001 },
		"name not string":     func(md map[string]any) { item(md)["itemName"] = 7 },
		"empty name":          func(md map[string]any) { item(md)["itemName"] = "" },
		"blank name":          func(md map[string]any) { item(md)["itemName"] = "   " },
		"quantity over limit": func(md map[string]any) { item(md)["quantity"] = compiler.MaxQuantity + 1 },
		"huge total":          func(md map[string]any) { item(md)["totalPrice"] = 1e19 },
		"details missing":     func(md map[string]any) { delete(item(md), "modifierDetails") },
		"bad option guid":     func(md map[string]any) { option(md)["optionId"] = "rare" },
		"option price number": func(md map[string]any) { option(md)["optionPrice"] = 2 },
		"option price format": func(md map[string]any) { option(md)["optionPrice"] = "2.0" },
		"option sum mismatch": func(md map[string]any) { option(md)["optionPrice"] = "3.00" },
	}
	for name, tamper := range cases {
		t.Run(name, func(t *testing.T) {
			md := valid(t)
			tamper(md)
			_, ok := ExtractCanonicalOrderArtifact(md)
			assert.False(t, ok)
			_, ok = ExtractCanonicalBotItems(md)
			assert.False(t, ok)
		})
	}
}

func TestExtractRejectsMissingOrEmpty(t *testing.T) {
	inputs := map[string]any{
		"nil":          nil,
		"empty object": map[string]any{},
		"partial":      map[string]any{"canonicalOrder": map[string]any{"status": "ready_to_execute"}},
		"null order":   map[string]any{"canonicalOrder": nil},
		"array":        []any{1, 2},
		"number":       42,
		"bad json":     `{"canonicalOrder":`,
		"json null":    []byte("null"),
		"trailing":     `{"canonicalOrder":{}} {}`,
		"unencodable":  map[string]any{"canonicalOrder": make(chan int)},
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, ok := ExtractCanonicalOrderArtifact(in)
				assert.False(t, ok)
				items, ok := ExtractCanonicalBotItems(in)
				assert.False(t, ok)
				assert.Nil(t, items)
			})
		})
	}
}

func TestExtractBotItems(t *testing.T) {
	a := BuildAt(sampleItems(), 3550, fixedNow)
	items, ok := ExtractCanonicalBotItems(storedMetadata(t, a))
	require.True(t, ok)
	require.Len(t, items, len(a.Items))
	for i, it := range items {
		assert.Equal(t, a.Items[i].ItemName, it.ItemName)
		assert.Equal(t, a.Items[i].Quantity, it.Quantity)
		assert.Equal(t, a.Items[i].ModifierDetails, it.ModifierDetails)
	}
}

func TestFromResult(t *testing.T) {
	ready := compiler.CompiledOrderResult{
		Status:   compiler.StatusReadyToExecute,
		Items:    sampleItems(),
		Issues:   []compiler.CompilationIssue{},
		Subtotal: 3550,
	}
	a, err := FromResult(ready, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, compiler.Money(3550), a.Subtotal)

	notReady := ready
	notReady.Status = compiler.StatusNeedsUserInput
	notReady.Issues = []compiler.CompilationIssue{{Code: compiler.IssueRequiredModifierMissing}}
	_, err = FromResult(notReady, fixedNow)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestStatusRejectsOtherValues(t *testing.T) {
	var s ReadyToExecute
	assert.NoError(t, json.Unmarshal([]byte(`"ready_to_execute"`), &s))
	assert.Error(t, json.Unmarshal([]byte(`"unfulfillable"`), &s))

	var a Artifact
	assert.Error(t, json.Unmarshal([]byte(`{"status":"needs_user_input"}`), &a))
}

func TestCompiledArtifactSurvivesExtraction(t *testing.T) {
	cat := compiler.Catalog{
		MenuItems: []compiler.MenuItem{{ID: 1, MenuItemGUID: "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a01", Name: "Pho", Price: "13.95"}},
		ModifierGroups: []compiler.ModifierGroup{
			{ID: 1, ModifierGroupGUID: "7a1d3e40-8b2c-4f6a-b1d9-2e5f6a7b8c01", MenuItemID: 1, Name: "Extras", IsMultiSelect: true},
		},
		ModifierOptions: []compiler.ModifierOption{
			{ID: 1, ModifierOptionGUID: "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e01", ModifierGroupID: 1, Name: "Brisket", Price: "3.1"},
			{ID: 2, ModifierOptionGUID: "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e02", ModifierGroupID: 1, Name: "Egg", Price: "0.95"},
		},
	}
	res := compiler.CompileOrderWithCatalog([]compiler.OrderRequestItem{{
		MenuItemGUID: "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a01",
		Quantity:     3,
		SelectedModifiers: map[string][]string{
			"7a1d3e40-8b2c-4f6a-b1d9-2e5f6a7b8c01": {"9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e01", "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e02"},
		},
	}}, cat)
	a, err := FromResult(res, fixedNow)
	require.NoError(t, err)

	got, ok := ExtractCanonicalOrderArtifact(storedMetadata(t, a))
	require.True(t, ok)
	assert.Equal(t, compiler.Money(5400), got.Subtotal)
	assert.Equal(t, a, got)
}

func TestLargestCompilableOrderSurvivesExtraction(t *testing.T) {
	const itemGUID = "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a01"
	cat := compiler.Catalog{
		MenuItems: []compiler.MenuItem{{ID: 1, MenuItemGUID: itemGUID, Name: "Caviar", Price: compiler.MaxPrice.Fixed()}},
	}
	res := compiler.CompileOrderWithCatalog([]compiler.OrderRequestItem{
		{MenuItemGUID: itemGUID, Quantity: compiler.MaxQuantity},
		{MenuItemGUID: itemGUID, Quantity: compiler.MaxQuantity},
	}, cat)
	require.Equal(t, compiler.StatusReadyToExecute, res.Status)

	a, err := FromResult(res, fixedNow)
	require.NoError(t, err)
	got, ok := ExtractCanonicalOrderArtifact(storedMetadata(t, a))
	require.True(t, ok)
	assert.Equal(t, a.Subtotal, got.Subtotal)
	assert.Equal(t, compiler.MaxQuantity, got.Items[0].Quantity)
}

func TestOversizedQuantityIsNeverFrozen(t *testing.T) {
	const itemGUID = "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a01"
	cat := compiler.Catalog{
		MenuItems: []compiler.MenuItem{{ID: 1, MenuItemGUID: itemGUID, Name: "Burger", Price: "10.00"}},
	}
	for _, qty := range []int{3_000_000_000, 1 << 60} {
		res := compiler.CompileOrderWithCatalog([]compiler.OrderRequestItem{{MenuItemGUID: itemGUID, Quantity: qty}}, cat)
		assert.NotEqual(t, compiler.StatusReadyToExecute, res.Status, "qty %d", qty)
		assert.GreaterOrEqual(t, int64(res.Subtotal), int64(0), "qty %d", qty)
		_, err := FromResult(res, fixedNow)
		assert.ErrorIs(t, err, ErrNotReady, "qty %d", qty)
	}
}
