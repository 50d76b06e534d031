package canonical

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"concierge/internal/compiler"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var optionPricePattern = regexp.MustCompile(`^\d+\.\d{2}$`)

// BotItem is the reduced item shape consumed by bot-ordering automation.
type BotItem struct {
	ItemName        string                    `json:"itemName"`
	Quantity        int                       `json:"quantity"`
	ModifierDetails []compiler.ModifierDetail `json:"modifierDetails"`
}

// ExtractCanonicalOrderArtifact reads the artifact out of untrusted order
// metadata. metadata may be decoded JSON, raw JSON bytes or text, or any value
// that marshals to a JSON object. It reports false when the artifact is
// missing or fails validation, and never panics.
func ExtractCanonicalOrderArtifact(metadata any) (Artifact, bool) {
	root, ok := decodeRoot(metadata)
	if !ok {
		return Artifact{}, false
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return Artifact{}, false
	}
	raw, present := obj[MetadataKey]
	if !present {
		return Artifact{}, false
	}
	value, ok := roundTrip(raw)
	if !ok {
		return Artifact{}, false
	}
	return parseArtifact(value)
}

// ExtractCanonicalBotItems projects the stored artifact to bot items. It
// reports false exactly when ExtractCanonicalOrderArtifact does.
func ExtractCanonicalBotItems(metadata any) ([]BotItem, bool) {
	a, ok := ExtractCanonicalOrderArtifact(metadata)
	if !ok {
		return nil, false
	}
	out := make([]BotItem, len(a.Items))
	for i, it := range a.Items {
		out[i] = BotItem{
			ItemName:        it.ItemName,
			Quantity:        it.Quantity,
			ModifierDetails: copyDetails(it.ModifierDetails),
		}
	}
	return out, true
}

func decodeRoot(metadata any) (any, bool) {
	switch m := metadata.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return m, true
	case json.RawMessage:
		return decodeJSON(m)
	case []byte:
		return decodeJSON(m)
	case string:
		return decodeJSON([]byte(m))
	}
	return roundTrip(metadata)
}

// roundTrip re-encodes v so typed values (an Artifact placed by WithArtifact,
// float64 from a default decode) are validated in their JSON form.
func roundTrip(v any) (any, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return decodeJSON(data)
}

func decodeJSON(data []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return v, true
}

// fields checks that obj carries exactly the given keys.
func fields(v any, keys ...string) (map[string]any, bool) {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) != len(keys) {
		return nil, false
	}
	for _, k := range keys {
		if _, present := obj[k]; !present {
			return nil, false
		}
	}
	return obj, true
}

func parseArtifact(v any) (Artifact, bool) {
	obj, ok := fields(v, "compilerVersion", "compiledAt", "status", "subtotal", "itemCount", "items")
	if !ok {
		return Artifact{}, false
	}
	if version, ok := obj["compilerVersion"].(string); !ok || version != CompilerVersion {
		return Artifact{}, false
	}
	compiledAt, ok := obj["compiledAt"].(string)
	if !ok {
		return Artifact{}, false
	}
	if _, err := time.Parse(time.RFC3339Nano, compiledAt); err != nil {
		return Artifact{}, false
	}
	if status, ok := obj["status"].(string); !ok || status != string(compiler.StatusReadyToExecute) {
		return Artifact{}, false
	}
	subtotal, ok := money(obj["subtotal"])
	if !ok {
		return Artifact{}, false
	}
	itemCount, ok := integer(obj["itemCount"])
	if !ok {
		return Artifact{}, false
	}
	rawItems, ok := obj["items"].([]any)
	if !ok || len(rawItems) != itemCount {
		return Artifact{}, false
	}
	items := make([]compiler.CompiledOrderItem, 0, len(rawItems))
	for _, ri := range rawItems {
		it, ok := parseItem(ri)
		if !ok {
			return Artifact{}, false
		}
		items = append(items, it)
	}
	return Artifact{
		CompilerVersion: CompilerVersion,
		CompiledAt:      compiledAt,
		Subtotal:        subtotal,
		ItemCount:       itemCount,
		Items:           items,
	}, true
}

func parseItem(v any) (compiler.CompiledOrderItem, bool) {
	var it compiler.CompiledOrderItem
	obj, ok := fields(v, "menuItemGuid", "itemName", "basePrice", "modifierPrice", "unitPrice", "quantity", "totalPrice", "modifierDetails")
	if !ok {
		return it, false
	}
	if it.MenuItemGUID, ok = guid(obj["menuItemGuid"]); !ok {
		return it, false
	}
	if it.ItemName, ok = obj["itemName"].(string); !ok || strings.TrimSpace(it.ItemName) == "" {
		return it, false
	}
	if it.BasePrice, ok = money(obj["basePrice"]); !ok {
		return it, false
	}
	if it.ModifierPrice, ok = money(obj["modifierPrice"]); !ok {
		return it, false
	}
	if it.UnitPrice, ok = money(obj["unitPrice"]); !ok {
		return it, false
	}
	if it.TotalPrice, ok = money(obj["totalPrice"]); !ok {
		return it, false
	}
	if it.Quantity, ok = integer(obj["quantity"]); !ok || it.Quantity < 1 || it.Quantity > compiler.MaxQuantity {
		return it, false
	}
	unit, ok := it.BasePrice.Plus(it.ModifierPrice)
	if !ok || unit != it.UnitPrice {
		return it, false
	}
	if total, ok := unit.Times(it.Quantity); !ok || total != it.TotalPrice {
		return it, false
	}

	rawDetails, ok := obj["modifierDetails"].([]any)
	if !ok {
		return it, false
	}
	it.ModifierDetails = make([]compiler.ModifierDetail, 0, len(rawDetails))
	var optionSum compiler.Money
	for _, rd := range rawDetails {
		d, sum, ok := parseDetail(rd)
		if !ok {
			return it, false
		}
		if optionSum, ok = optionSum.Plus(sum); !ok {
			return it, false
		}
		it.ModifierDetails = append(it.ModifierDetails, d)
	}
	if optionSum != it.ModifierPrice {
		return it, false
	}
	return it, true
}

func parseDetail(v any) (compiler.ModifierDetail, compiler.Money, bool) {
	var d compiler.ModifierDetail
	obj, ok := fields(v, "groupId", "groupName", "options")
	if !ok {
		return d, 0, false
	}
	if d.GroupID, ok = guid(obj["groupId"]); !ok {
		return d, 0, false
	}
	if d.GroupName, ok = obj["groupName"].(string); !ok {
		return d, 0, false
	}
	rawOpts, ok := obj["options"].([]any)
	if !ok {
		return d, 0, false
	}
	d.Options = make([]compiler.ModifierOptionDetail, 0, len(rawOpts))
	var sum compiler.Money
	for _, ro := range rawOpts {
		o, ok := fields(ro, "optionId", "optionName", "optionPrice")
		if !ok {
			return d, 0, false
		}
		var opt compiler.ModifierOptionDetail
		if opt.OptionID, ok = guid(o["optionId"]); !ok {
			return d, 0, false
		}
		if opt.OptionName, ok = o["optionName"].(string); !ok {
			return d, 0, false
		}
		if opt.OptionPrice, ok = o["optionPrice"].(string); !ok || !optionPricePattern.MatchString(opt.OptionPrice) {
			return d, 0, false
		}
		price, err := compiler.ParseMoney(opt.OptionPrice)
		if err != nil {
			return d, 0, false
		}
		if sum, ok = sum.Plus(price); !ok {
			return d, 0, false
		}
		d.Options = append(d.Options, opt)
	}
	return d, sum, true
}

// guid accepts only the canonical 36 character hyphenated form.
func guid(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || len(s) != 36 {
		return "", false
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", false
	}
	return s, true
}

func number(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	}
	return decimal.Decimal{}, false
}

func money(v any) (compiler.Money, bool) {
	d, ok := number(v)
	if !ok {
		return 0, false
	}
	return compiler.MoneyFromDecimal(d)
}

func integer(v any) (int, bool) {
	d, ok := number(v)
	if !ok || !d.IsInteger() || d.IsNegative() || d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0, false
	}
	return int(d.IntPart()), true
}
