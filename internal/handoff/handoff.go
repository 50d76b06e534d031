// Package handoff builds the payloads sent to human ops and to the
// order-created alert channel. Both prefer the canonical artifact stored in
// order metadata and fall back to caller-supplied items when it is absent or
// invalid.
package handoff

import (
	"fmt"
	"strings"
	"time"

	"concierge/internal/canonical"
	"concierge/internal/compiler"
)

// Source says where a payload's items came from.
type Source string

const (
	SourceCanonical Source = "canonical"
	SourceFallback  Source = "fallback"

	// UnknownCompilerVersion is reported when no valid artifact was found.
	UnknownCompilerVersion = "unknown"
)

// FallbackItem is the plain item shape callers keep alongside an order.
type FallbackItem struct {
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// Item is one order line as humans read it.
type Item struct {
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	Modifiers []string `json:"modifiers"`
	Line      string   `json:"line"`
}

type RestaurantRef struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
}

type CompilerInfo struct {
	CompilerVersion string `json:"compilerVersion"`
	Source          Source `json:"source"`
	CompiledAt      string `json:"compiledAt,omitempty"`
}

type HandoffInput struct {
	OrderID       string
	Restaurant    RestaurantRef
	GuestRoom     string
	GuestName     string
	Reason        string
	Channel       string
	Metadata      any
	FallbackItems []FallbackItem
	// FallbackSubtotal is used only when no artifact is found. Nil means unknown.
	FallbackSubtotal *compiler.Money
	Issues           []compiler.CompilationIssue
	Now              time.Time
}

// OpsHandoffPayload is what a human operator receives when an order needs
// manual handling.
type OpsHandoffPayload struct {
	OrderID    string                      `json:"orderId"`
	Restaurant RestaurantRef               `json:"restaurant"`
	GuestRoom  string                      `json:"guestRoom"`
	GuestName  string                      `json:"guestName,omitempty"`
	Reason     string                      `json:"reason"`
	Channel    string                      `json:"channel,omitempty"`
	Items      []Item                      `json:"items"`
	Subtotal   string                      `json:"subtotal,omitempty"`
	Issues     []compiler.CompilationIssue `json:"issues"`
	Compiler   CompilerInfo                `json:"compiler"`
	Summary    string                      `json:"summary"`
	CreatedAt  string                      `json:"createdAt"`
}

// BuildOpsHandoff assembles the ops payload for one order.
func BuildOpsHandoff(in HandoffInput) OpsHandoffPayload {
	items, subtotal, info := resolveItems(in.Metadata, in.FallbackItems, in.FallbackSubtotal)
	issues := make([]compiler.CompilationIssue, len(in.Issues))
	copy(issues, in.Issues)
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "manual handling requested"
	}
	p := OpsHandoffPayload{
		OrderID:    in.OrderID,
		Restaurant: in.Restaurant,
		GuestRoom:  in.GuestRoom,
		GuestName:  in.GuestName,
		Reason:     reason,
		Channel:    in.Channel,
		Items:      items,
		Subtotal:   subtotal,
		Issues:     issues,
		Compiler:   info,
		CreatedAt:  now.UTC().Format(time.RFC3339),
	}
	p.Summary = fmt.Sprintf("Room %s: %s from %s (%s)", orDash(in.GuestRoom), joinLines(items), restaurantLabel(in.Restaurant), reason)
	return p
}

type AlertInput struct {
	OrderID          string
	Restaurant       RestaurantRef
	GuestRoom        string
	Metadata         any
	FallbackItems    []FallbackItem
	FallbackSubtotal *compiler.Money
}

// OrderAlertPayload announces a newly created order.
type OrderAlertPayload struct {
	OrderID    string        `json:"orderId"`
	Restaurant RestaurantRef `json:"restaurant"`
	GuestRoom  string        `json:"guestRoom"`
	Lines      []string      `json:"lines"`
	Subtotal   string        `json:"subtotal,omitempty"`
	Source     Source        `json:"source"`
	Text       string        `json:"text"`
}

func BuildOrderAlert(in AlertInput) OrderAlertPayload {
	items, subtotal, info := resolveItems(in.Metadata, in.FallbackItems, in.FallbackSubtotal)
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = it.Line
	}
	text := fmt.Sprintf("New order %s for room %s at %s: %s", in.OrderID, orDash(in.GuestRoom), restaurantLabel(in.Restaurant), joinLines(items))
	if subtotal != "" {
		text += " ($" + subtotal + ")"
	}
	return OrderAlertPayload{
		OrderID:    in.OrderID,
		Restaurant: in.Restaurant,
		GuestRoom:  in.GuestRoom,
		Lines:      lines,
		Subtotal:   subtotal,
		Source:     info.Source,
		Text:       text,
	}
}

func resolveItems(metadata any, fallback []FallbackItem, fallbackSubtotal *compiler.Money) ([]Item, string, CompilerInfo) {
	if a, ok := canonical.ExtractCanonicalOrderArtifact(metadata); ok {
		items := make([]Item, 0, len(a.Items))
		for _, it := range a.Items {
			items = append(items, newItem(it.ItemName, it.Quantity, modifierLabels(it.ModifierDetails)))
		}
		return items, a.Subtotal.Fixed(), CompilerInfo{
			CompilerVersion: a.CompilerVersion,
			Source:          SourceCanonical,
			CompiledAt:      a.CompiledAt,
		}
	}
	items := make([]Item, 0, len(fallback))
	for _, f := range fallback {
		mods := make([]string, 0, len(f.Modifiers))
		for _, m := range f.Modifiers {
			if m = strings.TrimSpace(m); m != "" {
				mods = append(mods, m)
			}
		}
		items = append(items, newItem(f.Name, max(f.Quantity, 1), mods))
	}
	subtotal := ""
	if fallbackSubtotal != nil {
		subtotal = fallbackSubtotal.Fixed()
	}
	return items, subtotal, CompilerInfo{CompilerVersion: UnknownCompilerVersion, Source: SourceFallback}
}

// modifierLabels renders each group as "Group: Option, Option".
func modifierLabels(details []compiler.ModifierDetail) []string {
	labels := make([]string, 0, len(details))
	for _, d := range details {
		names := make([]string, 0, len(d.Options))
		for _, o := range d.Options {
			names = append(names, o.OptionName)
		}
		if len(names) == 0 {
			continue
		}
		labels = append(labels, d.GroupName+": "+strings.Join(names, ", "))
	}
	return labels
}

func newItem(name string, qty int, mods []string) Item {
	line := fmt.Sprintf("%dx %s", qty, name)
	if len(mods) > 0 {
		line += " (" + strings.Join(mods, "; ") + ")"
	}
	return Item{Name: name, Quantity: qty, Modifiers: mods, Line: line}
}

func joinLines(items []Item) string {
	if len(items) == 0 {
		return "no items"
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = it.Line
	}
	return strings.Join(lines, ", ")
}

func restaurantLabel(r RestaurantRef) string {
	if r.Name != "" {
		return r.Name
	}
	return orDash(r.GUID)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
