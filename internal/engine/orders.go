package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"concierge/internal/canonical"
	"concierge/internal/compiler"
	"concierge/internal/domain"
	"concierge/internal/events"
	"concierge/internal/handoff"
)

// CompileOrder validates and prices items against the restaurant's current
// catalog snapshot.
func (e Engine) CompileOrder(ctx context.Context, restaurantGUID string, items []compiler.OrderRequestItem) (compiler.CompiledOrderResult, error) {
	cat, err := e.Catalog(ctx, restaurantGUID)
	if err != nil {
		return compiler.CompiledOrderResult{}, err
	}
	res := compiler.CompileOrderWithCatalog(items, cat)
	m := e.metrics()
	m.Compilations.WithLabelValues(string(res.Status)).Inc()
	for _, is := range res.Issues {
		m.CompileIssues.WithLabelValues(string(is.Code)).Inc()
	}
	e.log().Debug("order compiled",
		zap.String("restaurant", restaurantGUID),
		zap.String("status", string(res.Status)),
		zap.Int("items", len(res.Items)),
		zap.Int("issues", len(res.Issues)),
		zap.Stringer("subtotal", res.Subtotal))
	return res, nil
}

type PlaceOrderInput struct {
	RestaurantGUID string
	GuestRoom      string
	GuestName      string
	RequestText    string
	Items          []compiler.OrderRequestItem
	// FallbackItems are kept with the order for consumers that cannot read
	// the canonical artifact. Derived from the compilation when empty.
	FallbackItems []handoff.FallbackItem
	Metadata      map[string]any
	// AllowManual stores an order that is not ready as needs_ops instead of
	// rejecting it.
	AllowManual bool
	Reason      string
	ActorID     string
}

type PlaceOrderResult struct {
	Order    domain.Order                 `json:"order"`
	Compile  compiler.CompiledOrderResult `json:"compile"`
	Artifact *canonical.Artifact          `json:"artifact,omitempty"`
}

// PlaceOrder compiles in.Items and stores the order. A ready compilation is
// frozen into the canonical artifact inside the order metadata and announced
// with order.created. Anything else is rejected with *CompileRejectedError,
// or escalated to ops with order.escalated when AllowManual is set.
func (e Engine) PlaceOrder(ctx context.Context, in PlaceOrderInput) (PlaceOrderResult, error) {
	if strings.TrimSpace(in.ActorID) == "" {
		return PlaceOrderResult{}, invalidf("actor is required")
	}
	if len(in.Items) == 0 {
		return PlaceOrderResult{}, invalidf("at least one item is required")
	}
	rest, err := e.Repo.GetRestaurant(ctx, in.RestaurantGUID)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("restaurant %s: %w", in.RestaurantGUID, err)
	}
	res, err := e.CompileOrder(ctx, rest.GUID, in.Items)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	ready := res.Status == compiler.StatusReadyToExecute
	if !ready && !in.AllowManual {
		return PlaceOrderResult{}, &CompileRejectedError{Result: res}
	}

	now := e.now()
	fallback := in.FallbackItems
	if len(fallback) == 0 {
		fallback = fallbackFromResult(res)
	}
	order := domain.Order{
		ID:             uuid.NewString(),
		RestaurantGUID: rest.GUID,
		GuestRoom:      strings.TrimSpace(in.GuestRoom),
		GuestName:      strings.TrimSpace(in.GuestName),
		CompileStatus:  string(res.Status),
		Subtotal:       int64(res.Subtotal),
		RequestText:    in.RequestText,
		CreatedBy:      in.ActorID,
		CreatedAt:      now.UTC().Format(time.RFC3339),
		UpdatedAt:      now.UTC().Format(time.RFC3339),
	}
	out := PlaceOrderResult{Compile: res}

	metadata := copyMetadata(in.Metadata)
	if ready {
		artifact, err := canonical.FromResult(res, now)
		if err != nil {
			return PlaceOrderResult{}, err
		}
		metadata = canonical.WithArtifact(metadata, artifact)
		out.Artifact = &artifact
		order.Status = domain.OrderPending
	} else {
		order.Status = domain.OrderNeedsOps
	}
	if order.RequestItemsJSON, err = marshalJSON(in.Items); err != nil {
		return PlaceOrderResult{}, err
	}
	if order.FallbackItemsJSON, err = marshalJSON(fallback); err != nil {
		return PlaceOrderResult{}, err
	}
	if order.IssuesJSON, err = marshalJSON(res.Issues); err != nil {
		return PlaceOrderResult{}, err
	}
	if order.MetadataJSON, err = marshalJSON(metadata); err != nil {
		return PlaceOrderResult{}, err
	}

	restaurant := handoff.RestaurantRef{GUID: rest.GUID, Name: rest.Name}
	evtType := events.OrderCreated
	var payload events.EventPayload
	if ready {
		payload = events.EventPayload{"currency": e.currency(), "alert": handoff.BuildOrderAlert(handoff.AlertInput{
			OrderID:       order.ID,
			Restaurant:    restaurant,
			GuestRoom:     order.GuestRoom,
			Metadata:      metadata,
			FallbackItems: fallback,
		})}
	} else {
		evtType = events.OrderEscalated
		payload = events.EventPayload{"currency": e.currency(), "handoff": handoff.BuildOpsHandoff(handoff.HandoffInput{
			OrderID:       order.ID,
			Restaurant:    restaurant,
			GuestRoom:     order.GuestRoom,
			GuestName:     order.GuestName,
			Reason:        in.Reason,
			Channel:       e.opsChannel(),
			Metadata:      metadata,
			FallbackItems: fallback,
			Issues:        res.Issues,
			Now:           now,
		})}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return PlaceOrderResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOrderTx(ctx, tx, order); err != nil {
		return PlaceOrderResult{}, fmt.Errorf("insert order: %w", err)
	}
	if err := e.Events.Append(ctx, tx, evtType, rest.GUID, "order", order.ID, in.ActorID, payload); err != nil {
		return PlaceOrderResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return PlaceOrderResult{}, err
	}
	e.log().Info("order placed",
		zap.String("order", order.ID),
		zap.String("restaurant", rest.GUID),
		zap.String("status", order.Status),
		zap.String("compile_status", order.CompileStatus),
		zap.String("event", evtType))
	out.Order = order
	return out, nil
}

// OrderBotItems returns the bot projection of the order's canonical artifact.
// ok is false when the order carries no valid artifact.
func (e Engine) OrderBotItems(ctx context.Context, orderID string) (items []canonical.BotItem, ok bool, err error) {
	order, err := e.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	items, ok = canonical.ExtractCanonicalBotItems(json.RawMessage(order.MetadataJSON))
	if !ok {
		e.log().Warn("order has no canonical artifact", zap.String("order", orderID))
	}
	return items, ok, nil
}

// OrderHandoff builds the ops handoff payload for a stored order.
func (e Engine) OrderHandoff(ctx context.Context, orderID, reason string) (handoff.OpsHandoffPayload, error) {
	order, rest, err := e.orderWithRestaurant(ctx, orderID)
	if err != nil {
		return handoff.OpsHandoffPayload{}, err
	}
	var issues []compiler.CompilationIssue
	if err := unmarshalJSON(order.IssuesJSON, &issues); err != nil {
		return handoff.OpsHandoffPayload{}, err
	}
	var fallback []handoff.FallbackItem
	if err := unmarshalJSON(order.FallbackItemsJSON, &fallback); err != nil {
		return handoff.OpsHandoffPayload{}, err
	}
	subtotal := compiler.Money(order.Subtotal)
	return handoff.BuildOpsHandoff(handoff.HandoffInput{
		OrderID:          order.ID,
		Restaurant:       handoff.RestaurantRef{GUID: rest.GUID, Name: rest.Name},
		GuestRoom:        order.GuestRoom,
		GuestName:        order.GuestName,
		Reason:           reason,
		Channel:          e.opsChannel(),
		Metadata:         json.RawMessage(order.MetadataJSON),
		FallbackItems:    fallback,
		FallbackSubtotal: &subtotal,
		Issues:           issues,
		Now:              e.now(),
	}), nil
}

// OrderAlert builds the order-created alert payload for a stored order.
func (e Engine) OrderAlert(ctx context.Context, orderID string) (handoff.OrderAlertPayload, error) {
	order, rest, err := e.orderWithRestaurant(ctx, orderID)
	if err != nil {
		return handoff.OrderAlertPayload{}, err
	}
	var fallback []handoff.FallbackItem
	if err := unmarshalJSON(order.FallbackItemsJSON, &fallback); err != nil {
		return handoff.OrderAlertPayload{}, err
	}
	subtotal := compiler.Money(order.Subtotal)
	return handoff.BuildOrderAlert(handoff.AlertInput{
		OrderID:          order.ID,
		Restaurant:       handoff.RestaurantRef{GUID: rest.GUID, Name: rest.Name},
		GuestRoom:        order.GuestRoom,
		Metadata:         json.RawMessage(order.MetadataJSON),
		FallbackItems:    fallback,
		FallbackSubtotal: &subtotal,
	}), nil
}

func (e Engine) orderWithRestaurant(ctx context.Context, orderID string) (domain.Order, domain.Restaurant, error) {
	order, err := e.Repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, domain.Restaurant{}, err
	}
	rest, err := e.Repo.GetRestaurant(ctx, order.RestaurantGUID)
	if err != nil {
		return domain.Order{}, domain.Restaurant{}, err
	}
	return order, rest, nil
}

func (e Engine) opsChannel() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Handoff.OpsChannel
}

func (e Engine) currency() string {
	if e.Config == nil || e.Config.Compiler.Currency == "" {
		return "USD"
	}
	return strings.ToUpper(strings.TrimSpace(e.Config.Compiler.Currency))
}

// fallbackFromResult keeps the compiled lines in the plain shape.
func fallbackFromResult(res compiler.CompiledOrderResult) []handoff.FallbackItem {
	out := make([]handoff.FallbackItem, 0, len(res.Items))
	for _, it := range res.Items {
		f := handoff.FallbackItem{Name: it.ItemName, Quantity: it.Quantity}
		for _, d := range it.ModifierDetails {
			for _, o := range d.Options {
				f.Modifiers = append(f.Modifiers, o.OptionName)
			}
		}
		out = append(out, f)
	}
	return out
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if k == canonical.MetadataKey {
			continue
		}
		out[k] = v
	}
	return out
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalJSON(raw string, v any) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode stored order: %w", err)
	}
	return nil
}

// AsCompileRejected unwraps a *CompileRejectedError from err.
func AsCompileRejected(err error) (*CompileRejectedError, bool) {
	var rejected *CompileRejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}
