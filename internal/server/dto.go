package server

import (
	"encoding/json"

	"concierge/internal/canonical"
	"concierge/internal/compiler"
	"concierge/internal/domain"
	"concierge/internal/engine"
	"concierge/internal/handoff"
	"concierge/internal/matching"
)

// Request payloads

type ParseRequest struct {
	Text string `json:"text"`
}

type MatchRequest struct {
	Text            string   `json:"text"`
	RestaurantGUIDs []string `json:"restaurant_guids,omitempty"`
}

type CompileRequest struct {
	Items []compiler.OrderRequestItem `json:"items"`
}

type PlaceOrderRequest struct {
	RestaurantGUID string                      `json:"restaurant_guid"`
	GuestRoom      string                      `json:"guest_room,omitempty"`
	GuestName      string                      `json:"guest_name,omitempty"`
	RequestText    string                      `json:"request_text,omitempty"`
	Items          []compiler.OrderRequestItem `json:"items"`
	FallbackItems  []handoff.FallbackItem      `json:"fallback_items,omitempty"`
	Metadata       map[string]any              `json:"metadata,omitempty"`
	AllowManual    bool                        `json:"allow_manual,omitempty"`
	Reason         string                      `json:"reason,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Responses

type HealthResponse struct {
	Status        string `json:"status"`
	SchemaVersion int    `json:"schema_version"`
}

type ParseResponse struct {
	Lines []matching.ParsedRequestLine `json:"lines"`
}

type OrderResponse struct {
	ID             string                      `json:"id"`
	RestaurantGUID string                      `json:"restaurant_guid"`
	GuestRoom      string                      `json:"guest_room,omitempty"`
	GuestName      string                      `json:"guest_name,omitempty"`
	Status         string                      `json:"status" enum:"pending,needs_ops"`
	CompileStatus  string                      `json:"compile_status" enum:"ready_to_execute,needs_user_input,unfulfillable"`
	Subtotal       string                      `json:"subtotal" example:"27.00"`
	RequestText    string                      `json:"request_text,omitempty"`
	Items          []compiler.OrderRequestItem `json:"items"`
	Issues         []compiler.CompilationIssue `json:"issues"`
	Metadata       map[string]any              `json:"metadata"`
	CreatedBy      string                      `json:"created_by"`
	CreatedAt      string                      `json:"created_at" format:"date-time"`
	UpdatedAt      string                      `json:"updated_at" format:"date-time"`
}

type PlaceOrderResponse struct {
	Order    OrderResponse                `json:"order"`
	Compile  compiler.CompiledOrderResult `json:"compile"`
	Artifact *canonical.Artifact          `json:"artifact,omitempty"`
}

type BotItemsResponse struct {
	OrderID string              `json:"order_id"`
	Items   []canonical.BotItem `json:"items"`
}

type EventResponse struct {
	ID             int64  `json:"id"`
	TS             string `json:"ts" format:"date-time"`
	Type           string `json:"type"`
	RestaurantGUID string `json:"restaurant_guid,omitempty"`
	EntityKind     string `json:"entity_kind"`
	EntityID       string `json:"entity_id,omitempty"`
	ActorID        string `json:"actor_id"`
	Payload        any    `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type restaurantList struct {
	Items []domain.Restaurant `json:"items"`
}

type orderList struct {
	Items []OrderResponse `json:"items"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Mapping helpers

func orderResponse(o domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:             o.ID,
		RestaurantGUID: o.RestaurantGUID,
		GuestRoom:      o.GuestRoom,
		GuestName:      o.GuestName,
		Status:         o.Status,
		CompileStatus:  o.CompileStatus,
		Subtotal:       compiler.Money(o.Subtotal).Fixed(),
		RequestText:    o.RequestText,
		Items:          []compiler.OrderRequestItem{},
		Issues:         []compiler.CompilationIssue{},
		Metadata:       map[string]any{},
		CreatedBy:      o.CreatedBy,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	// Stored columns are written by the engine; a decode failure leaves the
	// empty defaults.
	_ = decodeStored(o.RequestItemsJSON, &resp.Items)
	_ = decodeStored(o.IssuesJSON, &resp.Issues)
	_ = decodeStored(o.MetadataJSON, &resp.Metadata)
	resp.Items = nonNilSlice(resp.Items)
	resp.Issues = nonNilSlice(resp.Issues)
	if resp.Metadata == nil {
		resp.Metadata = map[string]any{}
	}
	return resp
}

func placeOrderResponse(res engine.PlaceOrderResult) PlaceOrderResponse {
	return PlaceOrderResponse{
		Order:    orderResponse(res.Order),
		Compile:  compileResponse(res.Compile),
		Artifact: res.Artifact,
	}
}

func compileResponse(res compiler.CompiledOrderResult) compiler.CompiledOrderResult {
	res.Items = nonNilSlice(res.Items)
	res.Issues = nonNilSlice(res.Issues)
	return res
}

func eventResponse(e domain.Event) EventResponse {
	var payload any = map[string]any{}
	if e.Payload != "" {
		if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
			payload = map[string]any{"raw": e.Payload}
		}
	}
	return EventResponse{
		ID:             e.ID,
		TS:             e.TS,
		Type:           e.Type,
		RestaurantGUID: e.Restaurant,
		EntityKind:     e.EntityKind,
		EntityID:       e.EntityID,
		ActorID:        e.ActorID,
		Payload:        payload,
	}
}

func decodeStored(raw string, v any) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), v)
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
