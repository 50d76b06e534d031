package domain

type Restaurant struct {
	GUID      string `json:"guid"`
	Name      string `json:"name"`
	ItemCount int    `json:"item_count"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Order statuses.
const (
	OrderPending  = "pending"
	OrderNeedsOps = "needs_ops"
)

type Order struct {
	ID             string `json:"id"`
	RestaurantGUID string `json:"restaurant_guid"`
	GuestRoom      string `json:"guest_room,omitempty"`
	GuestName      string `json:"guest_name,omitempty"`
	Status         string `json:"status" enum:"pending,needs_ops"`
	CompileStatus  string `json:"compile_status" enum:"ready_to_execute,needs_user_input,unfulfillable"`
	// Subtotal is in cents.
	Subtotal          int64  `json:"subtotal_cents"`
	RequestText       string `json:"request_text,omitempty"`
	RequestItemsJSON  string `json:"request_items_json"`
	FallbackItemsJSON string `json:"fallback_items_json"`
	IssuesJSON        string `json:"issues_json"`
	MetadataJSON      string `json:"metadata_json"`
	CreatedBy         string `json:"created_by"`
	CreatedAt         string `json:"created_at" format:"date-time"`
	UpdatedAt         string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Restaurant string `json:"restaurant_guid,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
