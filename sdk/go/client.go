package conciergesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Concierge HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// OrderItem is one requested menu item with modifier option GUIDs keyed by
// modifier group GUID.
type OrderItem struct {
	MenuItemGUID      string              `json:"menuItemGuid"`
	Quantity          int                 `json:"quantity"`
	SelectedModifiers map[string][]string `json:"selectedModifiers,omitempty"`
}

// Issue is one compilation problem.
type Issue struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	MenuItemGUID string `json:"menuItemGuid,omitempty"`
	GroupID      string `json:"groupId,omitempty"`
	OptionID     string `json:"optionId,omitempty"`
}

// ModifierOption is a chosen option with its price as a two-decimal string.
type ModifierOption struct {
	OptionID    string `json:"optionId"`
	OptionName  string `json:"optionName"`
	OptionPrice string `json:"optionPrice"`
}

type ModifierDetail struct {
	GroupID   string           `json:"groupId"`
	GroupName string           `json:"groupName"`
	Options   []ModifierOption `json:"options"`
}

// CompiledItem is a priced line. Prices are decimal numbers.
type CompiledItem struct {
	MenuItemGUID    string           `json:"menuItemGuid"`
	ItemName        string           `json:"itemName"`
	BasePrice       json.Number      `json:"basePrice"`
	ModifierPrice   json.Number      `json:"modifierPrice"`
	UnitPrice       json.Number      `json:"unitPrice"`
	Quantity        int              `json:"quantity"`
	TotalPrice      json.Number      `json:"totalPrice"`
	ModifierDetails []ModifierDetail `json:"modifierDetails"`
}

type CompileResult struct {
	Status   string         `json:"status"`
	Items    []CompiledItem `json:"items"`
	Issues   []Issue        `json:"issues"`
	Subtotal json.Number    `json:"subtotal"`
}

// Ready reports whether the order can be executed without human input.
func (r CompileResult) Ready() bool { return r.Status == "ready_to_execute" }

type Candidate struct {
	MenuItemGUID string  `json:"menu_item_guid"`
	Name         string  `json:"name"`
	Price        string  `json:"price"`
	Score        float64 `json:"score"`
	MatchedText  string  `json:"matched_text"`
}

type ParsedLine struct {
	Quantity   int    `json:"quantity"`
	Normalized string `json:"normalized"`
	Raw        string `json:"raw"`
}

type MatchedLine struct {
	Line       ParsedLine  `json:"line"`
	Candidates []Candidate `json:"candidates"`
}

type MatchResult struct {
	RestaurantGUID string        `json:"restaurant_guid"`
	Lines          []MatchedLine `json:"lines"`
	Coverage       int           `json:"coverage"`
	Draft          []OrderItem   `json:"draft"`
}

type Order struct {
	ID             string         `json:"id"`
	RestaurantGUID string         `json:"restaurant_guid"`
	GuestRoom      string         `json:"guest_room"`
	GuestName      string         `json:"guest_name"`
	Status         string         `json:"status"`
	CompileStatus  string         `json:"compile_status"`
	Subtotal       string         `json:"subtotal"`
	Items          []OrderItem    `json:"items"`
	Issues         []Issue        `json:"issues"`
	Metadata       map[string]any `json:"metadata"`
	CreatedBy      string         `json:"created_by"`
	CreatedAt      string         `json:"created_at"`
}

// PlaceOrderRequest mirrors POST /orders.
type PlaceOrderRequest struct {
	RestaurantGUID string         `json:"restaurant_guid"`
	GuestRoom      string         `json:"guest_room,omitempty"`
	GuestName      string         `json:"guest_name,omitempty"`
	RequestText    string         `json:"request_text,omitempty"`
	Items          []OrderItem    `json:"items"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	AllowManual    bool           `json:"allow_manual,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

type PlacedOrder struct {
	Order    Order           `json:"order"`
	Compile  CompileResult   `json:"compile"`
	Artifact json.RawMessage `json:"artifact,omitempty"`
}

// BotItem is what an ordering bot needs per line.
type BotItem struct {
	ItemName        string           `json:"itemName"`
	Quantity        int              `json:"quantity"`
	ModifierDetails []ModifierDetail `json:"modifierDetails"`
}

type HandoffItem struct {
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	Modifiers []string `json:"modifiers"`
	Line      string   `json:"line"`
}

type RestaurantRef struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
}

type Handoff struct {
	OrderID    string        `json:"orderId"`
	Restaurant RestaurantRef `json:"restaurant"`
	GuestRoom  string        `json:"guestRoom"`
	Reason     string        `json:"reason"`
	Channel    string        `json:"channel"`
	Items      []HandoffItem `json:"items"`
	Subtotal   string        `json:"subtotal"`
	Issues     []Issue       `json:"issues"`
	Compiler   struct {
		CompilerVersion string `json:"compilerVersion"`
		Source          string `json:"source"`
		CompiledAt      string `json:"compiledAt"`
	} `json:"compiler"`
	Summary   string `json:"summary"`
	CreatedAt string `json:"createdAt"`
}

// Event represents a log entry.
type Event struct {
	ID             int64          `json:"id"`
	TS             string         `json:"ts"`
	Type           string         `json:"type"`
	RestaurantGUID string         `json:"restaurant_guid"`
	EntityKind     string         `json:"entity_kind"`
	EntityID       string         `json:"entity_id"`
	ActorID        string         `json:"actor_id"`
	Payload        map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

type Alert struct {
	OrderID    string        `json:"orderId"`
	Restaurant RestaurantRef `json:"restaurant"`
	GuestRoom  string        `json:"guestRoom"`
	Lines      []string      `json:"lines"`
	Subtotal   string        `json:"subtotal"`
	Source     string        `json:"source"`
	Text       string        `json:"text"`
}

type Restaurant struct {
	GUID      string `json:"guid"`
	Name      string `json:"name"`
	ItemCount int    `json:"item_count"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ListRestaurants returns every restaurant with a stored catalog.
func (c *Client) ListRestaurants(ctx context.Context) ([]Restaurant, error) {
	var resp struct {
		Items []Restaurant `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "restaurants", nil, &resp)
	return resp.Items, err
}

// ImportCatalog replaces a restaurant's catalog. doc must be the catalog
// document in its JSON form.
func (c *Client) ImportCatalog(ctx context.Context, restaurantGUID string, doc any) (Restaurant, error) {
	var resp Restaurant
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("restaurants/%s/catalog", url.PathEscape(restaurantGUID)), doc, &resp)
	return resp, err
}

// Parse splits free text into request lines.
func (c *Client) Parse(ctx context.Context, text string) ([]ParsedLine, error) {
	var resp struct {
		Lines []ParsedLine `json:"lines"`
	}
	err := c.do(ctx, http.MethodPost, "requests/parse", map[string]string{"text": text}, &resp)
	return resp.Lines, err
}

// Match scores text against the given restaurants, or all when none.
func (c *Client) Match(ctx context.Context, text string, restaurantGUIDs ...string) (MatchResult, error) {
	body := map[string]any{"text": text}
	if len(restaurantGUIDs) > 0 {
		body["restaurant_guids"] = restaurantGUIDs
	}
	var resp MatchResult
	err := c.do(ctx, http.MethodPost, "requests/match", body, &resp)
	return resp, err
}

// Compile validates and prices items without storing anything.
func (c *Client) Compile(ctx context.Context, restaurantGUID string, items []OrderItem) (CompileResult, error) {
	var resp CompileResult
	endpoint := fmt.Sprintf("restaurants/%s/compile", url.PathEscape(restaurantGUID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"items": items}, &resp)
	return resp, err
}

// PlaceOrder stores an order. Orders that are not ready fail with an
// *APIError whose Code is order_not_ready unless AllowManual is set.
func (c *Client) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (PlacedOrder, error) {
	var resp PlacedOrder
	err := c.do(ctx, http.MethodPost, "orders", req, &resp)
	return resp, err
}

func (c *Client) GetOrder(ctx context.Context, id string) (Order, error) {
	var resp Order
	err := c.do(ctx, http.MethodGet, "orders/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// BotItems returns the ordering bot projection of an order.
func (c *Client) BotItems(ctx context.Context, orderID string) ([]BotItem, error) {
	var resp struct {
		Items []BotItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("orders/%s/bot-items", url.PathEscape(orderID)), nil, &resp)
	return resp.Items, err
}

// Handoff returns the ops handoff payload of an order.
func (c *Client) Handoff(ctx context.Context, orderID, reason string) (Handoff, error) {
	endpoint := fmt.Sprintf("orders/%s/handoff", url.PathEscape(orderID))
	if reason != "" {
		endpoint += "?reason=" + url.QueryEscape(reason)
	}
	var resp Handoff
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Alert returns the order-created notification for an order.
func (c *Client) Alert(ctx context.Context, orderID string) (Alert, error) {
	var resp Alert
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("orders/%s/alert", url.PathEscape(orderID)), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		return dec.Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
