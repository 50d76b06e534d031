package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"concierge/internal/compiler"
	"concierge/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// UpsertRestaurantTx creates the restaurant or renames it.
func (r Repo) UpsertRestaurantTx(ctx context.Context, tx *sql.Tx, rest domain.Restaurant) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO restaurants(guid,name,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(guid) DO UPDATE SET name=excluded.name, updated_at=excluded.updated_at`,
		rest.GUID, rest.Name, rest.CreatedAt, rest.UpdatedAt)
	return err
}

func (r Repo) GetRestaurant(ctx context.Context, guid string) (domain.Restaurant, error) {
	var rest domain.Restaurant
	err := r.DB.QueryRowContext(ctx, `SELECT r.guid,r.name,r.created_at,r.updated_at,
(SELECT COUNT(*) FROM menu_items m WHERE m.restaurant_guid=r.guid)
FROM restaurants r WHERE r.guid=?`, guid).Scan(&rest.GUID, &rest.Name, &rest.CreatedAt, &rest.UpdatedAt, &rest.ItemCount)
	if err == sql.ErrNoRows {
		return rest, ErrNotFound
	}
	return rest, err
}

func (r Repo) ListRestaurants(ctx context.Context) ([]domain.Restaurant, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT r.guid,r.name,r.created_at,r.updated_at,
(SELECT COUNT(*) FROM menu_items m WHERE m.restaurant_guid=r.guid)
FROM restaurants r ORDER BY r.created_at ASC, r.guid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Restaurant
	for rows.Next() {
		var rest domain.Restaurant
		if err := rows.Scan(&rest.GUID, &rest.Name, &rest.CreatedAt, &rest.UpdatedAt, &rest.ItemCount); err != nil {
			return nil, err
		}
		res = append(res, rest)
	}
	return res, rows.Err()
}

// ReplaceCatalogTx drops the restaurant's current menu and inserts items in
// document order. Internal ids are assigned by the database.
func (r Repo) ReplaceCatalogTx(ctx context.Context, tx *sql.Tx, restaurantGUID string, items []domain.CatalogMenuItem) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM menu_items WHERE restaurant_guid=?`, restaurantGUID); err != nil {
		return fmt.Errorf("clear menu: %w", err)
	}
	for i, it := range items {
		res, err := tx.ExecContext(ctx, `INSERT INTO menu_items(restaurant_guid,guid,name,description,price,position) VALUES (?,?,?,?,?,?)`,
			restaurantGUID, it.GUID, it.Name, nullable(it.Description), it.Price, i)
		if err != nil {
			return fmt.Errorf("insert menu item %s: %w", it.GUID, err)
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		for j, g := range it.ModifierGroups {
			res, err := tx.ExecContext(ctx, `INSERT INTO modifier_groups(menu_item_id,guid,name,min_selections,max_selections,is_required,is_multi_select,position) VALUES (?,?,?,?,?,?,?,?)`,
				itemID, g.GUID, g.Name, g.MinSelections, nullableIntPtr(g.MaxSelections), g.IsRequired, g.IsMultiSelect, j)
			if err != nil {
				return fmt.Errorf("insert modifier group %s: %w", g.GUID, err)
			}
			groupID, err := res.LastInsertId()
			if err != nil {
				return err
			}
			for k, o := range g.Options {
				if _, err := tx.ExecContext(ctx, `INSERT INTO modifier_options(modifier_group_id,guid,name,price,position) VALUES (?,?,?,?,?)`,
					groupID, o.GUID, o.Name, o.Price, k); err != nil {
					return fmt.Errorf("insert modifier option %s: %w", o.GUID, err)
				}
			}
		}
	}
	return nil
}

// LoadCatalog reads a consistent snapshot of one restaurant's menu.
func (r Repo) LoadCatalog(ctx context.Context, restaurantGUID string) (compiler.Catalog, error) {
	cat := compiler.Catalog{
		MenuItems:       []compiler.MenuItem{},
		ModifierGroups:  []compiler.ModifierGroup{},
		ModifierOptions: []compiler.ModifierOption{},
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return cat, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM restaurants WHERE guid=?`, restaurantGUID).Scan(&exists); err != nil {
		return cat, err
	}
	if exists == 0 {
		return cat, ErrNotFound
	}

	rows, err := tx.QueryContext(ctx, `SELECT id,guid,name,COALESCE(description,''),price FROM menu_items WHERE restaurant_guid=? ORDER BY position, id`, restaurantGUID)
	if err != nil {
		return cat, err
	}
	for rows.Next() {
		var it compiler.MenuItem
		if err := rows.Scan(&it.ID, &it.MenuItemGUID, &it.Name, &it.Description, &it.Price); err != nil {
			rows.Close()
			return cat, err
		}
		cat.MenuItems = append(cat.MenuItems, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cat, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT g.id,g.guid,g.menu_item_id,g.name,g.min_selections,g.max_selections,g.is_required,g.is_multi_select
FROM modifier_groups g JOIN menu_items m ON m.id=g.menu_item_id
WHERE m.restaurant_guid=? ORDER BY m.position, g.position, g.id`, restaurantGUID)
	if err != nil {
		return cat, err
	}
	for rows.Next() {
		var g compiler.ModifierGroup
		var maxSel sql.NullInt64
		if err := rows.Scan(&g.ID, &g.ModifierGroupGUID, &g.MenuItemID, &g.Name, &g.MinSelections, &maxSel, &g.IsRequired, &g.IsMultiSelect); err != nil {
			rows.Close()
			return cat, err
		}
		if maxSel.Valid {
			v := int(maxSel.Int64)
			g.MaxSelections = &v
		}
		cat.ModifierGroups = append(cat.ModifierGroups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return cat, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT o.id,o.guid,o.modifier_group_id,o.name,o.price
FROM modifier_options o JOIN modifier_groups g ON g.id=o.modifier_group_id JOIN menu_items m ON m.id=g.menu_item_id
WHERE m.restaurant_guid=? ORDER BY m.position, g.position, o.position, o.id`, restaurantGUID)
	if err != nil {
		return cat, err
	}
	defer rows.Close()
	for rows.Next() {
		var o compiler.ModifierOption
		if err := rows.Scan(&o.ID, &o.ModifierOptionGUID, &o.ModifierGroupID, &o.Name, &o.Price); err != nil {
			return cat, err
		}
		cat.ModifierOptions = append(cat.ModifierOptions, o)
	}
	return cat, rows.Err()
}

const orderColumns = `id,restaurant_guid,COALESCE(guest_room,''),COALESCE(guest_name,''),status,compile_status,subtotal_cents,COALESCE(request_text,''),request_items_json,fallback_items_json,issues_json,metadata_json,created_by,created_at,updated_at`

func scanOrder(scan func(dest ...any) error) (domain.Order, error) {
	var o domain.Order
	err := scan(&o.ID, &o.RestaurantGUID, &o.GuestRoom, &o.GuestName, &o.Status, &o.CompileStatus, &o.Subtotal,
		&o.RequestText, &o.RequestItemsJSON, &o.FallbackItemsJSON, &o.IssuesJSON, &o.MetadataJSON, &o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) InsertOrderTx(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO orders(id,restaurant_guid,guest_room,guest_name,status,compile_status,subtotal_cents,request_text,request_items_json,fallback_items_json,issues_json,metadata_json,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.RestaurantGUID, nullable(o.GuestRoom), nullable(o.GuestName), o.Status, o.CompileStatus, o.Subtotal, nullable(o.RequestText),
		o.RequestItemsJSON, o.FallbackItemsJSON, o.IssuesJSON, o.MetadataJSON, o.CreatedBy, o.CreatedAt, o.UpdatedAt)
	return err
}

func (r Repo) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id)
	return scanOrder(row.Scan)
}

// ListOrders returns the newest orders first, optionally for one restaurant.
func (r Repo) ListOrders(ctx context.Context, restaurantGUID string, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if restaurantGUID != "" {
		query += ` WHERE restaurant_guid=?`
		args = append(args, restaurantGUID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// EventFilter narrows event queries. Empty fields match everything.
type EventFilter struct {
	RestaurantGUID string
	Type           string
	EntityKind     string
	EntityID       string
}

func (f EventFilter) where(cursorClause string, cursor int64) (string, []any) {
	clauses := []string{"1=1"}
	var args []any
	if f.RestaurantGUID != "" {
		clauses = append(clauses, "restaurant_guid=?")
		args = append(args, f.RestaurantGUID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if cursor > 0 {
		clauses = append(clauses, cursorClause)
		args = append(args, cursor)
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// LatestEvents returns events newest first. A positive cursor returns only
// events older than it.
func (r Repo) LatestEvents(ctx context.Context, limit int, cursor int64, f EventFilter) ([]domain.Event, error) {
	where, args := f.where("id<?", cursor)
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(restaurant_guid,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	return r.queryEvents(ctx, query, append(args, limit)...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, f EventFilter) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	where, args := f.where("id>?", cursor)
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(restaurant_guid,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	return r.queryEvents(ctx, query, append(args, limit)...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Restaurant, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
