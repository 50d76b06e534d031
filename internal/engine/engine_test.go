package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"concierge/internal/canonical"
	"concierge/internal/compiler"
	"concierge/internal/config"
	"concierge/internal/db"
	"concierge/internal/domain"
	"concierge/internal/engine"
	"concierge/internal/events"
	"concierge/internal/handoff"
	"concierge/internal/migrate"
	"concierge/internal/repo"
)

const (
	dinerGUID  = "3b241101-e2bb-4255-8caf-4136c566a962"
	cafeGUID   = "a8098c1a-f86e-41a0-9d7a-0c2c5d7e4f11"
	burgerGUID = "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a01"
	friesGUID  = "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a02"
	macGUID    = "5f0c8a52-3f7e-4c3b-9a34-0c1b6d2e7a03"
	cookGUID   = "7a1d3e40-8b2c-4f6a-b1d9-2e5f6a7b8c01"
	rareGUID   = "9c2e4f51-1a3b-4c5d-8e6f-7a8b9c0d1e01"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	for _, name := range []string{"diner.yml", "cafe.json"} {
		if _, err := eng.ImportCatalog(ctx, loadDoc(t, name), "tester"); err != nil {
			t.Fatalf("import %s: %v", name, err)
		}
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func loadDoc(t *testing.T, name string) domain.CatalogDocument {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	doc, err := engine.ParseCatalogDocument(data)
	if err != nil {
		t.Fatalf("parse %s: %v", name, err)
	}
	return doc
}

func burgerWithCook(qty int) compiler.OrderRequestItem {
	return compiler.OrderRequestItem{
		MenuItemGUID:      burgerGUID,
		Quantity:          qty,
		SelectedModifiers: map[string][]string{cookGUID: {rareGUID}},
	}
}

func TestImportCatalog(t *testing.T) {
	env := newTestEnv(t)
	rests, err := env.Engine.Repo.ListRestaurants(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rests) != 2 {
		t.Fatalf("expected 2 restaurants, got %d", len(rests))
	}
	cat, err := env.Engine.Catalog(env.Ctx, cafeGUID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.MenuItems) != 3 || len(cat.ModifierGroups) != 1 || len(cat.ModifierOptions) != 2 {
		t.Fatalf("unexpected cafe catalog: %+v", cat)
	}
	if cat.MenuItems[1].Price != "4.75" {
		t.Fatalf("numeric JSON price should be kept as text, got %q", cat.MenuItems[1].Price)
	}
	doc, err := env.Engine.CatalogDocument(env.Ctx, dinerGUID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Restaurant.Name != "Lobby Diner" || len(doc.MenuItems[0].ModifierGroups) != 2 {
		t.Fatalf("unexpected diner document: %+v", doc)
	}
	if max := doc.MenuItems[0].ModifierGroups[0].MaxSelections; max == nil || *max != 1 {
		t.Fatalf("max_selections lost: %v", max)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 10, 0, repo.EventFilter{Type: events.CatalogImported})
	if err != nil || len(evts) != 2 {
		t.Fatalf("expected 2 import events: %v %v", evts, err)
	}
}

func TestImportRejectsInvalidDocuments(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]func(d *domain.CatalogDocument){
		"restaurant guid": func(d *domain.CatalogDocument) { d.Restaurant.GUID = "diner" },
		"braced guid":     func(d *domain.CatalogDocument) { d.MenuItems[0].GUID = "{" + burgerGUID + "}" },
		"price":           func(d *domain.CatalogDocument) { d.MenuItems[1].Price = "cheap" },
		"option price":    func(d *domain.CatalogDocument) { d.MenuItems[0].ModifierGroups[0].Options[0].Price = "-1" },
		"duplicate guid":  func(d *domain.CatalogDocument) { d.MenuItems[2].GUID = friesGUID },
		"bounds": func(d *domain.CatalogDocument) {
			zero := 0
			d.MenuItems[0].ModifierGroups[0].MaxSelections = &zero
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			doc := loadDoc(t, "diner.yml")
			mutate(&doc)
			_, err := env.Engine.ImportCatalog(env.Ctx, doc, "tester")
			if !engine.IsInvalidInput(err) {
				t.Fatalf("expected invalid input error, got %v", err)
			}
		})
	}
	if _, err := engine.ParseCatalogDocument([]byte("restaurant:\n  guid: x\n  colour: red\n")); !engine.IsInvalidInput(err) {
		t.Fatalf("unknown keys should be rejected, got %v", err)
	}
}

func TestMatchRequestPicksCoveringRestaurant(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.MatchRequest(env.Ctx, "I'd like 2 cheeseburgers, fries and mac and cheese please", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.RestaurantGUID != dinerGUID {
		t.Fatalf("expected diner, got %q", res.RestaurantGUID)
	}
	if len(res.Lines) != 3 || res.Coverage != 3 {
		t.Fatalf("expected 3 covered lines, got %+v", res)
	}
	want := []string{burgerGUID, friesGUID, macGUID}
	for i, item := range res.Draft {
		if item.MenuItemGUID != want[i] {
			t.Fatalf("draft[%d] = %s, want %s", i, item.MenuItemGUID, want[i])
		}
	}
	if res.Draft[0].Quantity != 2 {
		t.Fatalf("expected quantity 2, got %d", res.Draft[0].Quantity)
	}
	if got := testutil.CollectAndCount(env.Engine.Metrics.MatchDuration); got != 1 {
		t.Fatalf("expected match histogram to be collected, got %d", got)
	}
}

func TestMatchRequestRestrictedAndEmpty(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.MatchRequest(env.Ctx, "chicken sandwich", []string{cafeGUID, cafeGUID})
	if err != nil {
		t.Fatal(err)
	}
	if res.RestaurantGUID != cafeGUID || res.Lines[0].Candidates[0].Score != 1000 {
		t.Fatalf("unexpected match: %+v", res)
	}
	res, err = env.Engine.MatchRequest(env.Ctx, "a unicorn steak", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.RestaurantGUID != "" || res.Coverage != 0 || len(res.Draft) != 0 {
		t.Fatalf("expected no match: %+v", res)
	}
	if _, err := env.Engine.MatchRequest(env.Ctx, "fries", []string{"00000000-0000-4000-8000-000000000000"}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found for unknown restaurant, got %v", err)
	}
}

func TestCompileOrderRecordsMetrics(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CompileOrder(env.Ctx, dinerGUID, []compiler.OrderRequestItem{{MenuItemGUID: burgerGUID, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != compiler.StatusNeedsUserInput || !res.HasIssue(compiler.IssueRequiredModifierMissing) {
		t.Fatalf("expected missing cook: %+v", res)
	}
	res, err = env.Engine.CompileOrder(env.Ctx, dinerGUID, []compiler.OrderRequestItem{burgerWithCook(2)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != compiler.StatusReadyToExecute || res.Subtotal != 2400 {
		t.Fatalf("expected ready 24.00: %+v", res)
	}
	m := env.Engine.Metrics
	if v := testutil.ToFloat64(m.Compilations.WithLabelValues("ready_to_execute")); v != 1 {
		t.Fatalf("ready compilations = %v", v)
	}
	if v := testutil.ToFloat64(m.CompileIssues.WithLabelValues("required_modifier_missing")); v != 1 {
		t.Fatalf("missing modifier issues = %v", v)
	}
	if v := testutil.ToFloat64(m.CatalogCache.WithLabelValues("hit")); v < 1 {
		t.Fatalf("expected a cache hit, got %v", v)
	}
}

func TestReimportInvalidatesCache(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Catalog(env.Ctx, dinerGUID); err != nil {
		t.Fatal(err)
	}
	doc := loadDoc(t, "diner.yml")
	doc.MenuItems[1].Price = "5.00"
	if _, err := env.Engine.ImportCatalog(env.Ctx, doc, "tester"); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.CompileOrder(env.Ctx, dinerGUID, []compiler.OrderRequestItem{{MenuItemGUID: friesGUID, Quantity: 1}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Subtotal != 500 {
		t.Fatalf("expected new price after reimport, got %v", res.Subtotal)
	}
}

func TestPlaceOrderStoresArtifact(t *testing.T) {
	env := newTestEnv(t)
	placed, err := env.Engine.PlaceOrder(env.Ctx, engine.PlaceOrderInput{
		RestaurantGUID: dinerGUID,
		GuestRoom:      "512",
		RequestText:    "2 cheeseburgers medium rare and fries",
		Items:          []compiler.OrderRequestItem{burgerWithCook(2), {MenuItemGUID: friesGUID, Quantity: 1}},
		Metadata:       map[string]any{"channel": "sms", canonical.MetadataKey: "forged"},
		ActorID:        "front-desk",
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if placed.Order.Status != domain.OrderPending || placed.Artifact == nil {
		t.Fatalf("expected pending order with artifact: %+v", placed)
	}
	if placed.Artifact.Subtotal != 2850 || placed.Order.Subtotal != 2850 {
		t.Fatalf("unexpected subtotal: %v", placed.Artifact.Subtotal)
	}

	stored, err := env.Engine.Repo.GetOrder(env.Ctx, placed.Order.ID)
	if err != nil {
		t.Fatal(err)
	}
	var md map[string]any
	if err := json.Unmarshal([]byte(stored.MetadataJSON), &md); err != nil {
		t.Fatal(err)
	}
	if md["channel"] != "sms" {
		t.Fatalf("caller metadata lost: %v", md)
	}
	a, ok := canonical.ExtractCanonicalOrderArtifact(md)
	if !ok || a.ItemCount != 2 || a.CompiledAt != "2026-01-01T12:00:00Z" {
		t.Fatalf("artifact not extractable: %+v %v", a, ok)
	}

	items, ok, err := env.Engine.OrderBotItems(env.Ctx, placed.Order.ID)
	if err != nil || !ok || len(items) != 2 || items[0].ItemName != "Cheeseburger" || items[0].Quantity != 2 {
		t.Fatalf("bot items: %+v %v %v", items, ok, err)
	}
	alert, err := env.Engine.OrderAlert(env.Ctx, placed.Order.ID)
	if err != nil {
		t.Fatal(err)
	}
	if alert.Source != handoff.SourceCanonical || alert.Lines[0] != "2x Cheeseburger (Cook: Medium rare)" {
		t.Fatalf("alert: %+v", alert)
	}
	ops, err := env.Engine.OrderHandoff(env.Ctx, placed.Order.ID, "restaurant closed")
	if err != nil {
		t.Fatal(err)
	}
	if ops.Compiler.CompilerVersion != canonical.CompilerVersion || ops.Channel != "front-desk" {
		t.Fatalf("handoff: %+v", ops.Compiler)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 5, 0, repo.EventFilter{Type: events.OrderCreated})
	if err != nil || len(evts) != 1 || evts[0].EntityID != placed.Order.ID {
		t.Fatalf("expected order.created event: %+v %v", evts, err)
	}
}

func TestPlaceOrderRejectsOrEscalates(t *testing.T) {
	env := newTestEnv(t)
	in := engine.PlaceOrderInput{
		RestaurantGUID: dinerGUID,
		GuestRoom:      "1201",
		Items:          []compiler.OrderRequestItem{{MenuItemGUID: burgerGUID, Quantity: 1}},
		ActorID:        "front-desk",
	}
	_, err := env.Engine.PlaceOrder(env.Ctx, in)
	rejected, ok := engine.AsCompileRejected(err)
	if !ok {
		t.Fatalf("expected compile rejection, got %v", err)
	}
	if rejected.Result.Status != compiler.StatusNeedsUserInput {
		t.Fatalf("unexpected status %s", rejected.Result.Status)
	}

	in.AllowManual = true
	in.Reason = "guest unreachable"
	placed, err := env.Engine.PlaceOrder(env.Ctx, in)
	if err != nil {
		t.Fatalf("manual place: %v", err)
	}
	if placed.Order.Status != domain.OrderNeedsOps || placed.Artifact != nil {
		t.Fatalf("expected needs_ops without artifact: %+v", placed)
	}
	if _, ok, err := env.Engine.OrderBotItems(env.Ctx, placed.Order.ID); err != nil || ok {
		t.Fatalf("needs_ops order must not expose bot items: %v %v", ok, err)
	}
	ops, err := env.Engine.OrderHandoff(env.Ctx, placed.Order.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if ops.Compiler.CompilerVersion != handoff.UnknownCompilerVersion || ops.Compiler.Source != handoff.SourceFallback {
		t.Fatalf("expected fallback handoff: %+v", ops.Compiler)
	}
	if len(ops.Items) != 1 || ops.Items[0].Name != "Cheeseburger" || len(ops.Issues) != 1 {
		t.Fatalf("fallback items: %+v", ops)
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 5, 0, repo.EventFilter{Type: events.OrderEscalated})
	if err != nil || len(evts) != 1 {
		t.Fatalf("expected order.escalated event: %v %v", evts, err)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.PlaceOrder(env.Ctx, engine.PlaceOrderInput{RestaurantGUID: dinerGUID, ActorID: "x"}); !engine.IsInvalidInput(err) {
		t.Fatalf("expected invalid input for empty items, got %v", err)
	}
	_, err := env.Engine.PlaceOrder(env.Ctx, engine.PlaceOrderInput{
		RestaurantGUID: "00000000-0000-4000-8000-000000000000",
		Items:          []compiler.OrderRequestItem{burgerWithCook(1)},
		ActorID:        "x",
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
