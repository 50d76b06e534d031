package engine

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"concierge/internal/compiler"
	"concierge/internal/matching"
)

type Candidate struct {
	MenuItemGUID string  `json:"menu_item_guid"`
	Name         string  `json:"name"`
	Price        string  `json:"price"`
	Score        float64 `json:"score"`
	MatchedText  string  `json:"matched_text"`
}

type MatchedLine struct {
	Line       matching.ParsedRequestLine `json:"line"`
	Candidates []Candidate                `json:"candidates"`
}

// MatchResult is the outcome of matching free text. RestaurantGUID is empty
// when no restaurant matched any line. Draft holds one request item per
// matched line using the best candidate, ready to be completed with modifier
// selections and compiled.
type MatchResult struct {
	RestaurantGUID string                      `json:"restaurant_guid,omitempty"`
	Lines          []MatchedLine               `json:"lines"`
	Coverage       int                         `json:"coverage"`
	Draft          []compiler.OrderRequestItem `json:"draft"`
}

// MatchRequest parses text, scores every line against every candidate
// restaurant's menu and picks the restaurant that covers the most lines.
// With no restaurantGUIDs every stored restaurant is considered.
func (e Engine) MatchRequest(ctx context.Context, text string, restaurantGUIDs []string) (MatchResult, error) {
	start := time.Now()
	defer func() { e.metrics().MatchDuration.Observe(time.Since(start).Seconds()) }()

	lines := matching.ParseOrderRequestLines(text)
	res := MatchResult{Lines: []MatchedLine{}, Draft: []compiler.OrderRequestItem{}}
	if len(lines) == 0 {
		return res, nil
	}
	if len(restaurantGUIDs) == 0 {
		rests, err := e.Repo.ListRestaurants(ctx)
		if err != nil {
			return res, err
		}
		for _, r := range rests {
			restaurantGUIDs = append(restaurantGUIDs, r.GUID)
		}
	}

	minScore, maxPerLine := 0.0, 3
	if e.Config != nil {
		minScore = e.Config.Matching.MinScore
		if e.Config.Matching.MaxCandidatesPerLine > 0 {
			maxPerLine = e.Config.Matching.MaxCandidatesPerLine
		}
	}

	perLine := make([][]matching.RestaurantScore, len(lines))
	candidates := map[string][][]Candidate{}
	for _, guid := range dedupe(restaurantGUIDs) {
		cat, err := e.Catalog(ctx, guid)
		if err != nil {
			return res, err
		}
		byLine := make([][]Candidate, len(lines))
		for i, line := range lines {
			byLine[i] = scoreLine(line, cat, minScore)
			if len(byLine[i]) > 0 {
				perLine[i] = append(perLine[i], matching.RestaurantScore{RestaurantGUID: guid, Score: byLine[i][0].Score})
			}
		}
		candidates[guid] = byLine
	}

	chosen, ok := matching.ChooseBestRestaurantGUID(perLine)
	for i, line := range lines {
		ml := MatchedLine{Line: line, Candidates: []Candidate{}}
		if ok {
			c := candidates[chosen][i]
			if len(c) > maxPerLine {
				c = c[:maxPerLine]
			}
			ml.Candidates = append(ml.Candidates, c...)
		}
		if len(ml.Candidates) > 0 {
			res.Coverage++
			res.Draft = append(res.Draft, compiler.OrderRequestItem{
				MenuItemGUID:      ml.Candidates[0].MenuItemGUID,
				Quantity:          line.Quantity,
				SelectedModifiers: map[string][]string{},
			})
		}
		res.Lines = append(res.Lines, ml)
	}
	if ok {
		res.RestaurantGUID = chosen
	}
	e.log().Debug("request matched",
		zap.Int("lines", len(lines)),
		zap.Int("restaurants", len(candidates)),
		zap.String("restaurant", res.RestaurantGUID),
		zap.Int("coverage", res.Coverage))
	return res, nil
}

// scoreLine returns menu items scoring above minScore, best first. Ties keep
// catalog order.
func scoreLine(line matching.ParsedRequestLine, cat compiler.Catalog, minScore float64) []Candidate {
	var out []Candidate
	for _, it := range cat.MenuItems {
		s := matching.ScoreMenuCandidate(line, it.Name, it.Description)
		if s.Score <= 0 || s.Score < minScore {
			continue
		}
		out = append(out, Candidate{
			MenuItemGUID: it.MenuItemGUID,
			Name:         it.Name,
			Price:        it.Price,
			Score:        s.Score,
			MatchedText:  s.MatchedText,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
