package matching

// RestaurantScore is one restaurant's best score for one request line.
type RestaurantScore struct {
	RestaurantGUID string  `json:"restaurantGuid"`
	Score          float64 `json:"score"`
}

type restaurantTally struct {
	guid     string
	coverage int
	total    float64
}

// ChooseBestRestaurantGUID picks the restaurant covering the most request
// lines, then the highest summed score, then the first one seen. The input has
// one entry per request line. ok is false when no restaurant covers any line.
func ChooseBestRestaurantGUID(perLine [][]RestaurantScore) (guid string, ok bool) {
	var order []*restaurantTally
	byGUID := make(map[string]*restaurantTally)

	for _, line := range perLine {
		best := make(map[string]float64, len(line))
		var seen []string
		for _, entry := range line {
			if entry.RestaurantGUID == "" {
				continue
			}
			prev, dup := best[entry.RestaurantGUID]
			if !dup {
				seen = append(seen, entry.RestaurantGUID)
				best[entry.RestaurantGUID] = entry.Score
				continue
			}
			if entry.Score > prev {
				best[entry.RestaurantGUID] = entry.Score
			}
		}
		for _, g := range seen {
			t, exists := byGUID[g]
			if !exists {
				t = &restaurantTally{guid: g}
				byGUID[g] = t
				order = append(order, t)
			}
			t.coverage++
			t.total += best[g]
		}
	}

	var winner *restaurantTally
	for _, t := range order {
		if winner == nil ||
			t.coverage > winner.coverage ||
			(t.coverage == winner.coverage && t.total > winner.total) {
			winner = t
		}
	}
	if winner == nil {
		return "", false
	}
	return winner.guid, true
}
