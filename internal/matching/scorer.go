package matching

import (
	"strings"
	"unicode/utf8"

	"github.com/agext/levenshtein"
)

// ExactMatchScore is awarded when the request equals the candidate name.
// Every partial signal together stays below stemmedMatchScore, which stays
// below ExactMatchScore.
const ExactMatchScore = 1000.0

const (
	stemmedMatchScore = 600.0

	nameTokenWeight   = 50.0
	nameTokenCap      = 200.0
	nameContainsQuery = 100.0
	queryContainsName = 70.0
	closenessWeight   = 100.0

	descTokenWeight = 15.0
	descTokenCap    = 100.0

	// Tokens this long may differ by one edit and still count, at half weight.
	fuzzyMinLen = 5
)

// MatchScore is the result of comparing one request line with one menu item.
type MatchScore struct {
	Score       float64 `json:"score"`
	MatchedText string  `json:"matchedText"`
}

// ScoreMenuCandidate scores a request line against a menu item's name and
// description. Higher is better; zero means nothing matched.
func ScoreMenuCandidate(req ParsedRequestLine, candidateName, candidateDescription string) MatchScore {
	query := foldText(req.Normalized)
	name := foldText(candidateName)
	if query == "" || (name == "" && strings.TrimSpace(candidateDescription) == "") {
		return MatchScore{}
	}
	if query == name {
		return MatchScore{Score: ExactMatchScore, MatchedText: candidateName}
	}

	qTokens := stemmedTokens(query)
	nTokens := stemmedTokens(name)
	if len(nTokens) > 0 && strings.Join(qTokens, " ") == strings.Join(nTokens, " ") {
		return MatchScore{Score: stemmedMatchScore, MatchedText: candidateName}
	}

	var (
		score     float64
		nameFired bool
	)
	overlap := tokenOverlap(qTokens, nTokens)
	if overlap > 0 {
		score += min(overlap*nameTokenWeight, nameTokenCap)
		nameFired = true
	}
	if name != "" {
		switch {
		case containsPhrase(name, query):
			score += nameContainsQuery
			nameFired = true
		case containsPhrase(query, name):
			score += queryContainsName
			nameFired = true
		}
	}
	if nameFired && len(qTokens) > 0 {
		ql, nl := utf8.RuneCountInString(query), utf8.RuneCountInString(name)
		ratio := float64(min(ql, nl)) / float64(max(ql, nl))
		coverage := min(overlap/float64(len(qTokens)), 1)
		score += closenessWeight * ratio * coverage
	}

	var matchedDesc []string
	if candidateDescription != "" {
		dTokens := stemmedTokens(foldText(candidateDescription))
		descOverlap := 0.0
		for _, q := range qTokens {
			if w := bestTokenMatch(q, dTokens); w > 0 {
				descOverlap += w
				matchedDesc = append(matchedDesc, q)
			}
		}
		score += min(descOverlap*descTokenWeight, descTokenCap)
	}

	matched := ""
	switch {
	case nameFired:
		matched = candidateName
	case len(matchedDesc) > 0:
		matched = strings.Join(matchedDesc, " ")
	}
	return MatchScore{Score: score, MatchedText: matched}
}

// tokenOverlap counts query tokens found among candidate tokens. Exact token
// hits count 1, near misses count 0.5.
func tokenOverlap(query, candidate []string) float64 {
	total := 0.0
	for _, q := range query {
		total += bestTokenMatch(q, candidate)
	}
	return total
}

func bestTokenMatch(q string, candidate []string) float64 {
	best := 0.0
	for _, c := range candidate {
		if q == c {
			return 1
		}
		if len(q) >= fuzzyMinLen && len(c) >= fuzzyMinLen && levenshtein.Distance(q, c, nil) <= 1 {
			best = 0.5
		}
	}
	return best
}

// containsPhrase reports whether needle occurs in haystack on word boundaries.
func containsPhrase(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}
