// Package matching turns free-text guest requests into scored menu candidates
// and picks the restaurant that can serve the most of them.
//
// Everything here is pure: no I/O, no package-level mutable state.
package matching

import (
	"regexp"
	"strconv"
	"strings"

	"concierge/internal/compiler"
)

// ParsedRequestLine is one enumerated item out of a free-text request.
type ParsedRequestLine struct {
	Quantity   int    `json:"quantity"`
	Normalized string `json:"normalized"`
	Raw        string `json:"raw"`
}

var (
	hardSeparators = regexp.MustCompile(`(?i)[,;\n\r]+|\s+plus\s+|\s+then\s+`)
	andSeparator   = regexp.MustCompile(`(?i)\s+and\s+`)
	digitQuantity  = regexp.MustCompile(`^(\d+)x?$`)
	suffixQuantity = regexp.MustCompile(`^x(\d+)$`)
)

// dishJoiners are "<left> and <right>" pairs that name a single dish.
var dishJoiners = map[string]struct{}{
	"mac|cheese":         {},
	"fish|chips":         {},
	"salt|pepper":        {},
	"surf|turf":          {},
	"bread|butter":       {},
	"rice|beans":         {},
	"chips|salsa":        {},
	"butter|jelly":       {},
	"sweet|sour":         {},
	"ham|cheese":         {},
	"bacon|eggs":         {},
	"biscuits|gravy":     {},
	"chicken|waffles":    {},
	"cookies|cream":      {},
	"strawberries|cream": {},
	"peaches|cream":      {},
	"oil|vinegar":        {},
	"spinach|artichoke":  {},
	"pork|beans":         {},
	"sausage|peppers":    {},
	"lox|bagel":          {},
	"shrimp|grits":       {},
	"steak|eggs":         {},
	"tomato|mozzarella":  {},
	"black|white":        {},
}

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
	"dozen": 12,
}

// Multi-word quantities, checked before single words.
var quantityPhrases = []struct {
	words []string
	qty   int
}{
	{[]string{"half", "a", "dozen"}, 6},
	{[]string{"a", "couple", "of"}, 2},
	{[]string{"couple", "of"}, 2},
	{[]string{"a", "pair", "of"}, 2},
	{[]string{"pair", "of"}, 2},
	{[]string{"a", "dozen"}, 12},
	{[]string{"an", "order", "of"}, 1},
	{[]string{"order", "of"}, 1},
}

var fillerPrefixes = [][]string{
	{"i", "would", "like"},
	{"we", "would", "like"},
	{"i", "will", "have"},
	{"can", "i", "get"},
	{"can", "i", "have"},
	{"can", "we", "get"},
	{"can", "we", "have"},
	{"could", "i", "get"},
	{"could", "i", "have"},
	{"could", "we", "get"},
	{"may", "i", "have"},
	{"i", "want"},
	{"we", "want"},
	{"id", "like"},
	{"wed", "like"},
	{"ill", "have"},
	{"ill", "take"},
	{"i", "need"},
	{"we", "need"},
	{"get", "me"},
	{"give", "me"},
	{"send", "up"},
	{"please"},
	{"also"},
	{"and"},
	{"plus"},
	{"just"},
}

var fillerSuffixes = [][]string{
	{"thank", "you"},
	{"as", "well"},
	{"please"},
	{"thanks"},
	{"too"},
}

var articles = map[string]struct{}{"a": {}, "an": {}, "some": {}, "the": {}}

// ParseOrderRequestLines splits a free-text order into line items.
// Segments that carry no item text are dropped; it never fails.
func ParseOrderRequestLines(text string) []ParsedRequestLine {
	var lines []ParsedRequestLine
	for _, chunk := range hardSeparators.Split(text, -1) {
		for _, segment := range splitOnAnd(chunk) {
			line, ok := parseSegment(segment)
			if !ok {
				continue
			}
			lines = append(lines, line)
		}
	}
	return lines
}

func splitOnAnd(chunk string) []string {
	var (
		parts []string
		start int
	)
	for _, loc := range andSeparator.FindAllStringIndex(chunk, -1) {
		left := tokens(foldText(chunk[start:loc[0]]))
		right := tokens(foldText(chunk[loc[1]:]))
		if len(left) > 0 && len(right) > 0 {
			if _, joined := dishJoiners[left[len(left)-1]+"|"+right[0]]; joined {
				continue
			}
		}
		parts = append(parts, chunk[start:loc[0]])
		start = loc[1]
	}
	return append(parts, chunk[start:])
}

func parseSegment(segment string) (ParsedRequestLine, bool) {
	raw := strings.TrimSpace(segment)
	words := tokens(foldText(raw))
	words = stripPrefixes(words, fillerPrefixes)
	words = stripSuffixes(words, fillerSuffixes)

	qty, words, found := leadingQuantity(words)
	if !found {
		if len(words) > 0 {
			if _, ok := articles[words[0]]; ok {
				words = words[1:]
			}
		}
		qty, words, found = leadingQuantity(words)
	}
	if found {
		if hasPrefix(words, []string{"orders", "of"}) || hasPrefix(words, []string{"order", "of"}) {
			words = words[2:]
		}
		for len(words) > 0 && (words[0] == "of" || words[0] == "the" || words[0] == "x") {
			words = words[1:]
		}
	} else {
		qty, words, found = trailingQuantity(words)
	}
	if !found || qty < 1 {
		qty = 1
	}
	if qty > compiler.MaxQuantity || len(words) == 0 {
		return ParsedRequestLine{}, false
	}
	return ParsedRequestLine{
		Quantity:   qty,
		Normalized: strings.Join(words, " "),
		Raw:        raw,
	}, true
}

func stripPrefixes(words []string, prefixes [][]string) []string {
	for changed := true; changed; {
		changed = false
		for _, p := range prefixes {
			if hasPrefix(words, p) {
				words = words[len(p):]
				changed = true
			}
		}
	}
	return words
}

func stripSuffixes(words []string, suffixes [][]string) []string {
	for changed := true; changed; {
		changed = false
		for _, s := range suffixes {
			if len(words) >= len(s) && hasPrefix(words[len(words)-len(s):], s) {
				words = words[:len(words)-len(s)]
				changed = true
			}
		}
	}
	return words
}

func hasPrefix(words, prefix []string) bool {
	if len(words) < len(prefix) {
		return false
	}
	for i, w := range prefix {
		if words[i] != w {
			return false
		}
	}
	return true
}

func leadingQuantity(words []string) (int, []string, bool) {
	if len(words) == 0 {
		return 0, words, false
	}
	for _, p := range quantityPhrases {
		if hasPrefix(words, p.words) {
			return p.qty, words[len(p.words):], true
		}
	}
	if m := digitQuantity.FindStringSubmatch(words[0]); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			// Too large for int; dropped by the caller like any other
			// quantity above the limit.
			n = compiler.MaxQuantity + 1
		}
		return n, words[1:], true
	}
	if n, ok := numberWords[words[0]]; ok {
		return n, words[1:], true
	}
	return 0, words, false
}

// trailingQuantity handles "burger x2" and "burger x 2".
func trailingQuantity(words []string) (int, []string, bool) {
	n := len(words)
	if n >= 2 {
		if m := suffixQuantity.FindStringSubmatch(words[n-1]); m != nil {
			q, err := strconv.Atoi(m[1])
			if err != nil {
				q = compiler.MaxQuantity + 1
			}
			return q, words[:n-1], true
		}
	}
	if n >= 3 && words[n-2] == "x" {
		if q, err := strconv.Atoi(words[n-1]); err == nil {
			return q, words[:n-2], true
		}
	}
	return 0, words, false
}
