package mealplan

import "strings"

// DefaultHeatVerbs is used when no lexicon file is configured.
var DefaultHeatVerbs = []string{
	"bake", "barbecue", "boil", "braise", "broil", "char", "fry", "grill",
	"heat", "microwave", "poach", "roast", "saute", "sauté", "scald", "sear",
	"simmer", "steam", "stew", "toast", "warm",
}

// HeatLexicon recognises instructions that involve cooking with heat.
type HeatLexicon struct {
	verbs []string
}

// NewHeatLexicon normalises verbs to lower case and drops blanks and
// duplicates.
func NewHeatLexicon(verbs []string) HeatLexicon {
	seen := make(map[string]bool, len(verbs))
	var out []string
	for _, v := range verbs {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return HeatLexicon{verbs: out}
}

func (l HeatLexicon) Verbs() []string { return append([]string(nil), l.verbs...) }

func (l HeatLexicon) Len() int { return len(l.verbs) }

// IsHot reports whether instructions contain any verb of the lexicon.
func (l HeatLexicon) IsHot(instructions string) bool {
	text := strings.ToLower(instructions)
	for _, v := range l.verbs {
		if strings.Contains(text, v) {
			return true
		}
	}
	return false
}
