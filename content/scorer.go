package content

import (
	"strings"
	"unicode"

	"aegis/models"
)

// DefaultWeights is the panic keyword table.
var DefaultWeights = map[string]int{
	"bankruptcy":    35,
	"fraud":         30,
	"collapse":      30,
	"arrest":        28,
	"raid":          25,
	"default":       25,
	"scandal":       22,
	"crisis":        20,
	"crash":         20,
	"investigation": 18,
	"plunge":        18,
	"probe":         15,
	"lawsuit":       15,
	"allegation":    15,
	"resign":        12,
	"breaking":      10,
	"ceo":           5,
}

const (
	shoutBonus       = 10
	exclamationBonus = 5
)

// Source credibility multipliers. Less accountable outlets amplify panic.
var (
	wireSources       = []string{"reuters", "press trust of india", "pti", "associated press", "bloomberg"}
	mainstreamSources = []string{
		"economic times", "economictimes", "times of india", "livemint", "mint", "the hindu",
		"moneycontrol", "business standard", "ndtv", "cnbc", "bbc", "financial times",
		"wall street journal", "wsj", "hindustan times", "financial express",
	}
	socialSources = []string{"twitter", "x.com", "reddit", "telegram", "whatsapp", "facebook", "youtube", "stocktwits"}
)

const (
	credibilityWire       = 0.9
	credibilityMainstream = 1.0
	credibilityUnknown    = 1.1
	credibilitySocial     = 1.2
)

// KeywordScorer scores headlines from weighted panic keywords.
type KeywordScorer struct {
	Weights map[string]int
}

func NewKeywordScorer() *KeywordScorer {
	return &KeywordScorer{Weights: DefaultWeights}
}

func (k *KeywordScorer) Score(item RawItem) int {
	matched := map[string]bool{}
	sum := 0
	shouting := false
	for _, w := range words(item.Headline) {
		if isShout(w) {
			shouting = true
		}
		lw := strings.ToLower(w)
		for kw, weight := range k.Weights {
			if matched[kw] {
				continue
			}
			if lw == kw || (len(kw) >= 4 && strings.HasPrefix(lw, kw)) {
				matched[kw] = true
				sum += weight
			}
		}
	}
	if shouting {
		sum += shoutBonus
	}
	if strings.Contains(item.Headline, "!") {
		sum += exclamationBonus
	}
	return models.ClampFloat(float64(sum) * Credibility(item.Source))
}

func isShout(w string) bool {
	letters := 0
	for _, r := range w {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters >= 4
}

// Credibility returns the panic multiplier for a source name or host.
// Names match on whole words, hosts on labels or domain suffixes.
func Credibility(source string) float64 {
	s := strings.ToLower(strings.TrimSpace(source))
	if s == "" {
		return credibilityUnknown
	}
	match := matchName
	if !strings.ContainsRune(s, ' ') && strings.Contains(s, ".") {
		match = matchHost
	}
	switch {
	case match(s, socialSources):
		return credibilitySocial
	case match(s, wireSources):
		return credibilityWire
	case match(s, mainstreamSources):
		return credibilityMainstream
	}
	return credibilityUnknown
}

func matchName(name string, needles []string) bool {
	padded := " " + strings.Join(words(name), " ") + " "
	for _, n := range needles {
		if strings.Contains(padded, " "+strings.Join(words(n), " ")+" ") {
			return true
		}
	}
	return false
}

func matchHost(host string, needles []string) bool {
	host = strings.TrimPrefix(host, "www.")
	labels := strings.Split(host, ".")
	for _, n := range needles {
		if strings.Contains(n, ".") {
			if host == n || strings.HasSuffix(host, "."+n) {
				return true
			}
			continue
		}
		// "economic times" ищем как метку economictimes
		flat := strings.ReplaceAll(n, " ", "")
		for _, l := range labels {
			if l == flat {
				return true
			}
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
