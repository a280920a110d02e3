package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/stockdesk/backend/internal/storage/models"
	"github.com/stockdesk/backend/pkg/utils"
)

// text pairs the NFC original with its lower-cased and folded forms. All three
// have the same rune count, so a match in one maps to the others by rune index.
type text struct {
	original []rune
	lower    []rune
	folded   string
}

func newText(question string) text {
	original := norm.NFC.String(question)
	return text{
		original: []rune(original),
		lower:    []rune(strings.Map(unicode.ToLower, original)),
		folded:   strings.Map(unicode.ToLower, utils.StripDiacritics(original)),
	}
}

// runes converts the folded byte range [start, end) to a rune range.
func (t text) runes(start, end int) (int, int) {
	rs := utf8.RuneCountInString(t.folded[:start])
	return rs, rs + utf8.RuneCountInString(t.folded[start:end])
}

// slice returns the original text for the folded byte range [start, end).
func (t text) slice(start, end int) string {
	rs, re := t.runes(start, end)
	return string(t.original[rs:re])
}

// ExtractLookup finds the item a question refers to. Nil means the question
// carries no groundable entity.
func ExtractLookup(question string) *models.Lookup {
	t := newText(question)

	if code := t.matchCode(CodeRules); code != "" {
		return &models.Lookup{Kind: models.LookupCode, Value: code}
	}
	if m := LeadingCodePattern.FindStringSubmatchIndex(t.folded); m != nil {
		token := t.slice(m[2], m[3])
		if isCodeToken(token) && (hasDigit(token) || isUpperToken(token)) {
			return &models.Lookup{Kind: models.LookupCode, Value: strings.ToUpper(token)}
		}
	}
	if name := t.matchName(NamePatterns); name != "" {
		return &models.Lookup{Kind: models.LookupName, Value: name}
	}
	return nil
}

// ExtractProductName returns the composition name a question mentions, or "".
func ExtractProductName(question string) string {
	return newText(question).matchName(ProductNamePatterns)
}

// ExtractAltName is the looser name extractor used when a code lookup misses.
func ExtractAltName(question string) string {
	return newText(question).matchName(AltNamePatterns)
}

func (t text) matchCode(rules []CodeRule) string {
	for _, rule := range rules {
		for _, m := range rule.Pattern.FindAllStringSubmatchIndex(t.folded, -1) {
			token := t.slice(m[4], m[5])
			if !isCodeToken(token) {
				continue
			}
			switch {
			case hasDigit(token):
			case rule.Strong && t.strongMarker(m[2], m[3]):
			case !rule.Strong && isUpperToken(token) && len(token) >= 2:
			default:
				continue
			}
			return strings.ToUpper(token)
		}
	}
	return ""
}

// strongMarker reports whether the marker's first word is spelled as a code
// marker in the original, not as a homograph that folds to the same letters.
func (t text) strongMarker(start, end int) bool {
	rs, re := t.runes(start, end)
	word := strings.Fields(string(t.lower[rs:re]))
	return len(word) > 0 && StrongMarkers[word[0]]
}

func (t text) matchName(patterns []*regexp.Regexp) string {
	for _, p := range patterns {
		for _, m := range p.FindAllStringSubmatchIndex(t.folded, -1) {
			rs, re := t.runes(m[2], m[3])
			segment := string(t.lower[rs:re])
			if stop := stopPattern.FindStringIndex(segment); stop != nil {
				re = rs + utf8.RuneCountInString(segment[:stop[0]])
			}
			name := strings.Trim(string(t.original[rs:re]), " \t\r\n:\"'-")
			if name != "" {
				return strings.Join(strings.Fields(name), " ")
			}
		}
	}
	return ""
}

// isCodeToken accepts ASCII tokens that are not a function word.
func isCodeToken(token string) bool {
	for _, r := range token {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return !CodeStopWords[strings.ToLower(token)]
}

func isUpperToken(token string) bool {
	return strings.IndexFunc(token, unicode.IsLower) < 0 && strings.IndexFunc(token, unicode.IsUpper) >= 0
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// DetectMetric returns the metric the question asks about, or "" for all of them.
func DetectMetric(question string) Metric {
	folded := newText(question).folded
	for _, rule := range MetricRules {
		if rule.Pattern.MatchString(folded) {
			return rule.Metric
		}
	}
	return ""
}

// DetectStatus returns a movement status keyword, or "".
func DetectStatus(question string) string {
	folded := newText(question).folded
	for _, rule := range StatusRules {
		if rule.Pattern.MatchString(folded) {
			return rule.Status
		}
	}
	return ""
}

func IsFormulaQuestion(question string) bool {
	folded := newText(question).folded
	for _, p := range FormulaPatterns {
		if !p.MatchString(folded) {
			return false
		}
	}
	return true
}

// ExtractDateRange reads D/M/YYYY tokens. The first is the start of day and
// the second, or the first again, is the end of day, both in UTC. Invalid
// calendar dates are skipped.
func ExtractDateRange(question string) *models.DateRange {
	var days []time.Time
	for _, m := range dateTokenPattern.FindAllStringSubmatch(question, -1) {
		d, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		day := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if day.Day() != d || int(day.Month()) != mo {
			continue
		}
		days = append(days, day)
		if len(days) == 2 {
			break
		}
	}
	if len(days) == 0 {
		return nil
	}

	start, end := days[0], days[len(days)-1]
	if end.Before(start) {
		start, end = end, start
	}
	return &models.DateRange{
		Gte: start,
		Lte: end.Add(24*time.Hour - time.Millisecond),
	}
}

// HasDateToken reports whether the question carries an explicit D/M/YYYY date.
func HasDateToken(question string) bool {
	return dateTokenPattern.MatchString(question)
}
