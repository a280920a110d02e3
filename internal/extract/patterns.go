package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/stockdesk/backend/internal/storage/models"
)

// Patterns run against folded text: diacritics stripped, lower case. Stop
// phrases are the exception and run against the lower-cased original.

// CodeRule captures a marker word in group 1 and a code token in group 2.
// A token without a digit is accepted only after a strong marker, or in upper
// case after a weak one, so "mặt hàng áo" is left to the name patterns.
type CodeRule struct {
	Pattern *regexp.Regexp
	Strong  bool
}

var CodeRules = []CodeRule{
	{regexp.MustCompile(`\b(ma hang|ma sp|ma|sku|code)\b\s*[:#]?\s*([a-z0-9][a-z0-9_\-]*)`), true},
	{regexp.MustCompile(`\b(mat hang|item)\b\s*[:#]?\s*([a-z0-9][a-z0-9_\-]*)`), false},
}

// StrongMarkers are the lower-cased original spellings of a strong marker's
// first word. "mà" and "má" fold to "ma" but do not introduce a code.
var StrongMarkers = map[string]bool{"mã": true, "ma": true, "sku": true, "code": true}

// CodeStopWords are folded function words that never form a code on their own.
var CodeStopWords = map[string]bool{
	"nao": true, "gi": true, "la": true, "co": true, "con": true, "ton": true,
	"bao": true, "nhieu": true, "cua": true, "hang": true, "sp": true, "so": true,
	"nay": true, "do": true, "va": true, "hay": true, "thi": true, "duoc": true,
	"da": true, "dang": true, "khong": true, "cho": true, "ve": true, "trong": true,
	"tu": true, "ngay": true, "nhap": true, "xuat": true, "gom": true, "nhung": true,
	"hien": true, "the": true, "nhu": true, "kho": true, "item": true, "code": true,
	"sku": true, "may": true,
}

// LeadingCodePattern matches a question that starts with a code-like token.
// The token still needs a digit or upper case to count as a code.
var LeadingCodePattern = regexp.MustCompile(`^\s*([a-z0-9][a-z0-9_\-]{3,})\b`)

var NamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:ten hang|ten|mat hang|san pham|hang|item)\s*:?\s+(.+)$`),
}

// ProductNamePatterns capture a composition name. The combo marker is part of
// the name as stored in the catalog.
var ProductNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:san pham|sp)\s*:?\s+(.+)$`),
	regexp.MustCompile(`\b(combo\b.+)$`),
}

var AltNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:cua|ve|cho|item|hang)\s+(.+)$`),
}

// StopPhrases end a captured name. The earliest one wins. They keep their
// diacritics: folded, "đã" would collide with "da" in "túi da bò" and "có"
// with "cổ" in "áo cổ tròn". Unaccented spellings are listed only where the
// folded form has no common homograph.
var StopPhrases = []string{
	"bao nhiêu", "đã", "trong", "còn", "tồn", "có", "gồm", "là", "nhập",
	"xuất", "từ", "ngày", "hiện", "được", "thế nào", "như nào", "không",
	"nào", "những", "mấy",
	"bao nhieu", "con", "ton", "gom", "nhap", "xuat", "ngay", "hien", "duoc",
	"the nao", "nhu nao", "khong", "nao", "nhung",
}

var stopPattern = buildStopPattern(StopPhrases)

// buildStopPattern matches a phrase bounded by whitespace or punctuation, or a
// lone punctuation mark. Go's \b only knows ASCII letters, so boundaries are
// spelled out and the phrase may carry a leading space in the match.
func buildStopPattern(phrases []string) *regexp.Regexp {
	quoted := make([]string, len(phrases))
	for i, p := range phrases {
		quoted[i] = regexp.QuoteMeta(norm.NFC.String(p))
	}
	return regexp.MustCompile(`(?:^|\s)(?:` + strings.Join(quoted, "|") + `)(?:\s|$|[?,.!;:])|[?,.!;]`)
}

type Metric string

const (
	MetricRest           Metric = "rest"
	MetricBoxes          Metric = "boxes"
	MetricReceived       Metric = "received"
	MetricDelivered      Metric = "delivered"
	MetricQuantityPerBox Metric = "quantityPerBox"
)

type MetricRule struct {
	Metric  Metric
	Pattern *regexp.Regexp
}

// MetricRules are evaluated in order; per-box wording must win over box wording.
var MetricRules = []MetricRule{
	{MetricQuantityPerBox, regexp.MustCompile(`\b(?:moi thung|moi hop|mot thung|1 thung|per box|quy cach)\b`)},
	{MetricBoxes, regexp.MustCompile(`\b(?:thung|hop|box|boxes)\b`)},
	{MetricReceived, regexp.MustCompile(`\b(?:nhap|received)\b`)},
	{MetricDelivered, regexp.MustCompile(`\b(?:xuat|delivered)\b`)},
	{MetricRest, regexp.MustCompile(`\b(?:ton|con|rest|remaining)\b`)},
}

type StatusRule struct {
	Status  string
	Pattern *regexp.Regexp
}

var StatusRules = []StatusRule{
	{models.StatusReturned, regexp.MustCompile(`\b(?:tra hang|tra ve|hoan hang|hoan tra|returned?)\b`)},
	{models.StatusDelivered, regexp.MustCompile(`\b(?:xuat|giao|delivered)\b`)},
	{models.StatusReceived, regexp.MustCompile(`\b(?:nhap|received)\b`)},
}

// FormulaPatterns must all match for a question to ask how metrics are computed.
var FormulaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:cach tinh|tinh nhu the nao|tinh the nao|tinh sao|cong thuc|how\b.*\b(?:calculated|computed))`),
	regexp.MustCompile(`\b(?:thung|hop|le|du|so du|box|boxes|remainder)\b`),
}

var dateTokenPattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
