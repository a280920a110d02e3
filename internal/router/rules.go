package router

import (
	"regexp"

	"github.com/stockdesk/backend/internal/extract"
	"github.com/stockdesk/backend/internal/storage/models"
)

// Rule is one heuristic over the folded question. Rules are tried in order
// and the first match decides the domain without a model call.
type Rule struct {
	Name   string
	Domain models.Domain
	Match  func(question, folded string) bool
}

var (
	historyPattern    = regexp.MustCompile(`\b(?:lich su|nhat ky|log|logs|history|bien dong|sao ke)\b`)
	movementPattern   = regexp.MustCompile(`\b(?:nhap|xuat|tra hang|tra ve|giao hang|received|delivered|returned)\b`)
	datePhrasePattern = regexp.MustCompile(`\b(?:hom nay|hom qua|tuan nay|tuan truoc|thang nay|thang truoc|tu ngay|den ngay|ngay \d{1,2}|thang \d{1,2})\b`)
)

var Rules = []Rule{
	{
		Name:   "history_vocabulary",
		Domain: models.DomainMovement,
		Match: func(_, folded string) bool {
			return historyPattern.MatchString(folded)
		},
	},
	{
		Name:   "movement_with_date",
		Domain: models.DomainMovement,
		Match: func(question, folded string) bool {
			if !movementPattern.MatchString(folded) {
				return false
			}
			return extract.HasDateToken(question) || datePhrasePattern.MatchString(folded)
		},
	},
	{
		Name:   "product_name",
		Domain: models.DomainComposition,
		Match: func(question, _ string) bool {
			return extract.ExtractProductName(question) != ""
		},
	},
}

type DomainSpec struct {
	Domain      models.Domain
	Description string
	Examples    []string
}

// Catalog is the closed set of domains offered to the classifier.
var Catalog = []DomainSpec{
	{
		Domain:      models.DomainInventory,
		Description: "Tồn kho của một mặt hàng: số lượng nhập, xuất, còn lại, số thùng, số lẻ, quy cách mỗi thùng.",
		Examples: []string{
			"Mã hàng ABC123 còn bao nhiêu?",
			"Áo thun trắng còn mấy thùng?",
			"Số thùng được tính như thế nào?",
		},
	},
	{
		Domain:      models.DomainComposition,
		Description: "Thành phần của sản phẩm hoặc combo: gồm những mặt hàng nào, bao nhiêu món.",
		Examples: []string{
			"Sản phẩm Combo A gồm những item nào?",
			"Set quà Tết có mấy món?",
		},
	},
	{
		Domain:      models.DomainMovement,
		Description: "Lịch sử nhập, xuất, trả hàng của mặt hàng theo thời gian.",
		Examples: []string{
			"Lịch sử nhập kho mã ABC123",
			"Tháng này đã xuất bao nhiêu áo thun?",
		},
	},
}
