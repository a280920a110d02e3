package query

import (
	"encoding/json"
	"fmt"

	"github.com/stockdesk/backend/internal/facts"
)

const systemPrompt = `Bạn là trợ lý kho hàng. Chỉ trả lời dựa trên DỮ LIỆU dạng JSON được cung cấp.

Quy tắc:
1. Không bịa số liệu. Mọi con số phải lấy từ DỮ LIỆU.
2. Nếu "found" là false: nói rõ không tìm thấy. Nếu có "candidates", liệt kê mã và tên để người dùng chọn lại.
3. Với tồn kho: ưu tiên "requestedValue" cho chỉ số được hỏi, dùng "explanation" khi người dùng hỏi cách tính.
4. Với lịch sử nhập xuất: nêu tổng số phiếu, tổng số lượng và vài phiếu gần nhất.
5. Nếu "type" là "unknown": nói rằng câu hỏi nằm ngoài dữ liệu kho và gợi ý cách hỏi.
Trả lời ngắn gọn bằng tiếng Việt.`

func buildUserPrompt(question string, fact *facts.Fact) (string, error) {
	payload, err := json.Marshal(fact)
	if err != nil {
		return "", fmt.Errorf("failed to encode fact: %w", err)
	}
	return fmt.Sprintf("Câu hỏi: %s\n\nDỮ LIỆU:\n%s", question, payload), nil
}
