package utils

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"
)

func TestStripDiacritics(t *testing.T) {
	cases := map[string]string{
		"Mã hàng":          "Ma hang",
		"tồn kho bao nhiêu": "ton kho bao nhieu",
		"Đường đỏ":         "Duong do",
		"xuất kho":         "xuat kho",
		"ABC123":           "ABC123",
		"":                 "",
	}
	for in, want := range cases {
		assert.Equal(t, want, StripDiacritics(in), in)
	}
}

func TestStripDiacritics_PreservesRuneCount(t *testing.T) {
	inputs := []string{
		"Lịch sử nhập kho mặt hàng Bánh quy bơ",
		norm.NFD.String("Sản phẩm Combo Ưu đãi"),
	}
	for _, in := range inputs {
		nfc := norm.NFC.String(in)
		assert.Equal(t, utf8.RuneCountInString(nfc), utf8.RuneCountInString(StripDiacritics(in)))
	}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "banh quy bo", Fold("Bánh Quy BƠ"))
	assert.Equal(t, Fold("Combo A"), Fold("combo a"))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "Tồn", TruncateRunes("Tồn kho", 3))
	assert.Equal(t, "abc", TruncateRunes("abc", 10))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}

func TestHashQuestion_IgnoresCaseAccentsAndSpacing(t *testing.T) {
	assert.Equal(t, HashQuestion("Tồn kho  ABC123?"), HashQuestion("ton kho abc123?"))
	assert.NotEqual(t, HashQuestion("ton kho abc123"), HashQuestion("ton kho abc124"))
}
