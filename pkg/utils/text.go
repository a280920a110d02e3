package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// StripDiacritics removes Vietnamese tone and vowel marks. The result has
// exactly one rune per rune of norm.NFC.String(s), so rune offsets found in
// the stripped text can be used to slice the NFC original.
func StripDiacritics(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		b.WriteRune(baseRune(r))
	}
	return b.String()
}

func baseRune(r rune) rune {
	switch r {
	case 'đ':
		return 'd'
	case 'Đ':
		return 'D'
	}
	if r < utf8.RuneSelf {
		return r
	}
	for _, c := range norm.NFD.String(string(r)) {
		if !unicode.Is(unicode.Mn, c) {
			return c
		}
	}
	return r
}

// Fold is the matching key for names: lower case, no diacritics.
func Fold(s string) string {
	return strings.ToLower(StripDiacritics(s))
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}

// HashQuestion keys caches on the folded, whitespace-collapsed question.
func HashQuestion(question string) string {
	return HashString(strings.Join(strings.Fields(Fold(question)), " "))
}
