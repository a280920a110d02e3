package guard

import (
	"math"
	"unicode/utf8"
)

// Pricing converts characters and tokens to money. Prices are per million tokens.
type Pricing struct {
	InputPerMillion  float64
	OutputPerMillion float64
	CharsPerToken    float64
}

// EstimateTokens approximates the token count of text from its length in runes.
func (p Pricing) EstimateTokens(text string) int {
	return p.TokensForChars(utf8.RuneCountInString(text))
}

func (p Pricing) TokensForChars(chars int) int {
	if chars <= 0 || p.CharsPerToken <= 0 {
		return 0
	}
	return int(math.Ceil(float64(chars) / p.CharsPerToken))
}

func (p Pricing) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*p.InputPerMillion/1e6 + float64(outputTokens)*p.OutputPerMillion/1e6
}
