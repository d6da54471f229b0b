package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var viewsPattern = regexp.MustCompile(`(?i)([\d][\d.,]*)\s*([kmb])?\b`)

// ParseViews extracts a view count from free-form scraped text such as
// "1.2M views", "345K", "1,234,567 lượt xem". Returns 0 when no count is
// found. The first numeric token wins; scrapers put the view count before
// other numbers in the card text.
func ParseViews(text string) int64 {
	m := viewsPattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}

	num := strings.ReplaceAll(m[1], ",", "")
	// A trailing dot left over from sentence punctuation is not a decimal.
	num = strings.TrimSuffix(num, ".")
	val, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}

	switch strings.ToLower(m[2]) {
	case "k":
		val *= 1_000
	case "m":
		val *= 1_000_000
	case "b":
		val *= 1_000_000_000
	}
	return int64(val)
}

// MatchTopic reports whether scraped text relates to a topic: either the
// topic slug itself or any of its keywords appears in the text.
func MatchTopic(text, topic string, keywords []string) bool {
	lower := strings.ToLower(text)
	if strings.Contains(lower, strings.ToLower(topic)) {
		return true
	}
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
