package agent

import (
	"sort"
	"strings"
)

// defaultSliceKeywords are the domain terms worth keeping when a
// document has to be cut down to fit a turn.
var defaultSliceKeywords = []string{
	"置换", "比例", "换股", "合并", "预案", "方案",
	"终止上市", "退市", "摘牌", "决议", "通过",
}

// sliceByKeywords bounds a document excerpt by keeping only windows of
// text around keyword hits, with a fixed context margin on each side.
// Overlapping windows are merged and order is preserved, so the result
// reads as elided source text rather than shuffled fragments. Text
// already within maxLen passes through untouched; text with no hits
// degrades to a plain prefix.
func sliceByKeywords(text string, keywords []string, contextSize, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}

	var positions []int
	for _, kw := range keywords {
		kwRunes := []rune(kw)
		for i := 0; i+len(kwRunes) <= len(runes); {
			j := indexRunes(runes[i:], kwRunes)
			if j < 0 {
				break
			}
			positions = append(positions, i+j)
			i += j + len(kwRunes)
		}
	}
	if len(positions) == 0 {
		return string(runes[:maxLen])
	}
	sort.Ints(positions)

	var b strings.Builder
	curStart, curEnd := -1, -1
	flush := func() {
		if curStart < 0 {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n...\n")
		}
		b.WriteString(string(runes[curStart:curEnd]))
	}

	for _, pos := range positions {
		start := pos - contextSize
		if start < 0 {
			start = 0
		}
		end := pos + contextSize
		if end > len(runes) {
			end = len(runes)
		}
		if curStart < 0 {
			curStart, curEnd = start, end
		} else if start <= curEnd {
			if end > curEnd {
				curEnd = end
			}
		} else {
			flush()
			curStart, curEnd = start, end
		}
	}
	flush()

	out := []rune(b.String())
	if len(out) > maxLen {
		out = out[:maxLen]
	}
	return string(out)
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
