package service

import (
	"regexp"
	"strings"
)

// Local models ZeroClaw fronts (Qwen, DeepSeek, and friends) interleave
// chain-of-thought into their output as pseudo-XML tags. Everything between
// an opening and closing thinking tag is dropped before the text reaches a
// chat reply; <final> markup is unwrapped in place. Tags inside code blocks
// are left alone — a model quoting its own tag syntax in an example is not
// reasoning.
//
// An unclosed thinking tag swallows the rest of the text: leaking half a
// thought to the user is worse than returning a short reply.

// quickTagRe is the fast-path check: if no match, skip all processing.
var quickTagRe = regexp.MustCompile(`(?i)<\s*/?\s*(?:think(?:ing)?|thought|antthinking|final)\b`)

// finalTagRe matches <final> and </final> tags.
var finalTagRe = regexp.MustCompile(`(?i)<\s*/?\s*final\b[^<>]*>`)

// thinkingTagRe matches opening/closing think/thinking/thought/antthinking
// tags. Capture group 1 = "/" if closing tag, empty if opening.
var thinkingTagRe = regexp.MustCompile(`(?i)<\s*(/?)\s*(?:think(?:ing)?|thought|antthinking)\b[^<>]*>`)

// StripReasoningTags removes reasoning/thinking markup from model output and
// trims surrounding whitespace. Supported tags (case-insensitive): <think>,
// <thinking>, <thought>, <antthinking>, <final>.
func StripReasoningTags(text string) string {
	if text == "" || !quickTagRe.MatchString(text) {
		return text
	}

	cleaned := unwrapFinalTags(text)

	protected := codeSpans(cleaned)
	matches := thinkingTagRe.FindAllStringSubmatchIndex(cleaned, -1)

	var out strings.Builder
	out.Grow(len(cleaned))

	last := 0
	inThinking := false
	for _, m := range matches {
		// m[0..1] = full match, m[2..3] = capture 1 ("/" on closing tags)
		start, end := m[0], m[1]
		isClose := m[2] != m[3]

		if protected.contains(start) {
			continue
		}

		if !inThinking {
			out.WriteString(cleaned[last:start])
			if !isClose {
				inThinking = true
			}
		} else if isClose {
			inThinking = false
		}
		last = end
	}
	if !inThinking {
		out.WriteString(cleaned[last:])
	}

	return strings.TrimSpace(out.String())
}

// unwrapFinalTags deletes <final>/</final> markup while keeping its content,
// skipping occurrences inside code.
func unwrapFinalTags(text string) string {
	if !finalTagRe.MatchString(text) {
		return text
	}
	protected := codeSpans(text)
	matches := finalTagRe.FindAllStringIndex(text, -1)
	// Delete in reverse so earlier indices stay valid.
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		if !protected.contains(m[0]) {
			text = text[:m[0]] + text[m[1]:]
		}
	}
	return text
}

// spanSet is an ordered list of [start, end) byte ranges.
type spanSet []span

type span struct{ start, end int }

func (s spanSet) contains(pos int) bool {
	for _, r := range s {
		if pos >= r.start && pos < r.end {
			return true
		}
	}
	return false
}

// inlineCodeRe matches inline `code` spans.
var inlineCodeRe = regexp.MustCompile("`+[^`]+`+")

// codeSpans locates fenced code blocks (``` / ~~~) and inline code spans,
// where tag-looking text must be preserved verbatim.
func codeSpans(text string) spanSet {
	var spans spanSet
	spans = append(spans, fencedBlocks(text, "```")...)
	spans = append(spans, fencedBlocks(text, "~~~")...)

	for _, m := range inlineCodeRe.FindAllStringIndex(text, -1) {
		if !spans.contains(m[0]) {
			spans = append(spans, span{m[0], m[1]})
		}
	}
	return spans
}

// fencedBlocks scans for fence-delimited blocks. Fences count only at the
// start of a line; an unclosed fence runs to the end of the text.
func fencedBlocks(text, fence string) spanSet {
	var spans spanSet
	offset := 0
	for offset < len(text) {
		idx := strings.Index(text[offset:], fence)
		if idx < 0 {
			break
		}
		start := offset + idx
		if start > 0 && text[start-1] != '\n' {
			offset = start + len(fence)
			continue
		}
		lineEnd := strings.Index(text[start:], "\n")
		if lineEnd < 0 {
			// Fence on the last line with no newline: unclosed.
			spans = append(spans, span{start, len(text)})
			break
		}

		closing := findClosingFence(text, start+lineEnd+1, fence)
		if closing < 0 {
			spans = append(spans, span{start, len(text)})
			break
		}
		end := closing + len(fence)
		if nl := strings.Index(text[end:], "\n"); nl >= 0 {
			end += nl + 1
		} else {
			end = len(text)
		}
		spans = append(spans, span{start, end})
		offset = end
	}
	return spans
}

// findClosingFence returns the index of the next line-leading fence at or
// after from, or -1.
func findClosingFence(text string, from int, fence string) int {
	pos := from
	for pos < len(text) {
		ci := strings.Index(text[pos:], fence)
		if ci < 0 {
			return -1
		}
		cand := pos + ci
		if cand == 0 || text[cand-1] == '\n' {
			return cand
		}
		pos = cand + len(fence)
	}
	return -1
}
