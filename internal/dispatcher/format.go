package dispatcher

import (
	"fmt"
	"unicode/utf8"

	"github.com/standardbeagle/lci/internal/config"
)

// contentMarkerBegin and contentMarkerEnd bracket file content returned to
// callers so downstream LLM consumers can tell data from instructions
// (spec.md §6 "Reserved content markers"). Grounded on
// original_source/src/fmt.rs's sentinel-line convention.
const (
	contentMarkerBegin = "--- BEGIN FILE CONTENT: %s ---"
	contentMarkerEnd   = "--- END FILE CONTENT: %s ---"
)

// wrapContent brackets content with the reserved sentinel lines for path.
func wrapContent(path, content string) string {
	return fmt.Sprintf("%s\n%s\n%s", fmt.Sprintf(contentMarkerBegin, path), content, fmt.Sprintf(contentMarkerEnd, path))
}

// stripContentMarkers removes the reserved sentinel lines, used by
// formatters that display content without the bracketing (spec.md §6:
// "Formatters strip these on display").
func stripContentMarkers(path, wrapped string) string {
	begin := fmt.Sprintf(contentMarkerBegin, path) + "\n"
	end := "\n" + fmt.Sprintf(contentMarkerEnd, path)
	s := wrapped
	if len(s) >= len(begin) && s[:len(begin)] == begin {
		s = s[len(begin):]
	}
	if len(s) >= len(end) && s[len(s)-len(end):] == end {
		s = s[:len(s)-len(end)]
	}
	return s
}

const truncationTrailerBudget = 200 // bytes, spec.md §8 S6

// capResponse enforces the 512 KiB response cap (spec.md §4.7, §8 S6):
// when payload exceeds the cap, it is truncated at the nearest preceding
// `,` or `\n` boundary, then a truncation notice is appended. Both the cut
// point and the appended notice respect UTF-8 codepoint boundaries — never
// splitting a multi-byte rune — even though the result is not necessarily
// valid JSON (spec.md §9 open question (c): consumers treat the trailer as
// framed text, not a JSON value).
func capResponse(payload []byte, cap int) []byte {
	if cap <= 0 {
		cap = config.DefaultResponseCap
	}
	if len(payload) <= cap {
		return payload
	}

	cut := cap
	for cut > 0 && payload[cut-1] != ',' && payload[cut-1] != '\n' {
		cut--
	}
	if cut == 0 {
		cut = cap
	}
	for cut > 0 && !utf8.RuneStart(payload[cut]) {
		cut--
	}

	trailer := []byte(fmt.Sprintf("\n...TRUNCATED (%d of %d bytes shown)...", cut, len(payload)))
	if len(trailer) > truncationTrailerBudget {
		trailer = trailer[:truncationTrailerBudget]
		for len(trailer) > 0 && !utf8.RuneStart(trailer[len(trailer)-1]) {
			trailer = trailer[:len(trailer)-1]
		}
	}

	out := make([]byte, 0, cut+len(trailer))
	out = append(out, payload[:cut]...)
	out = append(out, trailer...)
	return out
}
