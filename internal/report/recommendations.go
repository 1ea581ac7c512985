package report

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// BlockKind separates free paragraphs from bullet lists.
type BlockKind string

const (
	BlockParagraph BlockKind = "paragraph"
	BlockList      BlockKind = "list"
)

// Span is a run of inline text.
type Span struct {
	Text   string `json:"text"`
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
}

// Item is a list entry with optional sub-bullets.
type Item struct {
	Spans []Span   `json:"spans"`
	Sub   [][]Span `json:"sub,omitempty"`
}

// Block is a paragraph (Spans) or a list (Items).
type Block struct {
	Kind  BlockKind `json:"kind"`
	Spans []Span    `json:"spans,omitempty"`
	Items []Item    `json:"items,omitempty"`
}

// listItem matches numbered items (ASCII or Bengali digits) and "*" or "•" bullets.
var listItem = regexp.MustCompile(`^(?:(?:[০-৯]+|[0-9]+)\.\s*|\*\s+|•\s+)(.*)`)

// ParseRecommendations splits model output into paragraphs and lists.
// Lines starting with "* " directly below a list item are its sub-bullets.
func ParseRecommendations(text string) []Block {
	lines := strings.Split(text, "\n")
	var blocks []Block
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if listItem.MatchString(line) {
			var items []Item
			for i < len(lines) {
				m := listItem.FindStringSubmatch(strings.TrimSpace(lines[i]))
				if m == nil {
					break
				}
				item := Item{Spans: ParseInline(m[1])}
				next := i + 1
				for next < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[next]), "* ") {
					item.Sub = append(item.Sub, ParseInline(strings.TrimSpace(lines[next])[2:]))
					next++
				}
				items = append(items, item)
				i = next
			}
			blocks = append(blocks, Block{Kind: BlockList, Items: items})
			continue
		}
		if line != "" {
			blocks = append(blocks, Block{Kind: BlockParagraph, Spans: ParseInline(line)})
		}
		i++
	}
	return blocks
}

// ParseInline splits **bold** and *italic* runs. A single asterisk opens
// italic only when not preceded by a word character and not followed by
// whitespace; it closes under the mirrored rule.
func ParseInline(text string) []Span {
	var spans []Span
	var plain strings.Builder
	flush := func() {
		if plain.Len() > 0 {
			spans = append(spans, Span{Text: plain.String()})
			plain.Reset()
		}
	}

	for i := 0; i < len(text); {
		if strings.HasPrefix(text[i:], "**") {
			if end := strings.Index(text[i+2:], "**"); end >= 0 {
				flush()
				spans = append(spans, Span{Text: text[i+2 : i+2+end], Bold: true})
				i += end + 4
				continue
			}
		}
		if text[i] == '*' && canOpenItalic(text, i) {
			if end := closeItalic(text, i+1); end > i+1 {
				flush()
				spans = append(spans, Span{Text: text[i+1 : end], Italic: true})
				i = end + 1
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		plain.WriteRune(r)
		i += size
	}
	flush()
	return spans
}

func canOpenItalic(text string, at int) bool {
	if at > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:at])
		if isWord(prev) {
			return false
		}
	}
	next, size := utf8.DecodeRuneInString(text[at+1:])
	return size > 0 && !unicode.IsSpace(next)
}

// closeItalic returns the index of the closing asterisk, or -1.
func closeItalic(text string, from int) int {
	for j := from + 1; j < len(text); j++ {
		if text[j] != '*' {
			continue
		}
		prev, _ := utf8.DecodeLastRuneInString(text[:j])
		if unicode.IsSpace(prev) {
			continue
		}
		if next, size := utf8.DecodeRuneInString(text[j+1:]); size > 0 && isWord(next) {
			continue
		}
		return j
	}
	return -1
}

func isWord(r rune) bool {
	return r == '_' || (r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}
