// Package section upserts a rendered fragment into a named, heading-delimited
// section of a storage-format document.
//
// The document is scanned with the HTML tokenizer only to find byte offsets.
// It is never re-serialized, so every byte outside the replaced span is
// carried over unchanged.
package section

import (
	"errors"
	"fmt"
	"html"
	"io"
	"strings"

	nethtml "golang.org/x/net/html"

	"github.com/davarch/ci-wiki-sync/internal/domain"
	"github.com/davarch/ci-wiki-sync/internal/report"
)

const DefaultLevel = 2

type Action string

const (
	ActionReplaced       Action = "replaced"
	ActionReplacedMarker Action = "replaced-marker"
	ActionAppended       Action = "appended"
)

type Result struct {
	Document string
	Action   Action
}

// Merger works on headings of one level, 1 or 2; anything else means
// DefaultLevel. Fragments carry h3 headings, so deeper levels would split them.
type Merger struct {
	Level int
}

// Merge uses DefaultLevel.
func Merge(doc, key, fragment string) (Result, error) {
	return Merger{}.Merge(doc, key, fragment)
}

// Merge replaces the body of the first section titled key with fragment, or
// appends a new section when there is none. Duplicate titles resolve to the
// first one.
func (m Merger) Merge(doc, key, fragment string) (Result, error) {
	level := m.level()

	idx, err := scan(doc, key)
	if err != nil {
		return Result{}, err
	}

	body := sectionBody(fragment)

	for i, h := range idx.headings {
		if h.level != level || h.text != key {
			continue
		}
		end := len(doc)
		for _, next := range idx.headings[i+1:] {
			if next.level <= level {
				end = next.start
				break
			}
		}
		// a section never outlives the element that contains its heading
		for _, c := range idx.closes {
			if c.at >= h.end && c.depth <= h.depth {
				end = min(end, c.at)
				break
			}
		}
		return Result{
			Document: doc[:h.end] + body + doc[end:],
			Action:   ActionReplaced,
		}, nil
	}

	if mk := idx.marker; mk != nil {
		if mk.end < 0 {
			return Result{}, fmt.Errorf("unterminated <%s %s=%q>: %w", mk.tag, report.MarkerAttr, key, domain.ErrDocumentParse)
		}
		return Result{
			Document: doc[:mk.start] + strings.TrimRight(fragment, "\n") + doc[mk.end:],
			Action:   ActionReplacedMarker,
		}, nil
	}

	var b strings.Builder
	b.Grow(len(doc) + len(key) + len(body) + 16)
	b.WriteString(doc)
	if doc != "" && !strings.HasSuffix(doc, "\n") {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "<h%d>%s</h%d>", level, html.EscapeString(key), level)
	b.WriteString(body)

	return Result{Document: b.String(), Action: ActionAppended}, nil
}

func (m Merger) level() int {
	if m.Level < 1 || m.Level > 2 {
		return DefaultLevel
	}
	return m.Level
}

// sectionBody is what sits between a section heading and the next one. Both
// the replace and the append path write exactly this, which keeps repeated
// merges byte-identical.
func sectionBody(fragment string) string {
	return "\n" + strings.TrimRight(fragment, "\n") + "\n"
}

type heading struct {
	level      int
	start, end int
	text       string
	// depth is the number of elements open around the heading.
	depth int
}

// closing is an end tag that closed the element opened at depth.
type closing struct {
	at    int
	depth int
}

type element struct {
	tag        string
	start, end int
}

type index struct {
	headings []heading
	closes   []closing
	marker   *element
}

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true, "img": true,
	"input": true, "link": true, "meta": true, "param": true, "source": true, "track": true, "wbr": true,
}

func scan(doc, key string) (index, error) {
	var (
		idx   index
		open  *heading
		text  strings.Builder
		depth int
		off   int
		stack []string
	)

	z := nethtml.NewTokenizer(strings.NewReader(doc))
	z.AllowCDATA(true)

	for {
		tt := z.Next()
		raw := len(z.Raw())
		start := off
		off += raw

		switch tt {
		case nethtml.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return index{}, fmt.Errorf("tokenize at byte %d: %v: %w", start, err, domain.ErrDocumentParse)
			}
			if open != nil {
				return index{}, fmt.Errorf("unterminated <h%d> at byte %d: %w", open.level, open.start, domain.ErrDocumentParse)
			}
			return idx, nil

		case nethtml.StartTagToken, nethtml.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)

			if lvl := headingLevel(tag); lvl > 0 {
				if open != nil {
					return index{}, fmt.Errorf("<%s> nested in <h%d> at byte %d: %w", tag, open.level, start, domain.ErrDocumentParse)
				}
				h := heading{level: lvl, start: start, end: off, depth: len(stack)}
				if tt == nethtml.SelfClosingTagToken {
					idx.headings = append(idx.headings, h)
					continue
				}
				open = &h
				text.Reset()
				continue
			}

			if tt == nethtml.SelfClosingTagToken || voidElements[tag] {
				continue
			}
			stack = append(stack, tag)
			if mk := idx.marker; mk != nil && mk.end < 0 && mk.tag == tag {
				depth++
				continue
			}
			if idx.marker == nil && hasAttr && hasMarker(z, key) {
				idx.marker = &element{tag: tag, start: start, end: -1}
				depth = 1
			}

		case nethtml.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)

			if open != nil && headingLevel(tag) == open.level {
				open.end = off
				open.text = strings.TrimSpace(text.String())
				idx.headings = append(idx.headings, *open)
				open = nil
				continue
			}
			// unclosed children are closed implicitly; stray end tags are ignored
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == tag {
					idx.closes = append(idx.closes, closing{at: start, depth: i + 1})
					stack = stack[:i]
					break
				}
			}
			if mk := idx.marker; mk != nil && mk.end < 0 && mk.tag == tag {
				depth--
				if depth == 0 {
					mk.end = off
				}
			}

		case nethtml.TextToken:
			if open != nil {
				text.Write(z.Text())
			}
		}
	}
}

func hasMarker(z *nethtml.Tokenizer, key string) bool {
	for {
		k, v, more := z.TagAttr()
		if string(k) == report.MarkerAttr && string(v) == key {
			return true
		}
		if !more {
			return false
		}
	}
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}
