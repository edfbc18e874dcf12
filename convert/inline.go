package convert

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// refIndex maps reference anchor ids (e.g. "B12", "ref-3", "CR7") to the
// reference list's own 1-based numbering, so in-text citation markers can
// be rewritten to match it.
type refIndex map[string]int

// refListSelectors locate the reference list container, tried in order.
var refListSelectors = []string{
	"section.ref-list",
	"div.ref-list",
	"ul.ref-list",
	"ol.ref-list",
	"section#references",
}

// buildRefIndex numbers the reference entries in document order and
// records every anchor id each entry carries.
func buildRefIndex(doc *html.Node) refIndex {
	container := findRefContainer(doc)
	if container == nil {
		return nil
	}

	idx := make(refIndex)
	for i, li := range querySelectorAll(container, "li") {
		n := i + 1
		if id := attr(li, "id"); id != "" {
			idx[id] = n
		}
		// Anchors nested inside the entry also serve as citation targets.
		for _, a := range querySelectorAll(li, "a[id]") {
			idx[attr(a, "id")] = n
		}
		for _, span := range querySelectorAll(li, "span[id]") {
			idx[attr(span, "id")] = n
		}
	}
	return idx
}

func findRefContainer(doc *html.Node) *html.Node {
	for _, sel := range refListSelectors {
		if n := querySelector(doc, sel); n != nil {
			return n
		}
	}
	return nil
}

// references renders the reference list as an ordered list, preserving
// outbound DOI/PMC/PubMed links on each entry.
func (c *Converter) references(sec *html.Node) string {
	lis := querySelectorAll(sec, "li")
	var items []string
	n := 0
	for _, li := range lis {
		text := c.inline(li, nil)
		if text == "" {
			continue
		}
		n++
		items = append(items, strconv.Itoa(n)+". "+text)
	}
	return strings.Join(items, "\n")
}

// inline converts the inline content of a node to markdown. Emphasis,
// bold, sub/superscript and citation markers get markdown syntax; every
// other inline tag is flattened to its text.
func (c *Converter) inline(n *html.Node, refs refIndex) string {
	var sb strings.Builder
	c.inlineChildren(n, refs, &sb)
	return strings.TrimSpace(collapseSpaces(sb.String()))
}

func (c *Converter) inlineChildren(n *html.Node, refs refIndex, sb *strings.Builder) {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.inlineNode(child, refs, sb)
	}
}

func (c *Converter) inlineNode(n *html.Node, refs refIndex, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		return
	}
	if n.Type != html.ElementNode {
		return
	}

	switch n.Data {
	case "em", "i":
		wrapInline(sb, "*", collectText(n))
	case "strong", "b":
		wrapInline(sb, "**", collectText(n))
	case "sup":
		if nums, ok := c.citationGroup(n, refs); ok {
			writeCitations(sb, nums)
			return
		}
		wrapInline(sb, "^", collectText(n))
	case "sub":
		wrapInline(sb, "~", collectText(n))
	case "a":
		c.inlineLink(n, refs, sb)
	case "img":
		src := c.absoluteSrc(attr(n, "src"))
		if src != "" {
			sb.WriteString("![" + attr(n, "alt") + "](" + src + ")")
		}
	case "math":
		sb.WriteString(c.equation(n, false))
	case "br":
		sb.WriteByte(' ')
	case "script", "style", "noscript", "button":
		// dropped
	default:
		c.inlineChildren(n, refs, sb)
	}
}

// inlineLink handles the three link shapes: in-text citations (fragment
// links into the reference list), external links (kept), and internal
// navigation links (flattened to text).
func (c *Converter) inlineLink(n *html.Node, refs refIndex, sb *strings.Builder) {
	href := attr(n, "href")
	text := collectText(n)

	if strings.HasPrefix(href, "#") {
		target := strings.TrimPrefix(href, "#")
		if num, ok := refs[target]; ok {
			writeCitations(sb, []int{num})
			return
		}
		// Fragment link outside the reference list: keep the text.
		sb.WriteString(text)
		return
	}

	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		if text == "" {
			return
		}
		sb.WriteString("[" + text + "](" + href + ")")
		return
	}

	sb.WriteString(text)
}

// citationGroup recognizes <sup> wrappers whose content is only citation
// links and separators (the common in-text marker shape), so they render
// as bracketed references rather than superscript. A sup with any other
// content is a genuine scientific superscript and is left alone.
func (c *Converter) citationGroup(sup *html.Node, refs refIndex) ([]int, bool) {
	if refs == nil {
		return nil, false
	}
	var nums []int
	for child := sup.FirstChild; child != nil; child = child.NextSibling {
		switch {
		case child.Type == html.TextNode && strings.TrimSpace(child.Data) == "":
		case child.Type == html.TextNode && isSeparator(child.Data):
		case child.Type == html.ElementNode && child.Data == "a":
			target := strings.TrimPrefix(attr(child, "href"), "#")
			v, ok := refs[target]
			if !ok {
				return nil, false
			}
			nums = append(nums, v)
		default:
			return nil, false
		}
	}
	if len(nums) == 0 {
		return nil, false
	}
	return nums, true
}

func isSeparator(s string) bool {
	s = strings.TrimSpace(s)
	return s == "," || s == ";" || s == "-" || s == "–"
}

// writeCitations emits [N],[M]..., skipping the brackets when the
// surrounding text already supplies them.
func writeCitations(sb *strings.Builder, nums []int) {
	out := sb.String()
	bare := strings.HasSuffix(strings.TrimRight(out, " "), "[") ||
		strings.HasSuffix(out, ",") || strings.HasSuffix(out, "–")
	for i, num := range nums {
		if i > 0 {
			sb.WriteByte(',')
		}
		if bare {
			sb.WriteString(strconv.Itoa(num))
			continue
		}
		sb.WriteString("[" + strconv.Itoa(num) + "]")
	}
}

func wrapInline(sb *strings.Builder, marker, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	sb.WriteString(marker + text + marker)
}

// collapseSpaces folds runs of whitespace (including newlines inside
// paragraph markup) into single spaces.
func collapseSpaces(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			space = true
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}
