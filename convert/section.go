package convert

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// Role is the semantic classification of an article section.
type Role string

const (
	RoleAbstract     Role = "abstract"
	RoleIntroduction Role = "introduction"
	RoleMethods      Role = "methods"
	RoleResults      Role = "results"
	RoleDiscussion   Role = "discussion"
	RoleReferences   Role = "references"
	RoleOther        Role = "other"
)

// Section is one extracted logical unit of the article, in document order.
type Section struct {
	Title string
	Role  Role
	Body  string // rendered markdown, without the section heading
}

// roleRules map heading text to a role, evaluated top to bottom. The
// class/id hints in classify run first; these only see the heading.
var roleRules = []struct {
	re   *regexp.Regexp
	role Role
}{
	{regexp.MustCompile(`(?i)^abstract`), RoleAbstract},
	{regexp.MustCompile(`(?i)^(introduction|background)`), RoleIntroduction},
	{regexp.MustCompile(`(?i)^(methods|materials?\s+and\s+methods|experimental\s+procedures?|study\s+design)`), RoleMethods},
	{regexp.MustCompile(`(?i)^results`), RoleResults},
	{regexp.MustCompile(`(?i)^(discussion|conclusions?)`), RoleDiscussion},
	{regexp.MustCompile(`(?i)^(references|literature\s+cited|bibliography)`), RoleReferences},
}

// classify determines a section's role from its heading text and id/class
// attributes. Unrecognized sections fall through to RoleOther; their
// literal heading is kept as the title rather than forced to a canonical
// name.
func classify(heading, id, class string) Role {
	classes := strings.Fields(class)
	for _, c := range classes {
		switch c {
		case "abstract":
			return RoleAbstract
		case "ref-list", "references":
			return RoleReferences
		}
	}
	if strings.HasPrefix(strings.ToLower(id), "abstract") || strings.HasPrefix(id, "Abs") {
		return RoleAbstract
	}
	if id == "ref-list" || strings.HasPrefix(strings.ToLower(id), "reference") {
		return RoleReferences
	}
	for _, rule := range roleRules {
		if rule.re.MatchString(heading) {
			return rule.role
		}
	}
	return RoleOther
}

// extractSections walks the article body's top-level subsections in
// document order. A body with no <section> children at all is treated as
// one generic section so older flat layouts still produce content.
func (c *Converter) extractSections(body *html.Node, refs refIndex) []Section {
	var sections []Section
	sawSection := false

	for child := body.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		if isSectionNode(child) {
			sawSection = true
			if sec, ok := c.buildSection(child, refs); ok {
				sections = append(sections, sec)
			}
			continue
		}
		// Transparent wrappers between body and sections.
		if child.Data == "div" && querySelector(child, "section") != nil {
			sections = append(sections, c.extractSections(child, refs)...)
			sawSection = true
		}
	}

	if !sawSection {
		if md := c.blocks(body, nil, refs); md != "" {
			sections = append(sections, Section{Role: RoleOther, Body: md})
		}
	}

	return sections
}

// isSectionNode matches the section containers PMC uses across layout
// generations: <section>, and <div class="tsec"> / <div id="sec2"> in
// older pages.
func isSectionNode(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if n.Data == "section" {
		return true
	}
	if n.Data == "div" {
		if hasClass(n, "tsec") || hasClass(n, "sec") {
			return true
		}
		if secIDRe.MatchString(attr(n, "id")) {
			return true
		}
	}
	return false
}

var secIDRe = regexp.MustCompile(`^sec\d+$`)

// buildSection converts one section container. Sections with no
// extractable content are omitted, not treated as failures.
func (c *Converter) buildSection(sec *html.Node, refs refIndex) (Section, bool) {
	heading := findHeading(sec)
	headingText := ""
	if heading != nil {
		headingText = collectText(heading)
	}

	role := classify(headingText, attr(sec, "id"), attr(sec, "class"))

	title := headingText
	if title == "" {
		switch role {
		case RoleAbstract:
			title = "Abstract"
		case RoleReferences:
			title = "References"
		}
	}

	var body string
	if role == RoleReferences {
		body = c.references(sec)
	} else {
		body = c.blocks(sec, heading, refs)
	}

	if body == "" && title == "" {
		return Section{}, false
	}
	if body == "" {
		return Section{}, false
	}
	return Section{Title: title, Role: role, Body: body}, true
}

// findHeading returns the section's own heading: the first h2-h4 that is a
// direct child, or failing that the first one anywhere in the subtree.
func findHeading(sec *html.Node) *html.Node {
	for c := sec.FirstChild; c != nil; c = c.NextSibling {
		if isHeading(c) {
			return c
		}
	}
	for _, tag := range []string{"h2", "h3", "h4"} {
		if n := querySelector(sec, tag); n != nil {
			return n
		}
	}
	return nil
}

func isHeading(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

// headingLevel returns the markdown heading depth for an hN tag, clamped
// so nested subsection headings never collide with the H1 title or the
// H2 section titles.
func headingLevel(n *html.Node) int {
	level := int(n.Data[1] - '0')
	if level < 3 {
		level = 3
	}
	if level > 6 {
		level = 6
	}
	return level
}

// blocks converts a section's block-level content to markdown, skipping
// the section's own heading node.
func (c *Converter) blocks(n *html.Node, skip *html.Node, refs refIndex) string {
	var parts []string

	var walk func(*html.Node)
	walk = func(el *html.Node) {
		for child := el.FirstChild; child != nil; child = child.NextSibling {
			if child == skip || child.Type != html.ElementNode {
				continue
			}
			switch {
			case isHeading(child):
				text := collectText(child)
				if text != "" {
					parts = append(parts, strings.Repeat("#", headingLevel(child))+" "+text)
				}
			case child.Data == "p":
				if para := c.inline(child, refs); para != "" {
					parts = append(parts, para)
				}
			case child.Data == "figure" || (child.Data == "div" && hasClass(child, "fig")):
				if fig := c.figure(child); fig != "" {
					parts = append(parts, fig)
				}
			case child.Data == "table":
				if tbl := c.table(child); tbl != "" {
					parts = append(parts, tbl)
				}
			case child.Data == "div" && hasClass(child, "table-wrap"),
				child.Data == "section" && hasClass(child, "tw"):
				if tbl := c.tableWrap(child); tbl != "" {
					parts = append(parts, tbl)
				}
			case child.Data == "ul" || child.Data == "ol":
				if list := c.list(child, refs); list != "" {
					parts = append(parts, list)
				}
			case child.Data == "math":
				if eq := c.equation(child, true); eq != "" {
					parts = append(parts, eq)
				}
			case child.Data == "section" || child.Data == "div" || child.Data == "blockquote":
				walk(child)
			case child.Data == "script" || child.Data == "style" || child.Data == "nav" ||
				child.Data == "header" || child.Data == "footer" || child.Data == "aside" ||
				child.Data == "button":
				// boilerplate
			default:
				// No structural rule: degrade to the generic converter
				// rather than dropping the content.
				if collectText(child) != "" {
					if md := c.fallbackMarkdown(child); md != "" {
						parts = append(parts, md)
					}
				}
			}
		}
	}
	walk(n)

	return strings.Join(parts, "\n\n")
}

// list converts ul/ol to markdown items.
func (c *Converter) list(n *html.Node, refs refIndex) string {
	ordered := n.Data == "ol"
	var items []string
	i := 0
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode || child.Data != "li" {
			continue
		}
		i++
		text := c.inline(child, refs)
		if text == "" {
			continue
		}
		if ordered {
			items = append(items, strconv.Itoa(i)+". "+text)
		} else {
			items = append(items, "- "+text)
		}
	}
	return strings.Join(items, "\n")
}
