package convert

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var figLabelRe = regexp.MustCompile(`^(Fig(ure|\.)?|Scheme|Graphic)\s*\d*`)

// figure converts a figure block: ordinal label as a heading, the image
// as a markdown reference, and the caption as emphasized text.
func (c *Converter) figure(n *html.Node) string {
	var parts []string

	label := figureLabel(n)
	if label != "" {
		parts = append(parts, "### "+label)
	}

	if img := querySelector(n, "img"); img != nil {
		src := c.absoluteSrc(attr(img, "src"))
		if src != "" {
			alt := attr(img, "alt")
			if alt == "" && label != "" {
				alt = label
			}
			parts = append(parts, "!["+alt+"]("+src+")")
		}
	}

	if caption := figureCaption(n); caption != "" {
		parts = append(parts, "*"+caption+"*")
	}

	return strings.Join(parts, "\n\n")
}

// figureLabel finds the figure's ordinal label ("Fig. 2"), from the PMC
// label element or the leading caption text.
func figureLabel(n *html.Node) string {
	for _, sel := range []string{".obj_head", ".fig-label", "label"} {
		if el := querySelector(n, sel); el != nil {
			if text := collectText(el); text != "" {
				return text
			}
		}
	}
	if fc := querySelector(n, "figcaption"); fc != nil {
		if m := figLabelRe.FindString(collectText(fc)); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

func figureCaption(n *html.Node) string {
	for _, sel := range []string{"figcaption", ".caption"} {
		if el := querySelector(n, sel); el != nil {
			if text := collectText(el); text != "" {
				return text
			}
		}
	}
	return ""
}

// absoluteSrc resolves PMC's relative image paths against the CDN.
// Absolute URLs pass through; anything else (data URIs, fragments) is
// dropped.
func (c *Converter) absoluteSrc(src string) string {
	switch {
	case src == "":
		return ""
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return src
	case strings.HasPrefix(src, "//"):
		return "https:" + src
	case strings.HasPrefix(src, "/"):
		return c.cfg.ImageBase + src
	}
	return ""
}

// equation converts a MathML node. When the markup carries an unambiguous
// TeX form (annotation or alttext) it becomes math-delimited markdown;
// otherwise the contained image or the sanitized original markup passes
// through so no equation content is lost.
func (c *Converter) equation(n *html.Node, block bool) string {
	tex := texAnnotation(n)
	if tex != "" {
		if block || attr(n, "display") == "block" {
			return "$$" + tex + "$$"
		}
		return "$" + tex + "$"
	}

	if img := querySelector(n, "img"); img != nil {
		if src := c.absoluteSrc(attr(img, "src")); src != "" {
			return "![" + attr(img, "alt") + "](" + src + ")"
		}
	}

	return strings.TrimSpace(c.verbatim.Sanitize(renderNode(n)))
}

// texAnnotation extracts a TeX form from an x-tex annotation child or an
// alttext attribute that looks like TeX rather than prose.
func texAnnotation(n *html.Node) string {
	for _, ann := range querySelectorAll(n, "annotation") {
		if strings.Contains(attr(ann, "encoding"), "tex") {
			if text := collectText(ann); text != "" {
				return text
			}
		}
	}
	if alt := strings.TrimSpace(attr(n, "alttext")); alt != "" {
		if strings.ContainsAny(alt, `\^_{}`) {
			return alt
		}
	}
	return ""
}
