// Package convert transforms PMC article HTML into structured markdown.
//
// The transformation is a single deterministic pass over the parsed
// document: metadata from citation meta tags, the article body located by
// selector, sections classified by heading text, and block content
// (paragraphs, tables, figures, equations, citations) converted with
// graceful degradation: structure too complex for markdown passes through
// as sanitized verbatim markup rather than being dropped.
package convert

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/lumeris/pubmark"
)

// bodySelectors locate the main article content, tried in order. The first
// is the modern PMC layout; its absence classifies the page as a
// legacy/scanned variant.
var bodySelectors = []string{
	"section.body.main-article-body",
	"article",
	"main",
}

// Config configures a Converter.
type Config struct {
	// ImageBase absolutizes relative image paths. Default: PMC CDN.
	ImageBase string
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.ImageBase == "" {
		c.ImageBase = "https://cdn.ncbi.nlm.nih.gov"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Converter transforms article HTML to markdown. Safe for concurrent use.
type Converter struct {
	cfg      Config
	fallback *htmltomarkdown.Converter
	verbatim *bluemonday.Policy
}

// New creates a Converter.
func New(cfg Config) *Converter {
	cfg.defaults()
	return &Converter{
		cfg: cfg,
		fallback: htmltomarkdown.NewConverter(
			htmltomarkdown.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		verbatim: verbatimPolicy(),
	}
}

// verbatimPolicy sanitizes markup that passes through to the output
// unconverted (complex tables, equations).
func verbatimPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
		"colgroup", "col", "p", "br", "b", "i", "em", "strong", "sup", "sub",
		"span", "math", "mrow", "mi", "mo", "mn", "msup", "msub", "msubsup",
		"mfrac", "msqrt", "mroot", "mtext", "mspace", "mover", "munder",
		"munderover", "mtable", "mtr", "mtd", "semantics", "annotation",
	)
	p.AllowAttrs("colspan", "rowspan", "align", "scope", "headers").OnElements("td", "th")
	p.AllowAttrs("span").OnElements("col", "colgroup")
	p.AllowAttrs("display", "alttext", "encoding").Globally()
	return p
}

// Convert transforms one article page into a markdown document.
// The same input bytes always produce the same output bytes.
func (c *Converter) Convert(raw []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", &pubmark.ParseError{Err: err}
	}
	if findFirst(doc, atom.Body) == nil {
		return "", &pubmark.ParseError{Err: fmt.Errorf("document has no body")}
	}

	meta := extractMeta(doc)

	body := c.findArticleBody(doc)
	if body == nil {
		// Legacy/scanned variant: metadata, abstract if any, and a link
		// to the scanned source page.
		c.cfg.Logger.Debug("convert: no article body, using legacy layout",
			"pmcid", meta.PMCID)
		return c.renderLegacy(meta), nil
	}

	refs := buildRefIndex(doc)
	sections := c.extractSections(body, refs)

	return c.render(meta, sections), nil
}

// findArticleBody returns the main article container, or nil for legacy
// pages. Best-effort classifier: presence of the modern selector decides.
func (c *Converter) findArticleBody(doc *html.Node) *html.Node {
	for _, sel := range bodySelectors {
		if n := querySelector(doc, sel); n != nil {
			return n
		}
	}
	return nil
}

// render assembles the final document: header then ordered sections.
func (c *Converter) render(meta Metadata, sections []Section) string {
	var sb strings.Builder
	writeHeader(&sb, meta)

	for _, sec := range sections {
		if sec.Body == "" {
			continue
		}
		if sec.Title != "" {
			sb.WriteString("## " + sec.Title + "\n\n")
		}
		sb.WriteString(sec.Body)
		if !strings.HasSuffix(sec.Body, "\n\n") {
			sb.WriteString("\n\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// renderLegacy emits the reduced document for scanned articles.
func (c *Converter) renderLegacy(meta Metadata) string {
	var sb strings.Builder
	writeHeader(&sb, meta)

	if meta.Abstract != "" {
		sb.WriteString("## Abstract\n\n")
		sb.WriteString(meta.Abstract + "\n\n")
	}
	if meta.PMCID != "" {
		sb.WriteString(fmt.Sprintf("[View scanned article](https://www.ncbi.nlm.nih.gov/pmc/articles/%s/)\n\n", meta.PMCID))
	}

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

// writeHeader emits the fixed metadata header. Missing fields are omitted,
// never rendered as placeholders.
func writeHeader(sb *strings.Builder, meta Metadata) {
	if meta.Title != "" {
		sb.WriteString("# " + meta.Title + "\n\n")
	}
	if len(meta.Authors) > 0 {
		sb.WriteString("**Authors:** " + strings.Join(meta.Authors, ", ") + "\n\n")
	}
	if meta.Journal != "" {
		sb.WriteString("**Journal:** " + meta.Journal + "\n\n")
	}
	if meta.Date != "" {
		sb.WriteString("**Date:** " + meta.Date + "\n\n")
	}
	if meta.DOI != "" {
		sb.WriteString("**DOI:** " + meta.DOI + "\n\n")
	}
	if meta.PMID != "" {
		sb.WriteString("**PMID:** " + meta.PMID + "\n\n")
	}
	if meta.PMCID != "" {
		sb.WriteString("**PMCID:** " + meta.PMCID + "\n\n")
		sb.WriteString(fmt.Sprintf("**URL:** https://www.ncbi.nlm.nih.gov/pmc/articles/%s/\n\n", meta.PMCID))
	}
	if meta.PDFURL != "" {
		sb.WriteString("**PDF:** " + meta.PDFURL + "\n\n")
	}
}

// fallbackMarkdown converts a node the structural walk has no rule for,
// so unrecognized content is carried instead of silently lost.
func (c *Converter) fallbackMarkdown(n *html.Node) string {
	md, err := c.fallback.ConvertString(renderNode(n))
	if err != nil {
		return collectText(n)
	}
	return strings.TrimSpace(md)
}

// findFirst returns the first element with the given tag, depth-first.
func findFirst(root *html.Node, tag atom.Atom) *html.Node {
	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == tag {
			found = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}
