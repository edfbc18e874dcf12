package convert

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Metadata is the article header extracted from citation meta tags.
// Missing tags yield empty fields, never an error.
type Metadata struct {
	Title    string
	Authors  []string
	Journal  string
	Date     string
	DOI      string
	PMID     string
	PMCID    string
	PDFURL   string
	Abstract string
}

var (
	pmcidRe    = regexp.MustCompile(`PMC\d+`)
	pmcidTagRe = regexp.MustCompile(`PMCID:\s*(PMC\d+)`)
	pmidHrefRe = regexp.MustCompile(`pubmed\.ncbi\.nlm\.nih\.gov/(\d+)`)
	pmidTextRe = regexp.MustCompile(`PMID:\s*(\d+)`)
	pmcSuffix  = regexp.MustCompile(`\s*-\s*PMC$`)
)

// extractMeta pulls header metadata from the document head and, for
// identifiers, from canonical links and page text.
func extractMeta(doc *html.Node) Metadata {
	var m Metadata

	var titleTag string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				content := strings.TrimSpace(attr(n, "content"))
				if content == "" {
					break
				}
				switch attr(n, "name") {
				case "citation_title":
					m.Title = content
				case "citation_author":
					m.Authors = append(m.Authors, content)
				case "citation_journal_title":
					m.Journal = content
				case "citation_publication_date", "citation_date":
					if m.Date == "" {
						m.Date = content
					}
				case "citation_doi":
					m.DOI = content
				case "citation_pmid":
					m.PMID = content
				case "citation_pdf_url":
					m.PDFURL = content
				case "citation_abstract":
					m.Abstract = content
				}
			case "title":
				if n.FirstChild != nil && titleTag == "" {
					titleTag = strings.TrimSpace(n.FirstChild.Data)
				}
			case "link":
				if attr(n, "rel") == "canonical" {
					if match := pmcidRe.FindString(attr(n, "href")); match != "" && m.PMCID == "" {
						m.PMCID = match
					}
				}
			case "a":
				if m.PMID == "" {
					if match := pmidHrefRe.FindStringSubmatch(attr(n, "href")); match != nil {
						m.PMID = match[1]
					}
				}
			}
		}
		if n.Type == html.TextNode {
			if m.PMCID == "" {
				if match := pmcidTagRe.FindStringSubmatch(n.Data); match != nil {
					m.PMCID = match[1]
				}
			}
			if m.PMID == "" {
				if match := pmidTextRe.FindStringSubmatch(n.Data); match != nil {
					m.PMID = match[1]
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	// Page <title> fallback, stripped of the " - PMC" suffix.
	if m.Title == "" && titleTag != "" {
		m.Title = pmcSuffix.ReplaceAllString(titleTag, "")
	}

	return m
}
