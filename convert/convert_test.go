package convert

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("read fixture %s: %v", name, err)
	}
	return data
}

func convertFixture(t *testing.T, name string) string {
	t.Helper()
	md, err := New(Config{}).Convert(loadFixture(t, name))
	if err != nil {
		t.Fatalf("convert %s: %v", name, err)
	}
	return md
}

func TestConvert_ModernSectionOrder(t *testing.T) {
	// WHAT: Every section present in the source gets a ## heading, in
	// source order, and absent sections get none.
	// WHY: Section-order fidelity is the core output invariant.
	md := convertFixture(t, "modern.html")

	want := []string{"## Abstract", "## Background", "## Results", "## Discussion", "## References"}
	last := -1
	for _, h := range want {
		idx := strings.Index(md, h)
		if idx < 0 {
			t.Fatalf("missing heading %q in output:\n%s", h, md)
		}
		if idx < last {
			t.Errorf("heading %q out of order", h)
		}
		last = idx
	}

	for _, absent := range []string{"## Methods", "## Introduction"} {
		if strings.Contains(md, absent) {
			t.Errorf("unexpected heading %q for a section not in the source", absent)
		}
	}
}

func TestConvert_MetadataHeader(t *testing.T) {
	// WHAT: Header carries title and bolded metadata lines from the
	// citation meta tags.
	md := convertFixture(t, "modern.html")

	for _, line := range []string{
		"# Gene expression variation in model organisms",
		"**Authors:** Jane Park, Wen Liu",
		"**Journal:** BMC Genomics",
		"**DOI:** 10.1186/1471-2164-4-31",
		"**PMID:** 12895196",
		"**PMCID:** PMC1884285",
		"**URL:** https://www.ncbi.nlm.nih.gov/pmc/articles/PMC1884285/",
		"**PDF:** https://www.ncbi.nlm.nih.gov/pmc/articles/PMC1884285/pdf/main.pdf",
	} {
		if !strings.Contains(md, line) {
			t.Errorf("missing header line %q", line)
		}
	}
}

func TestConvert_InlineMarkup(t *testing.T) {
	// WHAT: Emphasis and bold survive as markdown inline syntax.
	md := convertFixture(t, "modern.html")

	if !strings.Contains(md, "Expression of *lacZ* varies between strains.") {
		t.Error("emphasis not converted")
	}
	if !strings.Contains(md, "The effect is **robust**") {
		t.Error("bold not converted")
	}
}

func TestConvert_CitationRewrite(t *testing.T) {
	// WHAT: In-text citation markers become bracketed numbers matching
	// the reference list's own numbering.
	md := convertFixture(t, "modern.html")

	if !strings.Contains(md, "variation[1] across tissues") {
		t.Errorf("first citation not rewritten:\n%s", md)
	}
	if !strings.Contains(md, "prior work[2].") {
		t.Errorf("second citation not rewritten:\n%s", md)
	}
}

func TestConvert_MultiCitationGroup(t *testing.T) {
	// WHAT: A <sup> carrying several citation links becomes one bracketed
	// reference per link, numbered by the reference list, while a sup
	// holding plain text stays a scientific superscript.
	md := convertString(t, wrapArticle(`<section id="sec1"><h2>Background</h2>
<p>Known results<sup><a href="#B1">3</a>,<a href="#B2">7</a></sup> exist.</p>
<p>Roughly 10<sup>6</sup> cells.</p>
</section>
<section class="ref-list" id="ref-list1"><h2>References</h2>
<ul class="ref-list">
<li id="B1">First entry.</li>
<li id="B2">Second entry.</li>
</ul></section>`))

	if !strings.Contains(md, "Known results[1],[2] exist.") {
		t.Errorf("multi-citation group not rewritten:\n%s", md)
	}
	if strings.Contains(md, "results^") {
		t.Errorf("citation marker leaked as superscript:\n%s", md)
	}
	if !strings.Contains(md, "Roughly 10^6^ cells.") {
		t.Errorf("scientific superscript lost:\n%s", md)
	}
}

func TestConvert_References(t *testing.T) {
	// WHAT: The reference list is an ordered list preserving outbound
	// links per entry.
	md := convertFixture(t, "modern.html")

	if !strings.Contains(md, "1. Smith J. Variation in expression. [DOI](https://doi.org/10.1000/xyz)") {
		t.Errorf("first reference wrong:\n%s", md)
	}
	if !strings.Contains(md, "2. Park J. Strain catalogs. [PubMed](https://pubmed.ncbi.nlm.nih.gov/11111111/)") {
		t.Errorf("second reference wrong:\n%s", md)
	}
}

func TestConvert_Table(t *testing.T) {
	// WHAT: A span-free table round-trips: the markdown grid reproduces
	// the source cell text and row/column counts, with alignment hints.
	md := convertFixture(t, "modern.html")

	if !strings.Contains(md, "### Table 1") {
		t.Error("table label missing")
	}
	if !strings.Contains(md, "*Read counts per strain*") {
		t.Error("table caption missing")
	}

	grid := parseMarkdownTable(md)
	want := [][]string{
		{"Strain", "Reads"},
		{"A", "120"},
		{"B", "85"},
	}
	if len(grid) != len(want) {
		t.Fatalf("rows: got %d, want %d\n%s", len(grid), len(want), md)
	}
	for r := range want {
		if len(grid[r]) != len(want[r]) {
			t.Fatalf("row %d: got %d cols, want %d", r, len(grid[r]), len(want[r]))
		}
		for c := range want[r] {
			if grid[r][c] != want[r][c] {
				t.Errorf("cell (%d,%d): got %q, want %q", r, c, grid[r][c], want[r][c])
			}
		}
	}

	if !strings.Contains(md, "| --- | ---: |") {
		t.Error("alignment row missing right-align hint")
	}
}

// parseMarkdownTable re-parses the first pipe table in md into a cell
// grid, skipping the alignment row.
func parseMarkdownTable(md string) [][]string {
	var grid [][]string
	inTable := false
	for _, line := range strings.Split(md, "\n") {
		if !strings.HasPrefix(line, "|") {
			if inTable {
				break
			}
			continue
		}
		inTable = true
		trimmed := strings.Trim(line, "|")
		fields := strings.Split(trimmed, "|")
		var row []string
		isAlign := true
		for _, f := range fields {
			cell := strings.TrimSpace(f)
			row = append(row, cell)
			if strings.Trim(cell, ":-") != "" {
				isAlign = false
			}
		}
		if isAlign {
			continue
		}
		grid = append(grid, row)
	}
	return grid
}

func TestConvert_Figure(t *testing.T) {
	// WHAT: Figures become label heading + image reference + caption,
	// with relative paths absolutized against the PMC CDN.
	md := convertFixture(t, "modern.html")

	for _, want := range []string{
		"### Fig. 1",
		"![Expression heatmap](https://cdn.ncbi.nlm.nih.gov/pmc/blobs/abc/figure1.jpg)",
		"*Heatmap of expression values.*",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("missing %q in output", want)
		}
	}
}

func TestConvert_BoilerplateExcluded(t *testing.T) {
	// WHAT: Site chrome outside the article body never reaches the
	// output.
	md := convertFixture(t, "modern.html")

	for _, bad := range []string{"Site navigation", "Footer boilerplate"} {
		if strings.Contains(md, bad) {
			t.Errorf("boilerplate %q leaked into output", bad)
		}
	}
}

func TestConvert_Legacy(t *testing.T) {
	// WHAT: A page without the modern article body is classified as a
	// legacy/scanned variant: metadata, abstract, and a source link only.
	// WHY: Legacy detection is a best-effort classifier; the fallback
	// must still produce a useful document.
	md := convertFixture(t, "legacy.html")

	for _, want := range []string{
		"# On the circulation of the blood",
		"**Authors:** W. Harvey",
		"**PMID:** 20345678",
		"**PMCID:** PMC2034567",
		"## Abstract",
		"A scanned historical article on circulation.",
		"[View scanned article](https://www.ncbi.nlm.nih.gov/pmc/articles/PMC2034567/)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("missing %q in legacy output:\n%s", want, md)
		}
	}

	if strings.Contains(md, "## Results") {
		t.Error("legacy output should not invent body sections")
	}
}

func TestConvert_Deterministic(t *testing.T) {
	// WHAT: Identical input bytes produce byte-identical markdown.
	// WHY: Required for safe re-runs and content-hash comparisons.
	for _, name := range []string{"modern.html", "legacy.html"} {
		raw := loadFixture(t, name)
		c := New(Config{})
		first, err := c.Convert(raw)
		if err != nil {
			t.Fatalf("convert %s: %v", name, err)
		}
		second, err := c.Convert(raw)
		if err != nil {
			t.Fatalf("convert %s again: %v", name, err)
		}
		if !bytes.Equal([]byte(first), []byte(second)) {
			t.Errorf("%s: output not deterministic", name)
		}
	}
}

func TestConvert_EmptySectionOmitted(t *testing.T) {
	// WHAT: A section with no extractable content is omitted, not a
	// failure and not an empty heading.
	page := wrapArticle(`<section id="sec1"><h2>Results</h2><p>Something.</p></section>
<section id="sec2"><div class="placeholder"></div></section>`)

	md, err := New(Config{}).Convert([]byte(page))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if !strings.Contains(md, "## Results") {
		t.Error("non-empty section missing")
	}
	if strings.Count(md, "##") != 1 {
		t.Errorf("empty section produced a heading:\n%s", md)
	}
}

// wrapArticle builds a minimal modern-layout page around body sections.
func wrapArticle(sections string) string {
	return `<html><head><meta name="citation_title" content="T"></head><body>` +
		`<section class="body main-article-body">` + sections + `</section></body></html>`
}
