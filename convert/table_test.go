package convert

import (
	"strings"
	"testing"
)

func convertString(t *testing.T, page string) string {
	t.Helper()
	md, err := New(Config{}).Convert([]byte(page))
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	return md
}

func TestTable_RowSpanAnnotated(t *testing.T) {
	// WHAT: A rowspan is flattened into the grid: the anchor cell carries
	// an explicit span annotation and covered cells repeat the text.
	// WHY: Markdown tables cannot represent spans, and silently dropping
	// a spanning cell would shift every column after it.
	md := convertString(t, wrapArticle(`<section id="sec1"><h2>Data</h2>
<table>
<thead><tr><th>Group</th><th>Run</th><th>Score</th></tr></thead>
<tbody>
<tr><td rowspan="2">X</td><td>1</td><td>2</td></tr>
<tr><td>3</td><td>4</td></tr>
</tbody>
</table></section>`))

	if !strings.Contains(md, "| X (spans 2 rows) | 1 | 2 |") {
		t.Errorf("anchor cell not annotated:\n%s", md)
	}
	if !strings.Contains(md, "| X | 3 | 4 |") {
		t.Errorf("covered cell not filled with repeated text:\n%s", md)
	}
}

func TestTable_ColSpanAnnotated(t *testing.T) {
	// WHAT: A colspan fills every covered column so later cells keep
	// their positions.
	md := convertString(t, wrapArticle(`<section id="sec1"><h2>Data</h2>
<table>
<thead><tr><th>A</th><th>B</th><th>C</th></tr></thead>
<tbody><tr><td colspan="2">wide</td><td>z</td></tr></tbody>
</table></section>`))

	if !strings.Contains(md, "| wide (spans 2 cols) | wide | z |") {
		t.Errorf("colspan not expanded:\n%s", md)
	}
}

func TestTable_HeaderPromotion(t *testing.T) {
	// WHAT: A table without <thead> but with a leading all-<th> row still
	// gets a markdown header row.
	md := convertString(t, wrapArticle(`<section id="sec1"><h2>Data</h2>
<table>
<tr><th>Name</th><th>Value</th></tr>
<tr><td>pH</td><td>7.4</td></tr>
</table></section>`))

	if !strings.Contains(md, "| Name | Value |") {
		t.Errorf("header row missing:\n%s", md)
	}
	if !strings.Contains(md, "| pH | 7.4 |") {
		t.Errorf("body row missing:\n%s", md)
	}
}

func TestTable_NestedFallsBackToVerbatim(t *testing.T) {
	// WHAT: A table containing another table is emitted as sanitized
	// markup instead of a pipe grid.
	// WHY: A flat grid cannot carry the nesting; verbatim loses nothing.
	md := convertString(t, wrapArticle(`<section id="sec1"><h2>Data</h2>
<table><tr><td><table><tr><td>inner</td></tr></table></td></tr></table>
</section>`))

	if !strings.Contains(md, "<table") {
		t.Errorf("nested table should stay as markup:\n%s", md)
	}
	if !strings.Contains(md, "inner") {
		t.Errorf("nested cell text lost:\n%s", md)
	}
	if strings.Contains(md, "| inner |") {
		t.Errorf("nested table must not be flattened to a pipe grid:\n%s", md)
	}
}

func TestTable_SpanningMultiRowHeaderFallsBackToVerbatim(t *testing.T) {
	// WHAT: A multi-row header that uses spans keeps its original markup,
	// span attributes included.
	md := convertString(t, wrapArticle(`<section id="sec1"><h2>Data</h2>
<table>
<thead>
<tr><th colspan="2">Treatment</th><th rowspan="2">Control</th></tr>
<tr><th>Low</th><th>High</th></tr>
</thead>
<tbody><tr><td>1</td><td>2</td><td>3</td></tr></tbody>
</table></section>`))

	if !strings.Contains(md, "colspan") {
		t.Errorf("span attributes should survive verbatim emission:\n%s", md)
	}
	if !strings.Contains(md, "Treatment") || !strings.Contains(md, "Control") {
		t.Errorf("header text lost:\n%s", md)
	}
}

func TestTable_PipeEscaped(t *testing.T) {
	// WHAT: Literal pipes in cell text are escaped so they cannot break
	// the grid.
	md := convertString(t, wrapArticle(`<section id="sec1"><h2>Data</h2>
<table>
<thead><tr><th>Expr</th></tr></thead>
<tbody><tr><td>a|b</td></tr></tbody>
</table></section>`))

	if !strings.Contains(md, `a\|b`) {
		t.Errorf("pipe not escaped:\n%s", md)
	}
}

func TestEquation_TeXAnnotation(t *testing.T) {
	// WHAT: MathML carrying an x-tex annotation becomes math-delimited
	// markdown, block or inline depending on placement.
	md := convertString(t, wrapArticle(`<section id="sec1"><h2>Model</h2>
<p>We fit <math alttext="x_i"><mi>x</mi></math> per sample.</p>
<math display="block"><semantics><mrow><mi>E</mi></mrow><annotation encoding="application/x-tex">E=mc^2</annotation></semantics></math>
</section>`))

	if !strings.Contains(md, "$x_i$") {
		t.Errorf("inline equation missing:\n%s", md)
	}
	if !strings.Contains(md, "$$E=mc^2$$") {
		t.Errorf("block equation missing:\n%s", md)
	}
}

func TestEquation_NoTeXKeepsMarkup(t *testing.T) {
	// WHAT: MathML without a usable TeX form passes through sanitized
	// rather than being dropped.
	md := convertString(t, wrapArticle(`<section id="sec1"><h2>Model</h2>
<math display="block"><mrow><mi>y</mi><mo>=</mo><mi>f</mi></mrow></math>
</section>`))

	if !strings.Contains(md, "<math") {
		t.Errorf("equation markup lost:\n%s", md)
	}
	if strings.Contains(md, "$$") {
		t.Errorf("no TeX form available, must not fabricate one:\n%s", md)
	}
}
