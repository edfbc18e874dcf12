package convert

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// tableWrap converts a PMC table wrapper: label/caption plus the table
// itself.
func (c *Converter) tableWrap(n *html.Node) string {
	var parts []string

	if label := querySelector(n, ".obj_head"); label != nil {
		if text := collectText(label); text != "" {
			parts = append(parts, "### "+text)
		}
	}
	if caption := querySelector(n, ".caption"); caption != nil {
		if text := c.inline(caption, nil); text != "" {
			parts = append(parts, "*"+text+"*")
		}
	}
	if tbl := querySelector(n, "table"); tbl != nil {
		if md := c.table(tbl); md != "" {
			parts = append(parts, md)
		}
	}

	return strings.Join(parts, "\n\n")
}

// table converts a <table> to a markdown pipe table. Tables whose
// structure a flat grid cannot carry (nested tables, multi-level spanning
// headers) are emitted as sanitized verbatim markup so nothing is lost.
func (c *Converter) table(n *html.Node) string {
	if querySelector(n, "table") != nil {
		return c.verbatimTable(n)
	}

	headerRows, bodyRows := tableRows(n)

	if len(headerRows) > 1 && anySpans(headerRows) {
		return c.verbatimTable(n)
	}

	// Markdown needs a header row; promote the first body row when the
	// table declares none.
	if len(headerRows) == 0 {
		if len(bodyRows) == 0 {
			return ""
		}
		headerRows = bodyRows[:1]
		bodyRows = bodyRows[1:]
	}

	all := append(append([][]tableCell{}, headerRows...), bodyRows...)
	grid := expandGrid(all)
	if len(grid) == 0 {
		return ""
	}

	width := 0
	for _, row := range grid {
		if len(row) > width {
			width = len(row)
		}
	}
	for i, row := range grid {
		for len(row) < width {
			row = append(row, "")
		}
		grid[i] = row
	}

	aligns := alignments(headerRows[len(headerRows)-1], width)

	var sb strings.Builder
	if caption := querySelector(n, "caption"); caption != nil {
		if text := c.inline(caption, nil); text != "" {
			sb.WriteString("*" + text + "*\n\n")
		}
	}

	writeRow := func(cells []string) {
		sb.WriteString("|")
		for _, cell := range cells {
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteString("\n")
	}

	writeRow(grid[0])
	writeRow(aligns)
	for _, row := range grid[1:] {
		writeRow(row)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// verbatimTable renders the original markup, sanitized to structural tags.
func (c *Converter) verbatimTable(n *html.Node) string {
	return strings.TrimSpace(c.verbatim.Sanitize(renderNode(n)))
}

type tableCell struct {
	text    string
	rowspan int
	colspan int
	align   string
}

// tableRows splits a table into header and body rows. Rows inside <thead>
// are headers; failing that, a leading all-<th> row is.
func tableRows(n *html.Node) (header, body [][]tableCell) {
	var walk func(*html.Node, bool)
	walk = func(el *html.Node, inHead bool) {
		for child := el.FirstChild; child != nil; child = child.NextSibling {
			if child.Type != html.ElementNode {
				continue
			}
			switch child.Data {
			case "thead":
				walk(child, true)
			case "tbody", "tfoot":
				walk(child, false)
			case "tr":
				row := parseRow(child)
				if len(row) == 0 {
					continue
				}
				if inHead {
					header = append(header, row)
				} else {
					body = append(body, row)
				}
			case "table":
				// nested table handled by the caller
			default:
				walk(child, inHead)
			}
		}
	}
	walk(n, false)

	if len(header) == 0 && len(body) > 0 && allHeaderCells(firstTR(n)) {
		header = body[:1]
		body = body[1:]
	}
	return header, body
}

func firstTR(n *html.Node) *html.Node {
	return querySelector(n, "tr")
}

func allHeaderCells(tr *html.Node) bool {
	if tr == nil {
		return false
	}
	cells := 0
	for child := tr.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		switch child.Data {
		case "th":
			cells++
		case "td":
			return false
		}
	}
	return cells > 0
}

func parseRow(tr *html.Node) []tableCell {
	var row []tableCell
	for child := tr.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		if child.Data != "td" && child.Data != "th" {
			continue
		}
		row = append(row, tableCell{
			text:    collectText(child),
			rowspan: spanAttr(child, "rowspan"),
			colspan: spanAttr(child, "colspan"),
			align:   cellAlign(child),
		})
	}
	return row
}

func spanAttr(n *html.Node, key string) int {
	v, err := strconv.Atoi(strings.TrimSpace(attr(n, key)))
	if err != nil || v < 1 {
		return 1
	}
	return v
}

func cellAlign(n *html.Node) string {
	if a := attr(n, "align"); a != "" {
		return strings.ToLower(a)
	}
	style := strings.ToLower(attr(n, "style"))
	for _, a := range []string{"center", "right", "left"} {
		if strings.Contains(style, "text-align:"+a) || strings.Contains(style, "text-align: "+a) {
			return a
		}
	}
	return ""
}

func anySpans(rows [][]tableCell) bool {
	for _, row := range rows {
		for _, cell := range row {
			if cell.rowspan > 1 || cell.colspan > 1 {
				return true
			}
		}
	}
	return false
}

// expandGrid flattens row/column spans into a rectangular cell grid.
// A spanning cell's text is repeated into every covered position; the
// anchor position carries an explicit annotation of the span, since
// markdown tables cannot represent one.
func expandGrid(rows [][]tableCell) [][]string {
	grid := make([][]string, len(rows))
	filled := make([][]bool, len(rows))

	ensure := func(r, col int) {
		for len(grid[r]) <= col {
			grid[r] = append(grid[r], "")
			filled[r] = append(filled[r], false)
		}
	}

	for r, row := range rows {
		col := 0
		for _, cell := range row {
			ensure(r, col)
			for filled[r][col] {
				col++
				ensure(r, col)
			}

			text := escapeCell(cell.text)
			anchor := text
			var notes []string
			if cell.rowspan > 1 {
				notes = append(notes, "spans "+strconv.Itoa(cell.rowspan)+" rows")
			}
			if cell.colspan > 1 {
				notes = append(notes, "spans "+strconv.Itoa(cell.colspan)+" cols")
			}
			if len(notes) > 0 && anchor != "" {
				anchor += " (" + strings.Join(notes, ", ") + ")"
			}

			for dr := 0; dr < cell.rowspan && r+dr < len(rows); dr++ {
				for dc := 0; dc < cell.colspan; dc++ {
					rr, cc := r+dr, col+dc
					ensureRow(&grid, &filled, rr, cc)
					if dr == 0 && dc == 0 {
						grid[rr][cc] = anchor
					} else {
						grid[rr][cc] = text
					}
					filled[rr][cc] = true
				}
			}
			col += cell.colspan
		}
	}
	return grid
}

func ensureRow(grid *[][]string, filled *[][]bool, r, col int) {
	for len((*grid)[r]) <= col {
		(*grid)[r] = append((*grid)[r], "")
		(*filled)[r] = append((*filled)[r], false)
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// alignments derives the markdown alignment row from the last header row.
func alignments(header []tableCell, width int) []string {
	out := make([]string, width)
	for i := range out {
		align := ""
		if i < len(header) {
			align = header[i].align
		}
		switch align {
		case "center":
			out[i] = ":---:"
		case "right":
			out[i] = "---:"
		case "left":
			out[i] = ":---"
		default:
			out[i] = "---"
		}
	}
	return out
}
