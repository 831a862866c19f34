package table

import (
	"html"
	"strings"
)

// HTML renders the table as an HTML <table> element without a row index,
// laid out the way dataframe exports usually are.
func (t *Table) HTML() string {
	var b strings.Builder
	b.WriteString("<table border=\"1\" class=\"dataframe\">\n")
	b.WriteString("  <thead>\n    <tr style=\"text-align: right;\">\n")
	for _, c := range t.schema {
		b.WriteString("      <th>")
		b.WriteString(html.EscapeString(c.Name))
		b.WriteString("</th>\n")
	}
	b.WriteString("    </tr>\n  </thead>\n  <tbody>\n")
	for _, row := range t.rows {
		b.WriteString("    <tr>\n")
		for _, v := range row {
			b.WriteString("      <td>")
			b.WriteString(html.EscapeString(FormatValue(v)))
			b.WriteString("</td>\n")
		}
		b.WriteString("    </tr>\n")
	}
	b.WriteString("  </tbody>\n</table>")
	return b.String()
}
