// Package graph builds Vega-Lite scatter charts from tables.
package graph

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/goccy/go-json"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

// SchemaURL is the Vega-Lite schema every Spec declares.
const SchemaURL = "https://vega.github.io/schema/vega-lite/v5.json"

// Mark is the Vega-Lite mark definition.
type Mark struct {
	Type    string  `json:"type"`
	Size    int     `json:"size,omitempty"`
	Opacity float64 `json:"opacity,omitempty"`
}

// Field is one encoding channel bound to a table column.
type Field struct {
	Field string `json:"field"`
	Type  string `json:"type"`
	Title string `json:"title,omitempty"`
}

// Encoding maps columns onto chart channels.
type Encoding struct {
	X       Field   `json:"x"`
	Y       Field   `json:"y"`
	Color   Field   `json:"color"`
	Tooltip []Field `json:"tooltip,omitempty"`
}

// Data holds inline chart values, one map per row.
type Data struct {
	Values []map[string]any `json:"values"`
}

// Spec is a Vega-Lite v5 top-level specification.
type Spec struct {
	Schema     string   `json:"$schema"`
	Title      string   `json:"title,omitempty"`
	Width      string   `json:"width"`
	Height     int      `json:"height"`
	Background string   `json:"background,omitempty"`
	Data       Data     `json:"data"`
	Mark       Mark     `json:"mark"`
	Encoding   Encoding `json:"encoding"`
}

// Chart plots x against y with points coloured by target.
func Chart(t *table.Table, x, y, target string) (*Spec, error) {
	schema := t.Schema()
	fields := make([]Field, 0, 3)
	for _, name := range []string{x, y, target} {
		i := schema.Index(name)
		if i < 0 {
			return nil, fmt.Errorf("%w: unknown column %q", table.ErrSchema, name)
		}
		fields = append(fields, Field{Field: name, Type: fieldType(schema[i].Kind), Title: name})
	}

	records := t.Records()
	values := make([]map[string]any, len(records))
	for i, rec := range records {
		point := make(map[string]any, len(fields))
		for _, f := range fields {
			v := rec[f.Field]
			if f.Type == "temporal" {
				v = table.FormatValue(v)
			}
			point[f.Field] = v
		}
		values[i] = point
	}

	return &Spec{
		Schema:     SchemaURL,
		Title:      fmt.Sprintf("%s by %s for %s", y, x, target),
		Width:      "container",
		Height:     400,
		Background: "#252525",
		Data:       Data{Values: values},
		Mark:       Mark{Type: "circle", Size: 60, Opacity: 0.8},
		Encoding: Encoding{
			X:       fields[0],
			Y:       fields[1],
			Color:   fields[2],
			Tooltip: fields,
		},
	}, nil
}

func fieldType(k table.Kind) string {
	switch k {
	case table.Numeric:
		return "quantitative"
	case table.Time:
		return "temporal"
	default:
		return "nominal"
	}
}

// JSON encodes the spec for a Vega-Lite renderer.
func (s *Spec) JSON() ([]byte, error) {
	return json.Marshal(s)
}

var embedTemplate = template.Must(template.New("chart").Parse(`<div id="{{.ID}}"></div>
<script type="text/javascript">
vegaEmbed("#{{.ID}}", {{.Spec}}, {"actions": false});
</script>
`))

// HTML returns a snippet that renders the chart into a div with the given id
// using vega-embed.
func (s *Spec) HTML(id string) (string, error) {
	raw, err := s.JSON()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	err = embedTemplate.Execute(&b, struct {
		ID   string
		Spec template.JS
	}{ID: id, Spec: template.JS(raw)})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
