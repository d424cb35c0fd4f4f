package ui

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dalemusser/chatschema/internal/app/system/indexes"
	"gopkg.in/yaml.v3"
)

// Report output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the accepted report formats.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// reportDoc is the machine-readable shape of a verify report.
type reportDoc struct {
	Database string            `json:"database" yaml:"database"`
	OK       bool              `json:"ok" yaml:"ok"`
	Summary  map[string]int    `json:"summary" yaml:"summary"`
	Findings []indexes.Finding `json:"findings" yaml:"findings"`
}

// RenderReport writes rep to w in the given format.
func RenderReport(w io.Writer, rep indexes.Report, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toDoc(rep))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(toDoc(rep)); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		renderText(w, rep)
		return nil
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func toDoc(rep indexes.Report) reportDoc {
	findings := rep.Findings
	if findings == nil {
		findings = []indexes.Finding{}
	}
	return reportDoc{
		Database: rep.Database,
		OK:       rep.OK(),
		Summary: map[string]int{
			string(indexes.StatusOK):       rep.Count(indexes.StatusOK),
			string(indexes.StatusMissing):  rep.Count(indexes.StatusMissing),
			string(indexes.StatusConflict): rep.Count(indexes.StatusConflict),
		},
		Findings: findings,
	}
}

func renderText(w io.Writer, rep indexes.Report) {
	Header(w, "Schema verification: "+rep.Database)

	for _, f := range rep.Findings {
		name := f.Kind + " " + f.Collection
		if f.Kind == indexes.KindIndex {
			name += "." + f.Name
		}
		detail := ""
		if f.Detail != "" {
			detail = " " + DimText("("+f.Detail+")")
		}
		switch f.Status {
		case indexes.StatusOK:
			Success(w, "%s%s", name, detail)
		case indexes.StatusMissing:
			Warning(w, "%s missing%s", name, detail)
		default:
			Error(w, "%s conflict%s", name, detail)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %d ok, %d missing, %d conflict\n", Label("Summary:"),
		rep.Count(indexes.StatusOK), rep.Count(indexes.StatusMissing), rep.Count(indexes.StatusConflict))
}
