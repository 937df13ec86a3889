package format

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gantryhq/gantry/pkg/lint"
)

// PrintFindings writes findings one per line with severity coloring.
func PrintFindings(w io.Writer, findings lint.Findings) {
	for _, finding := range findings {
		severity := string(finding.Severity)
		switch finding.Severity {
		case lint.SeverityError:
			severity = Colorize(BoldRed, severity)
		case lint.SeverityWarning:
			severity = Colorize(BoldYellow, severity)
		}
		fmt.Fprintf(w, "%s %s %s: %s\n",
			severity,
			Colorize(BoldCyan, finding.Rule),
			finding.Resource,
			finding.Message)
	}
}

// FindingsJSON renders findings as an indented JSON array for CI consumers.
func FindingsJSON(findings lint.Findings) (string, error) {
	if findings == nil {
		findings = lint.Findings{}
	}
	data, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PrintLintSummary writes the closing line of a lint run.
func PrintLintSummary(w io.Writer, objects, errors, warnings int, duration time.Duration) {
	if errors == 0 && warnings == 0 {
		fmt.Fprintf(w, "%s %d object(s) checked in %s\n",
			StatusSymbol(true), objects, duration.Round(time.Millisecond))
		return
	}
	fmt.Fprintf(w, "%s %d object(s) checked in %s: %s, %s\n",
		StatusSymbol(errors == 0), objects, duration.Round(time.Millisecond),
		Error("%d error(s)", errors),
		Warning("%d warning(s)", warnings))
}
