// Package lint validates the cross-resource consistency of a manifest set:
// env wiring against configmaps, service selectors and ports against
// deployments, volume claims, and image build contexts.
package lint

import (
	"fmt"
	"sort"

	"github.com/gantryhq/gantry/pkg/dockerfile"
	"github.com/gantryhq/gantry/pkg/manifest"
)

// Severity classifies a finding.
type Severity string

// Finding severities.
const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Finding is a single rule violation.
type Finding struct {
	// Rule is the id of the rule that produced the finding.
	Rule string `json:"rule"`

	Severity Severity `json:"severity"`

	// Resource is the object the finding is about.
	Resource manifest.ObjectRef `json:"resource"`

	Message string `json:"message"`
}

// String renders the finding for terminal output.
func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s: %s", f.Severity, f.Rule, f.Resource, f.Message)
}

// Findings is a sortable collection of findings.
type Findings []Finding

// HasErrors reports whether any finding has error severity.
func (f Findings) HasErrors() bool {
	for _, finding := range f {
		if finding.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity findings.
func (f Findings) Errors() Findings {
	var out Findings
	for _, finding := range f {
		if finding.Severity == SeverityError {
			out = append(out, finding)
		}
	}
	return out
}

// Sort orders findings by resource, then rule.
func (f Findings) Sort() {
	sort.Slice(f, func(i, j int) bool {
		if f[i].Resource != f[j].Resource {
			return f[i].Resource.String() < f[j].Resource.String()
		}
		return f[i].Rule < f[j].Rule
	})
}

// BuildContext ties an image name to the build inputs used to produce it.
type BuildContext struct {
	// Dir is the build context directory.
	Dir string

	// Dockerfile is the parsed Dockerfile for the image.
	Dockerfile *dockerfile.Dockerfile
}

// Context carries everything rules inspect.
type Context struct {
	Set *manifest.Set

	// BuildContexts maps container image names to their build inputs.
	// Optional; build-related rules are skipped for images without one.
	BuildContexts map[string]BuildContext
}

// Rule checks one consistency property over a Context.
type Rule interface {
	// Name returns the stable rule id.
	Name() string

	// Check returns the rule's findings, empty when the property holds.
	Check(ctx *Context) Findings
}

// DefaultRules returns all built-in rules.
func DefaultRules() []Rule {
	return []Rule{
		&envConfigMapCoverage{},
		&serviceSelectorMatch{},
		&serviceTargetPort{},
		&cachePortAgreement{},
		&claimReferences{},
		&claimSingleWriter{},
		&buildScriptPresent{},
		&exposePortAgreement{},
	}
}

// Run checks all default rules against the context and returns the sorted
// findings.
func Run(ctx *Context) Findings {
	var findings Findings
	for _, rule := range DefaultRules() {
		findings = append(findings, rule.Check(ctx)...)
	}
	findings.Sort()
	return findings
}
