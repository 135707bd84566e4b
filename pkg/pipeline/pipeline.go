// Package pipeline defines the declarative pipeline document model:
// named channels fed by filesystem globs or channel operators, and an
// ordered list of stages consuming them. Documents are written in YAML
// and parsed by internal/parser.
package pipeline

import "strings"

// Pipeline is a parsed pipeline document.
type Pipeline struct {
	Name     string         `yaml:"name"`
	Params   map[string]any `yaml:"params,omitempty"`
	Channels []ChannelDecl  `yaml:"channels"`
	Stages   []StageSpec    `yaml:"stages"`
}

// ChannelDecl declares a named channel. Exactly one source field must
// be set: a glob over the filesystem, or an operator over other
// declared channels (pair, concat, map_ids, if_empty). Stage outputs
// ("<stage>.out") feed stage inputs directly, never operators.
type ChannelDecl struct {
	Name    string      `yaml:"name"`
	Glob    *GlobSource `yaml:"glob,omitempty"`
	Pair    *PairOp     `yaml:"pair,omitempty"`
	Concat  []string    `yaml:"concat,omitempty"`
	MapIDs  *MapIDsOp   `yaml:"map_ids,omitempty"`
	IfEmpty *IfEmptyOp  `yaml:"if_empty,omitempty"`
}

// GlobSource creates a channel from a filesystem glob. The pattern may
// contain ${params.*} expressions, resolved at graph-build time.
type GlobSource struct {
	Pattern string `yaml:"pattern"`
	// Required marks the channel as must-not-be-empty; an empty match
	// aborts the run before dispatch. Defaults to true.
	Required *bool  `yaml:"required,omitempty"`
	ID       IDRule `yaml:"id,omitempty"`
}

// IsRequired resolves the Required default.
func (g *GlobSource) IsRequired() bool {
	return g.Required == nil || *g.Required
}

// IDRule selects the sample-id extraction strategy for globbed files.
// StripSuffix removes a fixed suffix from the basename; Regexp applies
// a substitution. When both are empty the basename minus its last
// extension is used.
type IDRule struct {
	StripSuffix string      `yaml:"strip_suffix,omitempty"`
	Regexp      *RegexpRule `yaml:"regexp,omitempty"`
}

// RegexpRule is a regular-expression substitution over the basename.
type RegexpRule struct {
	Pattern string `yaml:"pattern"`
	Replace string `yaml:"replace"`
}

// PairOp groups the files of a channel by sample id into fixed-size
// tuples (e.g. R1/R2 read pairs), in lexicographic file order. A sample
// whose group size differs from Count is an error.
type PairOp struct {
	Of    string `yaml:"of"`
	Count int    `yaml:"count"`
}

// MapIDsOp reassigns sample ids via a JavaScript expression evaluated
// with `id` bound to the current id. Files are untouched.
type MapIDsOp struct {
	Of   string `yaml:"of"`
	Expr string `yaml:"expr"`
}

// IfEmptyOp passes the channel through unchanged unless it turns out
// empty, in which case the message is logged and downstream stages
// simply receive nothing.
type IfEmptyOp struct {
	Of      string `yaml:"of"`
	Message string `yaml:"message,omitempty"`
}

// Source returns the single upstream reference of an operator channel,
// or "" for glob sources. Concat channels have several; use Refs.
func (c *ChannelDecl) Refs() []string {
	switch {
	case c.Pair != nil:
		return []string{c.Pair.Of}
	case len(c.Concat) > 0:
		return c.Concat
	case c.MapIDs != nil:
		return []string{c.MapIDs.Of}
	case c.IfEmpty != nil:
		return []string{c.IfEmpty.Of}
	}
	return nil
}

// FailurePolicy controls what a task failure does to the run.
type FailurePolicy string

const (
	// FailPolicy (default): the run's final status becomes failed;
	// sibling samples keep running but the failed sample's branch stops.
	FailPolicy FailurePolicy = "fail"
	// IgnorePolicy: the failure is logged and the sample is dropped
	// from the downstream channel; the run can still succeed.
	IgnorePolicy FailurePolicy = "ignore"
)

// StageSpec declares one unit of work: a script template run once per
// input tuple, with resource directives, declared output globs, and an
// optional publish rule.
type StageSpec struct {
	Name      string        `yaml:"name"`
	Input     string        `yaml:"input"`
	Script    string        `yaml:"script"`
	CPUs      int           `yaml:"cpus,omitempty"`
	Env       string        `yaml:"env,omitempty"`
	Outputs   []OutputGlob  `yaml:"outputs"`
	Publish   *PublishRule  `yaml:"publish,omitempty"`
	OnFailure FailurePolicy `yaml:"on_failure,omitempty"`
}

// OutputRef is the channel reference under which this stage's outputs
// are visible to downstream declarations ("<name>.out").
func (s *StageSpec) OutputRef() string {
	return s.Name + ".out"
}

// Policy resolves the OnFailure default.
func (s *StageSpec) Policy() FailurePolicy {
	if s.OnFailure == "" {
		return FailPolicy
	}
	return s.OnFailure
}

// Cores resolves the CPUs default of 1.
func (s *StageSpec) Cores() int {
	if s.CPUs < 1 {
		return 1
	}
	return s.CPUs
}

// OutputGlob declares one output pattern, resolved relative to the
// task's working directory after the script exits. A required glob
// matching nothing fails the task.
type OutputGlob struct {
	Glob     string `yaml:"glob"`
	Optional bool   `yaml:"optional,omitempty"`
}

// PublishMode selects how files cross the publishing boundary.
type PublishMode string

const (
	PublishCopy    PublishMode = "copy"
	PublishLink    PublishMode = "link"    // hardlink
	PublishSymlink PublishMode = "symlink"
)

// PublishRule places a task's matching outputs under the sample-keyed
// output tree. Dir is a template relative to the run outdir and
// defaults to "${sample.id}"; Pattern filters which outputs are
// published (empty means all).
type PublishRule struct {
	Dir     string      `yaml:"dir,omitempty"`
	Mode    PublishMode `yaml:"mode,omitempty"`
	Pattern string      `yaml:"pattern,omitempty"`
}

// DirTemplate resolves the Dir default.
func (p *PublishRule) DirTemplate() string {
	if p.Dir == "" {
		return "${sample.id}"
	}
	return p.Dir
}

// ModeOrDefault resolves the Mode default of copy.
func (p *PublishRule) ModeOrDefault() PublishMode {
	if p.Mode == "" {
		return PublishCopy
	}
	return p.Mode
}

// IsStageRef reports whether a channel reference names a stage output.
func IsStageRef(ref string) bool {
	return strings.HasSuffix(ref, ".out")
}

// StageOfRef returns the stage name of a "<stage>.out" reference.
func StageOfRef(ref string) string {
	return strings.TrimSuffix(ref, ".out")
}
