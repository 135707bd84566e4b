package parser

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/pipeline"
)

// Validator checks pipeline documents for structural problems before
// the graph is built. Every finding is a ConfigurationError.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{logger: logger.With("component", "validator")}
}

func confErr(field, format string, args ...any) error {
	return &model.ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks the whole document. The first problem found is
// returned; graph build must not proceed on error.
func (v *Validator) Validate(p *pipeline.Pipeline) error {
	if len(p.Stages) == 0 {
		return confErr("stages", "pipeline declares no stages")
	}

	channels := make(map[string]*pipeline.ChannelDecl, len(p.Channels))
	for i := range p.Channels {
		c := &p.Channels[i]
		if c.Name == "" {
			return confErr(fmt.Sprintf("channels[%d]", i), "missing name")
		}
		if _, dup := channels[c.Name]; dup {
			return confErr("channels."+c.Name, "duplicate channel name")
		}
		if err := v.validateChannel(c); err != nil {
			return err
		}
		channels[c.Name] = c
	}

	// Channel operators may reference only declared channels; stage
	// outputs feed stages directly, never operator declarations.
	for _, c := range p.Channels {
		for _, ref := range c.Refs() {
			if pipeline.IsStageRef(ref) {
				return confErr("channels."+c.Name, "channel operators cannot consume stage output %q; wire the stage input directly", ref)
			}
			if _, ok := channels[ref]; !ok {
				return confErr("channels."+c.Name, "references undeclared channel %q", ref)
			}
		}
	}

	stages := make(map[string]bool, len(p.Stages))
	for i := range p.Stages {
		s := &p.Stages[i]
		if s.Name == "" {
			return confErr(fmt.Sprintf("stages[%d]", i), "missing name")
		}
		if stages[s.Name] {
			return confErr("stages."+s.Name, "duplicate stage name")
		}
		stages[s.Name] = true
		if err := v.validateStage(s); err != nil {
			return err
		}
	}

	// Stage inputs resolve to a declared channel or an earlier-declared
	// stage's output.
	for _, s := range p.Stages {
		ref := s.Input
		if pipeline.IsStageRef(ref) {
			up := pipeline.StageOfRef(ref)
			if up == s.Name {
				return confErr("stages."+s.Name, "stage consumes its own output")
			}
			if !stages[up] {
				return confErr("stages."+s.Name, "input references undeclared stage %q", up)
			}
			continue
		}
		if _, ok := channels[ref]; !ok {
			return confErr("stages."+s.Name, "input references undeclared channel %q", ref)
		}
	}

	return nil
}

func (v *Validator) validateChannel(c *pipeline.ChannelDecl) error {
	field := "channels." + c.Name

	sources := 0
	if c.Glob != nil {
		sources++
	}
	if c.Pair != nil {
		sources++
	}
	if len(c.Concat) > 0 {
		sources++
	}
	if c.MapIDs != nil {
		sources++
	}
	if c.IfEmpty != nil {
		sources++
	}
	if sources != 1 {
		return confErr(field, "exactly one of glob, pair, concat, map_ids, if_empty must be set")
	}

	switch {
	case c.Glob != nil:
		if c.Glob.Pattern == "" {
			return confErr(field, "glob pattern is empty")
		}
		if c.Glob.ID.StripSuffix != "" && c.Glob.ID.Regexp != nil {
			return confErr(field, "id rule declares both strip_suffix and regexp")
		}
		if re := c.Glob.ID.Regexp; re != nil {
			if _, err := regexp.Compile(re.Pattern); err != nil {
				return confErr(field, "id regexp: %v", err)
			}
		}
	case c.Pair != nil:
		if c.Pair.Of == "" {
			return confErr(field, "pair.of is empty")
		}
		if c.Pair.Count < 2 {
			return confErr(field, "pair.count must be >= 2, got %d", c.Pair.Count)
		}
	case len(c.Concat) > 0:
		if len(c.Concat) != 2 {
			return confErr(field, "concat takes exactly two channels, got %d", len(c.Concat))
		}
	case c.MapIDs != nil:
		if c.MapIDs.Of == "" || c.MapIDs.Expr == "" {
			return confErr(field, "map_ids needs both of and expr")
		}
	case c.IfEmpty != nil:
		if c.IfEmpty.Of == "" {
			return confErr(field, "if_empty.of is empty")
		}
	}
	return nil
}

func (v *Validator) validateStage(s *pipeline.StageSpec) error {
	field := "stages." + s.Name

	if s.Input == "" {
		return confErr(field, "missing input channel")
	}
	if s.Script == "" {
		return confErr(field, "missing script")
	}
	if s.CPUs < 0 {
		return confErr(field, "cpus must not be negative")
	}
	switch s.OnFailure {
	case "", pipeline.FailPolicy, pipeline.IgnorePolicy:
	default:
		return confErr(field, "unknown failure policy %q", s.OnFailure)
	}

	for i, out := range s.Outputs {
		if out.Glob == "" {
			return confErr(fmt.Sprintf("%s.outputs[%d]", field, i), "empty glob")
		}
		if filepath.IsAbs(out.Glob) {
			return confErr(fmt.Sprintf("%s.outputs[%d]", field, i), "output globs are relative to the task work directory")
		}
		if _, err := filepath.Match(out.Glob, "probe"); err != nil {
			return confErr(fmt.Sprintf("%s.outputs[%d]", field, i), "bad glob %q: %v", out.Glob, err)
		}
	}

	if pub := s.Publish; pub != nil {
		switch pub.ModeOrDefault() {
		case pipeline.PublishCopy, pipeline.PublishLink, pipeline.PublishSymlink:
		default:
			return confErr(field+".publish", "unknown mode %q", pub.Mode)
		}
		if pub.Pattern != "" {
			if _, err := filepath.Match(pub.Pattern, "probe"); err != nil {
				return confErr(field+".publish", "bad pattern %q: %v", pub.Pattern, err)
			}
		}
	}
	return nil
}
