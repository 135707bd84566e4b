package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/pipeline"
)

func validDoc() *pipeline.Pipeline {
	return &pipeline.Pipeline{
		Name: "test",
		Channels: []pipeline.ChannelDecl{
			{Name: "reads", Glob: &pipeline.GlobSource{Pattern: "/data/*.fastq.gz", ID: pipeline.IDRule{StripSuffix: ".fastq.gz"}}},
		},
		Stages: []pipeline.StageSpec{
			{Name: "trim", Input: "reads", Script: "fastp", Outputs: []pipeline.OutputGlob{{Glob: "*.out"}}},
			{Name: "asm", Input: "trim.out", Script: "flye", Outputs: []pipeline.OutputGlob{{Glob: "*.fasta"}}},
		},
	}
}

func wantConfErr(t *testing.T, err error, substr string) {
	t.Helper()
	var ce *model.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
	if !strings.Contains(ce.Error(), substr) {
		t.Errorf("error %q should mention %q", ce.Error(), substr)
	}
}

func TestValidate_OK(t *testing.T) {
	v := NewValidator(testLogger())
	if err := v.Validate(validDoc()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*pipeline.Pipeline)
		mention string
	}{
		{"no stages", func(p *pipeline.Pipeline) { p.Stages = nil }, "no stages"},
		{"duplicate stage", func(p *pipeline.Pipeline) { p.Stages[1].Name = "trim"; p.Stages[1].Input = "reads" }, "duplicate"},
		{"duplicate channel", func(p *pipeline.Pipeline) {
			p.Channels = append(p.Channels, pipeline.ChannelDecl{Name: "reads", Glob: &pipeline.GlobSource{Pattern: "x"}})
		}, "duplicate"},
		{"unknown input", func(p *pipeline.Pipeline) { p.Stages[0].Input = "nope" }, "undeclared channel"},
		{"unknown stage ref", func(p *pipeline.Pipeline) { p.Stages[1].Input = "ghost.out" }, "undeclared stage"},
		{"self input", func(p *pipeline.Pipeline) { p.Stages[0].Input = "trim.out" }, "own output"},
		{"missing script", func(p *pipeline.Pipeline) { p.Stages[0].Script = "" }, "script"},
		{"negative cpus", func(p *pipeline.Pipeline) { p.Stages[0].CPUs = -1 }, "cpus"},
		{"bad policy", func(p *pipeline.Pipeline) { p.Stages[0].OnFailure = "retry" }, "failure policy"},
		{"absolute output glob", func(p *pipeline.Pipeline) { p.Stages[0].Outputs[0].Glob = "/etc/*" }, "relative"},
		{"bad output glob", func(p *pipeline.Pipeline) { p.Stages[0].Outputs[0].Glob = "[" }, "glob"},
		{"bad publish mode", func(p *pipeline.Pipeline) {
			p.Stages[0].Publish = &pipeline.PublishRule{Mode: "move"}
		}, "mode"},
		{"two channel sources", func(p *pipeline.Pipeline) {
			p.Channels[0].Concat = []string{"a", "b"}
		}, "exactly one"},
		{"pair count", func(p *pipeline.Pipeline) {
			p.Channels = append(p.Channels, pipeline.ChannelDecl{Name: "pairs", Pair: &pipeline.PairOp{Of: "reads", Count: 1}})
		}, "pair.count"},
		{"operator over stage output", func(p *pipeline.Pipeline) {
			p.Channels = append(p.Channels, pipeline.ChannelDecl{Name: "bad", MapIDs: &pipeline.MapIDsOp{Of: "trim.out", Expr: "id"}})
		}, "stage output"},
		{"undeclared operator ref", func(p *pipeline.Pipeline) {
			p.Channels = append(p.Channels, pipeline.ChannelDecl{Name: "bad", IfEmpty: &pipeline.IfEmptyOp{Of: "ghost"}})
		}, "undeclared"},
		{"bad id regexp", func(p *pipeline.Pipeline) {
			p.Channels[0].Glob.ID = pipeline.IDRule{Regexp: &pipeline.RegexpRule{Pattern: "["}}
		}, "regexp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			tt.mutate(doc)
			err := NewValidator(testLogger()).Validate(doc)
			if err == nil {
				t.Fatal("expected validation error")
			}
			wantConfErr(t, err, tt.mention)
		})
	}
}
