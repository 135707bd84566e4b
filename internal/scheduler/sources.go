package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/channel"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/expr"
	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/pipeline"
)

// buildSources materializes every declared channel: globs are listed,
// operators applied, in dependency order. Patterns may reference
// ${params.*}; they are rendered before globbing. Returns an
// EmptyChannelError for a required glob with no matches.
func buildSources(p *pipeline.Pipeline, params map[string]any, logger *slog.Logger) (map[string]*channel.Channel, error) {
	eval := expr.New()
	built := make(map[string]*channel.Channel, len(p.Channels))

	var build func(decl *pipeline.ChannelDecl) (*channel.Channel, error)

	byName := make(map[string]*pipeline.ChannelDecl, len(p.Channels))
	for i := range p.Channels {
		byName[p.Channels[i].Name] = &p.Channels[i]
	}

	resolve := func(ref string) (*channel.Channel, error) {
		if ch, ok := built[ref]; ok {
			return ch, nil
		}
		decl, ok := byName[ref]
		if !ok {
			// Unreachable after validation.
			return nil, fmt.Errorf("undeclared channel %q", ref)
		}
		return build(decl)
	}

	build = func(decl *pipeline.ChannelDecl) (*channel.Channel, error) {
		if ch, ok := built[decl.Name]; ok {
			return ch, nil
		}

		var (
			ch  *channel.Channel
			err error
		)
		switch {
		case decl.Glob != nil:
			pattern, rerr := eval.Render(decl.Glob.Pattern, expr.NewContext().WithParams(params))
			if rerr != nil {
				return nil, fmt.Errorf("channel %s: glob pattern: %w", decl.Name, rerr)
			}
			ex, xerr := extractor(decl.Glob.ID)
			if xerr != nil {
				return nil, fmt.Errorf("channel %s: %w", decl.Name, xerr)
			}
			ch, err = channel.FromGlob(decl.Name, pattern, ex, decl.Glob.IsRequired(), logger)

		case decl.Pair != nil:
			var up *channel.Channel
			up, err = resolve(decl.Pair.Of)
			if err == nil {
				ch, err = channel.Pair(decl.Name, up, decl.Pair.Count)
			}

		case len(decl.Concat) > 0:
			var a, b *channel.Channel
			if a, err = resolve(decl.Concat[0]); err == nil {
				if b, err = resolve(decl.Concat[1]); err == nil {
					ch = channel.Concat(decl.Name, a, b)
				}
			}

		case decl.MapIDs != nil:
			var up *channel.Channel
			up, err = resolve(decl.MapIDs.Of)
			if err == nil {
				code := decl.MapIDs.Expr
				ch, err = channel.MapIDs(decl.Name, up, func(id string) (string, error) {
					return eval.EvalString(code, expr.NewContext().WithID(id).WithParams(params))
				})
			}

		case decl.IfEmpty != nil:
			var up *channel.Channel
			up, err = resolve(decl.IfEmpty.Of)
			if err == nil {
				msg := decl.IfEmpty.Message
				if msg == "" {
					msg = "channel " + decl.Name + " received no samples"
				}
				ch = channel.IfEmpty(decl.Name, up, func() *channel.Channel {
					logger.Warn(msg, "channel", decl.Name)
					return nil
				})
			}

		default:
			// Unreachable after validation.
			err = fmt.Errorf("channel %s declares no source", decl.Name)
		}

		if err != nil {
			return nil, err
		}
		built[decl.Name] = ch
		return ch, nil
	}

	for i := range p.Channels {
		if _, err := build(&p.Channels[i]); err != nil {
			return nil, err
		}
	}
	return built, nil
}

// extractor converts a declared id rule into an extraction strategy.
func extractor(rule pipeline.IDRule) (channel.IDExtractor, error) {
	switch {
	case rule.StripSuffix != "":
		return channel.SuffixStrip{Suffix: rule.StripSuffix}, nil
	case rule.Regexp != nil:
		return channel.NewRegexpStrip(rule.Regexp.Pattern, rule.Regexp.Replace)
	default:
		return channel.BaseName{}, nil
	}
}
