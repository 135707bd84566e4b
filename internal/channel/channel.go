// Package channel implements the ordered sample-tuple channels that
// connect pipeline stages: glob sources, pairing, id mapping,
// concatenation, and emptiness-guarded fallback. Correctness never
// depends on ordering, but emission order is deterministic (sorted
// glob results, A-then-B concat) so test runs are reproducible.
package channel

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/pkg/model"
)

// Channel is an ordered collection of sample tuples. Source channels
// are materialized at graph-build time; the scheduler streams their
// tuples to stages.
type Channel struct {
	name   string
	tuples []model.SampleTuple
}

// New creates a channel with the given name and tuples.
func New(name string, tuples []model.SampleTuple) *Channel {
	return &Channel{name: name, tuples: tuples}
}

// Name returns the channel's declared name.
func (c *Channel) Name() string { return c.name }

// Len returns the number of tuples.
func (c *Channel) Len() int { return len(c.tuples) }

// Tuples returns the tuples in emission order. The slice is a copy;
// callers may not mutate channel contents.
func (c *Channel) Tuples() []model.SampleTuple {
	out := make([]model.SampleTuple, len(c.tuples))
	for i, t := range c.tuples {
		out[i] = t.Clone()
	}
	return out
}

// FromGlob lists paths matching pattern, derives one tuple per file via
// the extractor, and returns them in lexicographic path order. When the
// channel is declared required and nothing matches, the run must not
// start: an EmptyChannelError is returned. Otherwise an empty match
// degrades to an empty channel with a warning.
func FromGlob(name, pattern string, ex IDExtractor, required bool, logger *slog.Logger) (*Channel, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, &model.ConfigurationError{Field: "channels." + name, Message: fmt.Sprintf("bad glob %q: %v", pattern, err)}
	}
	sort.Strings(matches)

	if len(matches) == 0 {
		if required {
			return nil, &model.EmptyChannelError{Channel: name, Pattern: pattern}
		}
		logger.Warn("channel is empty", "channel", name, "pattern", pattern)
		return New(name, nil), nil
	}

	tuples := make([]model.SampleTuple, 0, len(matches))
	for _, m := range matches {
		id, err := ex.Extract(m)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", name, err)
		}
		tuples = append(tuples, model.SampleTuple{ID: id, Files: []string{m}})
	}
	return New(name, tuples), nil
}

// Pair groups the files of a channel by sample id into tuples of
// exactly count files each, ordered by basename within a group (so R1
// sorts before R2 even when the mates live in different directories).
// Any id with a different multiplicity is an error. Group emission
// order follows the first appearance of each id.
func Pair(name string, ch *Channel, count int) (*Channel, error) {
	if count < 1 {
		return nil, &model.ConfigurationError{Field: "channels." + name, Message: "pair count must be >= 1"}
	}

	groups := make(map[string][]string)
	var order []string
	for _, t := range ch.tuples {
		if _, seen := groups[t.ID]; !seen {
			order = append(order, t.ID)
		}
		groups[t.ID] = append(groups[t.ID], t.Files...)
	}

	tuples := make([]model.SampleTuple, 0, len(order))
	for _, id := range order {
		files := groups[id]
		if len(files) != count {
			return nil, fmt.Errorf("channel %s: sample %s has %d files, expected %d", name, id, len(files), count)
		}
		sort.Slice(files, func(i, j int) bool {
			return filepath.Base(files[i]) < filepath.Base(files[j])
		})
		tuples = append(tuples, model.SampleTuple{ID: id, Files: files})
	}
	return New(name, tuples), nil
}

// MapIDs reassigns each tuple's id via the transform. Files are left
// untouched. The transform must be pure; an error aborts graph build.
func MapIDs(name string, ch *Channel, transform func(string) (string, error)) (*Channel, error) {
	tuples := make([]model.SampleTuple, 0, len(ch.tuples))
	for _, t := range ch.tuples {
		id, err := transform(t.ID)
		if err != nil {
			return nil, fmt.Errorf("channel %s: map id %q: %w", name, t.ID, err)
		}
		if id == "" {
			return nil, fmt.Errorf("channel %s: transform mapped %q to an empty id", name, t.ID)
		}
		tuples = append(tuples, model.SampleTuple{ID: id, Files: t.Files})
	}
	return New(name, tuples), nil
}

// Concat yields every tuple of a then every tuple of b, each exactly
// once. Ids are not deduplicated: when both channels carry the same
// id, both tuples pass through and downstream stages run twice for
// that id. Uniqueness is the caller's responsibility.
func Concat(name string, a, b *Channel) *Channel {
	tuples := make([]model.SampleTuple, 0, len(a.tuples)+len(b.tuples))
	tuples = append(tuples, a.tuples...)
	tuples = append(tuples, b.tuples...)
	return New(name, tuples)
}

// IfEmpty returns the channel unchanged unless it is empty, in which
// case the fallback runs (by default a diagnostic plus an empty
// channel). Tuples already observed by consumers are never affected.
func IfEmpty(name string, ch *Channel, fallback func() *Channel) *Channel {
	if ch.Len() > 0 {
		return New(name, ch.tuples)
	}
	fb := fallback()
	if fb == nil {
		return New(name, nil)
	}
	return New(name, fb.tuples)
}
