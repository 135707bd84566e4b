package model

// SampleTuple is the unit of data flowing through a pipeline: one sample
// identifier plus the ordered set of files currently representing that
// sample. The ID is derived once, when the sample first enters a channel,
// and is never changed by downstream stages; two tuples with the same ID
// at different stages refer to the same biological sample.
type SampleTuple struct {
	ID    string   `json:"id"`
	Files []string `json:"files"`
}

// Clone returns a deep copy of the tuple. Stages hand tuples to
// concurrent consumers, so shared backing arrays are never exposed.
func (t SampleTuple) Clone() SampleTuple {
	files := make([]string, len(t.Files))
	copy(files, t.Files)
	return SampleTuple{ID: t.ID, Files: files}
}

// WithFiles returns a tuple carrying the same ID but a new file set.
// This is how a stage packages its outputs: identity propagates, the
// file handles are replaced.
func (t SampleTuple) WithFiles(files []string) SampleTuple {
	out := make([]string, len(files))
	copy(out, files)
	return SampleTuple{ID: t.ID, Files: out}
}
