package channel

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// IDExtractor derives a sample id from a discovered file path. Id
// derivation happens exactly once, when a file enters a channel; the
// id then travels unchanged through every downstream stage.
type IDExtractor interface {
	Extract(path string) (string, error)
}

// SuffixStrip derives the id by removing a fixed suffix from the
// file's basename ("A.fastq.gz" with suffix ".fastq.gz" -> "A").
type SuffixStrip struct {
	Suffix string
}

func (s SuffixStrip) Extract(path string) (string, error) {
	base := filepath.Base(path)
	if !strings.HasSuffix(base, s.Suffix) {
		return "", fmt.Errorf("file %q does not carry suffix %q", base, s.Suffix)
	}
	id := strings.TrimSuffix(base, s.Suffix)
	if id == "" {
		return "", fmt.Errorf("file %q yields an empty sample id", base)
	}
	return id, nil
}

// RegexpStrip derives the id by applying a regular-expression
// substitution to the basename. Used for pairing conventions such as
// removing "_R1.fastq.gz"/"_R2.fastq.gz".
type RegexpStrip struct {
	Pattern *regexp.Regexp
	Replace string
}

// NewRegexpStrip compiles the pattern.
func NewRegexpStrip(pattern, replace string) (RegexpStrip, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return RegexpStrip{}, fmt.Errorf("id pattern %q: %w", pattern, err)
	}
	return RegexpStrip{Pattern: re, Replace: replace}, nil
}

func (r RegexpStrip) Extract(path string) (string, error) {
	base := filepath.Base(path)
	id := r.Pattern.ReplaceAllString(base, r.Replace)
	if id == "" {
		return "", fmt.Errorf("file %q yields an empty sample id", base)
	}
	return id, nil
}

// BaseName derives the id by dropping the basename's last extension.
// The fallback strategy when a pipeline declares no id rule.
type BaseName struct{}

func (BaseName) Extract(path string) (string, error) {
	base := filepath.Base(path)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" {
		return "", fmt.Errorf("file %q yields an empty sample id", path)
	}
	return base, nil
}
