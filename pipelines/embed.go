// Package pipelines embeds the pipeline documents shipped with the
// binary so `run assembly` works without any files on disk.
package pipelines

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed *.yaml
var files embed.FS

// Load returns the raw YAML document for a built-in pipeline name.
func Load(name string) ([]byte, error) {
	data, err := files.ReadFile(name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown built-in pipeline %q (available: %s)",
			name, strings.Join(Names(), ", "))
	}
	return data, nil
}

// Names lists the built-in pipeline names, sorted.
func Names() []string {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
