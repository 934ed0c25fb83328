package pkmodel

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
)

//go:embed repository/*.yaml
var repositoryFS embed.FS

// BuiltinPrefix marks a model reference as a builtin name instead of a path.
const BuiltinPrefix = "builtin:"

// Builtin loads a model shipped with the binary.
func Builtin(name string) (*Definition, error) {
	data, err := repositoryFS.ReadFile(path.Join("repository", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("pkmodel: unknown builtin model %q", name)
	}
	return Parse(data, BuiltinPrefix+name)
}

func BuiltinNames() []string {
	entries, err := repositoryFS.ReadDir("repository")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Resolve loads ref as a builtin when it carries BuiltinPrefix, otherwise
// as a file path.
func Resolve(ref string) (*Definition, error) {
	if name, ok := strings.CutPrefix(ref, BuiltinPrefix); ok {
		return Builtin(name)
	}
	return Load(ref)
}
