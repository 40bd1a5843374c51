package env

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// LoadEnvironment returns the variables of a named environment from the
// config file. An empty name selects nothing.
func LoadEnvironment(name string, environments map[string]map[string]any) (map[string]any, error) {
	if name == "" {
		return map[string]any{}, nil
	}
	vars, ok := environments[name]
	if !ok {
		known := make([]string, 0, len(environments))
		for k := range environments {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("environment %q is not defined (known: %s)", name, strings.Join(known, ", "))
	}
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	return out, nil
}

// LoadSystemEnv collects OS environment variables starting with prefix,
// with the prefix removed.
func LoadSystemEnv(prefix string) map[string]string {
	result := make(map[string]string)
	for _, e := range os.Environ() {
		key, value, ok := strings.Cut(e, "=")
		if !ok || key == "" {
			continue
		}
		if prefix == "" {
			result[key] = value
		} else if name, found := strings.CutPrefix(key, prefix); found && name != "" {
			result[name] = value
		}
	}
	return result
}
