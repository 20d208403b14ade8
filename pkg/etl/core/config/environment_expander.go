package config

import (
	"os"
	"regexp"
)

// EnvironmentExpander expands environment placeholders in raw configuration bytes.
type EnvironmentExpander interface {
	// Expand returns input with every placeholder replaced.
	Expand(input []byte) ([]byte, error)
}

// OsEnvironmentExpander expands ${VAR} and ${VAR:-default} from the process environment.
// Bare $VAR is left untouched so that regular expressions in the file survive.
type OsEnvironmentExpander struct{}

// NewOsEnvironmentExpander creates an OsEnvironmentExpander.
func NewOsEnvironmentExpander() *OsEnvironmentExpander {
	return &OsEnvironmentExpander{}
}

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Expand replaces placeholders; unset variables without a default become empty strings.
func (e *OsEnvironmentExpander) Expand(input []byte) ([]byte, error) {
	return placeholder.ReplaceAllFunc(input, func(match []byte) []byte {
		groups := placeholder.FindSubmatch(match)
		if v, ok := os.LookupEnv(string(groups[1])); ok {
			return []byte(v)
		}
		return groups[2]
	}), nil
}
