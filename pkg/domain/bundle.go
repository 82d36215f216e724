package domain

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// DefaultBundleName is the job bundle file expected inside every session
// directory.
const DefaultBundleName = "stoker.json"

// Bundle is the serialized structure an external collaborator drops into a
// session directory. The scheduler cares about exactly two fields: the
// dependency edges and the named job definitions. Everything else inside an
// ingredient definition is treated opaquely.
type Bundle struct {
	// Dependencies maps a job name to the names of its predecessors.
	Dependencies map[string][]string `json:"dependency_dict"`

	// Ingredients maps a job name to its loosely-typed definition.
	Ingredients map[string]map[string]any `json:"ingredients"`

	// InputStem, when set, names the file-name stem of stray input files
	// that belong to this session and should be swept into its directory.
	InputStem string `json:"input_stem,omitempty"`
}

// DecodeBundle parses a serialized session bundle.
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if len(b.Ingredients) == 0 {
		return nil, fmt.Errorf("decode bundle: no ingredients defined")
	}
	return &b, nil
}

// Descriptors converts the bundle's opaque ingredient maps into typed
// execution descriptors. Unknown keys inside an ingredient are ignored;
// they belong to the collaborator that wrote the bundle, not to us.
func (b *Bundle) Descriptors() (map[string]Descriptor, error) {
	out := make(map[string]Descriptor, len(b.Ingredients))
	for name, raw := range b.Ingredients {
		var d Descriptor
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &d,
			WeaklyTypedInput: true,
		})
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(raw); err != nil {
			return nil, fmt.Errorf("ingredient %q: %w", name, err)
		}
		if d.Dir == "" {
			d.Dir = name
		}
		out[name] = d
	}
	return out, nil
}

// JobNames returns the defined job names in sorted order.
func (b *Bundle) JobNames() []string {
	names := make([]string, 0, len(b.Ingredients))
	for name := range b.Ingredients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
