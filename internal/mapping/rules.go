// Package mapping turns source-model payloads into target-system payloads.
//
// The translation is driven by a rules file (YAML, validated against an
// embedded CUE schema) that pins down target placement (root, site, org),
// write-back property names, and asset eligibility. Everything else in the
// package is pure: given a node or entity plus a resolved parent, it builds
// the payload the target client sends.
package mapping

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed rules.cue
var rulesSchema string

// Rules is the decoded, validated content of a mapping rules file.
// Field defaults come from the schema, not from Go zero values.
type Rules struct {
	Root string `json:"root"`
	Site string `json:"site"`
	Org  string `json:"org"`

	Location struct {
		Type              string `json:"type"`
		DefaultParentName string `json:"defaultParentName"`
	} `json:"location"`

	WriteBack struct {
		PropertySet      string `json:"propertySet"`
		LocationProperty string `json:"locationProperty"`
		AssetProperty    string `json:"assetProperty"`
	} `json:"writeBack"`

	Asset struct {
		DescriptionProperty string `json:"descriptionProperty"`
		RequireClass        bool   `json:"requireClass"`
	} `json:"asset"`

	Classification struct {
		Dictionary string `json:"dictionary"`
	} `json:"classification"`
}

// RulesError describes why a rules file was rejected.
type RulesError struct {
	File    string
	Message string
}

func (e *RulesError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("invalid mapping rules: %s", e.Message)
	}
	return fmt.Sprintf("invalid mapping rules in %s: %s", e.File, e.Message)
}

// Load reads and validates a rules file from disk.
func Load(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("reading mapping rules: %w", err)
	}
	return Parse(path, data)
}

// Parse validates raw YAML rules content against the embedded schema and
// decodes it. The filename is only used in error messages.
func Parse(filename string, data []byte) (Rules, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(rulesSchema, cue.Filename("rules.cue"))
	if err := schema.Err(); err != nil {
		return Rules{}, fmt.Errorf("compiling rules schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Rules"))
	if !def.Exists() {
		return Rules{}, fmt.Errorf("rules schema has no #Rules definition")
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return Rules{}, &RulesError{File: filename, Message: err.Error()}
	}
	val := ctx.BuildFile(file)
	if err := val.Err(); err != nil {
		return Rules{}, &RulesError{File: filename, Message: formatCUEError(err)}
	}

	unified := def.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Rules{}, &RulesError{File: filename, Message: formatCUEError(err)}
	}

	var rules Rules
	if err := unified.Decode(&rules); err != nil {
		return Rules{}, &RulesError{File: filename, Message: formatCUEError(err)}
	}
	return rules, nil
}

// formatCUEError flattens a CUE error list into one readable message.
func formatCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		msg := e.Error()
		if pos := e.Position(); pos.IsValid() {
			msg = fmt.Sprintf("%s (at %s)", msg, pos)
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "; ")
}
