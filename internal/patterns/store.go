package patterns

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raaihank/pii-sentinel/internal/apperrors"
)

//go:embed defaults/*.json
var defaultFiles embed.FS

const (
	defaultKnownTypesFile = "defaults/known_types.json"
	defaultPatternsFile   = "defaults/patterns.json"
)

// LoadOptions selects the rule sources for one scan.
type LoadOptions struct {
	KnownTypesFile           string
	PatternsFile             string
	ExcludeDefaultKnownTypes bool
	ExcludeDefaultPatterns   bool
}

// Load builds the rule set from the embedded defaults and the optional user
// files. User rules are appended after the defaults. Any missing or
// malformed source yields an *apperrors.ConfigError.
func Load(opts LoadOptions) (*RuleSet, error) {
	var knownTypes []KnownType
	var contentPatterns []ContentPattern

	if !opts.ExcludeDefaultKnownTypes {
		data, err := defaultFiles.ReadFile(defaultKnownTypesFile)
		if err != nil {
			return nil, &apperrors.ConfigError{Source: defaultKnownTypesFile, Err: err}
		}
		if err := decode(defaultKnownTypesFile, data, &knownTypes); err != nil {
			return nil, err
		}
	}
	if opts.KnownTypesFile != "" {
		var custom []KnownType
		if err := decodeFile(opts.KnownTypesFile, &custom); err != nil {
			return nil, err
		}
		knownTypes = append(knownTypes, custom...)
	}

	if !opts.ExcludeDefaultPatterns {
		data, err := defaultFiles.ReadFile(defaultPatternsFile)
		if err != nil {
			return nil, &apperrors.ConfigError{Source: defaultPatternsFile, Err: err}
		}
		if err := decode(defaultPatternsFile, data, &contentPatterns); err != nil {
			return nil, err
		}
	}
	if opts.PatternsFile != "" {
		var custom []ContentPattern
		if err := decodeFile(opts.PatternsFile, &custom); err != nil {
			return nil, err
		}
		contentPatterns = append(contentPatterns, custom...)
	}

	rs, err := NewRuleSet(knownTypes, contentPatterns)
	if err != nil {
		return nil, &apperrors.ConfigError{Source: "rules", Err: err}
	}
	if rs.Empty() {
		return nil, &apperrors.ConfigError{Source: "rules", Err: apperrors.ErrNoRules}
	}
	return rs, nil
}

// decodeFile reads path and decodes it as JSON or YAML depending on its
// extension.
func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &apperrors.ConfigError{Source: path, Err: fmt.Errorf("failed to read rule file: %w", err)}
	}
	return decode(path, data, out)
}

func decode(path string, data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &apperrors.ConfigError{Source: path, Err: errors.New("rule file is empty")}
	}

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, out)
	default:
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		return &apperrors.ConfigError{Source: path, Err: fmt.Errorf("failed to parse rule file: %w", err)}
	}
	return nil
}
