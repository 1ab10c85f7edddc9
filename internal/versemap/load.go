package versemap

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed rules/*.cue
var defaultRules embed.FS

// Load compiles the embedded default rule tables and returns a Matcher.
// This is what a reader session uses; LoadDir exists for operators vetting
// replacement tables.
func Load() (*Matcher, error) {
	var sets []*RuleSet

	ctx := cuecontext.New()
	entries, err := fs.Glob(defaultRules, "rules/*.cue")
	if err != nil {
		return nil, fmt.Errorf("load embedded rules: %w", err)
	}

	for _, name := range entries {
		data, err := defaultRules.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("load embedded rules: %w", err)
		}
		value := ctx.CompileString(string(data), cue.Filename(name))
		if err := value.Err(); err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, formatCUEError(err))
		}
		fileSets, err := compileTables(value)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		sets = append(sets, fileSets...)
	}

	return NewMatcher(sets)
}

// LoadDir compiles every CUE rule table under dir into a Matcher.
// Returns an error if the directory holds no tables or any table fails to
// compile or validate.
func LoadDir(dir string) (*Matcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules directory: not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, fmt.Errorf("rules directory %s: no CUE instances loaded", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %w", formatCUEError(err))
	}

	sets, err := compileTables(value)
	if err != nil {
		return nil, err
	}
	if len(sets) == 0 {
		return nil, fmt.Errorf("rules directory %s: no tables found", dir)
	}

	return NewMatcher(sets)
}

// compileTables walks the top-level "table" struct and compiles each field.
func compileTables(value cue.Value) ([]*RuleSet, error) {
	var sets []*RuleSet

	tablesVal := value.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return sets, nil
	}

	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating tables: %w", formatCUEError(err))
	}
	for iter.Next() {
		rs, err := CompileTable(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("table.%s: %w", iter.Label(), err)
		}
		sets = append(sets, rs)
	}

	return sets, nil
}

// FindCUEFiles walks dir and returns all .cue file paths.
// Used by the CLI to report which files a vet run covered.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
