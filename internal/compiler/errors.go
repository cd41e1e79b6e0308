package compiler

import "strings"

// CompileError is a single validation failure, carrying the JSON path it
// was found at so a CLI/GUI client can point the user at the offending
// field. Errors are collected rather than aborting on the first one,
// matching original_source's json_config_loader.cpp validator.
type CompileError struct {
	Path    string
	Message string
}

func (e CompileError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// Errors is the list of every CompileError found. A non-empty Errors means
// the compile failed as a whole: spec.md §4.F — "on any error, the compile
// fails as a whole and the engine retains its previous configuration."
type Errors []CompileError

func (es Errors) Error() string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// HasErrors reports whether any error was collected.
func (es Errors) HasErrors() bool { return len(es) > 0 }
