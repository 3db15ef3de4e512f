package ingestion

import (
	"fmt"
	"strings"
)

// MissingColumnsError reports required columns absent from a source header.
type MissingColumnsError struct {
	File    string
	Path    string
	Missing []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s source %s is missing required columns: %s",
		e.File, e.Path, strings.Join(e.Missing, ", "))
}

// TooManyRowsError reports a source exceeding the configured row limit.
type TooManyRowsError struct {
	File  string
	Path  string
	Limit int
}

func (e *TooManyRowsError) Error() string {
	return fmt.Sprintf("%s source %s exceeds the limit of %d rows", e.File, e.Path, e.Limit)
}

// SourceReadError wraps I/O and parse failures of a source file.
type SourceReadError struct {
	File string
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("failed to read %s source %s: %v", e.File, e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() error {
	return e.Err
}
