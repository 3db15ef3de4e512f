package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLoadInProgress is returned when another process holds the load lock.
var ErrLoadInProgress = errors.New("another load is in progress")

// Load steps named by LoadError.
const (
	StepLock     = "lock"
	StepRead     = "read"
	StepRules    = "rules"
	StepBuild    = "build"
	StepValidate = "validate"
	StepPersist  = "persist"
)

// LoadError is a fatal load failure. The previously persisted state is
// untouched whenever a LoadError is returned.
type LoadError struct {
	Step string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load failed at %s: %v", e.Step, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// DuplicateKeyError reports a key that appears on more than one source row.
type DuplicateKeyError struct {
	File  string
	Key   string
	ID    int64
	Lines []int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate %s %d in %s source (lines %s)", e.Key, e.ID, e.File, joinInts(e.Lines))
}

// IntegrityError lists referential or uniqueness violations found in a batch.
type IntegrityError struct {
	Problems []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("batch failed integrity checks: %s", strings.Join(e.Problems, "; "))
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
