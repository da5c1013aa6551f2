package resolver

import (
	"errors"
	"fmt"
)

// StructureError reports a page-builder tree that cannot be walked.
type StructureError struct {
	Path    string
	Depth   int
	Message string
}

func NewStructureError(msg string) *StructureError {
	return &StructureError{Message: msg}
}

func (e *StructureError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("item '%s' (depth %d): %s", e.Path, e.Depth, e.Message)
}

func (e *StructureError) AddPath(path string) *StructureError {
	e.Path = path
	return e
}

func (e *StructureError) AddDepth(depth int) *StructureError {
	e.Depth = depth
	return e
}

func IsStructureError(err error) bool {
	var structureErr *StructureError
	return errors.As(err, &structureErr)
}
