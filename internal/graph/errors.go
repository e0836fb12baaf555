package graph

import (
	"fmt"
	"strings"
)

// UnknownReferenceError reports an input reference to a node name that is
// not defined anywhere in the expanded mapping.
type UnknownReferenceError struct {
	Node string // the referring node
	Ref  string // the missing reference
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("node %q references undefined input %q", e.Node, e.Ref)
}

// InvalidNodeError reports a node definition the registry rejects:
// unknown type, bad arity, or missing/malformed parameters.
type InvalidNodeError struct {
	Node   string
	Reason string
	Err    error
}

func (e *InvalidNodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid node %q: %v", e.Node, e.Err)
	}
	return fmt.Sprintf("invalid node %q: %s", e.Node, e.Reason)
}

func (e *InvalidNodeError) Unwrap() error { return e.Err }

// CyclicGraphError reports a dependency cycle. Path holds one complete
// cycle, starting and ending on the same node.
type CyclicGraphError struct {
	Path []string
}

func (e *CyclicGraphError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Path, " -> "))
}
