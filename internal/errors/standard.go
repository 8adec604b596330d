// Package errors provides the standardized fatal-error type for the
// elaboration core: ill-formed input, cyclic metavariable assignment,
// read-only frontend mutation, and the other failure kinds that spec.md
// §7 calls out as "fatal... callers should not catch."
package errors

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
)

// Category classifies a CoreError for diagnostics and tests.
type Category string

const (
	CategoryIllFormed Category = "ILL_FORMED"
	CategoryReadOnly  Category = "READ_ONLY"
	CategoryCyclic    Category = "CYCLIC"
	CategoryOverflow  Category = "OVERFLOW"
	CategoryWrongKind Category = "WRONG_KIND"
)

// CoreError is the consistent shape for every fatal failure the core
// raises. It is returned, not panicked, except by hopmatch.Match, which
// panics with an IllFormedMatch error when a logical variable lies
// outside its substitution range.
type CoreError struct {
	Category Category
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// New builds a CoreError and wraps it with a stack trace via
// github.com/pkg/errors so the caller can log a useful trace even though
// the error is returned rather than panicked.
func New(category Category, code, message string, context map[string]interface{}) error {
	pc, _, _, ok := runtime.Caller(1)

	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return errors.WithStack(&CoreError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	})
}

// IllFormedMatch reports a higher-order matching problem whose
// substitution range cannot contain the logical variable being solved.
func IllFormedMatch(idx, substLen int) error {
	return New(CategoryIllFormed, "ILL_FORMED_MATCH",
		fmt.Sprintf("logical variable index %d out of substitution range [0,%d)", idx, substLen),
		map[string]interface{}{"index": idx, "substLen": substLen})
}

// ReadOnlyFrontend reports an attempt to mutate a notation environment
// that already has children.
func ReadOnlyFrontend(op string) error {
	return New(CategoryReadOnly, "READ_ONLY_FRONTEND",
		fmt.Sprintf("failed to %s, frontend object is read-only (has children)", op),
		map[string]interface{}{"operation": op})
}

// CyclicAssignment reports an occurs-check failure when assigning a
// metavariable.
func CyclicAssignment(id string) error {
	return New(CategoryCyclic, "CYCLIC_ASSIGNMENT",
		fmt.Sprintf("assignment to metavariable %s would be cyclic", id),
		map[string]interface{}{"id": id})
}

// NonArrowCoercion reports a coercion whose type is not a non-dependent
// arrow A -> B, or whose A and B coincide.
func NonArrowCoercion(reason string) error {
	return New(CategoryIllFormed, "NON_ARROW_COERCION", reason, nil)
}

// AnonymousExplicitName reports an attempt to mark implicit arguments on
// an anonymous name.
func AnonymousExplicitName() error {
	return New(CategoryIllFormed, "ANONYMOUS_EXPLICIT_NAME",
		"anonymous names cannot be used to derive an explicit-version name", nil)
}

// WrongObjectKind reports mark_implicit called on something that is not
// a definition/postulate/builtin.
func WrongObjectKind(n string) error {
	return New(CategoryWrongKind, "WRONG_OBJECT_KIND",
		fmt.Sprintf("'%s' is not a definition, postulate, or builtin", n),
		map[string]interface{}{"name": n})
}

// TooDeep reports that a rewrite or elaboration search exceeded its
// caller-supplied depth budget.
func TooDeep(kind string, limit int) error {
	return New(CategoryOverflow, "TOO_DEEP",
		fmt.Sprintf("%s exceeded depth budget of %d", kind, limit),
		map[string]interface{}{"limit": limit})
}
