// Package errors is a drop-in for the standard errors package that adds
// component/category metadata and optional Sentry reporting.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"sync/atomic"
)

// Category groups errors for logging and reporting.
type Category string

const (
	CategoryGeneric    Category = "generic"
	CategoryConfig     Category = "config"
	CategoryNetwork    Category = "network"
	CategoryDatabase   Category = "database"
	CategoryValidation Category = "validation"
	CategoryStream     Category = "stream"
	CategoryGeofence   Category = "geofence"
)

// Standard library passthroughs so callers only need one errors import.
func New(msg string) error { return stderrors.New(msg) }
func Is(err, target error) bool { return stderrors.Is(err, target) }
func As(err error, target any) bool { return stderrors.As(err, target) }
func Join(errs ...error) error { return stderrors.Join(errs...) }
func Unwrap(err error) error { return stderrors.Unwrap(err) }
func Errorf(format string, a ...any) error { return fmt.Errorf(format, a...) }

// EnhancedError carries the component and category an error originated from.
type EnhancedError struct {
	Err       error
	component string
	category  Category
	context   map[string]any
}

func (e *EnhancedError) Error() string { return e.Err.Error() }
func (e *EnhancedError) Unwrap() error { return e.Err }

// Component returns the component that produced the error.
func (e *EnhancedError) Component() string { return e.component }

// Category returns the error category.
func (e *EnhancedError) Category() Category { return e.category }

// Context returns a copy of the attached context values.
func (e *EnhancedError) Context() map[string]any { return maps.Clone(e.context) }

// Builder assembles an EnhancedError.
type Builder struct {
	err       error
	component string
	category  Category
	context   map[string]any
}

// Wrap starts a builder around an existing error.
func Wrap(err error) *Builder {
	return &Builder{err: err, category: CategoryGeneric}
}

// Newf starts a builder around a formatted error. %w is honoured.
func Newf(format string, a ...any) *Builder {
	return Wrap(fmt.Errorf(format, a...))
}

func (b *Builder) Component(component string) *Builder {
	b.component = component
	return b
}

func (b *Builder) Category(category Category) *Builder {
	b.category = category
	return b
}

// Context attaches a key/value that is forwarded to the reporter.
func (b *Builder) Context(key string, value any) *Builder {
	if b.context == nil {
		b.context = make(map[string]any)
	}
	b.context[key] = value
	return b
}

// Build finalizes the error and hands it to the reporter, if one is installed.
// Validation errors are never reported.
func (b *Builder) Build() error {
	if b.err == nil {
		return nil
	}
	ee := &EnhancedError{
		Err:       b.err,
		component: b.component,
		category:  b.category,
		context:   b.context,
	}
	if ee.category != CategoryValidation {
		if r := reporter.Load(); r != nil {
			(*r)(ee)
		}
	}
	return ee
}

// Reporter receives every built, reportable error.
type Reporter func(*EnhancedError)

var reporter atomic.Pointer[Reporter]

// SetReporter installs r. Passing nil disables reporting.
func SetReporter(r Reporter) {
	if r == nil {
		reporter.Store(nil)
		return
	}
	reporter.Store(&r)
}

// CategoryOf returns the category of err, or CategoryGeneric when err carries none.
func CategoryOf(err error) Category {
	var ee *EnhancedError
	if As(err, &ee) {
		return ee.category
	}
	return CategoryGeneric
}
