// Package errors provides error handling and the warning system used across
// the library. Errors carry structured context and stack traces so that
// failures deep inside raster processing or model training can be traced
// back to the operation that caused them.
package errors

import (
	"fmt"
	"log"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	Global warning handling
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler = func(w error) {
		// Default handler logs to stderr.
		log.Printf("RSGIS-Warning: %v\n", w)
	}
	// zerolog sink, injected lazily to avoid an import cycle with pkg/log.
	zerologWarnFunc func(warning error)
)

// SetWarningHandler sets the library-wide warning handler. Use it to
// silence or redirect warnings such as SmallSampleWarning.
//
// Example:
//
//	errors.SetWarningHandler(func(w error) {
//	    // ignore warnings
//	})
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// SetZerologWarnFunc installs a zerolog-backed warning sink.
func SetZerologWarnFunc(warnFunc func(warning error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	zerologWarnFunc = warnFunc
}

// Warn emits a warning through the zerolog sink when one is installed,
// otherwise through the plain handler.
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if zerologWarnFunc != nil {
		zerologWarnFunc(w)
		return
	}

	if warningHandler != nil {
		warningHandler(w)
	}
}

// ===========================================================================
//
//	Warning types
//
// ===========================================================================

// ConvergenceWarning is raised when an optimisation loop stops without
// converging (e.g. hyperparameter search exhausting its trial budget
// without improvement).
type ConvergenceWarning struct {
	Algorithm  string
	Iterations int
	Message    string
}

func (w *ConvergenceWarning) Error() string {
	if w.Message != "" {
		return fmt.Sprintf("%s failed to converge after %d iterations: %s", w.Algorithm, w.Iterations, w.Message)
	}
	return fmt.Sprintf("%s failed to converge after %d iterations. Consider increasing the iteration budget.", w.Algorithm, w.Iterations)
}

// MarshalZerologObject adds the structured warning fields to a zerolog event.
func (w *ConvergenceWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("algorithm", w.Algorithm).
		Int("iterations", w.Iterations).
		Str("message", w.Message).
		Str("type", "ConvergenceWarning")
}

// NewConvergenceWarning creates a new ConvergenceWarning.
func NewConvergenceWarning(algorithm string, iterations int, message string) *ConvergenceWarning {
	return &ConvergenceWarning{Algorithm: algorithm, Iterations: iterations, Message: message}
}

// SmallSampleWarning is raised when a training or validation set is small
// enough that reported scores are unlikely to be stable.
type SmallSampleWarning struct {
	Set     string
	Samples int
	Minimum int
}

func (w *SmallSampleWarning) Error() string {
	return fmt.Sprintf("%s set has only %d samples (recommended minimum %d); scores may be unstable", w.Set, w.Samples, w.Minimum)
}

// MarshalZerologObject adds the structured warning fields to a zerolog event.
func (w *SmallSampleWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("set", w.Set).
		Int("samples", w.Samples).
		Int("minimum", w.Minimum).
		Str("type", "SmallSampleWarning")
}

// NewSmallSampleWarning creates a new SmallSampleWarning.
func NewSmallSampleWarning(set string, samples, minimum int) *SmallSampleWarning {
	return &SmallSampleWarning{Set: set, Samples: samples, Minimum: minimum}
}

// ===========================================================================
//
//	Structured error types
//
// ===========================================================================

// NotFittedError is returned when Predict or similar is called on a model
// that has not been trained or loaded.
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("rsgis: %s: this model is not fitted yet. Call Fit() or load a model before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError creates a NotFittedError with a stack trace attached.
func NewNotFittedError(modelName, method string) error {
	err := &NotFittedError{ModelName: modelName, Method: method}
	return errors.WithStack(err)
}

// DimensionError is returned when input data has an unexpected shape.
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows/samples, 1 for columns/features/bands
}

func (e *DimensionError) Error() string {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	return fmt.Sprintf("rsgis: %s: dimension mismatch on axis %d (%s). Expected %d, got %d", e.Op, e.Axis, axisName, e.Expected, e.Got)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	axisName := "features"
	if e.Axis == 0 {
		axisName = "rows"
	}
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", axisName).
		Str("type", "DimensionError")
}

// NewDimensionError creates a DimensionError with a stack trace attached.
func NewDimensionError(op string, expected, got, axis int) error {
	err := &DimensionError{Op: op, Expected: expected, Got: got, Axis: axis}
	return errors.WithStack(err)
}

// ValidationError is returned when a parameter fails validation.
type ValidationError struct {
	ParamName string
	Reason    string
	Value     interface{}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rsgis: validation failed for parameter '%s': %s (got: %v)", e.ParamName, e.Reason, e.Value)
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *ValidationError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("param_name", e.ParamName).
		Str("reason", e.Reason).
		Interface("value", e.Value).
		Str("type", "ValidationError")
}

// NewValidationError creates a ValidationError with a stack trace attached.
func NewValidationError(param, reason string, value interface{}) error {
	err := &ValidationError{ParamName: param, Reason: reason, Value: value}
	return errors.WithStack(err)
}

// ValueError is returned when an argument value is invalid for the operation.
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("rsgis: %s: %s", e.Op, e.Message)
}

// NewValueError creates a ValueError with a stack trace attached.
func NewValueError(op, message string) error {
	err := &ValueError{Op: op, Message: message}
	return errors.WithStack(err)
}

// ModelError is a general model-related error wrapping an underlying cause.
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rsgis: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("rsgis: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError creates a ModelError with a stack trace attached.
func NewModelError(op, kind string, err error) error {
	modelErr := &ModelError{Op: op, Kind: kind, Err: err}
	return errors.WithStack(modelErr)
}

// FileIOError is returned when reading or writing a data file fails
// (HDF5 sample files, model JSON, parameter side-cars, downloads).
type FileIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileIOError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rsgis: %s: %s: %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("rsgis: %s: %s", e.Op, e.Path)
}

func (e *FileIOError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *FileIOError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("path", e.Path).
		Str("type", "FileIOError")
	if e.Err != nil {
		event.AnErr("cause", e.Err)
	}
}

// NewFileIOError creates a FileIOError with a stack trace attached.
func NewFileIOError(op, path string, err error) error {
	ioErr := &FileIOError{Op: op, Path: path, Err: err}
	return errors.WithStack(ioErr)
}

// RasterError is returned when a GDAL raster or vector operation fails.
type RasterError struct {
	Op    string
	Image string
	Err   error
}

func (e *RasterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rsgis: %s: %s: %v", e.Op, e.Image, e.Err)
	}
	return fmt.Sprintf("rsgis: %s: %s", e.Op, e.Image)
}

func (e *RasterError) Unwrap() error {
	return e.Err
}

// MarshalZerologObject adds the structured error fields to a zerolog event.
func (e *RasterError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Str("image", e.Image).
		Str("type", "RasterError")
	if e.Err != nil {
		event.AnErr("cause", e.Err)
	}
}

// NewRasterError creates a RasterError with a stack trace attached.
func NewRasterError(op, image string, err error) error {
	rErr := &RasterError{Op: op, Image: image, Err: err}
	return errors.WithStack(rErr)
}

// ===========================================================================
//
//	cockroachdb/errors wrappers
//
// ===========================================================================

// Is reports whether err matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with a message.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New creates a new error.
func New(message string) error {
	return errors.New(message)
}

// Newf creates a new formatted error.
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack annotates an error with a stack trace.
func WithStack(err error) error {
	return errors.WithStack(err)
}

// ===========================================================================
//
//	Common sentinel errors
//
// ===========================================================================

var (
	// ErrNotImplemented indicates an unimplemented feature.
	ErrNotImplemented = New("not implemented")

	// ErrEmptyData indicates an empty dataset or raster block.
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix indicates a singular matrix in a solve step.
	ErrSingularMatrix = New("singular matrix")

	// ErrChecksumMismatch indicates a downloaded file failed its MD5 check.
	ErrChecksumMismatch = New("checksum mismatch")
)
