// Package model holds the estimator-state plumbing shared by trainable
// models in this library.
package model

// EstimatorState tracks whether a model has been trained or loaded.
type EstimatorState int

const (
	// NotFitted means the model has not been trained yet.
	NotFitted EstimatorState = iota
	// Fitted means the model has been trained or loaded from disk.
	Fitted
)

// BaseEstimator is embedded by trainable models to carry fitted state.
type BaseEstimator struct {
	state EstimatorState
}

// IsFitted reports whether the model has been trained or loaded.
func (e *BaseEstimator) IsFitted() bool {
	return e.state == Fitted
}

// SetFitted marks the model as trained.
func (e *BaseEstimator) SetFitted() {
	e.state = Fitted
}

// Reset returns the model to its untrained state.
func (e *BaseEstimator) Reset() {
	e.state = NotFitted
}
