package model

import "gonum.org/v1/gonum/mat"

// Fitter is a trainable model.
type Fitter interface {
	// Fit trains the model on X with targets y.
	Fit(X, y mat.Matrix) error
}

// Predictor produces predictions for input data.
type Predictor interface {
	// Predict returns predictions for the rows of X.
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Model is the basic supervised-model interface.
type Model interface {
	Fitter
	Predictor
}
