// Package log defines standard attribute keys for raster processing and
// classification operations.
//
// Using these keys consistently makes long-running jobs (tiled classifier
// application, bulk downloads, hyperparameter searches) easy to follow and
// filter in structured log output. Keys follow a hierarchical naming
// convention (e.g. "model.name", "data.samples", "raster.file").

package log

// Model and operation context.
const (
	// ModelNameKey identifies the model or algorithm type.
	// Examples: "GBTreeClassifier", "BayesOpt", "TPE"
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	// Standard values: "fit", "predict", "optimise", "apply", "download"
	OperationKey = "op"

	// ComponentKey identifies the package performing the operation.
	// Examples: "classification", "imagecalc", "rastergis", "tools"
	ComponentKey = "component"

	// PhaseKey indicates the phase of a pipeline.
	// Examples: "training", "validation", "testing", "apply"
	PhaseKey = "phase"
)

// Data shape and raster context.
const (
	// SamplesKey is the number of samples (rows) being processed.
	SamplesKey = "data.samples"

	// FeaturesKey is the number of features (columns / image bands).
	FeaturesKey = "data.features"

	// ClassesKey is the number of classes in a classification problem.
	ClassesKey = "data.classes"

	// RasterFileKey names the raster file an operation reads or writes.
	RasterFileKey = "raster.file"

	// RasterBandKey is the (1-based) band index within a raster.
	RasterBandKey = "raster.band"

	// BlockKey is the index of the current block in a tiled operation.
	BlockKey = "raster.block"

	// BlocksTotalKey is the total number of blocks in a tiled operation.
	BlocksTotalKey = "raster.blocks_total"

	// H5FileKey names the HDF5 sample file an operation reads or writes.
	H5FileKey = "h5.file"
)

// Performance and metric context.
const (
	// DurationMsKey records execution time in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// DurationSecondsKey records execution time in seconds, for training
	// and apply operations that run for minutes.
	DurationSecondsKey = "perf.duration_seconds"

	// AccuracyKey records classification accuracy in [0, 1].
	AccuracyKey = "metrics.accuracy"

	// AUCKey records area under the ROC curve in [0, 1].
	AUCKey = "metrics.auc"

	// LossKey records a loss value during training or evaluation.
	LossKey = "metrics.loss"

	// IterationKey is the current boosting iteration or optimiser trial.
	IterationKey = "iteration"

	// TrialKey is the current hyperparameter-search trial number.
	TrialKey = "trial"
)

// Error and warning context.
const (
	// ErrorCodeKey provides a structured error code.
	// Examples: "NOT_FITTED", "DIMENSION_MISMATCH", "CHECKSUM_MISMATCH"
	ErrorCodeKey = "error.code"

	// ErrorTypeKey categorises the error encountered.
	ErrorTypeKey = "error.type"

	// SuggestionKey carries a hint for resolving the problem.
	SuggestionKey = "error.suggestion"
)

// Download and file context.
const (
	// URLKey is the remote URL of a download.
	URLKey = "url"

	// FileKey is a local file path.
	FileKey = "file"

	// AttemptKey is the retry attempt number for a download.
	AttemptKey = "attempt"

	// BytesKey is a byte count (downloaded, written).
	BytesKey = "bytes"
)

// Hyperparameters and configuration.
const (
	// HyperParamsKey carries a params map as a structured object.
	HyperParamsKey = "model.hyperparams"

	// LearningRateKey records the boosting learning rate.
	LearningRateKey = "hyperparams.learning_rate"

	// RandomSeedKey records the random seed for reproducibility.
	RandomSeedKey = "config.random_seed"

	// ThreadsKey records the worker-goroutine count for an operation.
	ThreadsKey = "config.threads"
)

// Standard attribute values.
const (
	OperationFit      = "fit"
	OperationPredict  = "predict"
	OperationOptimise = "optimise"
	OperationApply    = "apply"
	OperationDownload = "download"

	PhaseTraining   = "training"
	PhaseValidation = "validation"
	PhaseTesting    = "testing"
	PhaseApply      = "apply"

	ErrorNotFitted         = "NOT_FITTED"
	ErrorDimensionMismatch = "DIMENSION_MISMATCH"
	ErrorEmptyData         = "EMPTY_DATA"
	ErrorInvalidInput      = "INVALID_INPUT"
	ErrorChecksumMismatch  = "CHECKSUM_MISMATCH"
)
