// Package rsgislib provides remote sensing and GIS tooling for Go:
// gradient boosted tree classification of imagery, per-pixel band
// maths, raster attribute handling, vector rasterisation and bulk data
// download.
//
// The heart of the library is the classification pipeline. Image
// samples are staged in HDF5 files, hyperparameters are searched with
// Bayesian, Parzen or grid optimisers, and trained models are applied
// to rasters tile by tile so image size never matters:
//
//	samples := classification.BinarySamples{
//	    Class1Train: "mangrove_train.h5",
//	    Class1Valid: "mangrove_valid.h5",
//	    Class2Train: "other_train.h5",
//	    Class2Valid: "other_valid.h5",
//	}
//	opt := hyperopt.NewBayesOptimizer(50)
//	model, err := classification.TrainOptBinaryClassifier(
//	    ctx, opt, samples, gbtree.DefaultParams(), "model.json", "model_params.json")
//
// Raster access is built on GDAL through github.com/airbusgeo/godal,
// sample staging on gonum.org/v1/hdf5, geometry handling on
// github.com/paulmach/orb, and band maths expressions on
// github.com/expr-lang/expr. The rsgis command in cmd/rsgis exposes the
// pipelines on the command line.
package rsgislib
