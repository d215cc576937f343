package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dotysan/rsgislib/classification"
	"github.com/dotysan/rsgislib/classification/gbtree"
	"github.com/dotysan/rsgislib/classification/hyperopt"
	"github.com/dotysan/rsgislib/imageutils"
	"github.com/dotysan/rsgislib/pkg/errors"
)

func classifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Train and apply gradient boosted tree classifiers",
	}
	cmd.AddCommand(
		classifyOptimiseCommand(),
		classifyTrainCommand(),
		classifyApplyCommand(),
	)
	return cmd
}

func binarySampleFlags(cmd *cobra.Command, samples *classification.BinarySamples) {
	cmd.Flags().StringVar(&samples.Class1Train, "cls1-train", "", "Class of interest training samples (HDF5)")
	cmd.Flags().StringVar(&samples.Class1Valid, "cls1-valid", "", "Class of interest validation samples (HDF5)")
	cmd.Flags().StringVar(&samples.Class1Test, "cls1-test", "", "Class of interest test samples (HDF5)")
	cmd.Flags().StringVar(&samples.Class2Train, "cls2-train", "", "Other class training samples (HDF5)")
	cmd.Flags().StringVar(&samples.Class2Valid, "cls2-valid", "", "Other class validation samples (HDF5)")
	cmd.Flags().StringVar(&samples.Class2Test, "cls2-test", "", "Other class test samples (HDF5)")
}

func requireBinarySamples(samples classification.BinarySamples) error {
	if samples.Class1Train == "" || samples.Class1Valid == "" ||
		samples.Class2Train == "" || samples.Class2Valid == "" {
		return errors.New("binary runs need --cls1-train, --cls1-valid, --cls2-train and --cls2-valid")
	}
	return nil
}

// loadBaseParams reads a parameter side-car when given, otherwise the
// defaults.
func loadBaseParams(path string) (gbtree.TrainingParams, error) {
	if path == "" {
		return gbtree.DefaultParams(), nil
	}
	return gbtree.LoadParams(path)
}

func buildOptimizer(method string, maxEvals int) (hyperopt.Optimizer, error) {
	switch method {
	case "bayes":
		return hyperopt.NewBayesOptimizer(maxEvals), nil
	case "tpe":
		return hyperopt.NewTPEOptimizer(maxEvals), nil
	case "grid":
		return hyperopt.NewGridOptimizer(), nil
	default:
		return nil, errors.Newf("unknown optimisation method %q (want bayes, tpe or grid)", method)
	}
}

func classifyOptimiseCommand() *cobra.Command {
	var samples classification.BinarySamples
	var method, paramsIn, paramsOut, classesFile string
	var maxEvals int

	cmd := &cobra.Command{
		Use:   "optimise",
		Short: "Search boosting hyperparameters against validation skill",
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := loadBaseParams(paramsIn)
			if err != nil {
				return err
			}
			opt, err := buildOptimizer(method, maxEvals)
			if err != nil {
				return err
			}
			base.NumThreads = viper.GetInt("threads")

			if classesFile != "" {
				classes, err := loadClassesFile(classesFile)
				if err != nil {
					return err
				}
				_, err = classification.OptimiseMulticlassClassifier(cmd.Context(), opt, classes, base, paramsOut)
				return err
			}

			if err := requireBinarySamples(samples); err != nil {
				return err
			}
			_, err = classification.OptimiseBinaryClassifier(cmd.Context(), opt, samples, base, paramsOut)
			return err
		},
	}

	binarySampleFlags(cmd, &samples)
	cmd.Flags().StringVar(&classesFile, "classes", "", "Multiclass description file (JSON map of class name to samples, IDs and colours)")
	cmd.Flags().StringVar(&method, "method", "bayes", "Search method: bayes, tpe or grid")
	cmd.Flags().IntVar(&maxEvals, "max-evals", 50, "Objective evaluation budget")
	cmd.Flags().StringVar(&paramsIn, "base-params", "", "Base parameter side-car (JSON)")
	cmd.Flags().StringVar(&paramsOut, "out-params", "", "Output parameter side-car (JSON)")
	_ = cmd.MarkFlagRequired("out-params")
	return cmd
}

func classifyTrainCommand() *cobra.Command {
	var samples classification.BinarySamples
	var paramsIn, classesFile, modelOut, paramsOut, method string
	var optimise bool
	var maxEvals int

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a classifier from staged samples",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := loadBaseParams(paramsIn)
			if err != nil {
				return err
			}
			params.NumThreads = viper.GetInt("threads")

			if classesFile != "" {
				classes, err := loadClassesFile(classesFile)
				if err != nil {
					return err
				}
				_, _, err = classification.TrainMulticlassClassifier(classes, params, modelOut, paramsOut)
				return err
			}

			if err := requireBinarySamples(samples); err != nil {
				return err
			}
			if optimise {
				opt, err := buildOptimizer(method, maxEvals)
				if err != nil {
					return err
				}
				_, err = classification.TrainOptBinaryClassifier(cmd.Context(), opt, samples, params, modelOut, paramsOut)
				return err
			}
			_, err = classification.TrainBinaryClassifier(samples, params, modelOut, paramsOut)
			return err
		},
	}

	binarySampleFlags(cmd, &samples)
	cmd.Flags().StringVar(&classesFile, "classes", "", "Multiclass description file (JSON map of class name to samples, IDs and colours)")
	cmd.Flags().StringVar(&paramsIn, "params", "", "Parameter side-car to train with (JSON)")
	cmd.Flags().BoolVar(&optimise, "optimise", false, "Search hyperparameters before the final fit")
	cmd.Flags().StringVar(&method, "method", "bayes", "Search method when --optimise is set")
	cmd.Flags().IntVar(&maxEvals, "max-evals", 50, "Objective evaluation budget when --optimise is set")
	cmd.Flags().StringVar(&modelOut, "out-model", "", "Output model file (JSON)")
	cmd.Flags().StringVar(&paramsOut, "out-params", "", "Output parameter side-car (JSON)")
	_ = cmd.MarkFlagRequired("out-model")
	return cmd
}

func classifyApplyCommand() *cobra.Command {
	var modelFile, maskImg, probOut, classOut, classesFile, format string
	var maskVal float64
	var threshold uint16
	var images []string
	var stats bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a trained classifier to imagery",
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := gbtree.LoadFromJSON(modelFile)
			if err != nil {
				return err
			}
			imgInfo, err := parseImageArgs(images)
			if err != nil {
				return err
			}
			opts := classification.ApplyOpts{
				Format:         format,
				ClassThreshold: threshold,
				CalcStats:      stats,
			}

			if classesFile != "" {
				classes, err := loadClassesFile(classesFile)
				if err != nil {
					return err
				}
				ordered, err := classification.SortClassInfo(classes)
				if err != nil {
					return err
				}
				return classification.ApplyMulticlassClassifier(cmd.Context(), model, ordered,
					maskImg, maskVal, imgInfo, classOut, opts)
			}
			return classification.ApplyBinaryClassifier(cmd.Context(), model, maskImg, maskVal,
				imgInfo, probOut, classOut, opts)
		},
	}

	cmd.Flags().StringVar(&modelFile, "model", "", "Trained model file (JSON)")
	cmd.Flags().StringVar(&maskImg, "mask", "", "Valid-area mask image")
	cmd.Flags().Float64Var(&maskVal, "mask-val", 1, "Mask value marking pixels to classify")
	cmd.Flags().StringSliceVar(&images, "image", nil, "Input image, optionally with bands: path[:1,2,3] (repeatable)")
	cmd.Flags().StringVar(&probOut, "out-prob", "", "Output probability image (binary models)")
	cmd.Flags().StringVar(&classOut, "out-class", "", "Output class image")
	cmd.Flags().StringVar(&classesFile, "classes", "", "Multiclass description file (JSON)")
	cmd.Flags().Uint16Var(&threshold, "threshold", classification.DefaultClassThreshold,
		"Scaled probability threshold for the binary class image")
	cmd.Flags().StringVar(&format, "format", "GTiff", "Output GDAL driver")
	cmd.Flags().BoolVar(&stats, "stats", true, "Populate statistics and pyramids on outputs")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("mask")
	_ = cmd.MarkFlagRequired("image")
	return cmd
}

// parseImageArgs turns path[:bands] arguments into band selections.
func parseImageArgs(args []string) ([]imageutils.ImageBandInfo, error) {
	infos := make([]imageutils.ImageBandInfo, 0, len(args))
	for _, arg := range args {
		info := imageutils.ImageBandInfo{FileName: arg}
		if idx := strings.LastIndex(arg, ":"); idx > 0 && !strings.Contains(arg[idx:], "/") {
			info.FileName = arg[:idx]
			for _, part := range strings.Split(arg[idx+1:], ",") {
				band, err := strconv.Atoi(strings.TrimSpace(part))
				if err != nil {
					return nil, errors.Newf("bad band selection %q in %q", part, arg)
				}
				info.Bands = append(info.Bands, band)
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func loadClassesFile(path string) (map[string]classification.ClassInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFileIOError("loadClassesFile", path, err)
	}
	var classes map[string]classification.ClassInfo
	if err := json.Unmarshal(data, &classes); err != nil {
		return nil, errors.Wrapf(err, "parsing class description %s", path)
	}
	return classes, nil
}
