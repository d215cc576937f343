package classification

import (
	"context"
	"math"

	"github.com/airbusgeo/godal"
	"gonum.org/v1/gonum/mat"

	"github.com/dotysan/rsgislib/classification/gbtree"
	"github.com/dotysan/rsgislib/imageutils"
	"github.com/dotysan/rsgislib/imageutils/applier"
	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
	"github.com/dotysan/rsgislib/rastergis"
)

// Probabilities are written as uint16 in tenths of a percent.
const (
	probScale = 10000
	// DefaultClassThreshold marks a pixel as the class of interest when
	// its scaled probability exceeds 50%.
	DefaultClassThreshold = 5000
)

// ApplyOpts configures classifier application.
type ApplyOpts struct {
	// Format is the output GDAL driver. Defaults to GTiff.
	Format string
	// ClassThreshold on the scaled probability for the binary class
	// image. Defaults to DefaultClassThreshold.
	ClassThreshold uint16
	// CalcStats populates statistics and pyramids on the outputs.
	CalcStats bool
}

func (o *ApplyOpts) fillDefaults() {
	if o.Format == "" {
		o.Format = "GTiff"
	}
	if o.ClassThreshold == 0 {
		o.ClassThreshold = DefaultClassThreshold
	}
}

// ApplyBinaryClassifier runs a trained binary model over a stack of
// image bands, masked by maskImg pixels equal to maskVal. It writes the
// scaled probability image and, when classImgOut is not empty, a binary
// class image from thresholding it.
func ApplyBinaryClassifier(ctx context.Context, model *gbtree.Model, maskImg string, maskVal float64,
	imgInfo []imageutils.ImageBandInfo, probImgOut, classImgOut string, opts ApplyOpts) error {

	opts.fillDefaults()
	logger := log.GetLoggerWithName("classification.apply")

	inputs := make([]applier.Input, 0, len(imgInfo)+1)
	inputs = append(inputs, applier.Input{Path: maskImg, Bands: []int{1}})
	for _, info := range imgInfo {
		inputs = append(inputs, applier.Input{Path: info.FileName, Bands: info.Bands})
	}

	controls := applier.NewControls()
	controls.Format = opts.Format
	controls.OutDataType = godal.UInt16
	nd := 0.0
	controls.OutNoData = &nd

	err := applier.Apply(ctx, inputs, probImgOut, 1, controls, func(in *applier.BlockInput, out *applier.BlockOutput) error {
		return predictBlock(model, in, out.Bands[0], maskVal, func(probs *mat.Dense, row int) float64 {
			return math.Round(probs.At(row, 0) * probScale)
		})
	})
	if err != nil {
		return err
	}
	logger.Info("Probability image written", log.RasterFileKey, probImgOut)

	if classImgOut != "" {
		if err := thresholdProbImage(ctx, probImgOut, classImgOut, opts); err != nil {
			return err
		}
		logger.Info("Class image written", log.RasterFileKey, classImgOut)
	}

	if opts.CalcStats {
		if err := imageutils.PopImageStats(ctx, probImgOut, true, 0, true); err != nil {
			return err
		}
	}
	return nil
}

// thresholdBlock marks pixels whose scaled probability strictly
// exceeds the threshold. A pixel exactly at the threshold stays
// unclassified.
func thresholdBlock(probs, classes []float64, threshold float64) {
	for p, v := range probs {
		if v > threshold {
			classes[p] = 1
		}
	}
}

// thresholdProbImage converts a scaled probability image into a 0/1
// class image with a colour table.
func thresholdProbImage(ctx context.Context, probImg, classImgOut string, opts ApplyOpts) error {
	controls := applier.NewControls()
	controls.Format = opts.Format
	controls.OutDataType = godal.Byte
	threshold := float64(opts.ClassThreshold)

	err := applier.Apply(ctx, []applier.Input{{Path: probImg, Bands: []int{1}}}, classImgOut, 1, controls,
		func(in *applier.BlockInput, out *applier.BlockOutput) error {
			thresholdBlock(in.Bands[0], out.Bands[0], threshold)
			return nil
		})
	if err != nil {
		return err
	}

	classes := []rastergis.ClassColour{
		{Value: 1, Name: "interest", Red: 0, Green: 200, Blue: 0},
	}
	if err := rastergis.SetClassNamesColours(classImgOut, 1, classes); err != nil {
		return err
	}
	if opts.CalcStats {
		return imageutils.PopImageStats(ctx, classImgOut, true, 0, true)
	}
	return nil
}

// ApplyMulticlassClassifier runs a trained softmax model over a stack
// of image bands, writing the per-class output IDs with a colour table
// and class names.
func ApplyMulticlassClassifier(ctx context.Context, model *gbtree.Model, classes []ClassInfo,
	maskImg string, maskVal float64, imgInfo []imageutils.ImageBandInfo, classImgOut string, opts ApplyOpts) error {

	opts.fillDefaults()
	if model.NumClass != len(classes) {
		return errors.NewDimensionError("ApplyMulticlassClassifier", model.NumClass, len(classes), 0)
	}

	// Training ID to output pixel value.
	outLUT := make([]float64, len(classes))
	for _, info := range classes {
		outLUT[info.ID] = float64(info.OutID)
	}

	inputs := make([]applier.Input, 0, len(imgInfo)+1)
	inputs = append(inputs, applier.Input{Path: maskImg, Bands: []int{1}})
	for _, info := range imgInfo {
		inputs = append(inputs, applier.Input{Path: info.FileName, Bands: info.Bands})
	}

	controls := applier.NewControls()
	controls.Format = opts.Format
	controls.OutDataType = godal.UInt16
	nd := 0.0
	controls.OutNoData = &nd

	err := applier.Apply(ctx, inputs, classImgOut, 1, controls, func(in *applier.BlockInput, out *applier.BlockOutput) error {
		return predictBlock(model, in, out.Bands[0], maskVal, func(probs *mat.Dense, row int) float64 {
			best, bestP := 0, probs.At(row, 0)
			for k := 1; k < model.NumClass; k++ {
				if p := probs.At(row, k); p > bestP {
					best, bestP = k, p
				}
			}
			return outLUT[best]
		})
	})
	if err != nil {
		return err
	}

	colours := make([]rastergis.ClassColour, len(classes))
	for i, info := range classes {
		colours[i] = rastergis.ClassColour{
			Value: info.OutID,
			Name:  info.Name,
			Red:   info.Red,
			Green: info.Green,
			Blue:  info.Blue,
		}
	}
	if err := rastergis.SetClassNamesColours(classImgOut, 1, colours); err != nil {
		return err
	}
	if opts.CalcStats {
		return imageutils.PopImageStats(ctx, classImgOut, true, 0, true)
	}
	return nil
}

// predictBlock gathers the masked pixels of a block into a feature
// matrix, predicts, and scatters the per-pixel result back through
// toValue. The first input band is the mask; the rest are features.
func predictBlock(model *gbtree.Model, in *applier.BlockInput, out []float64, maskVal float64,
	toValue func(probs *mat.Dense, row int) float64) error {

	mask := in.Bands[0]
	features := in.Bands[1:]
	if len(features) != model.NumFeatures {
		return errors.NewDimensionError("predictBlock", model.NumFeatures, len(features), 1)
	}

	sel := make([]int, 0, len(mask))
	for p, m := range mask {
		if m == maskVal {
			sel = append(sel, p)
		}
	}
	if len(sel) == 0 {
		return nil
	}

	X := mat.NewDense(len(sel), len(features), nil)
	for row, p := range sel {
		for f, band := range features {
			X.Set(row, f, band[p])
		}
	}

	probs, err := model.PredictProba(X)
	if err != nil {
		return err
	}
	for row, p := range sel {
		out[p] = toValue(probs, row)
	}
	return nil
}
