// Package imagecalc evaluates per-pixel arithmetic over raster bands.
// Expressions are compiled once with expr-lang and run for every pixel
// of every processing window, so conditionals and arbitrary arithmetic
// come for free.
package imagecalc

import (
	"context"
	"math"
	"strconv"

	"github.com/airbusgeo/godal"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/dotysan/rsgislib/imageutils"
	"github.com/dotysan/rsgislib/imageutils/applier"
	"github.com/dotysan/rsgislib/pkg/errors"
)

// NoDataOut is written where an expression cannot be evaluated, for
// example a division by zero in a normalised index.
const NoDataOut = -999.0

// BandDefn binds an expression variable to one band of one image.
type BandDefn struct {
	// BandName is the variable name used in the expression.
	BandName string
	FileName string
	// BandIndex is 1-based.
	BandIndex int
}

// compiledExpr wraps an expr program with its evaluation environment.
type compiledExpr struct {
	program *vm.Program
	env     map[string]any
	names   []string
}

func compileExpression(expression string, names []string) (*compiledExpr, error) {
	env := make(map[string]any, len(names))
	for _, n := range names {
		env[n] = float64(0)
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AsFloat64())
	if err != nil {
		return nil, errors.Wrapf(err, "imagecalc: cannot compile %q", expression)
	}
	return &compiledExpr{program: program, env: env, names: names}, nil
}

// eval runs the expression for one pixel. Non-finite results collapse
// to NoDataOut.
func (c *compiledExpr) eval(values []float64) (float64, error) {
	for i, n := range c.names {
		c.env[n] = values[i]
	}
	out, err := expr.Run(c.program, c.env)
	if err != nil {
		return 0, errors.Wrap(err, "imagecalc: expression failed")
	}
	v, ok := out.(float64)
	if !ok {
		return 0, errors.Newf("imagecalc: expression returned %T, want float64", out)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NoDataOut, nil
	}
	return v, nil
}

// BandMath evaluates an expression over named bands drawn from one or
// more images and writes the result as a single-band image.
func BandMath(ctx context.Context, outPath, expression, format string, dtype godal.DataType, bands []BandDefn) error {
	if len(bands) == 0 {
		return errors.NewValueError("BandMath", "no band definitions")
	}

	names := make([]string, len(bands))
	inputs := make([]applier.Input, len(bands))
	for i, b := range bands {
		if b.BandName == "" {
			return errors.NewValueError("BandMath", "band definition without a name")
		}
		names[i] = b.BandName
		idx := b.BandIndex
		if idx < 1 {
			idx = 1
		}
		inputs[i] = applier.Input{Path: b.FileName, Bands: []int{idx}}
	}

	compiled, err := compileExpression(expression, names)
	if err != nil {
		return err
	}

	controls := applier.NewControls()
	controls.Format = format
	controls.OutDataType = dtype
	nd := NoDataOut
	controls.OutNoData = &nd

	values := make([]float64, len(bands))
	return applier.Apply(ctx, inputs, outPath, 1, controls, func(in *applier.BlockInput, out *applier.BlockOutput) error {
		for p := range out.Bands[0] {
			for i := range in.Bands {
				values[i] = in.Bands[i][p]
			}
			v, err := compiled.eval(values)
			if err != nil {
				return err
			}
			out.Bands[0][p] = v
		}
		return nil
	})
}

// ImageMath evaluates an expression over every band of a single image,
// bound to the variables b1..bn.
func ImageMath(ctx context.Context, inPath, outPath, expression, format string, dtype godal.DataType) error {
	n, err := imageutils.GetImageBandCount(inPath)
	if err != nil {
		return err
	}
	bands := make([]BandDefn, n)
	for i := 0; i < n; i++ {
		bands[i] = BandDefn{
			BandName:  bandVar(i + 1),
			FileName:  inPath,
			BandIndex: i + 1,
		}
	}
	return BandMath(ctx, outPath, expression, format, dtype, bands)
}

func bandVar(i int) string {
	return "b" + strconv.Itoa(i)
}

// CountPxlsOfVal counts the pixels of a band equal to val.
func CountPxlsOfVal(path string, band int, val float64) (int64, error) {
	imageutils.EnsureGDALRegistered()
	ds, err := godal.Open(path)
	if err != nil {
		return 0, errors.NewRasterError("CountPxlsOfVal", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return 0, errors.Newf("imagecalc: band %d out of range 1..%d", band, len(bands))
	}
	b := bands[band-1]
	st := ds.Structure()

	var count int64
	const rowsPerRead = 256
	buf := make([]float64, st.SizeX*rowsPerRead)
	for y := 0; y < st.SizeY; y += rowsPerRead {
		h := st.SizeY - y
		if h > rowsPerRead {
			h = rowsPerRead
		}
		chunk := buf[:st.SizeX*h]
		if err := b.Read(0, y, chunk, st.SizeX, h); err != nil {
			return 0, errors.NewRasterError("CountPxlsOfVal", path, err)
		}
		for _, v := range chunk {
			if v == val {
				count++
			}
		}
	}
	return count, nil
}

// GetImageBandMinMax returns the minimum and maximum of a band,
// skipping no-data when the band defines one.
func GetImageBandMinMax(path string, band int) (minVal, maxVal float64, err error) {
	imageutils.EnsureGDALRegistered()
	ds, err := godal.Open(path)
	if err != nil {
		return 0, 0, errors.NewRasterError("GetImageBandMinMax", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return 0, 0, errors.Newf("imagecalc: band %d out of range 1..%d", band, len(bands))
	}
	b := bands[band-1]
	noData, hasNoData := b.NoData()
	st := ds.Structure()

	minVal, maxVal = math.Inf(1), math.Inf(-1)
	const rowsPerRead = 256
	buf := make([]float64, st.SizeX*rowsPerRead)
	for y := 0; y < st.SizeY; y += rowsPerRead {
		h := st.SizeY - y
		if h > rowsPerRead {
			h = rowsPerRead
		}
		chunk := buf[:st.SizeX*h]
		if err := b.Read(0, y, chunk, st.SizeX, h); err != nil {
			return 0, 0, errors.NewRasterError("GetImageBandMinMax", path, err)
		}
		for _, v := range chunk {
			if math.IsNaN(v) || (hasNoData && v == noData) {
				continue
			}
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
		}
	}
	if minVal > maxVal {
		return 0, 0, errors.Wrapf(errors.ErrEmptyData, "imagecalc: %s band %d holds no valid pixels", path, band)
	}
	return minVal, maxVal, nil
}
