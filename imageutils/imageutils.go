// Package imageutils provides raster housekeeping built on GDAL: header
// queries, blank-image creation, valid masks, statistics and band
// stacking. All pixel work goes through imageutils/applier so images of
// any size are processed in constant memory.
package imageutils

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/dotysan/rsgislib/imageutils/applier"
	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

var registerOnce sync.Once

// EnsureGDALRegistered registers the GDAL drivers once per process.
// Every entry point in this package calls it, so callers only need it
// when talking to godal directly.
func EnsureGDALRegistered() {
	registerOnce.Do(godal.RegisterAll)
}

// ImageBandInfo selects bands from one image for stacking or
// classification. A nil Bands slice selects all bands. Band numbers are
// 1-based.
type ImageBandInfo struct {
	FileName string `json:"file_name"`
	Name     string `json:"name"`
	Bands    []int  `json:"bands,omitempty"`
}

// GetImageBandCount returns the number of bands in an image.
func GetImageBandCount(path string) (int, error) {
	EnsureGDALRegistered()
	ds, err := godal.Open(path)
	if err != nil {
		return 0, errors.NewRasterError("GetImageBandCount", path, err)
	}
	defer ds.Close()
	return ds.Structure().NBands, nil
}

// GetImageSize returns the image width and height in pixels.
func GetImageSize(path string) (x, y int, err error) {
	EnsureGDALRegistered()
	ds, err := godal.Open(path)
	if err != nil {
		return 0, 0, errors.NewRasterError("GetImageSize", path, err)
	}
	defer ds.Close()
	st := ds.Structure()
	return st.SizeX, st.SizeY, nil
}

// GetImageRes returns the pixel size. The Y resolution is returned as a
// positive value even though north-up images store it negated.
func GetImageRes(path string) (xRes, yRes float64, err error) {
	EnsureGDALRegistered()
	ds, err := godal.Open(path)
	if err != nil {
		return 0, 0, errors.NewRasterError("GetImageRes", path, err)
	}
	defer ds.Close()
	gt, err := ds.GeoTransform()
	if err != nil {
		return 0, 0, errors.NewRasterError("GetImageRes", path, err)
	}
	return gt[1], math.Abs(gt[5]), nil
}

// GetImageBBox returns the bounding box as [minX, maxX, minY, maxY].
func GetImageBBox(path string) ([4]float64, error) {
	EnsureGDALRegistered()
	var bbox [4]float64
	ds, err := godal.Open(path)
	if err != nil {
		return bbox, errors.NewRasterError("GetImageBBox", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return bbox, errors.NewRasterError("GetImageBBox", path, err)
	}
	minX := gt[0]
	maxY := gt[3]
	maxX := minX + float64(st.SizeX)*gt[1]
	minY := maxY + float64(st.SizeY)*gt[5]
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return [4]float64{minX, maxX, minY, maxY}, nil
}

// GetWKTProjFromImage returns the image projection as WKT.
func GetWKTProjFromImage(path string) (string, error) {
	EnsureGDALRegistered()
	ds, err := godal.Open(path)
	if err != nil {
		return "", errors.NewRasterError("GetWKTProjFromImage", path, err)
	}
	defer ds.Close()
	return ds.Projection(), nil
}

var epsgRe = regexp.MustCompile(`AUTHORITY\["EPSG","(\d+)"\]\]$`)

// GetEPSGCode extracts the EPSG code of the image projection, or zero
// when the projection carries no EPSG authority.
func GetEPSGCode(path string) (int, error) {
	wkt, err := GetWKTProjFromImage(path)
	if err != nil {
		return 0, err
	}
	m := epsgRe.FindStringSubmatch(wkt)
	if m == nil {
		return 0, nil
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, errors.Wrap(err, "imageutils: malformed EPSG authority")
	}
	return code, nil
}

// GetImageNoDataValue returns the no-data value of a band, if set.
func GetImageNoDataValue(path string, band int) (float64, bool, error) {
	EnsureGDALRegistered()
	ds, err := godal.Open(path)
	if err != nil {
		return 0, false, errors.NewRasterError("GetImageNoDataValue", path, err)
	}
	defer ds.Close()
	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return 0, false, errors.NewRasterError("GetImageNoDataValue", path,
			fmt.Errorf("band %d out of range 1..%d", band, len(bands)))
	}
	nd, ok := bands[band-1].NoData()
	return nd, ok, nil
}

// SetImageNoDataValue sets the no-data value on every band.
func SetImageNoDataValue(path string, noData float64) error {
	EnsureGDALRegistered()
	ds, err := godal.Open(path, godal.Update())
	if err != nil {
		return errors.NewRasterError("SetImageNoDataValue", path, err)
	}
	defer ds.Close()
	for _, b := range ds.Bands() {
		if err := b.SetNoData(noData); err != nil {
			return errors.NewRasterError("SetImageNoDataValue", path, err)
		}
	}
	return ds.Close()
}

// DataTypeFromString maps a GDAL type name to the godal data type.
func DataTypeFromString(name string) (godal.DataType, error) {
	switch name {
	case "Byte", "byte", "uint8":
		return godal.Byte, nil
	case "UInt16", "uint16":
		return godal.UInt16, nil
	case "Int16", "int16":
		return godal.Int16, nil
	case "UInt32", "uint32":
		return godal.UInt32, nil
	case "Int32", "int32":
		return godal.Int32, nil
	case "Float32", "float32":
		return godal.Float32, nil
	case "Float64", "float64":
		return godal.Float64, nil
	default:
		return godal.Unknown, errors.Newf("imageutils: unknown data type %q", name)
	}
}

// CreateCopyImage creates a blank image with the grid, projection and
// extent of an existing one, filled with initValue.
func CreateCopyImage(inPath, outPath string, nBands int, initValue float64, format string, dtype godal.DataType) error {
	EnsureGDALRegistered()
	src, err := godal.Open(inPath)
	if err != nil {
		return errors.NewRasterError("CreateCopyImage", inPath, err)
	}
	defer src.Close()

	st := src.Structure()
	var opts []string
	if format == "GTiff" {
		opts = []string{"TILED=YES", "COMPRESS=LZW"}
	}
	out, err := godal.Create(godal.DriverName(format), outPath, nBands, dtype, st.SizeX, st.SizeY,
		godal.CreationOption(opts...))
	if err != nil {
		return errors.NewRasterError("CreateCopyImage", outPath, err)
	}
	defer out.Close()

	if gt, gtErr := src.GeoTransform(); gtErr == nil {
		if err := out.SetGeoTransform(gt); err != nil {
			return errors.NewRasterError("CreateCopyImage", outPath, err)
		}
	}
	if sr := src.SpatialRef(); sr != nil {
		if err := out.SetSpatialRef(sr); err != nil {
			return errors.NewRasterError("CreateCopyImage", outPath, err)
		}
	}

	if initValue != 0 {
		buf := make([]float64, st.SizeX)
		for i := range buf {
			buf[i] = initValue
		}
		for _, b := range out.Bands() {
			for row := 0; row < st.SizeY; row++ {
				if err := b.Write(0, row, buf, st.SizeX, 1); err != nil {
					return errors.NewRasterError("CreateCopyImage", outPath, err)
				}
			}
		}
	}
	return out.Close()
}

// GenValidMask writes a byte mask that is one where every band of every
// input holds a value different from noData.
func GenValidMask(ctx context.Context, inputs []string, outPath, format string, noData float64) error {
	ins := make([]applier.Input, len(inputs))
	for i, p := range inputs {
		ins[i] = applier.Input{Path: p}
	}

	controls := applier.NewControls()
	controls.Format = format
	controls.OutDataType = godal.Byte

	return applier.Apply(ctx, ins, outPath, 1, controls, func(in *applier.BlockInput, out *applier.BlockOutput) error {
		mask := out.Bands[0]
		for p := range mask {
			valid := 1.0
			for _, band := range in.Bands {
				if band[p] == noData || math.IsNaN(band[p]) {
					valid = 0
					break
				}
			}
			mask[p] = valid
		}
		return nil
	})
}

// StackImageBands builds a single image from the selected bands of the
// inputs, in order.
func StackImageBands(ctx context.Context, inputs []ImageBandInfo, outPath, format string, dtype godal.DataType, noData float64) error {
	ins := make([]applier.Input, len(inputs))
	nOut := 0
	for i, info := range inputs {
		ins[i] = applier.Input{Path: info.FileName, Bands: info.Bands}
		if info.Bands != nil {
			nOut += len(info.Bands)
		} else {
			n, err := GetImageBandCount(info.FileName)
			if err != nil {
				return err
			}
			nOut += n
		}
	}

	controls := applier.NewControls()
	controls.Format = format
	controls.OutDataType = dtype
	controls.OutNoData = &noData

	return applier.Apply(ctx, ins, outPath, nOut, controls, func(in *applier.BlockInput, out *applier.BlockOutput) error {
		for b := range in.Bands {
			copy(out.Bands[b], in.Bands[b])
		}
		return nil
	})
}

// CreateRandomIntImage creates an image filled with uniform random
// integers in [minVal, maxVal), useful for stratified sampling.
func CreateRandomIntImage(templatePath, outPath, format string, minVal, maxVal int, seed int64) error {
	EnsureGDALRegistered()
	if maxVal <= minVal {
		return errors.NewValueError("CreateRandomIntImage", "empty value range")
	}
	if err := CreateCopyImage(templatePath, outPath, 1, 0, format, godal.Int32); err != nil {
		return err
	}

	ds, err := godal.Open(outPath, godal.Update())
	if err != nil {
		return errors.NewRasterError("CreateRandomIntImage", outPath, err)
	}
	defer ds.Close()

	st := ds.Structure()
	rng := rand.New(rand.NewSource(seed))
	band := ds.Bands()[0]
	row := make([]int32, st.SizeX)
	for y := 0; y < st.SizeY; y++ {
		for i := range row {
			row[i] = int32(minVal + rng.Intn(maxVal-minVal))
		}
		if err := band.Write(0, y, row, st.SizeX, 1); err != nil {
			return errors.NewRasterError("CreateRandomIntImage", outPath, err)
		}
	}
	return ds.Close()
}

// overviewLevels used when building pyramids.
var overviewLevels = []int{4, 8, 16, 32, 64, 128}

// PopImageStats computes per-band statistics, stores them as
// STATISTICS_* metadata, and optionally builds overview pyramids.
func PopImageStats(ctx context.Context, path string, useNoData bool, noData float64, buildOverviews bool) error {
	EnsureGDALRegistered()
	logger := log.GetLoggerWithName("imageutils.stats")

	ds, err := godal.Open(path, godal.Update())
	if err != nil {
		return errors.NewRasterError("PopImageStats", path, err)
	}
	defer ds.Close()

	st := ds.Structure()
	for bi, band := range ds.Bands() {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "imageutils: statistics cancelled")
		default:
		}

		stats, err := computeBandStats(band, st.SizeX, st.SizeY, useNoData, noData)
		if err != nil {
			return errors.NewRasterError("PopImageStats", path, err)
		}
		if stats.count == 0 {
			logger.Warn("Band holds no valid pixels",
				log.RasterFileKey, path,
				log.RasterBandKey, bi+1,
			)
			continue
		}

		md := map[string]string{
			"STATISTICS_MINIMUM": formatStat(stats.min),
			"STATISTICS_MAXIMUM": formatStat(stats.max),
			"STATISTICS_MEAN":    formatStat(stats.mean),
			"STATISTICS_STDDEV":  formatStat(stats.stdDev),
		}
		for k, v := range md {
			if err := band.SetMetadata(k, v); err != nil {
				return errors.NewRasterError("PopImageStats", path, err)
			}
		}
	}

	if buildOverviews {
		if err := ds.BuildOverviews(godal.Levels(overviewLevels...)); err != nil {
			return errors.NewRasterError("PopImageStats", path, err)
		}
	}
	return ds.Close()
}

type bandStats struct {
	min, max, mean, stdDev float64
	count                  int64
}

// computeBandStats streams the band row blocks through a running
// mean/variance (Welford) accumulator.
func computeBandStats(band godal.Band, sizeX, sizeY int, useNoData bool, noData float64) (bandStats, error) {
	stats := bandStats{min: math.Inf(1), max: math.Inf(-1)}
	var m2 float64

	const rowsPerRead = 256
	buf := make([]float64, sizeX*rowsPerRead)
	for y := 0; y < sizeY; y += rowsPerRead {
		h := minInt(rowsPerRead, sizeY-y)
		chunk := buf[:sizeX*h]
		if err := band.Read(0, y, chunk, sizeX, h); err != nil {
			return stats, err
		}
		for _, v := range chunk {
			if math.IsNaN(v) || (useNoData && v == noData) {
				continue
			}
			stats.count++
			if v < stats.min {
				stats.min = v
			}
			if v > stats.max {
				stats.max = v
			}
			delta := v - stats.mean
			stats.mean += delta / float64(stats.count)
			m2 += delta * (v - stats.mean)
		}
	}
	if stats.count > 0 {
		stats.stdDev = math.Sqrt(m2 / float64(stats.count))
	}
	return stats, nil
}

func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
