// Package vectorutils reads vector layers through GDAL and burns them
// into rasters. Geometries come back as orb types via WKB so the pure
// operations in vectorgeoms can work on them.
package vectorutils

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/dotysan/rsgislib/imageutils"
	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

var registerOnce sync.Once

func ensureGDAL() {
	registerOnce.Do(godal.RegisterAll)
}

// openLayer opens a vector dataset and locates the named layer. An
// empty name selects the first layer.
func openLayer(path, layerName string) (*godal.Dataset, godal.Layer, error) {
	ensureGDAL()
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, godal.Layer{}, errors.NewFileIOError("openLayer", path, err)
	}

	layers := ds.Layers()
	if len(layers) == 0 {
		ds.Close()
		return nil, godal.Layer{}, errors.Newf("vectorutils: %s holds no layers", path)
	}
	if layerName == "" {
		return ds, layers[0], nil
	}
	for _, lyr := range layers {
		if lyr.Name() == layerName {
			return ds, lyr, nil
		}
	}
	ds.Close()
	return nil, godal.Layer{}, errors.Newf("vectorutils: layer %q not found in %s", layerName, path)
}

// GetVecFeatCount returns the number of features in a layer.
func GetVecFeatCount(path, layerName string) (int64, error) {
	ds, lyr, err := openLayer(path, layerName)
	if err != nil {
		return 0, err
	}
	defer ds.Close()

	var count int64
	lyr.ResetReading()
	for f := lyr.NextFeature(); f != nil; f = lyr.NextFeature() {
		count++
		f.Close()
	}
	return count, nil
}

// VecLyrToGeoms decodes every feature geometry of a layer.
func VecLyrToGeoms(path, layerName string) ([]orb.Geometry, error) {
	ds, lyr, err := openLayer(path, layerName)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	var geoms []orb.Geometry
	lyr.ResetReading()
	for f := lyr.NextFeature(); f != nil; f = lyr.NextFeature() {
		g := f.Geometry()
		if g == nil {
			f.Close()
			continue
		}
		raw, err := g.WKB()
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, "vectorutils: geometry export failed")
		}
		decoded, err := wkb.Unmarshal(raw)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, "vectorutils: geometry decode failed")
		}
		geoms = append(geoms, decoded)
		f.Close()
	}

	if len(geoms) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "vectorutils: %s has no geometries", path)
	}
	return geoms, nil
}

// GetVecLayerExtent returns the extent of every feature geometry of a
// layer as [minX, maxX, minY, maxY].
func GetVecLayerExtent(path, layerName string) ([4]float64, error) {
	geoms, err := VecLyrToGeoms(path, layerName)
	if err != nil {
		return [4]float64{}, err
	}

	bound := geoms[0].Bound()
	for _, g := range geoms[1:] {
		bound = bound.Union(g.Bound())
	}
	return [4]float64{bound.Min[0], bound.Max[0], bound.Min[1], bound.Max[1]}, nil
}

// ReadVecColumn returns the value of one attribute column for every
// feature, rendered as strings. Unset fields come back empty.
func ReadVecColumn(path, layerName, column string) ([]string, error) {
	ds, lyr, err := openLayer(path, layerName)
	if err != nil {
		return nil, err
	}
	defer ds.Close()

	var values []string
	lyr.ResetReading()
	for f := lyr.NextFeature(); f != nil; f = lyr.NextFeature() {
		fld, ok := f.Fields()[column]
		if !ok {
			f.Close()
			return nil, errors.Newf("vectorutils: column %q not found in layer %s", column, lyr.Name())
		}
		values = append(values, fieldString(fld))
		f.Close()
	}

	if len(values) == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "vectorutils: %s has no features", path)
	}
	return values, nil
}

func fieldString(fld godal.Field) string {
	switch fld.Type() {
	case godal.FTInt, godal.FTInt64:
		return strconv.FormatInt(fld.Int(), 10)
	case godal.FTReal:
		return strconv.FormatFloat(fld.Float(), 'f', -1, 64)
	default:
		return fld.String()
	}
}

// RasteriseOpts configures RasteriseVecLyr.
type RasteriseOpts struct {
	// BurnValue written where features cover a pixel. Ignored when
	// Attribute is set.
	BurnValue float64
	// Attribute names a feature field whose value is burned instead of
	// BurnValue.
	Attribute string
	// Format is the output GDAL driver. Defaults to GTiff.
	Format string
	// DataType name of the output band. Defaults to Byte.
	DataType string
	// AllTouched burns every pixel touched by a geometry, not only
	// those whose centre is covered.
	AllTouched bool
}

// RasteriseVecLyr burns a vector layer onto the pixel grid of a
// template image.
func RasteriseVecLyr(vecFile, layerName, templateImg, outImg string, opts RasteriseOpts) error {
	if opts.Format == "" {
		opts.Format = "GTiff"
	}
	if opts.DataType == "" {
		opts.DataType = "Byte"
	}

	bbox, err := imageutils.GetImageBBox(templateImg)
	if err != nil {
		return err
	}
	xRes, yRes, err := imageutils.GetImageRes(templateImg)
	if err != nil {
		return err
	}

	ds, lyr, err := openLayer(vecFile, layerName)
	if err != nil {
		return err
	}
	defer ds.Close()

	switches := []string{
		"-l", lyr.Name(),
		"-of", opts.Format,
		"-ot", opts.DataType,
		"-te", formatFloat(bbox[0]), formatFloat(bbox[2]), formatFloat(bbox[1]), formatFloat(bbox[3]),
		"-tr", formatFloat(xRes), formatFloat(yRes),
		"-init", "0",
	}
	if opts.Attribute != "" {
		switches = append(switches, "-a", opts.Attribute)
	} else {
		switches = append(switches, "-burn", formatFloat(opts.BurnValue))
	}
	if opts.AllTouched {
		switches = append(switches, "-at")
	}
	if opts.Format == "GTiff" {
		switches = append(switches, "-co", "TILED=YES", "-co", "COMPRESS=LZW")
	}

	out, err := ds.Rasterize(outImg, switches)
	if err != nil {
		return errors.NewRasterError("RasteriseVecLyr", outImg,
			fmt.Errorf("burning %s: %w", vecFile, err))
	}
	if err := out.Close(); err != nil {
		return errors.NewRasterError("RasteriseVecLyr", outImg, err)
	}

	log.GetLoggerWithName("vectorutils.rasterise").Info("Vector layer rasterised",
		log.FileKey, vecFile,
		log.RasterFileKey, outImg,
	)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
