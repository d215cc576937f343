// Package applier runs a function over co-registered rasters tile by
// tile. Inputs are read window by window into float64 buffers, the
// block function fills the output buffers, and the result is written to
// a new raster carrying the first input's georeferencing.
package applier

import (
	"context"
	"fmt"

	"github.com/airbusgeo/godal"

	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

// Input selects bands from one raster. A nil Bands slice selects every
// band, in order. Band numbers are 1-based.
type Input struct {
	Path  string
	Bands []int
}

// BlockInfo locates the current window within the image grid.
type BlockInfo struct {
	// X0, Y0 are the pixel offsets of the window's top-left corner.
	X0, Y0 int
	// W, H are the window dimensions. Edge windows are smaller than the
	// configured size.
	W, H int
	// Index and Total count windows across the whole image.
	Index, Total int
}

// BlockInput carries the pixel data of one window. Bands holds one
// flattened W*H buffer per selected input band, ordered by input then
// band.
type BlockInput struct {
	Info  BlockInfo
	Bands [][]float64
}

// BlockOutput receives the result of one window. Bands is preallocated
// with one W*H buffer per output band.
type BlockOutput struct {
	Bands [][]float64
}

// BlockFunc transforms one window of input pixels into output pixels.
type BlockFunc func(in *BlockInput, out *BlockOutput) error

// Controls configures how Apply walks and writes the image.
type Controls struct {
	// WindowXSize and WindowYSize set the processing window. Defaults
	// to 256x256.
	WindowXSize int
	WindowYSize int
	// Format is the GDAL driver name for the output. Defaults to GTiff.
	Format string
	// CreationOptions passed to the output driver. Defaults to a tiled,
	// LZW-compressed layout for GTiff.
	CreationOptions []string
	// OutDataType of the output bands.
	OutDataType godal.DataType
	// OutNoData, when set, is recorded on every output band.
	OutNoData *float64
	// Progress, when set, is called after every window.
	Progress func(done, total int)
}

// NewControls returns controls with the default window and output
// settings.
func NewControls() *Controls {
	return &Controls{
		WindowXSize: 256,
		WindowYSize: 256,
		Format:      "GTiff",
		OutDataType: godal.Float32,
	}
}

func (c *Controls) fillDefaults() {
	if c.WindowXSize <= 0 {
		c.WindowXSize = 256
	}
	if c.WindowYSize <= 0 {
		c.WindowYSize = 256
	}
	if c.Format == "" {
		c.Format = "GTiff"
	}
	if c.CreationOptions == nil && c.Format == "GTiff" {
		c.CreationOptions = []string{"TILED=YES", "COMPRESS=LZW"}
	}
}

// driverByName maps a GDAL driver name onto godal's known drivers.
func driverByName(name string) (godal.DriverName, error) {
	if _, ok := godal.RasterDriver(godal.DriverName(name)); !ok {
		return "", errors.Newf("applier: unknown raster driver %q", name)
	}
	return godal.DriverName(name), nil
}

// Apply runs fn over every window of the inputs and writes an output
// raster with nOutBands bands at outPath. All inputs must share the
// first input's pixel grid.
func Apply(ctx context.Context, inputs []Input, outPath string, nOutBands int, controls *Controls, fn BlockFunc) (err error) {
	defer errors.Recover(&err, "applier.Apply")

	if len(inputs) == 0 {
		return errors.NewValueError("applier.Apply", "no input rasters")
	}
	if nOutBands < 1 {
		return errors.NewValueError("applier.Apply", "at least one output band required")
	}
	if controls == nil {
		controls = NewControls()
	}
	controls.fillDefaults()

	godal.RegisterAll()

	datasets := make([]*godal.Dataset, 0, len(inputs))
	defer func() {
		for _, ds := range datasets {
			ds.Close()
		}
	}()

	var sizeX, sizeY int
	var srcBands []godal.Band
	for i, in := range inputs {
		ds, openErr := godal.Open(in.Path)
		if openErr != nil {
			return errors.NewRasterError("applier.Apply", in.Path, openErr)
		}
		datasets = append(datasets, ds)

		st := ds.Structure()
		if i == 0 {
			sizeX, sizeY = st.SizeX, st.SizeY
		} else if st.SizeX != sizeX || st.SizeY != sizeY {
			return errors.NewRasterError("applier.Apply", in.Path,
				fmt.Errorf("size %dx%d does not match %dx%d", st.SizeX, st.SizeY, sizeX, sizeY))
		}

		all := ds.Bands()
		sel := in.Bands
		if sel == nil {
			for b := 1; b <= st.NBands; b++ {
				sel = append(sel, b)
			}
		}
		for _, b := range sel {
			if b < 1 || b > st.NBands {
				return errors.NewRasterError("applier.Apply", in.Path,
					fmt.Errorf("band %d out of range 1..%d", b, st.NBands))
			}
			srcBands = append(srcBands, all[b-1])
		}
	}

	driver, err := driverByName(controls.Format)
	if err != nil {
		return err
	}
	outDS, err := godal.Create(driver, outPath, nOutBands, controls.OutDataType, sizeX, sizeY,
		godal.CreationOption(controls.CreationOptions...))
	if err != nil {
		return errors.NewRasterError("applier.Apply", outPath, err)
	}
	defer outDS.Close()

	if gt, gtErr := datasets[0].GeoTransform(); gtErr == nil {
		if err := outDS.SetGeoTransform(gt); err != nil {
			return errors.NewRasterError("applier.Apply", outPath, err)
		}
	}
	if sr := datasets[0].SpatialRef(); sr != nil {
		if err := outDS.SetSpatialRef(sr); err != nil {
			return errors.NewRasterError("applier.Apply", outPath, err)
		}
	}
	outBands := outDS.Bands()
	if controls.OutNoData != nil {
		for _, b := range outBands {
			if err := b.SetNoData(*controls.OutNoData); err != nil {
				return errors.NewRasterError("applier.Apply", outPath, err)
			}
		}
	}

	blocksX := (sizeX + controls.WindowXSize - 1) / controls.WindowXSize
	blocksY := (sizeY + controls.WindowYSize - 1) / controls.WindowYSize
	total := blocksX * blocksY

	logger := log.GetLoggerWithName("imageutils.applier")
	logger.Debug("Processing raster",
		log.RasterFileKey, outPath,
		log.BlocksTotalKey, total,
		"bands_in", len(srcBands),
		"bands_out", nOutBands,
	)

	in := &BlockInput{Bands: make([][]float64, len(srcBands))}
	out := &BlockOutput{Bands: make([][]float64, nOutBands)}
	index := 0
	for by := 0; by < blocksY; by++ {
		for bx := 0; bx < blocksX; bx++ {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "applier: processing cancelled")
			default:
			}

			x0 := bx * controls.WindowXSize
			y0 := by * controls.WindowYSize
			w := minInt(controls.WindowXSize, sizeX-x0)
			h := minInt(controls.WindowYSize, sizeY-y0)

			in.Info = BlockInfo{X0: x0, Y0: y0, W: w, H: h, Index: index, Total: total}
			for i, band := range srcBands {
				if cap(in.Bands[i]) < w*h {
					in.Bands[i] = make([]float64, w*h)
				}
				in.Bands[i] = in.Bands[i][:w*h]
				if err := band.Read(x0, y0, in.Bands[i], w, h); err != nil {
					return errors.NewRasterError("applier.Apply", inputs[0].Path, err)
				}
			}
			for i := range out.Bands {
				if cap(out.Bands[i]) < w*h {
					out.Bands[i] = make([]float64, w*h)
				}
				out.Bands[i] = out.Bands[i][:w*h]
				for p := range out.Bands[i] {
					out.Bands[i][p] = 0
				}
			}

			if err := fn(in, out); err != nil {
				return errors.Wrapf(err, "applier: block %d/%d failed", index+1, total)
			}

			for i, band := range outBands {
				if err := band.Write(x0, y0, out.Bands[i], w, h); err != nil {
					return errors.NewRasterError("applier.Apply", outPath, err)
				}
			}

			index++
			if controls.Progress != nil {
				controls.Progress(index, total)
			}
		}
	}

	if err := outDS.Close(); err != nil {
		return errors.NewRasterError("applier.Apply", outPath, err)
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
