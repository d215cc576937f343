// Package rastergis manages attribute data attached to thematic
// rasters: colour tables, class names and per-value attribute columns.
// Columns are persisted as JSON in band metadata so they survive any
// GDAL format, with the colour table stored natively.
package rastergis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

var registerOnce sync.Once

func ensureGDAL() {
	registerOnce.Do(godal.RegisterAll)
}

// ratColumnPrefix namespaces attribute columns in band metadata.
const ratColumnPrefix = "RAT_"

// ClassColour binds a pixel value to a class name and colour.
type ClassColour struct {
	Value int    `json:"value"`
	Name  string `json:"name"`
	Red   int    `json:"red"`
	Green int    `json:"green"`
	Blue  int    `json:"blue"`
}

// SetClassNamesColours writes a colour table and a class-name column
// onto a thematic band. Pixel value zero stays transparent.
func SetClassNamesColours(path string, band int, classes []ClassColour) error {
	ensureGDAL()
	ds, err := godal.Open(path, godal.Update())
	if err != nil {
		return errors.NewRasterError("SetClassNamesColours", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return errors.Newf("rastergis: band %d out of range 1..%d", band, len(bands))
	}
	b := bands[band-1]

	entries, err := ColourTableFromClasses(classes)
	if err != nil {
		return err
	}
	names := make([]string, len(entries))
	for _, c := range classes {
		names[c.Value] = c.Name
	}

	ct := godal.ColorTable{
		PaletteInterp: godal.RGBPalette,
		Entries:       entries,
	}
	if err := b.SetColorTable(ct); err != nil {
		return errors.NewRasterError("SetClassNamesColours", path, err)
	}
	if err := writeColumn(b, "ClassName", names); err != nil {
		return errors.NewRasterError("SetClassNamesColours", path, err)
	}
	return ds.Close()
}

// RandomColourTable assigns a random colour to every pixel value from 1
// to maxVal, keeping zero transparent.
func RandomColourTable(path string, band, maxVal int, seed int64) error {
	ensureGDAL()
	ds, err := godal.Open(path, godal.Update())
	if err != nil {
		return errors.NewRasterError("RandomColourTable", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return errors.Newf("rastergis: band %d out of range 1..%d", band, len(bands))
	}

	rng := rand.New(rand.NewSource(seed))
	entries := make([][4]int16, maxVal+1)
	for v := 1; v <= maxVal; v++ {
		entries[v] = [4]int16{
			int16(rng.Intn(256)),
			int16(rng.Intn(256)),
			int16(rng.Intn(256)),
			255,
		}
	}

	ct := godal.ColorTable{
		PaletteInterp: godal.RGBPalette,
		Entries:       entries,
	}
	if err := bands[band-1].SetColorTable(ct); err != nil {
		return errors.NewRasterError("RandomColourTable", path, err)
	}
	return ds.Close()
}

// WriteRATColumn stores a string column indexed by pixel value.
func WriteRATColumn(path string, band int, column string, values []string) error {
	ensureGDAL()
	ds, err := godal.Open(path, godal.Update())
	if err != nil {
		return errors.NewRasterError("WriteRATColumn", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return errors.Newf("rastergis: band %d out of range 1..%d", band, len(bands))
	}
	if err := writeColumn(bands[band-1], column, values); err != nil {
		return errors.NewRasterError("WriteRATColumn", path, err)
	}
	return ds.Close()
}

// ReadRATColumn loads a string column previously written with
// WriteRATColumn or SetClassNamesColours.
func ReadRATColumn(path string, band int, column string) ([]string, error) {
	ensureGDAL()
	ds, err := godal.Open(path)
	if err != nil {
		return nil, errors.NewRasterError("ReadRATColumn", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return nil, errors.Newf("rastergis: band %d out of range 1..%d", band, len(bands))
	}

	raw := bands[band-1].Metadata(ratColumnPrefix + column)
	if raw == "" {
		return nil, errors.Newf("rastergis: %s: column %q not found", path, column)
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, errors.Wrapf(err, "rastergis: column %q is corrupt", column)
	}
	return values, nil
}

// WriteRATColumnInt stores an integer column indexed by pixel value.
func WriteRATColumnInt(path string, band int, column string, values []int64) error {
	ensureGDAL()
	ds, err := godal.Open(path, godal.Update())
	if err != nil {
		return errors.NewRasterError("WriteRATColumnInt", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return errors.Newf("rastergis: band %d out of range 1..%d", band, len(bands))
	}
	if err := writeIntColumn(bands[band-1], column, values); err != nil {
		return errors.NewRasterError("WriteRATColumnInt", path, err)
	}
	return ds.Close()
}

// ReadRATColumnInt loads an integer column previously written with
// WriteRATColumnInt or PopRATImageStats.
func ReadRATColumnInt(path string, band int, column string) ([]int64, error) {
	ensureGDAL()
	ds, err := godal.Open(path)
	if err != nil {
		return nil, errors.NewRasterError("ReadRATColumnInt", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return nil, errors.Newf("rastergis: band %d out of range 1..%d", band, len(bands))
	}

	raw := bands[band-1].Metadata(ratColumnPrefix + column)
	if raw == "" {
		return nil, errors.Newf("rastergis: %s: column %q not found", path, column)
	}
	var values []int64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, errors.Wrapf(err, "rastergis: column %q is corrupt", column)
	}
	return values, nil
}

// GetRATLength returns the number of rows of the attribute table,
// taken from the longest stored column.
func GetRATLength(path string, band int) (int, error) {
	ensureGDAL()
	ds, err := godal.Open(path)
	if err != nil {
		return 0, errors.NewRasterError("GetRATLength", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return 0, errors.Newf("rastergis: band %d out of range 1..%d", band, len(bands))
	}

	length := 0
	for key, raw := range bands[band-1].Metadatas() {
		if len(key) <= len(ratColumnPrefix) || key[:len(ratColumnPrefix)] != ratColumnPrefix {
			continue
		}
		n, err := columnLength(key[len(ratColumnPrefix):], raw)
		if err != nil {
			return 0, err
		}
		if n > length {
			length = n
		}
	}
	return length, nil
}

// ColourTableFromClasses builds the colour table entries for a class
// set without touching any raster. Entry zero stays transparent.
func ColourTableFromClasses(classes []ClassColour) ([][4]int16, error) {
	maxVal := 0
	for _, c := range classes {
		if c.Value < 0 {
			return nil, errors.Newf("rastergis: class %q has negative pixel value %d", c.Name, c.Value)
		}
		if c.Value > maxVal {
			maxVal = c.Value
		}
	}
	entries := make([][4]int16, maxVal+1)
	for _, c := range classes {
		entries[c.Value] = [4]int16{int16(c.Red), int16(c.Green), int16(c.Blue), 255}
	}
	return entries, nil
}

func writeColumn(b godal.Band, column string, values []string) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return b.SetMetadata(ratColumnPrefix+column, string(data))
}

// columnLength counts the rows of a stored column. Columns may hold
// strings or integers; only the row count matters here.
func columnLength(column, raw string) (int, error) {
	var values []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return 0, errors.Wrapf(err, "rastergis: column %q is corrupt", column)
	}
	return len(values), nil
}

func writeIntColumn(b godal.Band, column string, values []int64) error {
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return b.SetMetadata(ratColumnPrefix+column, string(data))
}

// PopRATImageStats builds the histogram of a thematic band, stores it
// as a column, and gives every observed value a random colour when none
// is set.
func PopRATImageStats(ctx context.Context, path string, band int, addColours bool, seed int64) error {
	ensureGDAL()
	logger := log.GetLoggerWithName("rastergis.stats")

	ds, err := godal.Open(path, godal.Update())
	if err != nil {
		return errors.NewRasterError("PopRATImageStats", path, err)
	}
	defer ds.Close()

	bands := ds.Bands()
	if band < 1 || band > len(bands) {
		return errors.Newf("rastergis: band %d out of range 1..%d", band, len(bands))
	}
	b := bands[band-1]
	st := ds.Structure()

	counts := make(map[int64]int64)
	const rowsPerRead = 256
	buf := make([]float64, st.SizeX*rowsPerRead)
	for y := 0; y < st.SizeY; y += rowsPerRead {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "rastergis: histogram cancelled")
		default:
		}

		h := st.SizeY - y
		if h > rowsPerRead {
			h = rowsPerRead
		}
		chunk := buf[:st.SizeX*h]
		if err := b.Read(0, y, chunk, st.SizeX, h); err != nil {
			return errors.NewRasterError("PopRATImageStats", path, err)
		}
		for _, v := range chunk {
			counts[int64(v)]++
		}
	}

	maxVal := int64(0)
	for v := range counts {
		if v > maxVal {
			maxVal = v
		}
	}
	histogram := make([]int64, maxVal+1)
	for v, n := range counts {
		if v >= 0 {
			histogram[v] = n
		}
	}
	if err := writeIntColumn(b, "Histogram", histogram); err != nil {
		return errors.NewRasterError("PopRATImageStats", path, err)
	}
	if err := ds.Close(); err != nil {
		return errors.NewRasterError("PopRATImageStats", path, err)
	}

	logger.Info("Thematic statistics populated",
		log.RasterFileKey, path,
		"values", len(counts),
	)

	if addColours {
		return RandomColourTable(path, band, int(maxVal), seed)
	}
	return nil
}
