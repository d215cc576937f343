package classification

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/hdf5"

	"github.com/dotysan/rsgislib/pkg/errors"
	"github.com/dotysan/rsgislib/pkg/log"
)

// samplesDataset is the HDF5 path sample values are staged under. Rows
// are samples, columns are image band values stored as float32.
const samplesDataset = "DATA/DATA"

// ReadSamples loads a staged sample file into a dense matrix.
func ReadSamples(path string) (*mat.Dense, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, errors.NewFileIOError("ReadSamples", path, err)
	}
	defer f.Close()

	dset, err := f.OpenDataset(samplesDataset)
	if err != nil {
		return nil, errors.NewFileIOError("ReadSamples", path,
			errors.Wrapf(err, "dataset %s not found", samplesDataset))
	}
	defer dset.Close()

	space := dset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return nil, errors.NewFileIOError("ReadSamples", path, err)
	}
	if len(dims) != 2 {
		return nil, errors.Newf("classification: %s: expected 2D samples, got %d dimensions", path, len(dims))
	}

	rows, cols := int(dims[0]), int(dims[1])
	if rows == 0 || cols == 0 {
		return nil, errors.Wrapf(errors.ErrEmptyData, "classification: %s holds no samples", path)
	}

	raw := make([]float32, rows*cols)
	if err := dset.Read(&raw); err != nil {
		return nil, errors.NewFileIOError("ReadSamples", path, err)
	}

	data := make([]float64, len(raw))
	for i, v := range raw {
		data[i] = float64(v)
	}
	return mat.NewDense(rows, cols, data), nil
}

// sampleChunkRows caps the row extent of one HDF5 chunk.
const sampleChunkRows = 1000

// chunkRowsFor picks the chunk row extent for a dataset. Chunk
// dimensions must not exceed the dataset dimensions.
func chunkRowsFor(rows int) int {
	if rows > sampleChunkRows {
		return sampleChunkRows
	}
	return rows
}

// WriteSamples stages a sample matrix to an HDF5 file, truncating any
// existing file. Values are narrowed to float32 and stored chunked with
// deflate compression.
func WriteSamples(path string, samples *mat.Dense) error {
	rows, cols := samples.Dims()
	if rows == 0 || cols == 0 {
		return errors.Wrap(errors.ErrEmptyData, "classification: nothing to write")
	}

	f, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return errors.NewFileIOError("WriteSamples", path, err)
	}
	defer f.Close()

	group, err := f.CreateGroup("DATA")
	if err != nil {
		return errors.NewFileIOError("WriteSamples", path, err)
	}
	defer group.Close()

	dims := []uint{uint(rows), uint(cols)}
	space, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		return errors.NewFileIOError("WriteSamples", path, err)
	}
	defer space.Close()

	dcpl, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		return errors.NewFileIOError("WriteSamples", path, err)
	}
	defer dcpl.Close()
	if err := dcpl.SetChunk([]uint{uint(chunkRowsFor(rows)), uint(cols)}); err != nil {
		return errors.NewFileIOError("WriteSamples", path, err)
	}
	if err := dcpl.SetDeflate(hdf5.DefaultCompression); err != nil {
		return errors.NewFileIOError("WriteSamples", path, err)
	}

	dset, err := group.CreateDatasetWith("DATA", hdf5.T_NATIVE_FLOAT, space, dcpl)
	if err != nil {
		return errors.NewFileIOError("WriteSamples", path, err)
	}
	defer dset.Close()

	raw := make([]float32, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			raw[i*cols+j] = float32(samples.At(i, j))
		}
	}
	if err := dset.Write(&raw); err != nil {
		return errors.NewFileIOError("WriteSamples", path, err)
	}
	return nil
}

// ConcatSamples merges several staged sample files into one. All inputs
// must share the same number of columns.
func ConcatSamples(inputs []string, output string) error {
	if len(inputs) == 0 {
		return errors.NewValueError("ConcatSamples", "no input files")
	}

	merged, err := readAndStack(inputs)
	if err != nil {
		return err
	}

	rows, _ := merged.Dims()
	log.GetLoggerWithName("classification.samples").Info("Merged sample files",
		"inputs", len(inputs),
		log.SamplesKey, rows,
		log.H5FileKey, output,
	)
	return WriteSamples(output, merged)
}

// readAndStack loads every input and stacks the rows.
func readAndStack(inputs []string) (*mat.Dense, error) {
	var parts []*mat.Dense
	totalRows, cols := 0, 0
	for _, path := range inputs {
		m, err := ReadSamples(path)
		if err != nil {
			return nil, err
		}
		r, c := m.Dims()
		if cols == 0 {
			cols = c
		} else if c != cols {
			return nil, errors.NewDimensionError("ConcatSamples", cols, c, 1)
		}
		totalRows += r
		parts = append(parts, m)
	}

	merged := mat.NewDense(totalRows, cols, nil)
	row := 0
	for _, m := range parts {
		r, _ := m.Dims()
		for i := 0; i < r; i++ {
			merged.SetRow(row, m.RawRowView(i))
			row++
		}
	}
	return merged, nil
}

// SplitSamples extracts nExtract random rows from a staged sample file
// into extractOut and writes the remaining rows to remainOut.
func SplitSamples(input, remainOut, extractOut string, nExtract int, seed int64) error {
	samples, err := ReadSamples(input)
	if err != nil {
		return err
	}
	rows, cols := samples.Dims()
	if nExtract <= 0 || nExtract >= rows {
		return errors.Newf(
			"classification: cannot extract %d samples from %d available", nExtract, rows)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(rows)

	extract := mat.NewDense(nExtract, cols, nil)
	remain := mat.NewDense(rows-nExtract, cols, nil)
	for i, src := range perm {
		if i < nExtract {
			extract.SetRow(i, samples.RawRowView(src))
		} else {
			remain.SetRow(i-nExtract, samples.RawRowView(src))
		}
	}

	if err := WriteSamples(extractOut, extract); err != nil {
		return err
	}
	return WriteSamples(remainOut, remain)
}

// SplitTrainValidTest splits a staged sample file into train,
// validation and test files. Test and validation rows are drawn first;
// whatever remains becomes the training set.
func SplitTrainValidTest(input, trainOut, validOut, testOut string, nValid, nTest int, seed int64) error {
	samples, err := ReadSamples(input)
	if err != nil {
		return err
	}
	rows, cols := samples.Dims()
	if nValid+nTest >= rows {
		return errors.Newf(
			"classification: %d validation + %d test samples exceed the %d available",
			nValid, nTest, rows)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(rows)

	take := func(offset, n int) *mat.Dense {
		out := mat.NewDense(n, cols, nil)
		for i := 0; i < n; i++ {
			out.SetRow(i, samples.RawRowView(perm[offset+i]))
		}
		return out
	}

	if err := WriteSamples(testOut, take(0, nTest)); err != nil {
		return err
	}
	if err := WriteSamples(validOut, take(nTest, nValid)); err != nil {
		return err
	}
	return WriteSamples(trainOut, take(nTest+nValid, rows-nTest-nValid))
}

// buildLabelled stacks per-class sample matrices into one design matrix
// with a label column vector.
func buildLabelled(parts []*mat.Dense, labels []float64) (*mat.Dense, *mat.Dense, error) {
	if len(parts) != len(labels) {
		return nil, nil, errors.NewDimensionError("buildLabelled", len(parts), len(labels), 0)
	}

	totalRows, cols := 0, 0
	for _, m := range parts {
		r, c := m.Dims()
		if cols == 0 {
			cols = c
		} else if c != cols {
			return nil, nil, errors.NewDimensionError("buildLabelled", cols, c, 1)
		}
		totalRows += r
	}

	X := mat.NewDense(totalRows, cols, nil)
	y := mat.NewDense(totalRows, 1, nil)
	row := 0
	for k, m := range parts {
		r, _ := m.Dims()
		for i := 0; i < r; i++ {
			X.SetRow(row, m.RawRowView(i))
			y.Set(row, 0, labels[k])
			row++
		}
	}
	return X, y, nil
}

// loadLabelled reads per-class sample files and stacks them with their
// labels.
func loadLabelled(paths []string, labels []float64) (*mat.Dense, *mat.Dense, error) {
	parts := make([]*mat.Dense, 0, len(paths))
	for _, path := range paths {
		m, err := ReadSamples(path)
		if err != nil {
			return nil, nil, err
		}
		parts = append(parts, m)
	}
	return buildLabelled(parts, labels)
}
