// Package classification trains gradient boosted tree classifiers on
// extracted image samples and applies them to rasters. Samples are
// staged in HDF5 files, hyperparameters are found with the optimisers
// in classification/hyperopt, and trained models are applied tile by
// tile through imageutils/applier.
package classification

import (
	"sort"

	"github.com/dotysan/rsgislib/pkg/errors"
)

// ClassInfo describes one class of a multiclass run: where its samples
// live, the consecutive ID used during training, the ID written to the
// output raster, and the colour used in the output colour table.
type ClassInfo struct {
	Name string `json:"name"`
	// ID is the training label. IDs must be consecutive starting at 0.
	ID int `json:"id"`
	// OutID is the pixel value written for this class. Zero is reserved
	// for no-data, so OutID must be >= 1.
	OutID int `json:"out_id"`

	TrainFileH5 string `json:"train_file_h5"`
	ValidFileH5 string `json:"valid_file_h5"`
	TestFileH5  string `json:"test_file_h5,omitempty"`

	Red   int `json:"red"`
	Green int `json:"green"`
	Blue  int `json:"blue"`
}

// SortClassInfo returns the classes ordered by training ID after
// checking that the IDs are consecutive from zero and the output IDs
// are unique and positive.
func SortClassInfo(classes map[string]ClassInfo) ([]ClassInfo, error) {
	if len(classes) < 2 {
		return nil, errors.NewValueError("SortClassInfo", "at least two classes required")
	}

	ordered := make([]ClassInfo, 0, len(classes))
	for name, info := range classes {
		if info.Name == "" {
			info.Name = name
		}
		ordered = append(ordered, info)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	outIDs := make(map[int]string, len(ordered))
	for i, info := range ordered {
		if info.ID != i {
			return nil, errors.Newf(
				"classification: class IDs must be consecutive from 0; class %q has ID %d, expected %d",
				info.Name, info.ID, i)
		}
		if info.OutID < 1 {
			return nil, errors.Newf(
				"classification: class %q output ID must be >= 1, got %d", info.Name, info.OutID)
		}
		if other, dup := outIDs[info.OutID]; dup {
			return nil, errors.Newf(
				"classification: classes %q and %q share output ID %d", other, info.Name, info.OutID)
		}
		outIDs[info.OutID] = info.Name
	}
	return ordered, nil
}
