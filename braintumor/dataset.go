// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package braintumor

import (
	"context"
	"fmt"
	"image"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gomlx/braintumor/internal/kaggle"
	"github.com/gomlx/braintumor/internal/workerspool"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// KaggleDataset is the reference of the Brain MRI Images for Brain Tumor Detection dataset.
	KaggleDataset = "navoneel/brain-mri-images-for-brain-tumor-detection"

	// DefaultDataDir is the directory created when the Kaggle dataset is unzipped.
	DefaultDataDir = "brain_tumor_dataset"

	// ImageSize is the default height and width images are resized to.
	ImageSize = 28
)

// ClassNames are the display names of the classes, in the order of the sorted class directories
// ("no" and "yes") of the dataset.
var ClassNames = []string{"No Tumor", "Tumor"}

// imageExtensions accepted by LoadImageFolder, all decodable by the imaging package.
var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// Example is one preprocessed image and its label.
type Example struct {
	// Path of the image file.
	Path string

	// Label is the class index, the position of the class directory in sorted order.
	Label int

	// Pixels of the grayscale image, row-major, normalized to [-1, 1].
	Pixels []float32
}

// Download the dataset from Kaggle into the parent directory of dataDir, and unzips it, if dataDir doesn't
// exist yet. It's the equivalent of `kaggle datasets download -d <KaggleDataset> --unzip`.
//
// Credentials are read from kaggleConfigDir (see kaggle.LoadCredentials).
func Download(ctx context.Context, dataDir, kaggleConfigDir string, showProgressBar bool) error {
	dataDir = fsutil.MustReplaceTildeInDir(dataDir)
	exists, err := fsutil.FileExists(dataDir)
	if err != nil {
		return err
	}
	if exists {
		klog.V(1).Infof("dataset found in %q, skipping download", dataDir)
		return nil
	}
	ref, err := kaggle.ParseDatasetRef(KaggleDataset)
	if err != nil {
		return err
	}
	creds, err := kaggle.LoadCredentials(kaggleConfigDir)
	if err != nil {
		return err
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return errors.Wrapf(err, "invalid data directory %q", dataDir)
	}
	client := kaggle.NewClient(creds).WithProgressBar(showProgressBar)
	if err = client.DownloadDataset(ctx, ref, filepath.Dir(absDataDir), absDataDir); err != nil {
		return err
	}
	fmt.Println("Dataset downloaded and unzipped.")
	return nil
}

// Preprocess converts img to grayscale, resizes it to size×size (bilinear) and normalizes
// the pixel values from [0, 1] to [-1, 1] (mean 0.5 and standard deviation 0.5).
func Preprocess(img image.Image, size int) []float32 {
	resized := imaging.Resize(imaging.Grayscale(img), size, size, imaging.Linear)
	pixels := make([]float32, size*size)
	for y := range size {
		row := resized.Pix[y*resized.Stride:]
		for x := range size {
			// Grayscale images have R == G == B.
			value := float32(row[x*4]) / 255.0
			pixels[y*size+x] = (value - 0.5) / 0.5
		}
	}
	return pixels
}

// LoadImageFolder loads the images organized as "<root>/<class>/<image file>", where the class
// directories are sorted by name and their position is the label.
//
// Each image is converted with Preprocess. It returns the examples and the names of the class
// directories. Files that are not images are skipped.
func LoadImageFolder(root string, size int) (examples []Example, classes []string, err error) {
	root = fsutil.MustReplaceTildeInDir(root)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read dataset directory %q", root)
	}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			classes = append(classes, entry.Name())
		}
	}
	if len(classes) < 2 {
		return nil, nil, errors.Errorf("dataset directory %q must have at least 2 class sub-directories, found %v",
			root, classes)
	}

	type imageFile struct {
		path  string
		label int
	}
	var files []imageFile
	for label, class := range classes {
		classDir := filepath.Join(root, class)
		var count int
		err = filepath.WalkDir(classDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !imageExtensions[strings.ToLower(filepath.Ext(path))] {
				klog.Warningf("skipping %q: not an image file", path)
				return nil
			}
			files = append(files, imageFile{path: path, label: label})
			count++
			return nil
		})
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "while listing class %q", class)
		}
		klog.V(1).Infof("class %d (%q): %d images", label, class, count)
	}

	// Decode and preprocess in parallel, the order of files is preserved.
	examples, err = workerspool.Map(workerspool.New(0), files, func(file imageFile) (Example, error) {
		img, err := imaging.Open(file.path)
		if err != nil {
			return Example{}, errors.Wrapf(err, "failed to decode image %q", file.path)
		}
		return Example{Path: file.path, Label: file.label, Pixels: Preprocess(img, size)}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	if len(examples) == 0 {
		return nil, nil, errors.Errorf("no images found in %q", root)
	}
	return examples, classes, nil
}

// RandomSplit randomly partitions examples into a train split with int(trainFraction*len(examples))
// examples, and a test split with the remainder.
func RandomSplit(examples []Example, trainFraction float64, rng *rand.Rand) (trainSplit, testSplit []Example, err error) {
	if trainFraction <= 0 || trainFraction >= 1 {
		return nil, nil, errors.Errorf("train fraction must be in (0, 1), got %g", trainFraction)
	}
	numTrain := int(trainFraction * float64(len(examples)))
	if numTrain == 0 || numTrain == len(examples) {
		return nil, nil, errors.Errorf("cannot split %d examples with train fraction %g: one of the splits would be empty",
			len(examples), trainFraction)
	}
	perm := rng.Perm(len(examples))
	trainSplit = make([]Example, 0, numTrain)
	testSplit = make([]Example, 0, len(examples)-numTrain)
	for ii, idx := range perm {
		if ii < numTrain {
			trainSplit = append(trainSplit, examples[idx])
		} else {
			testSplit = append(testSplit, examples[idx])
		}
	}
	return trainSplit, testSplit, nil
}

// ToTensors converts examples to an images tensor shaped [numExamples, size, size, 1] (float32) and
// a labels tensor shaped [numExamples, 1] (int64).
func ToTensors(examples []Example, size int) (images, labels *tensors.Tensor) {
	imageLen := size * size
	flatImages := make([]float32, 0, len(examples)*imageLen)
	flatLabels := make([]int64, len(examples))
	for ii, example := range examples {
		flatImages = append(flatImages, example.Pixels...)
		flatLabels[ii] = int64(example.Label)
	}
	images = tensors.FromFlatDataAndDimensions(flatImages, len(examples), size, size, 1)
	labels = tensors.FromFlatDataAndDimensions(flatLabels, len(examples), 1)
	return
}

// NewInMemoryDataset creates a GoMLX datasets.InMemoryDataset with the examples, yielding batches of batchSize
// (the last one possibly incomplete) in order. It's used with the trainer's own evaluation (train.Trainer.Eval).
func NewInMemoryDataset(backend backends.Backend, name string, examples []Example, size, batchSize int) (*datasets.InMemoryDataset, error) {
	if len(examples) == 0 {
		return nil, errors.Errorf("dataset %q has no examples", name)
	}
	if len(name) < 3 {
		return nil, errors.Errorf("dataset name %q must have at least 3 characters", name)
	}
	images, labels := ToTensors(examples, size)
	mds, err := datasets.InMemoryFromData(backend, name, []any{images}, []any{labels})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create in-memory dataset %q", name)
	}
	return mds.BatchSize(batchSize, false), nil
}

// Dataset implements train.Dataset over a slice of examples held in memory.
//
// It yields batches of images (shaped `[batch_size, size, size, 1]`) and labels (shaped `[batch_size, 1]`).
// The last batch of an epoch may be smaller. If a shuffle RNG is given, the order is re-shuffled
// at every Reset.
type Dataset struct {
	name      string
	examples  []Example
	size      int
	batchSize int

	mu       sync.Mutex
	shuffle  *rand.Rand
	indices  []int
	position int
}

var (
	_ train.Dataset       = (*Dataset)(nil)
	_ train.HasShortName = (*Dataset)(nil)
)

// NewDataset creates a Dataset with the examples. shuffle can be nil, in which case the examples are
// yielded in order.
func NewDataset(name string, examples []Example, size, batchSize int, shuffle *rand.Rand) (*Dataset, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("dataset %q: batch size must be > 0, got %d", name, batchSize)
	}
	for ii, example := range examples {
		if len(example.Pixels) != size*size {
			return nil, errors.Errorf("dataset %q: example #%d (%q) has %d pixels, expected %dx%d",
				name, ii, example.Path, len(example.Pixels), size, size)
		}
	}
	ds := &Dataset{
		name:      name,
		examples:  examples,
		size:      size,
		batchSize: batchSize,
		shuffle:   shuffle,
	}
	ds.Reset()
	return ds, nil
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// ShortName implements train.HasShortName.
func (ds *Dataset) ShortName() string {
	if len(ds.name) <= 3 {
		return ds.name
	}
	return ds.name[:3]
}

// NumExamples in the dataset.
func (ds *Dataset) NumExamples() int { return len(ds.examples) }

// Examples returns the examples in the dataset, in their original order.
func (ds *Dataset) Examples() []Example { return ds.examples }

// Reset implements train.Dataset. It restarts the epoch, re-shuffling if configured to.
func (ds *Dataset) Reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.position = 0
	if ds.shuffle != nil {
		ds.indices = ds.shuffle.Perm(len(ds.examples))
		return
	}
	if len(ds.indices) != len(ds.examples) {
		ds.indices = make([]int, len(ds.examples))
		for ii := range ds.indices {
			ds.indices[ii] = ii
		}
	}
}

// Yield implements train.Dataset. It returns io.EOF at the end of the epoch.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.position >= len(ds.indices) {
		return nil, nil, nil, io.EOF
	}
	end := min(ds.position+ds.batchSize, len(ds.indices))
	batch := make([]Example, 0, end-ds.position)
	for _, idx := range ds.indices[ds.position:end] {
		batch = append(batch, ds.examples[idx])
	}
	ds.position = end
	images, batchLabels := ToTensors(batch, ds.size)
	return nil, []*tensors.Tensor{images}, []*tensors.Tensor{batchLabels}, nil
}
