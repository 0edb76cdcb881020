package mission

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// MaxIndexGap bounds how many missing indices a mission may have. N may
// exceed the number of distinct indices present by at most this much.
const MaxIndexGap = 1000

var pairPattern = regexp.MustCompile(`^IMG_([1-9][0-9]*)\.(jpg|json)$`)

// Pair holds the raw artifacts of one image index. Either path is empty when
// the file is absent.
type Pair struct {
	Index        int
	ImagePath    string
	MetadataPath string
}

// Complete reports whether both artifacts are present
func (p Pair) Complete() bool {
	return p.ImagePath != "" && p.MetadataPath != ""
}

func (p Pair) check() error {
	switch {
	case p.ImagePath == "" && p.MetadataPath == "":
		return fmt.Errorf("%w: IMG_%d.jpg and IMG_%d.json not found", ErrMissingPair, p.Index, p.Index)
	case p.ImagePath == "":
		return fmt.Errorf("%w: IMG_%d.jpg not found", ErrMissingPair, p.Index)
	case p.MetadataPath == "":
		return fmt.Errorf("%w: IMG_%d.json not found", ErrMissingPair, p.Index)
	}
	return nil
}

// ScanPairs lists rawDir and returns the mission size N, the highest index
// seen on any IMG_{i}.jpg or IMG_{i}.json file, together with one Pair for
// every index in 1..N. Indices without files get an empty Pair so the caller
// can report them. Other files are ignored. A highest index more than
// MaxIndexGap beyond the number of distinct indices present fails with
// ErrIndexRange before anything is allocated for it.
func ScanPairs(rawDir string) (int, []Pair, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return 0, nil, fmt.Errorf("read mission directory: %w", err)
	}

	images := make(map[int]string)
	metadata := make(map[int]string)
	n := 0
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		m := pairPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %s", ErrIndexRange, e.Name())
		}
		path := filepath.Join(rawDir, e.Name())
		if m[2] == "jpg" {
			images[idx] = path
		} else {
			metadata[idx] = path
		}
		if idx > n {
			n = idx
		}
	}

	present := len(images)
	for idx := range metadata {
		if _, ok := images[idx]; !ok {
			present++
		}
	}
	if n-present > MaxIndexGap {
		return 0, nil, fmt.Errorf("%w: highest index %d with only %d indices present", ErrIndexRange, n, present)
	}

	pairs := make([]Pair, n)
	for i := 1; i <= n; i++ {
		pairs[i-1] = Pair{Index: i, ImagePath: images[i], MetadataPath: metadata[i]}
	}
	return n, pairs, nil
}
