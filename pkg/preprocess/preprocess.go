// Package preprocess normalizes raw drone frames into the fixed-size
// single-channel images the landmine detector was trained on.
//
// Normalization runs three steps in order: metadata stripping (the frame is
// decoded and forced into an opaque color representation, which drops EXIF
// and any alpha channel), a direct resize to the target resolution with no
// aspect-ratio preservation, and a luma conversion to grayscale. The result
// depends only on the input bytes and the options.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

var (
	// ErrImageLoad is returned when an image path is missing or its contents cannot be decoded
	ErrImageLoad = errors.New("image load failed")
	// ErrInvalidSize is returned for non-positive target dimensions
	ErrInvalidSize = errors.New("target size must be positive")
	// ErrTemperatureUnsupported marks the thermal temperature normalization step, which has no defined formula
	ErrTemperatureUnsupported = fmt.Errorf("thermal temperature normalization: %w", errors.ErrUnsupported)
)

// Options controls the normalization steps
type Options struct {
	TargetWidth  int
	TargetHeight int
	// StripEXIF re-encodes the frame through an opaque RGB representation
	StripEXIF bool
	Grayscale bool
	// AutoOrient applies the EXIF orientation tag before stripping it
	AutoOrient bool
	// NormalizeTemperature requests radiometric normalization of thermal frames
	NormalizeTemperature bool
	// Format and Quality control how Save encodes normalized images
	Format  string
	Quality int
}

// DefaultOptions returns the options the detector expects: 640x640 grayscale
func DefaultOptions() Options {
	return Options{
		TargetWidth:  640,
		TargetHeight: 640,
		StripEXIF:    true,
		Grayscale:    true,
		Format:       "jpg",
		Quality:      95,
	}
}

// Validate checks the options before any image is touched
func (o Options) Validate() error {
	if o.TargetWidth <= 0 || o.TargetHeight <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, o.TargetWidth, o.TargetHeight)
	}
	switch strings.ToLower(o.Format) {
	case "", "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("unsupported output format: %s", o.Format)
	}
	if o.Quality < 0 || o.Quality > 100 {
		return fmt.Errorf("quality must be between 0 and 100")
	}
	return nil
}

// Preprocessor normalizes images according to its options
type Preprocessor struct {
	opts Options
}

// New creates a preprocessor with default options
func New() *Preprocessor {
	return &Preprocessor{opts: DefaultOptions()}
}

// NewWithOptions creates a preprocessor with custom options
func NewWithOptions(opts Options) (*Preprocessor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Preprocessor{opts: opts}, nil
}

// Options returns the preprocessor configuration
func (p *Preprocessor) Options() Options {
	return p.opts
}

// NormalizeFile reads and normalizes the image at path
func (p *Preprocessor) NormalizeFile(path string) (image.Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrImageLoad, path, err)
	}
	img, err := p.Normalize(raw)
	if err != nil && errors.Is(err, ErrImageLoad) {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, err
}

// Normalize decodes raw image bytes and returns the normalized image.
// With Grayscale set the result is an *image.Gray of TargetHeight rows and
// TargetWidth columns, otherwise an opaque *image.NRGBA of the same size.
func (p *Preprocessor) Normalize(raw []byte) (image.Image, error) {
	if err := p.opts.Validate(); err != nil {
		return nil, err
	}
	if p.opts.NormalizeTemperature {
		return nil, ErrTemperatureUnsupported
	}

	img, err := decode(raw, p.opts.AutoOrient)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageLoad, err)
	}

	var src image.Image = img
	if p.opts.StripEXIF {
		src = stripMetadata(img)
	}

	resized := imaging.Resize(src, p.opts.TargetWidth, p.opts.TargetHeight, imaging.Linear)

	if !p.opts.Grayscale {
		return resized, nil
	}
	return toGray(resized), nil
}

// NormalizeTemperature would map raw thermal intensities to a calibrated
// temperature scale. No calibration model exists for the camera yet.
func (p *Preprocessor) NormalizeTemperature(img image.Image) (image.Image, error) {
	return nil, ErrTemperatureUnsupported
}

// Save writes a normalized image using the configured output format
func (p *Preprocessor) Save(img image.Image, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	quality := p.opts.Quality
	if quality == 0 {
		quality = 95
	}

	switch strings.ToLower(p.opts.Format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		opts := &webp.Options{Quality: float32(quality)}
		if err := webp.Encode(f, img, opts); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// Extension returns the file extension matching the output format
func (p *Preprocessor) Extension() string {
	switch f := strings.ToLower(p.opts.Format); f {
	case "png", "webp":
		return f
	default:
		return "jpg"
	}
}

// stripMetadata copies the pixels into a fresh opaque buffer, discarding
// every decoder-attached attribute and the alpha channel
func stripMetadata(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// toGray applies the ITU-R BT.601 luma weights and packs the result into one channel
func toGray(img *image.NRGBA) *image.Gray {
	luma := imaging.Grayscale(img)
	b := luma.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		si := y * luma.Stride
		di := y * gray.Stride
		for x := 0; x < b.Dx(); x++ {
			gray.Pix[di+x] = luma.Pix[si+x*4]
		}
	}
	return gray
}

// IsGray reports whether the image stores a single intensity channel
func IsGray(img image.Image) bool {
	return img.ColorModel() == color.GrayModel
}
