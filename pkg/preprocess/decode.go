package preprocess

import (
	"bytes"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder (radiometric exports)
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// decode decodes raw image bytes, ignoring embedded orientation tags unless autoOrient is set
func decode(raw []byte, autoOrient bool) (image.Image, error) {
	var opts []imaging.DecodeOption
	if autoOrient {
		opts = append(opts, imaging.AutoOrientation(true))
	}

	img, err := imaging.Decode(bytes.NewReader(raw), opts...)
	if err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode for variants the registered decoder rejects
	if isWebP(raw) {
		if wimg, werr := webp.Decode(bytes.NewReader(raw)); werr == nil {
			return wimg, nil
		}
	}
	return nil, err
}

func isWebP(raw []byte) bool {
	return len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WEBP"
}
