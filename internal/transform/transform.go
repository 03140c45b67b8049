// Package transform produces web renditions of catalog images: opaque RGB,
// downscaled to a long edge with Lanczos resampling, encoded as lossy WebP.
package transform

import (
	"bytes"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"math"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	"github.com/zeebo/errs"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// MaxMethod is the slowest, best-compressing WebP encoder method
const MaxMethod = 6

var (
	// ErrDecode is the error class for input that is not a decodable image
	ErrDecode = errs.Class("decode")

	// Error is the error class for encoding failures
	Error = errs.Class("transform")
)

// Result describes one produced rendition
type Result struct {
	Data         []byte
	Format       string
	SourceWidth  int
	SourceHeight int
	Width        int
	Height       int
}

// Resize decodes data, scales it so its longer side is at most longEdge and
// encodes it as WebP at quality.
func Resize(data []byte, longEdge, quality int) ([]byte, error) {
	res, err := Render(data, longEdge, quality)
	if err != nil {
		return nil, err
	}
	return res.Data, nil
}

// Render is Resize with the source and output dimensions reported
func Render(data []byte, longEdge, quality int) (*Result, error) {
	if longEdge < 1 {
		return nil, Error.New("long edge must be positive, got %d", longEdge)
	}
	if quality < 0 || quality > 100 {
		return nil, Error.New("quality must be within 0-100, got %d", quality)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ErrDecode.Wrap(err)
	}

	img := toRGB(src)
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	width, height := TargetSize(srcW, srcH, longEdge)
	if width != srcW || height != srcH {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{
		Quality: quality,
		Method:  MaxMethod,
	}); err != nil {
		return nil, Error.New("webp encode: %v", err)
	}

	return &Result{
		Data:         buf.Bytes(),
		Format:       format,
		SourceWidth:  srcW,
		SourceHeight: srcH,
		Width:        width,
		Height:       height,
	}, nil
}

// TargetSize returns the dimensions an image of w×h is scaled to. Images
// whose longer side already fits are returned unchanged; otherwise the
// longer side becomes longEdge and the shorter side keeps the aspect ratio,
// rounded to the nearest pixel.
func TargetSize(w, h, longEdge int) (int, int) {
	if w <= longEdge && h <= longEdge {
		return w, h
	}
	if w >= h {
		return longEdge, scaleSide(h, longEdge, w)
	}
	return scaleSide(w, longEdge, h), longEdge
}

func scaleSide(short, longEdge, long int) int {
	n := int(math.Round(float64(short) * float64(longEdge) / float64(long)))
	if n < 1 {
		return 1
	}
	return n
}

// toRGB flattens src into an opaque image. Color values are kept and alpha
// is discarded, so transparent regions show their stored color.
func toRGB(src image.Image) *image.NRGBA {
	img := imaging.Clone(src)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}
