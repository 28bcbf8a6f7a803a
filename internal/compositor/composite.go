package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/mvh70/teamshots-sub010/internal/llm"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Layout constants of the selfie reference sheet. The side ceiling bounds
// provider payload size; inputs whose smallest side exceeds it get downscaled.
const (
	maxSelfieSide   = 1024
	compositeMargin = 24
	imageSpacing    = 16
	titleHeight     = 28
	labelHeight     = 20

	compositeTitle = "SUBJECT1 REFERENCE SELFIES"
	labelFormat    = "SUBJECT1-SELFIE%d"
)

// BuildSelfieComposite lays the input selfies out vertically on a white sheet
// with a title and a per-image label, so one reference image carries every
// angle of the subject's face. EXIF orientation is applied before any
// measurement. Empty input and undecodable buffers are hard errors; a corrupt
// composite must never reach a provider.
func BuildSelfieComposite(selfies [][]byte) (*llm.ReferenceImage, error) {
	if len(selfies) == 0 {
		return nil, fmt.Errorf("no selfies provided")
	}

	decoded := make([]image.Image, 0, len(selfies))
	maxWidth := 0
	for idx, buf := range selfies {
		if len(buf) == 0 {
			return nil, fmt.Errorf("selfie %d: empty image buffer", idx+1)
		}
		img, err := imaging.Decode(bytes.NewReader(buf), imaging.AutoOrientation(true))
		if err != nil {
			return nil, fmt.Errorf("selfie %d: decode image (%d bytes): %w", idx+1, len(buf), err)
		}

		img = downscaleToCeiling(img)
		bounds := img.Bounds()
		if bounds.Dx() > maxWidth {
			maxWidth = bounds.Dx()
		}
		decoded = append(decoded, img)
	}

	canvasWidth := maxWidth + 2*compositeMargin
	canvasHeight := 2*compositeMargin + titleHeight
	for _, img := range decoded {
		canvasHeight += labelHeight + img.Bounds().Dy() + imageSpacing
	}

	canvas := imaging.New(canvasWidth, canvasHeight, color.White)
	drawLabel(canvas, compositeTitle, compositeMargin, compositeMargin+titleHeight/2)

	y := compositeMargin + titleHeight
	for idx, img := range decoded {
		drawLabel(canvas, fmt.Sprintf(labelFormat, idx+1), compositeMargin, y+labelHeight/2+4)
		y += labelHeight
		canvas = imaging.Paste(canvas, img, image.Pt(compositeMargin, y))
		y += img.Bounds().Dy() + imageSpacing
	}

	var out bytes.Buffer
	if err := png.Encode(&out, canvas); err != nil {
		return nil, fmt.Errorf("encode composite: %w", err)
	}

	return &llm.ReferenceImage{
		MimeType:    "image/png",
		Data:        out.Bytes(),
		Description: "REFERENCE IMAGE - Subject Face (labeled selfie sheet)",
	}, nil
}

// downscaleToCeiling shrinks the image when its smallest side exceeds the
// ceiling, preserving aspect ratio. Smaller images pass through untouched.
func downscaleToCeiling(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	minSide := w
	if h < w {
		minSide = h
	}
	if minSide <= maxSelfieSide {
		return img
	}

	if w <= h {
		return imaging.Resize(img, maxSelfieSide, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxSelfieSide, imaging.Lanczos)
}

func drawLabel(dst *image.NRGBA, text string, x, y int) {
	drawer := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	drawer.DrawString(text)
}
