package compositor

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func encodeTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 180, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestBuildSelfieCompositeLayout(t *testing.T) {
	selfies := [][]byte{
		encodeTestPNG(t, 200, 300),
		encodeTestPNG(t, 150, 100),
		encodeTestPNG(t, 180, 240),
	}

	ref, err := BuildSelfieComposite(selfies)
	if err != nil {
		t.Fatalf("BuildSelfieComposite: %v", err)
	}
	if ref.MimeType != "image/png" {
		t.Errorf("mime = %s, want image/png", ref.MimeType)
	}
	if ref.Description == "" {
		t.Error("description must carry the semantic hint")
	}

	composite, err := png.Decode(bytes.NewReader(ref.Data))
	if err != nil {
		t.Fatalf("decode composite: %v", err)
	}

	wantWidth := 200 + 2*compositeMargin
	wantHeight := 2*compositeMargin + titleHeight +
		(labelHeight + 300 + imageSpacing) +
		(labelHeight + 100 + imageSpacing) +
		(labelHeight + 240 + imageSpacing)

	bounds := composite.Bounds()
	if bounds.Dx() != wantWidth {
		t.Errorf("width = %d, want %d", bounds.Dx(), wantWidth)
	}
	if bounds.Dy() != wantHeight {
		t.Errorf("height = %d, want %d", bounds.Dy(), wantHeight)
	}
}

func TestBuildSelfieCompositeDownscalesLargeInputs(t *testing.T) {
	// Smallest side 1200 exceeds the ceiling, so the selfie must shrink to
	// 1024 on that side before layout.
	selfies := [][]byte{encodeTestPNG(t, 1200, 1800)}

	ref, err := BuildSelfieComposite(selfies)
	if err != nil {
		t.Fatalf("BuildSelfieComposite: %v", err)
	}

	composite, err := png.Decode(bytes.NewReader(ref.Data))
	if err != nil {
		t.Fatalf("decode composite: %v", err)
	}

	wantWidth := maxSelfieSide + 2*compositeMargin
	if got := composite.Bounds().Dx(); got != wantWidth {
		t.Errorf("width = %d, want %d", got, wantWidth)
	}
}

func TestBuildSelfieCompositeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		selfies [][]byte
	}{
		{name: "no selfies", selfies: nil},
		{name: "empty buffer", selfies: [][]byte{{}}},
		{name: "undecodable buffer", selfies: [][]byte{[]byte("not an image")}},
		{name: "valid then empty", selfies: [][]byte{encodeTestPNG(t, 10, 10), {}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildSelfieComposite(tt.selfies); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
