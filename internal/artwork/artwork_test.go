package artwork

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}

func TestRenditionBoundsLongerSide(t *testing.T) {
	src := filepath.Join(t.TempDir(), "cover.png")
	writePNG(t, src, 400, 200)

	tests := []struct {
		size  int
		wantW int
		wantH int
	}{
		{size: 150, wantW: 150, wantH: 75},
		{size: 300, wantW: 300, wantH: 150},
		{size: 1500, wantW: 400, wantH: 200},
	}
	for _, tt := range tests {
		data, err := Rendition(src, tt.size)
		if err != nil {
			t.Fatalf("Rendition(%d): %v", tt.size, err)
		}
		w, h, err := Dimensions(data)
		if err != nil {
			t.Fatalf("Dimensions: %v", err)
		}
		if w != tt.wantW || h != tt.wantH {
			t.Fatalf("size %d: got %dx%d, want %dx%d", tt.size, w, h, tt.wantW, tt.wantH)
		}
		if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
			t.Fatalf("rendition is not a JPEG: %v", err)
		}
	}
}

func TestRenditionRejectsNonImage(t *testing.T) {
	src := filepath.Join(t.TempDir(), "cover.png")
	if err := os.WriteFile(src, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Rendition(src, 150); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestCacheRendersOnce(t *testing.T) {
	src := filepath.Join(t.TempDir(), "cover.png")
	writePNG(t, src, 64, 64)
	cache := NewCache()

	first, err := cache.Rendition(src, 32)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(src); err != nil {
		t.Fatal(err)
	}
	second, err := cache.Rendition(src, 32)
	if err != nil {
		t.Fatalf("cached rendition re-read the source: %v", err)
	}
	if &first[0] != &second[0] {
		t.Fatal("expected the cached slice")
	}
}

func TestRendererSkipsFreshOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "cover.png")
	dst := filepath.Join(dir, "cover.150.jpg")
	writePNG(t, src, 200, 200)

	r := NewRenderer(nil, nil)
	if err := r.Render(context.Background(), src, dst, 150); err != nil {
		t.Fatalf("Render: %v", err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(dst, future, future); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("kept"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(dst, future, future); err != nil {
		t.Fatal(err)
	}
	if err := r.Render(context.Background(), src, dst, 150); err != nil {
		t.Fatalf("Render: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "kept" {
		t.Fatal("fresh rendition was rewritten")
	}
}
