package render

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/streaming"
)

func TestBiomeMapLayout(t *testing.T) {
	sections := []streaming.Section{
		{Coord: streaming.Coord{X: 0, Y: 0}, Biome: biome.Forest, Visible: true},
		{Coord: streaming.Coord{X: 1, Y: 0}, Biome: biome.Desert, Visible: true},
		{Coord: streaming.Coord{X: 0, Y: 1}, Biome: biome.Beach, Visible: false},
	}
	img := BiomeMap(sections, MapOptions{CellPx: 20})
	if img.Bounds().Dx() != 40 || img.Bounds().Dy() != 40 {
		t.Fatalf("Expected 40x40 image, got %v", img.Bounds())
	}

	// (0,0) is bottom-left, (1,0) bottom-right.
	if got := img.RGBAAt(5, 25); got != BiomeColor(biome.Forest) {
		t.Errorf("Expected forest color at bottom-left, got %v", got)
	}
	if got := img.RGBAAt(25, 25); got != BiomeColor(biome.Desert) {
		t.Errorf("Expected desert color at bottom-right, got %v", got)
	}
	// Hidden beach cell is dimmed.
	beach := BiomeColor(biome.Beach)
	if got := img.RGBAAt(5, 5); got == beach || got.R >= beach.R {
		t.Errorf("Expected dimmed beach at top-left, got %v", got)
	}
	// Empty cell keeps the background.
	if got := img.RGBAAt(25, 5); got != background {
		t.Errorf("Expected background at top-right, got %v", got)
	}
}

func TestBiomeMapIntersectionMarker(t *testing.T) {
	sections := []streaming.Section{
		{Coord: streaming.Coord{}, Biome: biome.Countryside, Visible: true, HasIntersection: true},
	}
	img := BiomeMap(sections, MapOptions{CellPx: 48})
	if got := img.RGBAAt(24, 24); got != junctionMark {
		t.Errorf("Expected intersection marker at center, got %v", got)
	}
}

func TestBiomeMapEmpty(t *testing.T) {
	img := BiomeMap(nil, MapOptions{})
	if img.Bounds().Dx() != 48 {
		t.Errorf("Expected default cell size 48, got %d", img.Bounds().Dx())
	}
}

func TestSequenceStripWritesPNG(t *testing.T) {
	seq := []biome.Biome{biome.Forest, biome.Beach, biome.Urban}
	img := SequenceStrip(seq, 32)
	if img.Bounds().Dx() != 96 {
		t.Fatalf("Expected width 96, got %d", img.Bounds().Dx())
	}

	path := filepath.Join(t.TempDir(), "out", "strip.png")
	if err := WritePNG(path, img); err != nil {
		t.Fatalf("WritePNG failed: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Bounds() != img.Bounds() {
		t.Errorf("Expected bounds %v, got %v", img.Bounds(), decoded.Bounds())
	}
}

func TestBiomeColorUnknown(t *testing.T) {
	if BiomeColor(biome.None) == BiomeColor(biome.Forest) {
		t.Error("Expected None to use a distinct color")
	}
}
