// Package render draws debug images of generated worlds.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"

	"bikeadventure/internal/biome"
	"bikeadventure/internal/streaming"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var palette = [biome.Count]color.RGBA{
	biome.Forest:      {34, 110, 48, 255},
	biome.Beach:       {238, 214, 150, 255},
	biome.Desert:      {214, 170, 90, 255},
	biome.Urban:       {128, 128, 136, 255},
	biome.Countryside: {140, 190, 90, 255},
	biome.Mountains:   {120, 104, 96, 255},
	biome.Wetlands:    {70, 120, 110, 255},
}

var (
	background   = color.RGBA{20, 20, 24, 255}
	hiddenShade  = color.RGBA{0, 0, 0, 110}
	junctionMark = color.RGBA{240, 60, 60, 255}
	labelColor   = color.RGBA{255, 255, 255, 255}
)

// BiomeColor returns the map color for b. Unknown biomes are grey.
func BiomeColor(b biome.Biome) color.RGBA {
	if b.Valid() {
		return palette[b]
	}
	return color.RGBA{60, 60, 60, 255}
}

// MapOptions controls BiomeMap.
type MapOptions struct {
	CellPx int
	Labels bool
}

func (o MapOptions) cell() int {
	if o.CellPx < 8 {
		return 48
	}
	return o.CellPx
}

// BiomeMap draws each section as one cell of a top-down grid. Hidden
// sections are dimmed and intersections get a marker.
func BiomeMap(sections []streaming.Section, opts MapOptions) *image.RGBA {
	cell := opts.cell()
	if len(sections) == 0 {
		img := image.NewRGBA(image.Rect(0, 0, cell, cell))
		draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
		return img
	}

	minX, maxX := sections[0].Coord.X, sections[0].Coord.X
	minY, maxY := sections[0].Coord.Y, sections[0].Coord.Y
	for _, s := range sections[1:] {
		minX = min(minX, s.Coord.X)
		maxX = max(maxX, s.Coord.X)
		minY = min(minY, s.Coord.Y)
		maxY = max(maxY, s.Coord.Y)
	}
	w := (maxX - minX + 1) * cell
	h := (maxY - minY + 1) * cell
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)

	for _, s := range sections {
		// Y grows north, image rows grow down.
		x0 := (s.Coord.X - minX) * cell
		y0 := (maxY - s.Coord.Y) * cell
		r := image.Rect(x0+1, y0+1, x0+cell-1, y0+cell-1)
		draw.Draw(img, r, image.NewUniform(BiomeColor(s.Biome)), image.Point{}, draw.Src)
		if !s.Visible {
			draw.Draw(img, r, image.NewUniform(hiddenShade), image.Point{}, draw.Over)
		}
		if s.HasIntersection {
			m := cell / 6
			cx, cy := x0+cell/2, y0+cell/2
			mark := image.Rect(cx-m, cy-m, cx+m, cy+m)
			draw.Draw(img, mark, image.NewUniform(junctionMark), image.Point{}, draw.Src)
		}
		if opts.Labels {
			drawLabel(img, x0+3, y0+13, abbrev(s.Biome))
		}
	}
	return img
}

// SequenceStrip draws a biome sequence left to right with index labels.
func SequenceStrip(seq []biome.Biome, cellPx int) *image.RGBA {
	if cellPx < 8 {
		cellPx = 32
	}
	n := max(len(seq), 1)
	img := image.NewRGBA(image.Rect(0, 0, n*cellPx, cellPx))
	draw.Draw(img, img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
	for i, b := range seq {
		r := image.Rect(i*cellPx+1, 1, (i+1)*cellPx-1, cellPx-1)
		draw.Draw(img, r, image.NewUniform(BiomeColor(b)), image.Point{}, draw.Src)
		drawLabel(img, i*cellPx+3, 13, abbrev(b))
	}
	return img
}

func drawLabel(img draw.Image, x, y int, text string) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func abbrev(b biome.Biome) string {
	name := b.String()
	if len(name) > 3 {
		return name[:3]
	}
	return name
}

// WritePNG encodes img to path, creating parent directories.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
