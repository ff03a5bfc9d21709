// Package world generates the tile maps the client renders and rasterises
// them on the CPU.
package world

import (
	"image"
	"math"

	"worldshot/capture"
)

// Kind is the terrain type of a tile.
type Kind uint8

const (
	Water Kind = iota
	Sand
	Grass
	Forest
	Rock
	kindCount
)

func (k Kind) String() string {
	switch k {
	case Water:
		return "water"
	case Sand:
		return "sand"
	case Grass:
		return "grass"
	case Forest:
		return "forest"
	case Rock:
		return "rock"
	}
	return "unknown"
}

// Map is a rectangular grid of tiles.
type Map struct {
	Name     string
	Width    int
	Height   int
	TileSize int
	Seed     int64
	Tiles    []Kind
	// Lamps are light sources in world pixels.
	Lamps []image.Point
	// Region limits screenshots to part of the map; nil means the whole map.
	Region *capture.Annotation

	atlas *Atlas
}

// Generate builds a deterministic map from seed.
func Generate(name string, w, h, tileSize int, seed int64) *Map {
	m := &Map{
		Name:     name,
		Width:    w,
		Height:   h,
		TileSize: tileSize,
		Seed:     seed,
		Tiles:    make([]Kind, w*h),
	}
	for ty := 0; ty < h; ty++ {
		for tx := 0; tx < w; tx++ {
			n := 0.65*valueNoise(seed, tx, ty, 12) + 0.35*valueNoise(seed+1, tx, ty, 4)
			k := kindFor(n)
			m.Tiles[ty*w+tx] = k
			if (k == Grass || k == Sand) && hash3(seed+2, tx, ty)%97 == 0 {
				m.Lamps = append(m.Lamps, image.Pt(tx*tileSize+tileSize/2, ty*tileSize+tileSize/2))
			}
		}
	}
	return m
}

func kindFor(n float64) Kind {
	switch {
	case n < 0.35:
		return Water
	case n < 0.42:
		return Sand
	case n < 0.70:
		return Grass
	case n < 0.85:
		return Forest
	}
	return Rock
}

// At returns the tile at (tx, ty). Coordinates outside the map read as water.
func (m *Map) At(tx, ty int) Kind {
	if tx < 0 || ty < 0 || tx >= m.Width || ty >= m.Height {
		return Water
	}
	return m.Tiles[ty*m.Width+tx]
}

// PixelSize is the size of the whole map in world pixels.
func (m *Map) PixelSize() image.Point {
	return image.Pt(m.Width*m.TileSize, m.Height*m.TileSize)
}

// Bounds is the world rectangle a screenshot of this map covers.
func (m *Map) Bounds() image.Rectangle {
	return capture.MapBounds(m.Width, m.Height, m.TileSize, m.Region)
}

// SetRegion limits screenshots to the tiles [left,right) x [top,bottom).
func (m *Map) SetRegion(left, top, right, bottom int) {
	m.Region = &capture.Annotation{Left: left, Top: top, Right: right, Bottom: bottom}
}

// ClearRegion makes screenshots cover the whole map again.
func (m *Map) ClearRegion() {
	m.Region = nil
}

// Atlas returns the tile textures, building them on first use.
func (m *Map) Atlas() *Atlas {
	if m.atlas == nil {
		m.atlas = NewAtlas(m.TileSize, m.Seed)
	}
	return m.atlas
}

// Variant picks the texture variant of a tile. Water cycles through its
// variants with phase; other kinds ignore it.
func (m *Map) Variant(tx, ty, phase int) int {
	v := int(hash3(m.Seed+3, tx, ty) % Variants)
	if m.At(tx, ty) == Water {
		v = (v + phase) % Variants
	}
	return v
}

func valueNoise(seed int64, x, y, cell int) float64 {
	fx := float64(x) / float64(cell)
	fy := float64(y) / float64(cell)
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	tx, ty := smooth(fx-float64(x0)), smooth(fy-float64(y0))
	v00 := unit(hash3(seed, x0, y0))
	v10 := unit(hash3(seed, x0+1, y0))
	v01 := unit(hash3(seed, x0, y0+1))
	v11 := unit(hash3(seed, x0+1, y0+1))
	top := v00 + (v10-v00)*tx
	bot := v01 + (v11-v01)*tx
	return top + (bot-top)*ty
}

func smooth(t float64) float64 { return t * t * (3 - 2*t) }

func unit(h uint64) float64 { return float64(h>>11) / (1 << 53) }

// hash3 is splitmix64 over the seed and a pair of coordinates.
func hash3(seed int64, x, y int) uint64 {
	z := uint64(seed) ^ uint64(int64(x))*0x9e3779b97f4a7c15 ^ uint64(int64(y))*0xc2b2ae3d27d4eb4f
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
