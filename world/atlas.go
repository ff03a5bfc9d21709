package world

import (
	"image"
	"image/color"
)

// Variants is the number of textures per tile kind.
const Variants = 4

var baseColors = [kindCount]color.RGBA{
	Water:  {38, 92, 168, 255},
	Sand:   {214, 196, 140, 255},
	Grass:  {86, 150, 64, 255},
	Forest: {40, 96, 44, 255},
	Rock:   {120, 118, 112, 255},
}

// Atlas holds the procedurally textured tiles of one tile size.
type Atlas struct {
	TileSize int
	tiles    [kindCount][Variants]*image.RGBA
}

func NewAtlas(tileSize int, seed int64) *Atlas {
	a := &Atlas{TileSize: tileSize}
	for k := Kind(0); k < kindCount; k++ {
		for v := 0; v < Variants; v++ {
			a.tiles[k][v] = paintTile(k, v, tileSize, seed)
		}
	}
	return a
}

// Tile returns the texture of kind k, variant v.
func (a *Atlas) Tile(k Kind, v int) *image.RGBA {
	if k >= kindCount {
		k = Water
	}
	return a.tiles[k][v%Variants]
}

func paintTile(k Kind, v, size int, seed int64) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	base := baseColors[k]
	salt := seed*31 + int64(k)*7 + int64(v)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			j := int(hash3(salt, x, y)%25) - 12
			c := base
			switch k {
			case Water:
				// horizontal ripples that move with the variant
				if (y+v*size/Variants)%(max(size/4, 2)) == 0 {
					j += 28
				}
			case Forest:
				dx, dy := x-size/2, y-size/2
				if dx*dx+dy*dy < size*size/6 {
					c = color.RGBA{24, 70, 30, 255}
				}
			case Rock:
				if hash3(salt+1, x, y)%11 == 0 {
					j -= 30
				}
			}
			img.SetRGBA(x, y, color.RGBA{clamp8(int(c.R) + j), clamp8(int(c.G) + j), clamp8(int(c.B) + j), 255})
		}
	}
	return img
}

func clamp8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
