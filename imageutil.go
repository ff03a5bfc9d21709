package main

import (
	"image"

	"github.com/hajimehoshi/ebiten/v2"
)

func newImage(w, h int) *ebiten.Image {
	if gs.PotatoComputer {
		return ebiten.NewImageWithOptions(image.Rect(0, 0, w, h), &ebiten.NewImageOptions{Unmanaged: true})
	}
	return ebiten.NewImage(w, h)
}

func newImageFromImage(src image.Image) *ebiten.Image {
	if gs.PotatoComputer {
		return ebiten.NewImageFromImageWithOptions(src, &ebiten.NewImageFromImageOptions{Unmanaged: true})
	}
	return ebiten.NewImageFromImage(src)
}

// growImage returns img if it is at least w x h and a fresh image otherwise.
// Targets only grow so resizing the window does not churn GPU memory.
func growImage(img *ebiten.Image, w, h int) *ebiten.Image {
	if w <= 0 || h <= 0 {
		return img
	}
	if img != nil {
		b := img.Bounds()
		if b.Dx() >= w && b.Dy() >= h {
			return img
		}
		if b.Dx() > w {
			w = b.Dx()
		}
		if b.Dy() > h {
			h = b.Dy()
		}
		img.Deallocate()
	}
	return newImage(w, h)
}
