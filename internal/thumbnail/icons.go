package thumbnail

import (
	"image"
	"image/color"
	"image/draw"
)

var (
	queuedColor = color.NRGBA{R: 0xd0, G: 0xd0, B: 0xd0, A: 0xff}
	errorColor  = color.NRGBA{R: 0xc0, G: 0x20, B: 0x20, A: 0xff}
	frameColor  = color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

// QueuedIcon returns the placeholder shown while a thumbnail is pending:
// a grey square with a darker frame.
func QueuedIcon(size int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: frameColor}, image.Point{}, draw.Src)
	if size > 2 {
		draw.Draw(img, image.Rect(1, 1, size-1, size-1), &image.Uniform{C: queuedColor}, image.Point{}, draw.Src)
	}
	return img
}

// ErrorIcon returns the image shown when a thumbnail cannot be rendered:
// a red cross on the queued background.
func ErrorIcon(size int) image.Image {
	img := QueuedIcon(size).(*image.NRGBA)
	for i := size / 4; i < size-size/4; i++ {
		for d := -1; d <= 1; d++ {
			img.SetNRGBA(i+d, i, errorColor)
			img.SetNRGBA(size-1-i+d, i, errorColor)
		}
	}
	return img
}
