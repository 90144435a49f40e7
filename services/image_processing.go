package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
)

// WhitenBackgroundFeathered pushes near-white background pixels of a try-on
// preview to pure white so default catalog shots sit on a clean backdrop.
// Pixels between the two luminance thresholds are blended toward white
// instead of clipped, which avoids halo edges around the subject. A central
// window of the frame, where the subject stands, is never touched.
func WhitenBackgroundFeathered(imageBytes []byte, lowerThreshold, upperThreshold uint8, centralProtectionRatio float64) ([]byte, error) {
	if lowerThreshold >= upperThreshold {
		return nil, fmt.Errorf("lowerThreshold must be less than upperThreshold")
	}
	if centralProtectionRatio < 0.0 || centralProtectionRatio > 1.0 {
		return nil, fmt.Errorf("centralProtectionRatio must be between 0.0 and 1.0")
	}

	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Max.X, bounds.Max.Y
	out := image.NewRGBA(bounds)

	protected := centeredWindow(width, height, centralProtectionRatio)
	transitionRange := float64(upperThreshold - lowerThreshold)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			src := img.At(x, y)

			if (image.Point{X: x, Y: y}).In(protected) {
				out.Set(x, y, src)
				continue
			}

			r, g, b, a := src.RGBA()
			r8, g8, b8, a8 := uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8)
			luminance := 0.299*float64(r8) + 0.587*float64(g8) + 0.114*float64(b8)

			switch {
			case luminance <= float64(lowerThreshold):
				out.Set(x, y, src)
			case luminance >= float64(upperThreshold):
				out.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: a8})
			default:
				factor := (luminance - float64(lowerThreshold)) / transitionRange
				out.Set(x, y, color.RGBA{
					R: blendTowardWhite(r8, factor),
					G: blendTowardWhite(g8, factor),
					B: blendTowardWhite(b8, factor),
					A: a8,
				})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode image to png: %w", err)
	}
	return buf.Bytes(), nil
}

func centeredWindow(width, height int, ratio float64) image.Rectangle {
	w := int(float64(width) * ratio)
	h := int(float64(height) * ratio)
	x0 := (width - w) / 2
	y0 := (height - h) / 2
	return image.Rect(x0, y0, x0+w, y0+h)
}

func blendTowardWhite(channel uint8, factor float64) uint8 {
	return uint8(math.Round(float64(channel)*(1.0-factor) + 255.0*factor))
}
