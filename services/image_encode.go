package services

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	xdraw "golang.org/x/image/draw"

	_ "image/gif"

	_ "golang.org/x/image/webp"
)

// EncodedImage is one size-budgeted, MIME-typed image ready to ship to the
// generation API as an inline part.
type EncodedImage struct {
	Data     []byte `json:"-"`
	Base64   string `json:"data"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// EncodeImagePayload decodes the image, fixes camera EXIF orientation,
// downscales the longest edge to maxDimension with a high quality filter and
// re-encodes: PNG when the source carries transparency, otherwise JPEG at the
// given quality. On decode failure it falls back to raw-byte base64 with a
// default MIME type, the caller must always get something to send.
func EncodeImagePayload(imageBytes []byte, maxDimension int, quality int) (EncodedImage, error) {
	img, format, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		fmt.Printf("[Encode] failed to decode image (%d bytes), sending raw base64: %v\n", len(imageBytes), err)
		return EncodedImage{
			Data:     imageBytes,
			Base64:   base64.StdEncoding.EncodeToString(imageBytes),
			MIMEType: "image/jpeg",
		}, nil
	}

	img = applyExifOrientation(imageBytes, img)
	img = downscaleToFit(img, maxDimension)

	var buf bytes.Buffer
	mimeType := "image/jpeg"
	if format == "png" && hasAlpha(img) {
		mimeType = "image/png"
		if err := png.Encode(&buf, img); err != nil {
			return EncodedImage{}, fmt.Errorf("failed to encode png: %w", err)
		}
	} else {
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return EncodedImage{}, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	}

	bounds := img.Bounds()
	return EncodedImage{
		Data:     buf.Bytes(),
		Base64:   base64.StdEncoding.EncodeToString(buf.Bytes()),
		MIMEType: mimeType,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}

// DetectImageMIMEType sniffs the MIME type from the image bytes themselves.
// Unrecognized content defaults to image/jpeg, the generation API rejects
// non-image MIME types outright.
func DetectImageMIMEType(data []byte) string {
	detected := http.DetectContentType(data)
	if strings.HasPrefix(detected, "image/") {
		return detected
	}
	return "image/jpeg"
}

// PayloadByteCeiling caps the combined base64 payload shipped in one
// generation request. Package variable so deployments behind stricter
// gateways can lower it.
var PayloadByteCeiling = 12 * 1024 * 1024

const (
	startDimension      = 1536
	startJpegQuality    = 85
	minDimension        = 512
	minJpegQuality      = 50
	maxBudgetIterations = 6
)

// EncodeImagesUnderBudget encodes every image and, when the combined base64
// payload would blow past the request size ceiling, re-encodes them at
// progressively smaller dimensions and JPEG qualities. The primary subject
// image is tightened last so identity detail survives as long as possible.
// Best effort: after the iteration cap the images are returned as-is even if
// still over budget.
func EncodeImagesUnderBudget(rawImages [][]byte, primaryIndex int) ([]EncodedImage, error) {
	dims := make([]int, len(rawImages))
	quals := make([]int, len(rawImages))
	encoded := make([]EncodedImage, len(rawImages))
	for i, raw := range rawImages {
		dims[i] = startDimension
		quals[i] = startJpegQuality
		img, err := EncodeImagePayload(raw, dims[i], quals[i])
		if err != nil {
			return nil, err
		}
		encoded[i] = img
	}

	for iteration := 0; iteration < maxBudgetIterations; iteration++ {
		if payloadBase64Size(encoded) <= PayloadByteCeiling {
			break
		}
		tightenPrimary := iteration >= maxBudgetIterations/2
		for i, raw := range rawImages {
			if i == primaryIndex && !tightenPrimary {
				continue
			}
			dims[i] = maxInt(minDimension, int(float64(dims[i])*0.85))
			quals[i] = maxInt(minJpegQuality, quals[i]-6)
			img, err := EncodeImagePayload(raw, dims[i], quals[i])
			if err != nil {
				return nil, err
			}
			encoded[i] = img
		}
		fmt.Printf("[Encode] payload over budget, iteration %d: %d bytes base64\n", iteration+1, payloadBase64Size(encoded))
	}
	return encoded, nil
}

func payloadBase64Size(images []EncodedImage) int {
	total := 0
	for _, img := range images {
		total += len(img.Base64)
	}
	return total
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func downscaleToFit(img image.Image, maxDimension int) image.Image {
	if maxDimension <= 0 {
		return img
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	longest := width
	if height > longest {
		longest = height
	}
	if longest <= maxDimension {
		return img
	}
	scale := float64(maxDimension) / float64(longest)
	newWidth := int(float64(width) * scale)
	newHeight := int(float64(height) * scale)
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Over, nil)
	return dst
}

func hasAlpha(img image.Image) bool {
	if opaquer, ok := img.(interface{ Opaque() bool }); ok {
		return !opaquer.Opaque()
	}
	return false
}

// applyExifOrientation re-renders the image upright according to the stored
// EXIF orientation tag. Missing or unreadable EXIF leaves the image untouched.
func applyExifOrientation(raw []byte, img image.Image) image.Image {
	meta, err := exif.Decode(bytes.NewReader(raw))
	if err != nil {
		return img
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return img
	}
	orientation, err := tag.Int(0)
	if err != nil || orientation <= 1 {
		return img
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	var dst *image.RGBA
	switch orientation {
	case 2, 3, 4:
		dst = image.NewRGBA(image.Rect(0, 0, width, height))
	case 5, 6, 7, 8:
		dst = image.NewRGBA(image.Rect(0, 0, height, width))
	default:
		return img
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := img.At(bounds.Min.X+x, bounds.Min.Y+y)
			switch orientation {
			case 2: // mirrored horizontally
				dst.Set(width-1-x, y, c)
			case 3: // rotated 180
				dst.Set(width-1-x, height-1-y, c)
			case 4: // mirrored vertically
				dst.Set(x, height-1-y, c)
			case 5: // mirrored and rotated 270 CW
				dst.Set(y, x, c)
			case 6: // rotated 90 CW
				dst.Set(height-1-y, x, c)
			case 7: // mirrored and rotated 90 CW
				dst.Set(height-1-y, width-1-x, c)
			case 8: // rotated 270 CW
				dst.Set(y, width-1-x, c)
			}
		}
	}
	return dst
}
