package divisions

import (
	"bytes"
	"image"

	"github.com/bep/imagemeta"
)

// Orientation is the EXIF orientation tag (1-8). Phones store portrait photos
// rotated and rely on this tag, so hashing must undo it first.
type Orientation int

const (
	OrientationNormal Orientation = 1
	OrientationFlipH  Orientation = 2
	OrientationRot180 Orientation = 3
	OrientationFlipV  Orientation = 4
	// Transpose mirrors along the top-left to bottom-right diagonal.
	OrientationTranspose  Orientation = 5
	OrientationRot270     Orientation = 6
	OrientationTransverse Orientation = 7
	OrientationRot90      Orientation = 8
)

// ExtractOrientation reads the EXIF orientation from raw image bytes.
// Returns OrientationNormal when the data has no EXIF block or the tag is
// missing or out of range. Never returns an error.
func ExtractOrientation(data []byte) Orientation {
	if len(data) == 0 {
		return OrientationNormal
	}

	orientation := OrientationNormal
	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return ti.Source == imagemeta.EXIF && ti.Tag == "Orientation"
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			if v, ok := tagValueInt(ti.Value); ok && v >= 1 && v <= 8 {
				orientation = Orientation(v)
			}
			return nil
		},
	})
	if err != nil {
		return OrientationNormal
	}
	return orientation
}

// tagValueInt extracts an integer from a decoded tag value.
// EXIF SHORT values may surface as any integer width or as a one-element slice.
func tagValueInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case uint16:
		return int(val), true
	case uint32:
		return int(val), true
	case uint8:
		return int(val), true
	case float64:
		return int(val), true
	case []uint16:
		if len(val) > 0 {
			return int(val[0]), true
		}
	case []any:
		if len(val) > 0 {
			return tagValueInt(val[0])
		}
	}
	return 0, false
}

// applyOrientation returns img transformed so that it displays upright.
func applyOrientation(img image.Image, o Orientation) image.Image {
	if o <= OrientationNormal || o > OrientationRot90 {
		return img
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dw, dh := w, h
	if o >= OrientationTranspose {
		dw, dh = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch o {
			case OrientationFlipH:
				dx, dy = w-1-x, y
			case OrientationRot180:
				dx, dy = w-1-x, h-1-y
			case OrientationFlipV:
				dx, dy = x, h-1-y
			case OrientationTranspose:
				dx, dy = y, x
			case OrientationRot270:
				dx, dy = h-1-y, x
			case OrientationTransverse:
				dx, dy = h-1-y, w-1-x
			case OrientationRot90:
				dx, dy = y, w-1-x
			}
			dst.Set(dx, dy, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}
