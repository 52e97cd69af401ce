package transform

import (
	"context"
	"fmt"

	"attachstore/internal/usecase/variant"
)

// Resize scales to the given dimensions. With keepAspect the height is
// recomputed from the source's aspect ratio.
func Resize(width, height int, keepAspect bool) variant.TransformFunc {
	return func(ctx context.Context, srcPath, destPath, format string) error {
		if width <= 0 || height <= 0 {
			return fmt.Errorf("resize dimensions must be positive")
		}

		img, err := decodeFile(srcPath)
		if err != nil {
			return err
		}

		w, h := width, height
		if keepAspect {
			bounds := img.Bounds()
			ratio := float64(bounds.Dx()) / float64(bounds.Dy())
			h = int(float64(w) / ratio)
		}

		return encodeFile(destPath, scale(img, w, h), format)
	}
}
