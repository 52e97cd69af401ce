package transform

import (
	"context"
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"attachstore/internal/domain"
	"attachstore/internal/usecase/variant"
)

// Thumbnail produces a thumbnail bounded by size. With cropToFit the
// source is center-cropped square first, yielding a size x size output.
func Thumbnail(size int, cropToFit bool) variant.TransformFunc {
	return func(ctx context.Context, srcPath, destPath, format string) error {
		if size <= 0 {
			size = domain.DefaultThumbnailSize
		}

		img, err := decodeFile(srcPath)
		if err != nil {
			return err
		}

		var thumb image.Image
		if cropToFit {
			thumb = cropSquare(img, size)
		} else {
			bounds := img.Bounds()
			origWidth := bounds.Dx()
			origHeight := bounds.Dy()

			var w, h int
			if origWidth > origHeight {
				h = size
				w = origWidth * size / origHeight
			} else {
				w = size
				h = origHeight * size / origWidth
			}
			thumb = scale(img, w, h)
		}

		if err := encodeFile(destPath, thumb, format); err != nil {
			return fmt.Errorf("thumbnail: %w", err)
		}
		return nil
	}
}

func cropSquare(img image.Image, size int) image.Image {
	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()

	var cropX, cropY, cropSize int
	if origWidth > origHeight {
		cropSize = origHeight
		cropX = (origWidth - origHeight) / 2
	} else {
		cropSize = origWidth
		cropY = (origHeight - origWidth) / 2
	}

	cropped := image.NewRGBA(image.Rect(0, 0, cropSize, cropSize))
	xdraw.BiLinear.Scale(cropped, cropped.Bounds(), img,
		image.Rect(cropX, cropY, cropX+cropSize, cropY+cropSize), xdraw.Over, nil)

	return scale(cropped, size, size)
}
