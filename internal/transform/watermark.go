package transform

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"attachstore/internal/domain"
	"attachstore/internal/usecase/variant"
)

// Watermark stamps text onto the image at the given position.
func Watermark(text string, position domain.WatermarkPosition, opacity float64) variant.TransformFunc {
	return func(ctx context.Context, srcPath, destPath, format string) error {
		if text == "" {
			text = domain.DefaultWatermarkText
		}
		if opacity <= 0 || opacity > 1 {
			opacity = domain.DefaultWatermarkOpacity
		}

		img, err := decodeFile(srcPath)
		if err != nil {
			return err
		}

		stamped, err := drawText(img, text, position, opacity)
		if err != nil {
			return err
		}

		return encodeFile(destPath, stamped, format)
	}
}

func drawText(img image.Image, text string, position domain.WatermarkPosition, opacity float64) (image.Image, error) {
	ttf, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, image.Point{}, draw.Src)

	const fontSize = 36.0

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(ttf)
	c.SetFontSize(fontSize)
	c.SetClip(result.Bounds())
	c.SetDst(result)
	c.SetSrc(image.NewUniform(color.RGBA{255, 255, 255, uint8(255 * opacity)}))
	c.SetHinting(font.HintingFull)

	textWidth := int(float64(len(text)) * fontSize * 0.6)
	lineHeight := fontSize * 1.2
	textHeight := int(lineHeight)
	margin := 20

	var pt fixed.Point26_6
	switch position {
	case domain.WatermarkTopLeft:
		pt = freetype.Pt(margin, margin+int(fontSize))
	case domain.WatermarkTopRight:
		pt = freetype.Pt(bounds.Dx()-textWidth-margin, margin+int(fontSize))
	case domain.WatermarkTopCenter:
		pt = freetype.Pt((bounds.Dx()-textWidth)/2, margin+int(fontSize))
	case domain.WatermarkBottomLeft:
		pt = freetype.Pt(margin, bounds.Dy()-margin)
	case domain.WatermarkBottomCenter:
		pt = freetype.Pt((bounds.Dx()-textWidth)/2, bounds.Dy()-margin)
	case domain.WatermarkCenter:
		pt = freetype.Pt((bounds.Dx()-textWidth)/2, (bounds.Dy()+textHeight)/2)
	default:
		pt = freetype.Pt(bounds.Dx()-textWidth-margin, bounds.Dy()-margin)
	}

	if _, err := c.DrawString(text, pt); err != nil {
		return nil, fmt.Errorf("failed to draw watermark text: %w", err)
	}
	return result, nil
}
