package analyzer

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"attachstore/internal/domain"
)

// ImageAnalyzer reads pixel dimensions of image files.
type ImageAnalyzer struct{}

func NewImageAnalyzer() *ImageAnalyzer {
	return &ImageAnalyzer{}
}

func (a *ImageAnalyzer) Analyze(path, contentType string) map[string]any {
	if !strings.HasPrefix(contentType, "image/") {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil
	}

	return map[string]any{
		domain.MetaWidth:  cfg.Width,
		domain.MetaHeight: cfg.Height,
	}
}
