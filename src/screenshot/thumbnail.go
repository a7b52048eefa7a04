package screenshot

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
)

// Preview bounds used by the in-page and popup previews.
const (
	PreviewMaxWidth  = 400
	PreviewMaxHeight = 250
)

// IconSizes are the square icon sizes produced by ResizeIcons.
var IconSizes = []int{16, 48, 128}

// Thumbnail scales png down to fit maxW x maxH, keeping the aspect ratio.
// Images that already fit are returned unchanged.
func Thumbnail(png []byte, maxW, maxH int) ([]byte, error) {
	img, err := DecodePNG(png)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() <= maxW && b.Dy() <= maxH {
		return png, nil
	}
	return EncodePNG(imaging.Fit(img, maxW, maxH, imaging.Lanczos))
}

// ResizeIcons writes iconN.png for every size in IconSizes into outDir.
func ResizeIcons(inputPath, outDir string) ([]string, error) {
	img, err := imaging.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", inputPath, err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", outDir, err)
	}

	var written []string
	for _, size := range IconSizes {
		resized := imaging.Resize(img, size, size, imaging.Lanczos)
		out := filepath.Join(outDir, fmt.Sprintf("icon%d.png", size))
		if err := imaging.Save(resized, out); err != nil {
			return written, fmt.Errorf("failed to save %s: %w", out, err)
		}
		written = append(written, out)
	}
	return written, nil
}
