package screenshot

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	xdraw "golang.org/x/image/draw"
)

const pngMIME = "image/png"

var ErrInvalidDataURL = errors.New("invalid data URL")

// Crop cuts rect out of the raw full-surface PNG. rect is in logical pixels;
// dpr converts it to physical pixels of the raw image. The output image is
// round(width*dpr) x round(height*dpr) with the selection at its origin.
func Crop(raw []byte, rect Rect, dpr float64) ([]byte, error) {
	if dpr <= 0 {
		dpr = 1
	}
	src, err := DecodePNG(raw)
	if err != nil {
		return nil, err
	}

	sx := scale(rect.Left, dpr)
	sy := scale(rect.Top, dpr)
	sw := scale(rect.Width, dpr)
	sh := scale(rect.Height, dpr)
	if sw <= 0 || sh <= 0 {
		return nil, fmt.Errorf("invalid crop dimensions: %dx%d", sw, sh)
	}

	origin := src.Bounds().Min
	srcRect := image.Rect(sx, sy, sx+sw, sy+sh).Add(origin)

	dst := image.NewRGBA(image.Rect(0, 0, sw, sh))
	xdraw.Copy(dst, image.Point{}, src, srcRect, xdraw.Src, nil)

	return EncodePNG(dst)
}

func scale(v int, dpr float64) int {
	return int(math.Round(float64(v) * dpr))
}

// EncodeDataURL wraps PNG bytes into a data URL.
func EncodeDataURL(png []byte) string {
	return "data:" + pngMIME + ";base64," + base64.StdEncoding.EncodeToString(png)
}

// DecodeDataURL returns the MIME type and raw bytes of a base64 data URL.
func DecodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrInvalidDataURL
	}
	mime, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 || mime == "" {
		return "", nil, fmt.Errorf("%w: expected base64 payload", ErrInvalidDataURL)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return mime, data, nil
}

// DeviceRatio returns the physical pixels per pointer unit of a capture:
// the captured width over the width of the viewport the pointer moved in.
func DeviceRatio(rawDataURL string, viewportWidth int) (float64, error) {
	if viewportWidth <= 0 {
		return 0, fmt.Errorf("invalid viewport width %d", viewportWidth)
	}
	_, raw, err := DecodeDataURL(rawDataURL)
	if err != nil {
		return 0, err
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("failed to read PNG header: %w", err)
	}
	return float64(cfg.Width) / float64(viewportWidth), nil
}

// CropDataURL is Crop over data URLs, the form images take on the message boundary.
func CropDataURL(rawDataURL string, rect Rect, dpr float64) (string, error) {
	_, raw, err := DecodeDataURL(rawDataURL)
	if err != nil {
		return "", err
	}
	out, err := Crop(raw, rect, dpr)
	if err != nil {
		return "", err
	}
	return EncodeDataURL(out), nil
}
