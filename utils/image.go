package utils

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/nfnt/resize"
)

const (
	maxImageFileSize  = 10 * 1024 * 1024 // 10MB
	maxImageDimension = 1024             // px
	imageQuality      = 85
)

// ErrNotDataURL is returned for strings that are not base64 data URLs
var ErrNotDataURL = errors.New("not a base64 data URL")

// LoadScreenshot reads an image file, downsizes it so neither side exceeds
// 1024px and returns it as a data URL ready to attach to a message
func LoadScreenshot(filePath string) (string, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return "", fmt.Errorf("file not found: %w", err)
	}
	if info.Size() > maxImageFileSize {
		return "", fmt.Errorf("file too large: %d bytes (max %d bytes)", info.Size(), maxImageFileSize)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxImageDimension || bounds.Dy() > maxImageDimension {
		// Keep the aspect ratio
		if bounds.Dx() > bounds.Dy() {
			img = resize.Resize(maxImageDimension, 0, img, resize.Lanczos3)
		} else {
			img = resize.Resize(0, maxImageDimension, img, resize.Lanczos3)
		}
	}

	var buf bytes.Buffer
	mimeType := "image/jpeg"
	if format == "png" {
		mimeType = "image/png"
		err = png.Encode(&buf, img)
	} else {
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: imageQuality})
	}
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}

	return EncodeDataURL(mimeType, buf.Bytes()), nil
}

// EncodeDataURL builds a base64 data URL
func EncodeDataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// DecodeDataURL splits a base64 data URL into its MIME type and bytes
func DecodeDataURL(url string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, ErrNotDataURL
	}
	mimeType, ok := strings.CutSuffix(header, ";base64")
	if !ok || mimeType == "" {
		return "", nil, ErrNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	return mimeType, data, nil
}
