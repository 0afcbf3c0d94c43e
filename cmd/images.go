package cmd

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/samsaffron/tierchat/internal/llm"
)

// maxImageBytes is the Messages API limit for one base64 image source.
const maxImageBytes = 5 << 20

var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// loadImages reads and encodes image attachments.
func loadImages(paths []string) ([]llm.Image, error) {
	var images []llm.Image
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		if len(data) > maxImageBytes {
			return nil, fmt.Errorf("image %s is %d bytes, over the %d byte limit", path, len(data), maxImageBytes)
		}
		mediaType := http.DetectContentType(data)
		if i := strings.Index(mediaType, ";"); i >= 0 {
			mediaType = mediaType[:i]
		}
		if !supportedImageTypes[mediaType] {
			return nil, fmt.Errorf("image %s: unsupported type %s", path, mediaType)
		}
		images = append(images, llm.Image{
			MediaType: mediaType,
			Data:      base64.StdEncoding.EncodeToString(data),
		})
	}
	return images, nil
}
