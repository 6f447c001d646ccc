package cmd

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// writeImage stores an inline data URI under dir and returns the file path.
// Hosted URLs are returned unchanged. Without dir, data URIs are not shown.
func writeImage(dir, slotID string, turn int, image string) (string, error) {
	if !strings.HasPrefix(image, "data:") {
		return image, nil
	}
	if dir == "" {
		return "", nil
	}

	mime, payload, ok := strings.Cut(strings.TrimPrefix(image, "data:"), ";base64,")
	if !ok {
		return "", fmt.Errorf("unsupported data URI")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("decoding image: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating image directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s-%03d%s", shortID(slotID), turn, imageExt(mime)))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return path, nil
}

func imageExt(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
