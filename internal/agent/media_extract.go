package agent

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/nexus/pkg/models"
)

// maxMediaAttachmentSize is the per-file cap (Anthropic's image limit) applied
// before a tool-produced file is base64-encoded and attached to a message.
const maxMediaAttachmentSize = 20 * 1024 * 1024

// maxMediaAttachmentsPerTurn bounds how many files extracted from a single
// tool result are loaded and attached.
const maxMediaAttachmentsPerTurn = 5

const savedToPrefix = "saved to: "

// extractMediaPaths scans a tool result string for file paths the tool
// reported writing to disk: a JSON "mediaPath" field, or any line containing
// the literal "saved to: " followed by a path that exists on disk. Paths are
// deduplicated and returned in sorted order.
func extractMediaPaths(result string) []string {
	var paths []string

	var parsed map[string]any
	if err := json.Unmarshal([]byte(result), &parsed); err == nil {
		if p, ok := parsed["mediaPath"].(string); ok && p != "" {
			if _, statErr := os.Stat(p); statErr == nil {
				paths = append(paths, p)
			}
		}
	}

	for _, line := range strings.Split(result, "\n") {
		idx := strings.Index(line, savedToPrefix)
		if idx < 0 {
			continue
		}
		path := strings.TrimSpace(line[idx+len(savedToPrefix):])
		if path == "" {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			paths = append(paths, path)
		}
	}

	sort.Strings(paths)
	return dedupeStrings(paths)
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}

var mediaMagicBytes = map[string][]byte{
	".png":  {0x89, 0x50, 0x4E, 0x47},
	".jpg":  {0xFF, 0xD8, 0xFF},
	".jpeg": {0xFF, 0xD8, 0xFF},
	".gif":  []byte("GIF8"),
	".pdf":  []byte("%PDF"),
}

var mediaMimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// validateMediaMagicBytes confirms the file's content actually matches the
// format implied by its extension, rejecting mismatched or corrupted files
// (e.g. a ".png" whose first bytes are a JPEG SOI marker).
func validateMediaMagicBytes(ext string, data []byte) bool {
	if ext == ".webp" {
		return len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP"))
	}
	magic, ok := mediaMagicBytes[ext]
	if !ok {
		return false
	}
	return bytes.HasPrefix(data, magic)
}

// loadAndEncodeMedia reads up to maxMediaAttachmentsPerTurn of the given
// paths, validates size and magic bytes, and returns them as attachments
// ready to embed on the next assistant-facing message. Files that are
// missing, oversized, of an unsupported format, or fail magic-byte
// verification are skipped rather than failing the turn.
func loadAndEncodeMedia(paths []string) []models.Attachment {
	var attachments []models.Attachment
	for _, path := range paths {
		if len(attachments) >= maxMediaAttachmentsPerTurn {
			break
		}
		ext := strings.ToLower(filepath.Ext(path))
		mimeType, ok := mediaMimeTypes[ext]
		if !ok {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if len(data) > maxMediaAttachmentSize {
			continue
		}
		if !validateMediaMagicBytes(ext, data) {
			continue
		}
		attachments = append(attachments, models.Attachment{
			Type:     "image",
			Filename: filepath.Base(path),
			MimeType: mimeType,
			Size:     int64(len(data)),
			URL:      "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		})
	}
	return attachments
}
