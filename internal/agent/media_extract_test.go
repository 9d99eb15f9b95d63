package agent

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
var jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}

func TestExtractMediaPathsFromJSONField(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "chart.png", pngHeader)

	result := `{"status":"ok","mediaPath":"` + path + `"}`
	paths := extractMediaPaths(result)
	if len(paths) != 1 || paths[0] != path {
		t.Fatalf("paths = %v, want [%s]", paths, path)
	}
}

func TestExtractMediaPathsFromSavedToLine(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "shot.png", pngHeader)

	result := "Screenshot captured.\nImage saved to: " + path + "\nDone."
	paths := extractMediaPaths(result)
	if len(paths) != 1 || paths[0] != path {
		t.Fatalf("paths = %v, want [%s]", paths, path)
	}
}

func TestExtractMediaPathsIgnoresMissingFilesAndDedupes(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "real.png", pngHeader)

	result := `{"mediaPath":"` + path + `"}` + "\n" +
		"saved to: " + path + "\n" +
		"saved to: " + filepath.Join(dir, "does-not-exist.png")
	paths := extractMediaPaths(result)
	if len(paths) != 1 {
		t.Fatalf("paths = %v, want single deduplicated entry", paths)
	}
}

func TestLoadAndEncodeMediaRejectsMismatchedMagicBytes(t *testing.T) {
	dir := t.TempDir()
	// A ".png" whose content is a JPEG SOI marker must be rejected.
	lying := writeTempFile(t, dir, "fake.png", jpegHeader)
	honest := writeTempFile(t, dir, "real.png", pngHeader)

	attachments := loadAndEncodeMedia([]string{lying, honest})
	if len(attachments) != 1 {
		t.Fatalf("got %d attachments, want 1", len(attachments))
	}
	if attachments[0].Filename != "real.png" {
		t.Errorf("attachment = %s, want real.png", attachments[0].Filename)
	}
}

func TestLoadAndEncodeMediaValidFormats(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeTempFile(t, dir, "a.png", pngHeader),
		writeTempFile(t, dir, "b.jpg", jpegHeader),
		writeTempFile(t, dir, "c.gif", []byte("GIF89a......")),
		writeTempFile(t, dir, "d.webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 ")),
		writeTempFile(t, dir, "e.pdf", []byte("%PDF-1.7\n")),
	}

	attachments := loadAndEncodeMedia(files)
	if len(attachments) != len(files) {
		t.Fatalf("got %d attachments, want %d", len(attachments), len(files))
	}
}

func TestLoadAndEncodeMediaCapsAttachmentCount(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < maxMediaAttachmentsPerTurn+3; i++ {
		paths = append(paths, writeTempFile(t, dir, "f"+string(rune('a'+i))+".png", pngHeader))
	}

	attachments := loadAndEncodeMedia(paths)
	if len(attachments) != maxMediaAttachmentsPerTurn {
		t.Fatalf("got %d attachments, want cap of %d", len(attachments), maxMediaAttachmentsPerTurn)
	}
}

func TestLoadAndEncodeMediaSkipsUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, "notes.txt", []byte("plain text"))

	attachments := loadAndEncodeMedia([]string{path})
	if len(attachments) != 0 {
		t.Fatalf("got %d attachments, want 0 for unsupported extension", len(attachments))
	}
}
