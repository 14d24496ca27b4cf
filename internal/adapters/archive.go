package adapters

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"webkernel-modules/internal/types"
)

// maxExtractedBytes caps the total uncompressed size of one archive.
const maxExtractedBytes int64 = 2 << 30

var (
	zipMagic  = []byte("PK\x03\x04")
	zipEmpty  = []byte("PK\x05\x06")
	gzipMagic = []byte{0x1f, 0x8b}
)

// ExtractArchive unpacks a zip or tar.gz archive into destDir. The format is
// detected from the file header. Entries that would land outside destDir
// are rejected.
func ExtractArchive(archivePath string, destDir string) error {
	header := make([]byte, 4)
	file, err := os.Open(archivePath)
	if err != nil {
		return types.NewModuleError("failed to open archive", err)
	}
	n, _ := io.ReadFull(file, header)
	_ = file.Close()
	header = header[:n]
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return types.NewModuleError("failed to create extraction directory", err)
	}
	switch {
	case bytes.HasPrefix(header, zipMagic), bytes.HasPrefix(header, zipEmpty):
		return extractZip(archivePath, destDir)
	case bytes.HasPrefix(header, gzipMagic):
		return extractTarGz(archivePath, destDir)
	default:
		return types.NewModuleError("unsupported or corrupt archive format", nil)
	}
}

type extractBudget struct {
	remaining int64
}

func (b *extractBudget) copy(dst io.Writer, src io.Reader) error {
	n, err := io.Copy(dst, io.LimitReader(src, b.remaining+1))
	if err != nil {
		return err
	}
	b.remaining -= n
	if b.remaining < 0 {
		return types.NewModuleError(fmt.Sprintf("archive expands beyond %d bytes", maxExtractedBytes), nil)
	}
	return nil
}

func extractZip(archivePath string, destDir string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return types.NewModuleError("corrupt zip archive", err)
	}
	defer reader.Close()
	budget := &extractBudget{remaining: maxExtractedBytes}
	for _, entry := range reader.File {
		target, err := archiveEntryPath(destDir, entry.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		mode := entry.Mode()
		switch {
		case mode.IsDir() || strings.HasSuffix(entry.Name, "/"):
			if err := os.MkdirAll(target, 0755); err != nil {
				return types.NewModuleError("failed to create directory from archive", err)
			}
		case mode&fs.ModeSymlink != 0:
			continue
		default:
			if err := writeZipEntry(entry, target, budget); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeZipEntry(entry *zip.File, target string, budget *extractBudget) error {
	src, err := entry.Open()
	if err != nil {
		return types.NewModuleError("corrupt zip entry "+entry.Name, err)
	}
	defer src.Close()
	return writeArchiveFile(target, entry.Mode().Perm(), src, budget)
}

func extractTarGz(archivePath string, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return types.NewModuleError("failed to open archive", err)
	}
	defer file.Close()
	gz, err := gzip.NewReader(file)
	if err != nil {
		return types.NewModuleError("corrupt gzip stream", err)
	}
	defer gz.Close()
	reader := tar.NewReader(gz)
	budget := &extractBudget{remaining: maxExtractedBytes}
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return types.NewModuleError("corrupt tar archive", err)
		}
		target, err := archiveEntryPath(destDir, header.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return types.NewModuleError("failed to create directory from archive", err)
			}
		case tar.TypeReg:
			if err := writeArchiveFile(target, fs.FileMode(header.Mode).Perm(), reader, budget); err != nil {
				return err
			}
		default:
			// Links, devices and global pax headers are not module content.
		}
	}
}

func writeArchiveFile(target string, perm fs.FileMode, src io.Reader, budget *extractBudget) error {
	if perm == 0 {
		perm = 0644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return types.NewModuleError("failed to create directory from archive", err)
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0600)
	if err != nil {
		return types.NewModuleError("failed to create file from archive", err)
	}
	if err := budget.copy(out, src); err != nil {
		_ = out.Close()
		if types.KindOf(err) != "" {
			return err
		}
		return types.NewModuleError("failed to extract "+filepath.Base(target), err)
	}
	if err := out.Close(); err != nil {
		return types.NewModuleError("failed to write "+filepath.Base(target), err)
	}
	return nil
}

// archiveEntryPath maps an entry name into destDir. It returns "" for the
// archive root itself.
func archiveEntryPath(destDir string, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(name, "./")))
	if cleaned == "." {
		return "", nil
	}
	if !filepath.IsLocal(cleaned) {
		return "", types.NewModuleError("archive entry escapes extraction directory: "+name, nil)
	}
	return filepath.Join(destDir, cleaned), nil
}

// FlattenSingleRoot moves the contents of a lone top-level directory up into
// dir, as produced by host generated zipballs. It reports whether it did.
func FlattenSingleRoot(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, types.NewModuleError("failed to read extracted tree", err)
	}
	if len(entries) != 1 || !entries[0].IsDir() {
		return false, nil
	}
	wrapper := filepath.Join(dir, ".flatten-"+uuid.NewString())
	if err := os.Rename(filepath.Join(dir, entries[0].Name()), wrapper); err != nil {
		return false, types.NewModuleError("failed to flatten extracted tree", err)
	}
	children, err := os.ReadDir(wrapper)
	if err != nil {
		return false, types.NewModuleError("failed to flatten extracted tree", err)
	}
	for _, child := range children {
		if err := os.Rename(filepath.Join(wrapper, child.Name()), filepath.Join(dir, child.Name())); err != nil {
			return false, types.NewModuleError("failed to flatten extracted tree", err)
		}
	}
	if err := os.Remove(wrapper); err != nil {
		return false, types.NewModuleError("failed to remove archive wrapper directory", err)
	}
	return true, nil
}
