package pipeline

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/yungbote/birdscan-backend/internal/config"
	pkgerrors "github.com/yungbote/birdscan-backend/internal/pkg/errors"
	"github.com/yungbote/birdscan-backend/internal/pkg/logger"
	"github.com/yungbote/birdscan-backend/internal/types"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

// Unpacker turns one uploaded artifact into its image items. A single image
// passes through untouched; an archive is opened, filtered, and extracted in
// one pass. Any structural problem with an archive aborts the whole batch.
type Unpacker struct {
	log *logger.Logger
	cfg config.UnpackConfig
}

func NewUnpacker(log *logger.Logger, cfg config.UnpackConfig) *Unpacker {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.MaxUncompressed <= 0 {
		cfg.MaxUncompressed = 50 << 30
	}
	return &Unpacker{log: log.With("component", "Unpacker"), cfg: cfg}
}

func (u *Unpacker) Unpack(artifact types.UploadArtifact) ([]types.ImageItem, error) {
	if artifact.Kind == types.ArtifactKindImage {
		name := SanitizeName(baseName(artifact.Key))
		return []types.ImageItem{{
			SourceKey: artifact.Key,
			Name:      name,
			Data:      artifact.Data,
			SizeBytes: int64(len(artifact.Data)),
		}}, nil
	}

	zr, err := zip.NewReader(bytes.NewReader(artifact.Data), int64(len(artifact.Data)))
	if err != nil {
		return nil, fmt.Errorf("open archive %q: %v: %w", artifact.Key, err, pkgerrors.ErrCorruptArchive)
	}

	if len(zr.File) > u.cfg.MaxEntries {
		return nil, fmt.Errorf("archive %q has %d entries (limit %d): %w",
			artifact.Key, len(zr.File), u.cfg.MaxEntries, pkgerrors.ErrCorruptArchive)
	}
	var uncompressed int64
	for _, f := range zr.File {
		uncompressed += int64(f.UncompressedSize64)
	}
	if uncompressed > u.cfg.MaxUncompressed {
		return nil, fmt.Errorf("archive %q expands to %d bytes (limit %d): %w",
			artifact.Key, uncompressed, u.cfg.MaxUncompressed, pkgerrors.ErrCorruptArchive)
	}

	items := make([]types.ImageItem, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if isArchiveMetadata(f.Name) {
			u.log.Debug("skipping archive metadata entry", "entry", f.Name)
			continue
		}
		if !IsImageName(f.Name) {
			u.log.Debug("skipping non-image entry", "entry", f.Name)
			continue
		}

		data, err := readZipEntry(f)
		if err != nil {
			return nil, fmt.Errorf("read archive entry %q: %v: %w", f.Name, err, pkgerrors.ErrCorruptArchive)
		}

		items = append(items, types.ImageItem{
			SourceKey: artifact.Key,
			Name:      SanitizeName(baseName(f.Name)),
			Data:      data,
			SizeBytes: int64(len(data)),
		})
	}

	u.log.Info("archive unpacked", "key", artifact.Key, "entries", len(zr.File), "images", len(items))
	return items, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// IsImageName reports whether name carries an accepted image extension.
func IsImageName(name string) bool {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return false
	}
	return imageExtensions[strings.ToLower(name[i:])]
}

func isArchiveMetadata(name string) bool {
	n := strings.ToLower(name)
	return strings.HasPrefix(n, "__macosx/") ||
		strings.HasPrefix(n, ".ds_store") ||
		strings.HasSuffix(n, ".ds_store") ||
		strings.HasPrefix(n, "._") ||
		strings.Contains(n, "/._") ||
		n == "thumbs.db"
}

var unsafeNameChars = regexp.MustCompile(`[^\w\-.]`)

// SanitizeName strips path components and replaces characters that are not
// safe in a store key. A leading dot is rewritten so items never become
// hidden files downstream.
func SanitizeName(name string) string {
	name = baseName(name)
	name = unsafeNameChars.ReplaceAllString(name, "_")
	if strings.HasPrefix(name, ".") {
		name = "file_" + name[1:]
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}

func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
