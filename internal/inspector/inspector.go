package inspector

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"

	"attachstore/internal/analyzer"
	"attachstore/internal/domain"
)

// Inspector computes content-derived metadata for a local file: byte
// size, MD5 checksum, sniffed content type and whatever the registered
// analyzers can extract.
type Inspector struct {
	analyzers []analyzer.Analyzer
}

func New(analyzers ...analyzer.Analyzer) *Inspector {
	return &Inspector{analyzers: analyzers}
}

// Stat reads the file at path. The declared content type is trusted when
// non-empty, otherwise it is sniffed from the content. Analyzer failures
// never surface as errors: only an unreadable path fails.
func (i *Inspector) Stat(path, filename, contentType string) (*domain.StatResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if contentType == "" {
		mt, err := mimetype.DetectFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to sniff content type of %s: %w", path, err)
		}
		contentType = mt.String()
	}

	return &domain.StatResult{
		Filename:    filename,
		ContentType: contentType,
		ByteSize:    fi.Size(),
		Checksum:    hex.EncodeToString(h.Sum(nil)),
		Metadata:    analyzer.Merge(i.analyzers, path, contentType),
	}, nil
}
