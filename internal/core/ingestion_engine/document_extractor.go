package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"

	"github.com/kineticlabs/battintel/internal/core"
)

// DocconvExtractor extracts plain text via docconv. Markdown and plain
// text bypass docconv entirely since they chunk as-is.
type DocconvExtractor struct {
	useReadability bool
}

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool) *DocconvExtractor {
	return &DocconvExtractor{useReadability: useReadability}
}

func (e *DocconvExtractor) ExtractText(ctx context.Context, data []byte, contentType string) (string, error) {
	switch contentType {
	case "text/markdown", "text/plain", "":
		return string(data), nil
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
	if err != nil {
		return "", fmt.Errorf("docconv: extract %s: %w", contentType, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(res.Body) == "" {
		return "", fmt.Errorf("docconv: no text extracted from %s", contentType)
	}
	return res.Body, nil
}

// ContentTypeForFile maps a file extension to the MIME type docconv
// expects. Unknown extensions fall back to plain text.
func ContentTypeForFile(name string) string {
	name = strings.ToLower(name)
	switch {
	case strings.HasSuffix(name, ".md"), strings.HasSuffix(name, ".markdown"):
		return "text/markdown"
	case strings.HasSuffix(name, ".pdf"):
		return "application/pdf"
	case strings.HasSuffix(name, ".docx"):
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case strings.HasSuffix(name, ".doc"):
		return "application/msword"
	case strings.HasSuffix(name, ".html"), strings.HasSuffix(name, ".htm"):
		return "text/html"
	default:
		return "text/plain"
	}
}
