package core

import "context"

// DocumentExtractor converts raw file bytes into plain text ready for
// chunking. The contentType hint picks the parsing strategy.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, data []byte, contentType string) (string, error)
}
