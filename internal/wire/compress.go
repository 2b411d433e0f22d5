package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

const (
	CompressionNone    = "none"
	CompressionGzip    = "gzip"
	CompressionDeflate = "deflate"
)

// Compress encodes body with method and returns the Content-Encoding to
// advertise ("" for none).
func Compress(body []byte, method string) ([]byte, string, error) {
	var buf bytes.Buffer
	switch method {
	case "", CompressionNone:
		return body, "", nil
	case CompressionGzip:
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, "", fmt.Errorf("gzip: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("gzip: %w", err)
		}
	case CompressionDeflate:
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, "", fmt.Errorf("deflate: %w", err)
		}
		if _, err := w.Write(body); err != nil {
			return nil, "", fmt.Errorf("deflate: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("deflate: %w", err)
		}
	default:
		return nil, "", fmt.Errorf("unknown compression: %s", method)
	}
	return buf.Bytes(), method, nil
}

// Decompress reverses Compress for an inbound Content-Encoding header.
func Decompress(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch encoding {
	case "", "identity":
		return io.NopCloser(r), nil
	case CompressionGzip:
		return gzip.NewReader(r)
	case CompressionDeflate:
		return flate.NewReader(r), nil
	default:
		return nil, fmt.Errorf("unsupported content encoding: %s", encoding)
	}
}
