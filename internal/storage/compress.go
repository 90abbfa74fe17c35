package storage

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names used inside the compression envelope.
const (
	AlgoGzip = "gzip"
	AlgoZstd = "zstd"
	AlgoLZ4  = "lz4"
)

const envelopePrefix = "__compressed__:"

// Compress wraps payload in the self-describing envelope
// "__compressed__:<alg>:<original_size>\n<base64-payload>" using algo. An
// empty algo or a payload shorter than minSize is returned unmodified —
// callers skip compression entirely below the configured threshold.
func Compress(payload []byte, algo string, minSize int) ([]byte, error) {
	if algo == "" || len(payload) < minSize {
		return payload, nil
	}
	compressed, err := compressBytes(payload, algo)
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}
	header := fmt.Sprintf("%s%s:%d\n", envelopePrefix, algo, len(payload))
	encoded := base64.StdEncoding.EncodeToString(compressed)
	return append([]byte(header), []byte(encoded)...), nil
}

// Decompress reverses Compress. A payload with no envelope prefix is
// returned unmodified — this is the backward-compatibility path for data
// written before compression was enabled.
func Decompress(payload []byte) ([]byte, error) {
	if !bytes.HasPrefix(payload, []byte(envelopePrefix)) {
		return payload, nil
	}
	nl := bytes.IndexByte(payload, '\n')
	if nl < 0 {
		return nil, fmt.Errorf("decompress: malformed envelope, no newline")
	}
	header := string(payload[len(envelopePrefix):nl])
	parts := strings.SplitN(header, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("decompress: malformed envelope header %q", header)
	}
	algo := parts[0]
	origSize, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decompress: malformed size in header %q: %w", header, err)
	}
	raw, err := base64.StdEncoding.DecodeString(string(payload[nl+1:]))
	if err != nil {
		return nil, fmt.Errorf("decompress: base64 decode: %w", err)
	}
	out, err := decompressBytes(raw, algo)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	if len(out) != origSize {
		return nil, fmt.Errorf("decompress: size mismatch, envelope says %d, got %d", origSize, len(out))
	}
	return out, nil
}

func compressBytes(payload []byte, algo string) ([]byte, error) {
	switch algo {
	case AlgoGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case AlgoZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(payload, nil), nil
	case AlgoLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algo)
	}
}

func decompressBytes(payload []byte, algo string) ([]byte, error) {
	switch algo {
	case AlgoGzip:
		r, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case AlgoZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(payload, nil)
	case AlgoLZ4:
		r := lz4.NewReader(bytes.NewReader(payload))
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unknown compression algorithm %q", algo)
	}
}
