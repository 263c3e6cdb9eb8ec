package export

import (
	"io"
	"os"
	"strings"

	"github.com/andybalholm/brotli"
)

// brotliSink closes the compressor before the underlying file so the
// stream trailer lands on disk.
type brotliSink struct {
	*brotli.Writer
	f *os.File
}

func (s *brotliSink) Close() error {
	if err := s.Writer.Close(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// OpenFileSink creates the output file for the export. With compress
// set, the CSV stream is brotli-compressed and the file gets a .br
// suffix. Returns the sink and the actual path written.
func OpenFileSink(path string, compress bool) (io.WriteCloser, string, error) {
	if compress && !strings.HasSuffix(path, ".br") {
		path += ".br"
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, "", err
	}
	if !compress {
		return f, path, nil
	}
	return &brotliSink{Writer: brotli.NewWriter(f), f: f}, path, nil
}
