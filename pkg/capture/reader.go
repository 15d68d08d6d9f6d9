package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultChunkSize mirrors the slice size a browser recorder emits for a
// short timeslice.
const DefaultChunkSize = 16 * 1024

// ReaderDevice replays an io.Reader (a file, stdin, a pipe) as if it were a
// live device. The stream ends when the reader is drained or the stream is
// closed, whichever comes first.
type ReaderDevice struct {
	Reader    io.Reader
	MIME      string
	ChunkSize int
}

// NewReaderDevice wraps r. An empty mime defaults to audio/webm.
func NewReaderDevice(r io.Reader, mimeType string) *ReaderDevice {
	return &ReaderDevice{Reader: r, MIME: mimeType}
}

// Open implements Device.
func (d *ReaderDevice) Open(ctx context.Context) (Stream, error) {
	if d.Reader == nil {
		return nil, errors.New("capture: reader device has no reader")
	}
	return newReaderStream(ctx, d.Reader, nil, d.MIME, d.ChunkSize), nil
}

// FileDevice opens a path each time it is started.
type FileDevice struct {
	Path      string
	ChunkSize int
}

// Open implements Device. A file the process may not read is reported as
// ErrPermissionDenied.
func (d *FileDevice) Open(ctx context.Context) (Stream, error) {
	f, err := os.Open(d.Path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.Path)
		}
		return nil, err
	}
	return newReaderStream(ctx, f, f, MIMETypeFor(d.Path), d.ChunkSize), nil
}

// MIMETypeFor guesses an audio MIME type from a file name.
func MIMETypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".webm":
		return "audio/webm"
	case ".wav":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return DefaultMIMEType
}

type readerStream struct {
	r      io.Reader
	closer io.Closer
	mime   string
	size   int

	ch   chan []byte
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

func newReaderStream(ctx context.Context, r io.Reader, closer io.Closer, mimeType string, size int) *readerStream {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	s := &readerStream{
		r:      r,
		closer: closer,
		mime:   mimeType,
		size:   size,
		ch:     make(chan []byte, 8),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.pump(ctx)
	return s
}

func (s *readerStream) pump(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)

	for {
		buf := make([]byte, s.size)
		n, err := s.r.Read(buf)
		if n > 0 {
			select {
			case s.ch <- buf[:n]:
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			return
		}
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (s *readerStream) Chunks() <-chan []byte { return s.ch }

func (s *readerStream) MIMEType() string { return s.mime }

// Close stops the pump after its current read and closes the underlying
// file, if the stream owns one.
func (s *readerStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		<-s.done
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}
