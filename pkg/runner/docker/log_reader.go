package docker

import (
	"bytes"
	"encoding/binary"
	"io"
)

// logReader demultiplexes the Docker log stream format, which interleaves
// stdout and stderr frames behind 8-byte headers:
// [stream type][0][0][0][frame size as big-endian uint32][payload...]
type logReader struct {
	reader io.ReadCloser
	buffer *bytes.Buffer
	header [8]byte
	remain int
}

// newLogReader wraps a raw multiplexed stream, yielding only frame payloads.
func newLogReader(reader io.ReadCloser) io.ReadCloser {
	return &logReader{reader: reader, buffer: bytes.NewBuffer(nil)}
}

func (r *logReader) Read(p []byte) (int, error) {
	if r.buffer.Len() > 0 {
		return r.buffer.Read(p)
	}

	if r.remain == 0 {
		if _, err := io.ReadFull(r.reader, r.header[:]); err != nil {
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, err
		}
		r.remain = int(binary.BigEndian.Uint32(r.header[4:]))
	}

	toRead := len(p)
	if toRead > r.remain {
		toRead = r.remain
	}

	n, err := io.ReadFull(r.reader, p[:toRead])
	r.remain -= n
	if err != nil && err != io.ErrUnexpectedEOF {
		return n, err
	}
	return n, nil
}

func (r *logReader) Close() error {
	return r.reader.Close()
}
