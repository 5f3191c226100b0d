package hardware

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"os"

	"hz.tools/sdr"
)

// CaptureWriter records IQ samples as interleaved little-endian float32
// pairs, the layout most SDR tools read as .cf32.
type CaptureWriter struct {
	w      *bufio.Writer
	closer io.Closer
	buf    []byte
	count  uint64
}

// NewCaptureWriter wraps w. If w is an io.Closer, Close closes it.
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	c := &CaptureWriter{w: bufio.NewWriterSize(w, 64*1024)}
	if closer, ok := w.(io.Closer); ok {
		c.closer = closer
	}
	return c
}

// CreateCapture opens path for writing a capture
func CreateCapture(path string) (*CaptureWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewCaptureWriter(f), nil
}

// Write appends samples to the capture
func (c *CaptureWriter) Write(samples sdr.SamplesC64) error {
	need := len(samples) * 8
	if cap(c.buf) < need {
		c.buf = make([]byte, need)
	}
	buf := c.buf[:need]
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*8:], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(buf[i*8+4:], math.Float32bits(imag(s)))
	}
	if _, err := c.w.Write(buf); err != nil {
		return err
	}
	c.count += uint64(len(samples))
	return nil
}

// Count returns the number of samples written
func (c *CaptureWriter) Count() uint64 {
	return c.count
}

// Close flushes buffered samples and closes the underlying writer
func (c *CaptureWriter) Close() error {
	if err := c.w.Flush(); err != nil {
		return err
	}
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

// ReadCapture decodes a cf32 stream back into samples
func ReadCapture(r io.Reader) (sdr.SamplesC64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	out := make(sdr.SamplesC64, len(data)/8)
	for i := range out {
		re := math.Float32frombits(binary.LittleEndian.Uint32(data[i*8:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(data[i*8+4:]))
		out[i] = complex(re, im)
	}
	return out, nil
}
