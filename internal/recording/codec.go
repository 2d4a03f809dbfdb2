package recording

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/banshee-data/bodyviewer/internal/kinect"
)

// frameMeta is the JSON part of a recorded frame. Image pixels follow it as
// raw little-endian blocks so that a frame stays compact before compression.
type frameMeta struct {
	TimestampNs int64         `json:"timestamp_ns"`
	DepthWidth  int           `json:"depth_width,omitempty"`
	DepthHeight int           `json:"depth_height,omitempty"`
	IndexWidth  int           `json:"index_width,omitempty"`
	IndexHeight int           `json:"index_height,omitempty"`
	Bodies      []kinect.Body `json:"bodies,omitempty"`
}

// codec compresses frames with zstd. Encoder and decoder are created lazily
// and reused across frames.
type codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func (c *codec) close() {
	if c.enc != nil {
		c.enc.Close()
	}
	if c.dec != nil {
		c.dec.Close()
	}
}

// encodeFrame serializes and compresses a capture.
func (c *codec) encodeFrame(capture *kinect.Capture) ([]byte, error) {
	meta := frameMeta{
		TimestampNs: int64(capture.Timestamp),
		Bodies:      capture.Bodies,
	}
	if d := capture.Depth; d != nil {
		if len(d.Pixels) != d.Width*d.Height {
			return nil, fmt.Errorf("depth image has %d pixels, want %dx%d", len(d.Pixels), d.Width, d.Height)
		}
		meta.DepthWidth, meta.DepthHeight = d.Width, d.Height
	}
	if m := capture.BodyIndex; m != nil {
		if len(m.Pixels) != m.Width*m.Height {
			return nil, fmt.Errorf("body index map has %d pixels, want %dx%d", len(m.Pixels), m.Width, m.Height)
		}
		meta.IndexWidth, meta.IndexHeight = m.Width, m.Height
	}

	metaData, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame metadata: %w", err)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(metaData))); err != nil {
		return nil, err
	}
	buf.Write(metaData)
	if d := capture.Depth; d != nil {
		if err := binary.Write(&buf, binary.LittleEndian, d.Pixels); err != nil {
			return nil, fmt.Errorf("failed to write depth pixels: %w", err)
		}
	}
	if m := capture.BodyIndex; m != nil {
		buf.Write(m.Pixels)
	}

	if c.enc == nil {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		c.enc = enc
	}
	return c.enc.EncodeAll(buf.Bytes(), nil), nil
}

// decodeFrame decompresses and parses a frame written by encodeFrame.
func (c *codec) decodeFrame(data []byte) (*kinect.Capture, error) {
	if c.dec == nil {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		c.dec = dec
	}
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress frame: %w", err)
	}

	r := bytes.NewReader(raw)
	var metaLen uint32
	if err := binary.Read(r, binary.LittleEndian, &metaLen); err != nil {
		return nil, fmt.Errorf("failed to read metadata length: %w", err)
	}
	if int64(metaLen) > int64(r.Len()) {
		return nil, fmt.Errorf("invalid metadata length %d", metaLen)
	}
	metaData := make([]byte, metaLen)
	if _, err := io.ReadFull(r, metaData); err != nil {
		return nil, err
	}
	var meta frameMeta
	if err := json.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse frame metadata: %w", err)
	}

	capture := &kinect.Capture{
		Timestamp: time.Duration(meta.TimestampNs),
		Bodies:    meta.Bodies,
	}
	n, err := pixelCount(meta.DepthWidth, meta.DepthHeight, 2, r.Len())
	if err != nil {
		return nil, fmt.Errorf("invalid depth image: %w", err)
	}
	if n > 0 {
		pixels := make([]uint16, n)
		if err := binary.Read(r, binary.LittleEndian, pixels); err != nil {
			return nil, fmt.Errorf("failed to read depth pixels: %w", err)
		}
		capture.Depth = &kinect.DepthImage{Width: meta.DepthWidth, Height: meta.DepthHeight, Pixels: pixels}
	}
	n, err = pixelCount(meta.IndexWidth, meta.IndexHeight, 1, r.Len())
	if err != nil {
		return nil, fmt.Errorf("invalid body index map: %w", err)
	}
	if n > 0 {
		pixels := make([]uint8, n)
		if _, err := io.ReadFull(r, pixels); err != nil {
			return nil, fmt.Errorf("failed to read body index map: %w", err)
		}
		capture.BodyIndex = &kinect.BodyIndexMap{Width: meta.IndexWidth, Height: meta.IndexHeight, Pixels: pixels}
	}
	return capture, nil
}

// pixelCount validates image dimensions read from frame metadata against the
// bytes left in the frame. A zero dimension means the image is absent.
func pixelCount(width, height, bytesPerPixel, remaining int) (int, error) {
	if width < 0 || height < 0 {
		return 0, fmt.Errorf("negative dimensions %dx%d", width, height)
	}
	if width == 0 || height == 0 {
		return 0, nil
	}
	if width > remaining/bytesPerPixel/height {
		return 0, fmt.Errorf("%dx%d pixels exceed the %d bytes left in the frame", width, height, remaining)
	}
	return width * height, nil
}
