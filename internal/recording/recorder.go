// Package recording provides recording and replay of depth captures.
//
// A recording is a directory:
//
//	header.json          metadata, calibration and frame count
//	index.bin            seek index, one fixed-size entry per frame
//	frames/chunk_NNNN.bin length-prefixed, zstd-compressed frames
//
// Frames carry the depth image and, when available, the tracked bodies and
// body index map, so a recording can be replayed without the tracking SDK.
package recording

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/bodyviewer/internal/kinect"
)

// FormatVersion is written to every header.
const FormatVersion = "1.0"

// ChunkSize is the number of frames per chunk file.
const ChunkSize = 300

const (
	headerFile = "header.json"
	indexFile  = "index.bin"
	framesDir  = "frames"
)

// Header contains metadata about a recording.
type Header struct {
	Version     string             `json:"version"`
	CreatedNs   int64              `json:"created_ns"`
	Device      string             `json:"device"`
	Calibration kinect.Calibration `json:"calibration"`
	TotalFrames uint64             `json:"total_frames"`
	StartNs     int64              `json:"start_ns"`
	EndNs       int64              `json:"end_ns"`
}

// IndexEntry is an entry in the seek index.
type IndexEntry struct {
	Frame       uint64
	TimestampNs int64
	ChunkID     uint32
	Offset      uint32
}

// Recorder writes captures to a recording directory.
type Recorder struct {
	basePath string

	header       Header
	index        []IndexEntry
	codec        codec
	currentChunk int
	chunkFile    *os.File
	chunkOffset  uint32

	frameCount uint64
	startNs    int64
	endNs      int64

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a Recorder writing to basePath. If basePath is empty,
// a timestamped directory is created in the system temp directory.
func NewRecorder(basePath, device string, cal kinect.Calibration) (*Recorder, error) {
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), fmt.Sprintf("bodyrec_%s_%d", device, time.Now().Unix()))
	}

	if err := os.MkdirAll(filepath.Join(basePath, framesDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}

	return &Recorder{
		basePath:     basePath,
		currentChunk: -1,
		header: Header{
			Version:     FormatVersion,
			CreatedNs:   time.Now().UnixNano(),
			Device:      device,
			Calibration: cal,
		},
	}, nil
}

// Record appends a capture to the recording.
func (r *Recorder) Record(c *kinect.Capture) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder is closed")
	}
	if c == nil {
		return fmt.Errorf("capture is nil")
	}

	ts := int64(c.Timestamp)
	if r.frameCount == 0 {
		r.startNs = ts
	}
	r.endNs = ts

	chunkIdx := int(r.frameCount / ChunkSize)
	if chunkIdx != r.currentChunk {
		if err := r.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	data, err := r.codec.encodeFrame(c)
	if err != nil {
		return fmt.Errorf("failed to serialize frame: %w", err)
	}

	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := r.chunkFile.Write(lenBuf); err != nil {
		return fmt.Errorf("failed to write frame length: %w", err)
	}
	if _, err := r.chunkFile.Write(data); err != nil {
		return fmt.Errorf("failed to write frame data: %w", err)
	}

	r.index = append(r.index, IndexEntry{
		Frame:       r.frameCount,
		TimestampNs: ts,
		ChunkID:     uint32(chunkIdx),
		Offset:      r.chunkOffset,
	})

	r.chunkOffset += uint32(4 + len(data))
	r.frameCount++
	return nil
}

func chunkPath(basePath string, chunkIdx int) string {
	return filepath.Join(basePath, framesDir, fmt.Sprintf("chunk_%04d.bin", chunkIdx))
}

// rotateChunk closes the current chunk and opens a new one.
func (r *Recorder) rotateChunk(chunkIdx int) error {
	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return err
		}
	}

	f, err := os.Create(chunkPath(r.basePath, chunkIdx))
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}

	r.chunkFile = f
	r.currentChunk = chunkIdx
	r.chunkOffset = 0
	return nil
}

// Close finalises the recording and writes the header and index.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	defer r.codec.close()

	if r.chunkFile != nil {
		if err := r.chunkFile.Close(); err != nil {
			return fmt.Errorf("failed to close chunk file: %w", err)
		}
	}

	r.header.TotalFrames = r.frameCount
	r.header.StartNs = r.startNs
	r.header.EndNs = r.endNs

	headerData, err := json.MarshalIndent(r.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := os.WriteFile(filepath.Join(r.basePath, headerFile), headerData, 0644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	f, err := os.Create(filepath.Join(r.basePath, indexFile))
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	defer f.Close()
	for _, entry := range r.index {
		if err := binary.Write(f, binary.LittleEndian, entry); err != nil {
			return fmt.Errorf("failed to write index: %w", err)
		}
	}

	log.Printf("[Recording] wrote %d frames to %s", r.frameCount, r.basePath)
	return nil
}

// Path returns the base path of the recording.
func (r *Recorder) Path() string {
	return r.basePath
}

// FrameCount returns the number of frames recorded.
func (r *Recorder) FrameCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frameCount
}
