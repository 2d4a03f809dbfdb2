package recording

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/timeutil"
)

var indexEntrySize = binary.Size(IndexEntry{})

// IsRecording reports whether path is a recording directory.
func IsRecording(path string) bool {
	info, err := os.Stat(filepath.Join(path, headerFile))
	return err == nil && !info.IsDir()
}

// Replayer reads a recording back as a kinect.Source.
type Replayer struct {
	basePath string
	header   Header
	index    []IndexEntry
	codec    codec

	currentFrame uint64
	rate         float64

	// Pacing state for rate > 0.
	clock     timeutil.Clock
	wallStart time.Time
	logStart  time.Duration

	currentChunk int
	chunkData    []byte

	mu     sync.Mutex
	closed bool
}

// NewReplayer opens a recording for replay.
func NewReplayer(basePath string) (*Replayer, error) {
	r := &Replayer{
		basePath:     basePath,
		currentChunk: -1,
		clock:        timeutil.RealClock{},
	}

	headerData, err := os.ReadFile(filepath.Join(basePath, headerFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	indexFile, err := os.Open(filepath.Join(basePath, indexFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer indexFile.Close()

	info, err := indexFile.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat index: %w", err)
	}
	// The header's frame count is not trusted for sizing; the index file is.
	entries := uint64(info.Size()) / uint64(indexEntrySize)
	r.index = make([]IndexEntry, 0, min(r.header.TotalFrames, entries))
	for {
		var entry IndexEntry
		err := binary.Read(indexFile, binary.LittleEndian, &entry)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// An interrupted recorder leaves a partial last entry.
			log.Printf("[Recording] %s: ignoring truncated index entry after frame %d", basePath, len(r.index))
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read index: %w", err)
		}
		r.index = append(r.index, entry)
	}
	if r.header.TotalFrames != 0 && r.header.TotalFrames != uint64(len(r.index)) {
		log.Printf("[Recording] %s: header lists %d frames, index has %d", basePath, r.header.TotalFrames, len(r.index))
	}

	return r, nil
}

// Header returns the recording header.
func (r *Replayer) Header() Header {
	return r.header
}

// Calibration returns the calibration stored with the recording.
func (r *Replayer) Calibration() kinect.Calibration {
	return r.header.Calibration
}

// TotalFrames returns the number of frames in the index.
func (r *Replayer) TotalFrames() uint64 {
	return uint64(len(r.index))
}

// CurrentFrame returns the index of the next frame to be read.
func (r *Replayer) CurrentFrame() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentFrame
}

// SetClock replaces the clock used for pacing.
func (r *Replayer) SetClock(c timeutil.Clock) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = c
}

// SetRate sets the playback rate relative to the recorded timestamps.
// Zero, the default, returns frames as fast as they are requested.
func (r *Replayer) SetRate(rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = rate
	r.wallStart = time.Time{}
}

// Seek moves to a frame by index.
func (r *Replayer) Seek(frameIdx uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frameIdx >= uint64(len(r.index)) {
		return fmt.Errorf("frame index out of range: %d >= %d", frameIdx, len(r.index))
	}
	r.currentFrame = frameIdx
	r.wallStart = time.Time{}
	return nil
}

// SeekToTimestamp moves to the first frame at or after ts.
func (r *Replayer) SeekToTimestamp(ts time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.index) == 0 {
		return fmt.Errorf("recording is empty")
	}
	i := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].TimestampNs >= int64(ts)
	})
	if i == len(r.index) {
		i = len(r.index) - 1
	}
	r.currentFrame = uint64(i)
	r.wallStart = time.Time{}
	return nil
}

// NextCapture returns the next recorded capture, or kinect.ErrEOF once the
// recording is exhausted. The timeout is ignored; reads never wait on a
// device.
func (r *Replayer) NextCapture(time.Duration) (*kinect.Capture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, fmt.Errorf("%w: replayer is closed", kinect.ErrFailed)
	}
	if r.currentFrame >= uint64(len(r.index)) {
		return nil, kinect.ErrEOF
	}

	entry := r.index[r.currentFrame]
	if int(entry.ChunkID) != r.currentChunk {
		if err := r.loadChunk(int(entry.ChunkID)); err != nil {
			return nil, fmt.Errorf("%w: %w", kinect.ErrFailed, err)
		}
	}

	offset := uint64(entry.Offset)
	if offset+4 > uint64(len(r.chunkData)) {
		return nil, fmt.Errorf("%w: invalid frame offset %d", kinect.ErrFailed, offset)
	}
	frameLen := uint64(binary.LittleEndian.Uint32(r.chunkData[offset:]))
	offset += 4
	if offset+frameLen > uint64(len(r.chunkData)) {
		return nil, fmt.Errorf("%w: invalid frame length %d", kinect.ErrFailed, frameLen)
	}

	c, err := r.codec.decodeFrame(r.chunkData[offset : offset+frameLen])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode frame %d: %w", kinect.ErrFailed, r.currentFrame, err)
	}

	r.pace(c.Timestamp)
	r.currentFrame++
	return c, nil
}

// pace sleeps until the capture is due at the configured rate.
func (r *Replayer) pace(ts time.Duration) {
	if r.rate <= 0 {
		return
	}
	if r.wallStart.IsZero() {
		r.wallStart = r.clock.Now()
		r.logStart = ts
		return
	}
	due := time.Duration(float64(ts-r.logStart) / r.rate)
	if wait := due - r.clock.Since(r.wallStart); wait > 0 {
		r.clock.Sleep(wait)
	}
}

func (r *Replayer) loadChunk(chunkIdx int) error {
	data, err := os.ReadFile(chunkPath(r.basePath, chunkIdx))
	if err != nil {
		return fmt.Errorf("failed to read chunk: %w", err)
	}
	r.chunkData = data
	r.currentChunk = chunkIdx
	return nil
}

// Close releases the chunk cache and the decoder.
func (r *Replayer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.chunkData = nil
	r.codec.close()
	return nil
}

var _ kinect.Source = (*Replayer)(nil)

// errNotRecording is returned by Open when path has no header.
var errNotRecording = errors.New("not a recording directory")

// Open opens path as a Replayer after checking that it is a recording.
func Open(path string) (*Replayer, error) {
	if !IsRecording(path) {
		return nil, fmt.Errorf("%s: %w", path, errNotRecording)
	}
	return NewReplayer(path)
}
