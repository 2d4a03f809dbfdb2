package recording

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"

	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/timeutil"
)

// testCapture creates a small capture with one annotated body.
func testCapture(i int) *kinect.Capture {
	depth := &kinect.DepthImage{Width: 4, Height: 2, Pixels: make([]uint16, 8)}
	index := &kinect.BodyIndexMap{Width: 4, Height: 2, Pixels: make([]uint8, 8)}
	for p := range depth.Pixels {
		depth.Pixels[p] = uint16(1000 + i*10 + p)
		index.Pixels[p] = kinect.BodyIndexBackground
	}
	index.Pixels[3] = 0

	var body kinect.Body
	body.ID = uint32(i + 1)
	for j := range body.Skeleton.Joints {
		body.Skeleton.Joints[j] = kinect.Joint{
			Position:    kinect.Float3{X: float32(j), Y: float32(i), Z: 1500.5},
			Orientation: kinect.IdentityQuaternion,
			Confidence:  kinect.ConfidenceMedium,
		}
	}

	return &kinect.Capture{
		Timestamp: time.Duration(i) * 33 * time.Millisecond,
		Depth:     depth,
		BodyIndex: index,
		Bodies:    []kinect.Body{body},
	}
}

func writeRecording(t *testing.T, frames int) string {
	t.Helper()
	basePath := filepath.Join(t.TempDir(), "rec")
	rec, err := NewRecorder(basePath, "test-device", kinect.DefaultCalibration(kinect.DepthModeNFOVUnbinned))
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	for i := 0; i < frames; i++ {
		if err := rec.Record(testCapture(i)); err != nil {
			t.Fatalf("Record() frame %d error = %v", i, err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return basePath
}

func captureContent(c *kinect.Capture) any {
	return struct {
		Timestamp time.Duration
		Depth     *kinect.DepthImage
		Index     *kinect.BodyIndexMap
		Bodies    []kinect.Body
	}{c.Timestamp, c.Depth, c.BodyIndex, c.Bodies}
}

func TestNewRecorder(t *testing.T) {
	basePath := filepath.Join(t.TempDir(), "test-rec")

	rec, err := NewRecorder(basePath, "dev", kinect.Calibration{})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	defer rec.Close()

	if rec.Path() != basePath {
		t.Errorf("Path() = %q, want %q", rec.Path(), basePath)
	}
	if rec.FrameCount() != 0 {
		t.Errorf("FrameCount() = %d, want 0", rec.FrameCount())
	}
	if _, err := os.Stat(filepath.Join(basePath, "frames")); err != nil {
		t.Errorf("frames directory not created: %v", err)
	}
}

func TestRecorderRejectsNilAndClosed(t *testing.T) {
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "rec"), "dev", kinect.Calibration{})
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}
	if err := rec.Record(nil); err == nil {
		t.Error("Record(nil) expected error, got nil")
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := rec.Record(testCapture(0)); err == nil {
		t.Error("Record() after Close expected error, got nil")
	}
}

func TestRecordAndReplayRoundTrip(t *testing.T) {
	basePath := writeRecording(t, 5)

	if !IsRecording(basePath) {
		t.Fatalf("IsRecording(%q) = false", basePath)
	}

	rep, err := Open(basePath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rep.Close()

	h := rep.Header()
	if h.TotalFrames != 5 || h.Device != "test-device" || h.Version != FormatVersion {
		t.Errorf("Header() = %+v", h)
	}
	if diff := cmp.Diff(kinect.DefaultCalibration(kinect.DepthModeNFOVUnbinned), rep.Calibration()); diff != "" {
		t.Errorf("Calibration() mismatch (-want +got):\n%s", diff)
	}
	if h.EndNs != int64(4*33*time.Millisecond) {
		t.Errorf("EndNs = %d", h.EndNs)
	}

	for i := 0; i < 5; i++ {
		got, err := rep.NextCapture(kinect.WaitInfinite)
		if err != nil {
			t.Fatalf("NextCapture() frame %d error = %v", i, err)
		}
		if diff := cmp.Diff(captureContent(testCapture(i)), captureContent(got)); diff != "" {
			t.Errorf("frame %d mismatch (-want +got):\n%s", i, diff)
		}
	}

	if _, err := rep.NextCapture(0); !errors.Is(err, kinect.ErrEOF) {
		t.Errorf("NextCapture() at end error = %v, want ErrEOF", err)
	}
}

func TestMultiChunkRoundTrip(t *testing.T) {
	total := ChunkSize + 3
	basePath := writeRecording(t, total)

	if _, err := os.Stat(chunkPath(basePath, 1)); err != nil {
		t.Fatalf("second chunk missing: %v", err)
	}

	rep, err := NewReplayer(basePath)
	if err != nil {
		t.Fatalf("NewReplayer() error = %v", err)
	}
	defer rep.Close()

	if rep.TotalFrames() != uint64(total) {
		t.Fatalf("TotalFrames() = %d, want %d", rep.TotalFrames(), total)
	}
	if err := rep.Seek(ChunkSize - 1); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	for i := ChunkSize - 1; i < total; i++ {
		c, err := rep.NextCapture(0)
		if err != nil {
			t.Fatalf("NextCapture() frame %d error = %v", i, err)
		}
		if c.Bodies[0].ID != uint32(i+1) {
			t.Errorf("frame %d body id = %d", i, c.Bodies[0].ID)
		}
	}
}

func TestReplayerSeek(t *testing.T) {
	rep, err := NewReplayer(writeRecording(t, 4))
	if err != nil {
		t.Fatalf("NewReplayer() error = %v", err)
	}
	defer rep.Close()

	if err := rep.Seek(10); err == nil {
		t.Error("Seek() out of range expected error, got nil")
	}

	if err := rep.SeekToTimestamp(40 * time.Millisecond); err != nil {
		t.Fatalf("SeekToTimestamp() error = %v", err)
	}
	if rep.CurrentFrame() != 2 {
		t.Errorf("CurrentFrame() = %d, want 2", rep.CurrentFrame())
	}

	if err := rep.SeekToTimestamp(time.Hour); err != nil {
		t.Fatalf("SeekToTimestamp() error = %v", err)
	}
	if rep.CurrentFrame() != 3 {
		t.Errorf("CurrentFrame() = %d, want 3", rep.CurrentFrame())
	}
}

func TestReplayerPacing(t *testing.T) {
	rep, err := NewReplayer(writeRecording(t, 3))
	if err != nil {
		t.Fatalf("NewReplayer() error = %v", err)
	}
	defer rep.Close()

	clk := timeutil.NewMockClock(time.Unix(1700000000, 0))
	rep.SetClock(clk)
	rep.SetRate(0.5)

	for i := 0; i < 3; i++ {
		if _, err := rep.NextCapture(0); err != nil {
			t.Fatalf("NextCapture() error = %v", err)
		}
	}
	// Frames are 33ms apart; at half rate each is due 66ms after the last.
	want := []time.Duration{66 * time.Millisecond, 66 * time.Millisecond}
	if diff := cmp.Diff(want, clk.Sleeps()); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestReplayerEmptyRecording(t *testing.T) {
	rep, err := NewReplayer(writeRecording(t, 0))
	if err != nil {
		t.Fatalf("NewReplayer() error = %v", err)
	}
	defer rep.Close()

	if _, err := rep.NextCapture(0); !errors.Is(err, kinect.ErrEOF) {
		t.Errorf("NextCapture() error = %v, want ErrEOF", err)
	}
	if err := rep.SeekToTimestamp(0); err == nil {
		t.Error("SeekToTimestamp() on empty recording expected error")
	}
}

func TestReplayerMissingHeader(t *testing.T) {
	dir := t.TempDir()
	if IsRecording(dir) {
		t.Error("IsRecording() = true for empty directory")
	}
	if _, err := Open(dir); !errors.Is(err, errNotRecording) {
		t.Errorf("Open() error = %v, want errNotRecording", err)
	}
	if _, err := NewReplayer(dir); err == nil {
		t.Error("NewReplayer() expected error for missing header")
	}
}

func TestReplayerInvalidHeader(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, headerFile), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReplayer(dir); err == nil {
		t.Error("NewReplayer() expected error for invalid header")
	}
}

func TestReplayerOversizedFrameCount(t *testing.T) {
	dir := t.TempDir()
	header := []byte(`{"version":"1.0","total_frames":18446744073709551615}`)
	if err := os.WriteFile(filepath.Join(dir, headerFile), header, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, indexFile), nil, 0644); err != nil {
		t.Fatal(err)
	}

	rep, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rep.Close()
	if got := rep.TotalFrames(); got != 0 {
		t.Errorf("TotalFrames() = %d, want 0", got)
	}
	if _, err := rep.NextCapture(0); !errors.Is(err, kinect.ErrEOF) {
		t.Errorf("NextCapture() error = %v, want ErrEOF", err)
	}
}

func TestReplayerTruncatedIndexTail(t *testing.T) {
	basePath := writeRecording(t, 3)
	f, err := os.OpenFile(filepath.Join(basePath, indexFile), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Write([]byte{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	rep, err := NewReplayer(basePath)
	if err != nil {
		t.Fatalf("NewReplayer() error = %v", err)
	}
	defer rep.Close()
	if got := rep.TotalFrames(); got != 3 {
		t.Errorf("TotalFrames() = %d, want 3", got)
	}
	for i := 0; i < 3; i++ {
		if _, err := rep.NextCapture(0); err != nil {
			t.Fatalf("NextCapture() frame %d error = %v", i, err)
		}
	}
}

func TestReplayerCorruptedChunk(t *testing.T) {
	basePath := writeRecording(t, 2)
	if err := os.WriteFile(chunkPath(basePath, 0), []byte{0xff, 0xff, 0xff, 0x7f, 1, 2}, 0644); err != nil {
		t.Fatal(err)
	}

	rep, err := NewReplayer(basePath)
	if err != nil {
		t.Fatalf("NewReplayer() error = %v", err)
	}
	defer rep.Close()

	if _, err := rep.NextCapture(0); !errors.Is(err, kinect.ErrFailed) {
		t.Errorf("NextCapture() error = %v, want ErrFailed", err)
	}
}

func TestReplayerClosed(t *testing.T) {
	rep, err := NewReplayer(writeRecording(t, 1))
	if err != nil {
		t.Fatalf("NewReplayer() error = %v", err)
	}
	if err := rep.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := rep.NextCapture(0); !errors.Is(err, kinect.ErrFailed) {
		t.Errorf("NextCapture() after Close error = %v, want ErrFailed", err)
	}
}

func TestDecodeFrameInvalidData(t *testing.T) {
	var c codec
	defer c.close()
	if _, err := c.decodeFrame([]byte("not zstd")); err == nil {
		t.Error("decodeFrame() expected error for garbage input")
	}
}

func TestEncodeFrameRejectsMismatchedImage(t *testing.T) {
	var c codec
	defer c.close()
	_, err := c.encodeFrame(&kinect.Capture{Depth: &kinect.DepthImage{Width: 3, Height: 3, Pixels: []uint16{1}}})
	if err == nil {
		t.Error("encodeFrame() expected error for short depth image")
	}
}

// compressFrame builds a frame with arbitrary metadata followed by tail.
func compressFrame(t *testing.T, meta string, tail []byte) []byte {
	t.Helper()
	var raw bytes.Buffer
	if err := binary.Write(&raw, binary.LittleEndian, uint32(len(meta))); err != nil {
		t.Fatal(err)
	}
	raw.WriteString(meta)
	raw.Write(tail)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()
	return enc.EncodeAll(raw.Bytes(), nil)
}

func TestDecodeFrameRejectsBadDimensions(t *testing.T) {
	tests := []struct {
		name string
		meta string
	}{
		{"huge depth", `{"depth_width":4000000000,"depth_height":4000000000}`},
		{"depth larger than payload", `{"depth_width":4,"depth_height":2}`},
		{"negative depth", `{"depth_width":-4,"depth_height":2}`},
		{"huge index", `{"index_width":1000000,"index_height":1000000}`},
		{"negative index", `{"index_width":4,"index_height":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c codec
			defer c.close()
			if _, err := c.decodeFrame(compressFrame(t, tt.meta, make([]byte, 8))); err == nil {
				t.Error("decodeFrame() expected error")
			}
		})
	}
}

func TestDecodeFrameWithoutImages(t *testing.T) {
	var c codec
	defer c.close()
	capture, err := c.decodeFrame(compressFrame(t, `{"timestamp_ns":5}`, nil))
	if err != nil {
		t.Fatalf("decodeFrame() error = %v", err)
	}
	if capture.Depth != nil || capture.BodyIndex != nil {
		t.Errorf("decodeFrame() images = %v, %v, want none", capture.Depth, capture.BodyIndex)
	}
	if capture.Timestamp != 5 {
		t.Errorf("Timestamp = %v, want 5ns", capture.Timestamp)
	}
}
