// Command gen-recording writes a synthetic recording that bodyviewer can
// play back with OFFLINE <dir>.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/kinect/synthetic"
	"github.com/banshee-data/bodyviewer/internal/recording"
)

// generate renders frames captures of a synthetic scene into a recording at
// path and returns the directory written.
func generate(path string, frames, bodies int, mode kinect.DepthMode, fps float64) (string, error) {
	dev := synthetic.NewDevice(mode)
	dev.BodyCount = bodies
	dev.FrameRate = fps
	defer dev.Close()

	rec, err := recording.NewRecorder(path, "synthetic", dev.Calibration())
	if err != nil {
		return "", err
	}

	period := time.Duration(float64(time.Second) / fps)
	for i := 0; i < frames; i++ {
		c := dev.Render(time.Duration(i) * period)
		if err := rec.Record(c); err != nil {
			rec.Close()
			return "", fmt.Errorf("failed to record frame %d: %w", i, err)
		}
		if (i+1)%100 == 0 {
			log.Printf("%d/%d frames", i+1, frames)
		}
	}
	if err := rec.Close(); err != nil {
		return "", err
	}
	return rec.Path(), nil
}

func main() {
	output := flag.String("o", "sample.bodyrec", "output directory")
	frames := flag.Int("n", 300, "number of frames")
	bodies := flag.Int("bodies", 1, "number of people in the scene")
	wide := flag.Bool("wfov", false, "use the WFOV_BINNED depth mode")
	fps := flag.Float64("fps", 30, "frame rate")
	flag.Parse()

	if *frames < 1 || *bodies < 0 || *fps <= 0 {
		log.Fatal("frames and fps must be positive, bodies non-negative")
	}
	mode := kinect.DepthModeNFOVUnbinned
	if *wide {
		mode = kinect.DepthModeWFOVBinned
	}

	path, err := generate(*output, *frames, *bodies, mode, *fps)
	if err != nil {
		log.Fatalf("failed to generate recording: %v", err)
	}
	log.Printf("Created: %s (%d frames, %d bodies)", path, *frames, *bodies)
}
