// Package settings parses the positional command line of the body viewer.
//
// The grammar is a flat list of tokens, each either a mode selector or a flag
// followed by exactly one value. There are no optional tokens other than the
// documented defaults, and any token that is not recognised is an error.
package settings

import (
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/banshee-data/bodyviewer/internal/kinect"
)

var (
	// ErrUnknownArgument is returned for a token the parser does not recognise.
	ErrUnknownArgument = errors.New("command not understood")
	// ErrMissingValue is returned when a flag is the last token.
	ErrMissingValue = errors.New("missing value")
)

// directMLSupported reports whether the DIRECTML backend can be selected.
// It is a variable so tests can exercise both platforms.
var directMLSupported = runtime.GOOS == "windows"

// InputSettings is the run configuration. It is immutable once parsed.
type InputSettings struct {
	DepthMode      kinect.DepthMode
	ProcessingMode kinect.ProcessingMode

	// Offline plays FileName instead of opening a device.
	Offline  bool
	FileName string

	// Synthetic replaces the device with generated captures.
	Synthetic bool

	ModelPath  string
	ConfigPath string
}

// Default returns the settings used when no tokens are given.
func Default() InputSettings {
	mode := kinect.ProcessingModeCUDA
	if directMLSupported {
		mode = kinect.ProcessingModeDirectML
	}
	return InputSettings{
		DepthMode:      kinect.DepthModeNFOVUnbinned,
		ProcessingMode: mode,
	}
}

// Parse builds InputSettings from the process arguments, excluding the
// program name.
func Parse(args []string) (InputSettings, error) {
	s := Default()
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "NFOV_UNBINNED":
			s.DepthMode = kinect.DepthModeNFOVUnbinned
		case "WFOV_BINNED":
			s.DepthMode = kinect.DepthModeWFOVBinned
		case "CPU":
			s.ProcessingMode = kinect.ProcessingModeCPU
		case "CUDA":
			s.ProcessingMode = kinect.ProcessingModeCUDA
		case "TENSORRT":
			s.ProcessingMode = kinect.ProcessingModeTensorRT
		case "DIRECTML":
			if !directMLSupported {
				return InputSettings{}, fmt.Errorf("%w: %s", ErrUnknownArgument, arg)
			}
			s.ProcessingMode = kinect.ProcessingModeDirectML
		case "SYNTHETIC":
			s.Synthetic = true
		case "OFFLINE":
			v, err := value(args, i)
			if err != nil {
				return InputSettings{}, fmt.Errorf("recording path %w", err)
			}
			s.Offline = true
			s.FileName = v
			i++
		case "-model":
			v, err := value(args, i)
			if err != nil {
				return InputSettings{}, fmt.Errorf("model path %w", err)
			}
			s.ModelPath = v
			i++
		case "-config":
			v, err := value(args, i)
			if err != nil {
				return InputSettings{}, fmt.Errorf("config path %w", err)
			}
			s.ConfigPath = v
			i++
		default:
			return InputSettings{}, fmt.Errorf("%w: %s", ErrUnknownArgument, arg)
		}
	}

	if s.Offline && s.Synthetic {
		return InputSettings{}, fmt.Errorf("%w: OFFLINE and SYNTHETIC are exclusive", ErrUnknownArgument)
	}
	return s, nil
}

// value returns the token following the flag at index i.
func value(args []string, i int) (string, error) {
	if i+1 >= len(args) {
		return "", ErrMissingValue
	}
	return args[i+1], nil
}

// PrintUsage writes the command line help.
func PrintUsage(w io.Writer, program string) {
	runtimeModes := "CPU, CUDA, TENSORRT"
	if directMLSupported {
		runtimeModes = "CPU, CUDA, DIRECTML, TENSORRT"
	}
	fmt.Fprintf(w, "\nUSAGE: %s SensorMode[NFOV_UNBINNED, WFOV_BINNED](optional) RuntimeMode[%s](optional) -model MODEL_PATH(optional) -config CONFIG_PATH(optional)\n", program, runtimeModes)
	fmt.Fprintln(w, "  - SensorMode: ")
	fmt.Fprintln(w, "      NFOV_UNBINNED (default) - Narrow Field of View Unbinned Mode [Resolution: 640x576; FOI: 75 degree x 65 degree]")
	fmt.Fprintln(w, "      WFOV_BINNED             - Wide Field of View Binned Mode [Resolution: 512x512; FOI: 120 degree x 120 degree]")
	fmt.Fprintln(w, "  - RuntimeMode: ")
	fmt.Fprintln(w, "      CPU - Use the CPU only mode. It runs on machines without a GPU but it will be much slower")
	fmt.Fprintln(w, "      CUDA - Use CUDA for processing.")
	if directMLSupported {
		fmt.Fprintln(w, "      DIRECTML - Use the DirectML processing mode.")
	}
	fmt.Fprintln(w, "      TENSORRT - Use the TensorRT processing mode.")
	fmt.Fprintln(w, "      OFFLINE - Play a specified file. Does not require Kinect device")
	fmt.Fprintln(w, "      SYNTHETIC - Generate a walking figure. Does not require Kinect device")
	fmt.Fprintf(w, "e.g.   %s WFOV_BINNED CPU\n", program)
	fmt.Fprintf(w, "e.g.   %s CPU\n", program)
	fmt.Fprintf(w, "e.g.   %s WFOV_BINNED\n", program)
	fmt.Fprintf(w, "e.g.   %s OFFLINE MyFile.mkv\n", program)
}

// PrintAppUsage writes the in-app navigation help shown for the H key.
func PrintAppUsage(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, " Basic Navigation:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, " Rotate: Rotate the camera by moving the mouse while holding mouse left button")
	fmt.Fprintln(w, " Pan: Translate the scene by holding Ctrl key and drag the scene with mouse left button")
	fmt.Fprintln(w, " Zoom in/out: Move closer/farther away from the scene center by scrolling the mouse scroll wheel")
	fmt.Fprintln(w, " Select Center: Center the scene based on a detected joint by right clicking the joint with mouse")
	fmt.Fprintln(w)
	fmt.Fprintln(w, " Key Shortcuts")
	fmt.Fprintln(w)
	fmt.Fprintln(w, " ESC: quit")
	fmt.Fprintln(w, " h: help")
	fmt.Fprintln(w, " b: body visualization mode")
	fmt.Fprintln(w, " k: 3d window layout")
	fmt.Fprintln(w)
}
