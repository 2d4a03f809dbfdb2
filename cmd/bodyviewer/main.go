// Command bodyviewer tracks bodies from a depth camera, a recording or a
// synthetic scene, shows them in a browser-based 3D viewer and, for live
// input, publishes the first body's joints to redis.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/banshee-data/bodyviewer/internal/config"
	"github.com/banshee-data/bodyviewer/internal/db"
	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/kinect/k4a"
	"github.com/banshee-data/bodyviewer/internal/kinect/synthetic"
	"github.com/banshee-data/bodyviewer/internal/kvstore"
	"github.com/banshee-data/bodyviewer/internal/monitoring"
	"github.com/banshee-data/bodyviewer/internal/pipeline"
	"github.com/banshee-data/bodyviewer/internal/recording"
	"github.com/banshee-data/bodyviewer/internal/settings"
	"github.com/banshee-data/bodyviewer/internal/tracking"
	"github.com/banshee-data/bodyviewer/internal/version"
	"github.com/banshee-data/bodyviewer/internal/viewer"
)

// input is an opened source with its tracker.
type input struct {
	source  kinect.Source
	tracker kinect.Tracker
	// live sources are polled and published; playback is read to the end.
	live        bool
	description string
}

// openInput opens the source selected by s and the tracker that goes with
// it. Recordings and synthetic scenes carry their own annotations and use
// the queue tracker; hardware and .mkv files need the native SDK.
func openInput(s settings.InputSettings, cfg *config.AppConfig) (*input, error) {
	trackerCfg := kinect.TrackerConfig{
		ProcessingMode: s.ProcessingMode,
		ModelPath:      s.ModelPath,
		QueueSize:      cfg.GetTrackerQueueSize(),
	}

	switch {
	case s.Synthetic:
		dev := synthetic.NewDevice(s.DepthMode)
		return &input{
			source:      dev,
			tracker:     tracking.NewQueueTracker(trackerCfg, tracking.Annotations),
			live:        true,
			description: "SYNTHETIC",
		}, nil

	case s.Offline && recording.IsRecording(s.FileName):
		rp, err := recording.Open(s.FileName)
		if err != nil {
			return nil, fmt.Errorf("failed to open recording %s: %w", s.FileName, err)
		}
		rp.SetRate(1)
		return &input{
			source:      rp,
			tracker:     tracking.NewQueueTracker(trackerCfg, tracking.Annotations),
			description: "OFFLINE " + s.FileName,
		}, nil

	case s.Offline:
		src, err := k4a.OpenPlayback(s.FileName)
		if err != nil {
			return nil, fmt.Errorf("failed to open playback %s: %w", s.FileName, err)
		}
		tr, err := k4a.NewTracker(src, trackerCfg)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("body tracker initialization failed: %w", err)
		}
		return &input{source: src, tracker: tr, description: "OFFLINE " + s.FileName}, nil

	default:
		src, err := k4a.OpenDevice(0, s.DepthMode)
		if err != nil {
			return nil, fmt.Errorf("failed to open K4A device: %w", err)
		}
		tr, err := k4a.NewTracker(src, trackerCfg)
		if err != nil {
			src.Close()
			return nil, fmt.Errorf("body tracker initialization failed: %w", err)
		}
		return &input{source: src, tracker: tr, live: true, description: "device 0"}, nil
	}
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		return config.Empty(), nil
	}
	return config.Load(path)
}

func main() {
	program := filepath.Base(os.Args[0])
	s, err := settings.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		settings.PrintUsage(os.Stderr, program)
		os.Exit(-1)
	}

	cfg, err := loadConfig(s.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	monitoring.SetDebug(cfg.GetDebugLog())
	log.Printf("%s %s", program, version.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in, err := openInput(s, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("input: %s, depth mode %s, processing mode %s", in.description, in.source.Calibration().DepthMode, s.ProcessingMode)

	win := viewer.NewWindow(viewer.Options{
		Title:       "Location",
		Calibration: in.source.Calibration(),
		PointStride: cfg.GetPointStride(),
	})
	display := pipeline.NewDisplayState()
	win.SetKeyCallback(display.ProcessKey)
	win.SetCloseCallback(display.Close)

	loop := pipeline.NewLoop(in.source, in.tracker, win, display)
	loop.Stats.AttachAdminRoutes(win.Mux())
	go loop.Stats.Run(ctx, cfg.GetStatsInterval())

	if path := cfg.GetSkeletonLogPath(); path != "" {
		database, err := db.NewDB(path)
		if err != nil {
			log.Fatalf("failed to open skeleton log: %v", err)
		}
		defer database.Close()
		database.AttachAdminRoutes(win.Mux())

		skeletons, err := database.StartSession(ctx, in.description, in.source.Calibration().DepthMode)
		if err != nil {
			log.Fatalf("failed to start skeleton log session: %v", err)
		}
		defer func() {
			if err := skeletons.End(context.Background()); err != nil {
				log.Printf("[DB] %v", err)
			}
			log.Printf("[DB] session %s: %d frames logged to %s", skeletons.SessionID(), skeletons.Frames(), path)
		}()
		loop.Skeletons = skeletons
	}

	if in.live {
		store, err := kvstore.NewRedisStore(ctx, kvstore.RedisOptions{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
		})
		if err != nil {
			log.Fatalf("failed to connect to redis at %s: %v", cfg.GetRedisAddr(), err)
		}
		defer store.Close()
		loop.Publisher = kvstore.NewPublisher(store, cfg.GetKeyPrefix())
	}

	if err := win.ListenAndServe(cfg.GetViewerListen()); err != nil {
		log.Fatalf("failed to start viewer: %v", err)
	}

	if in.live {
		err = loop.RunDevice(ctx)
	} else {
		err = loop.RunPlayback(ctx)
	}
	if err != nil {
		log.Printf("%v", err)
	}
	log.Print("Finished body tracking processing!")
}
