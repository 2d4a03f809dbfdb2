// Command skeleton-plot draws the trajectory of one joint from a skeleton
// log written by bodyviewer.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/banshee-data/bodyviewer/internal/db"
	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/monitor"
	"github.com/banshee-data/bodyviewer/internal/security"
)

type options struct {
	dbPath    string
	sessionID string
	bodyID    int
	joint     string
	outDir    string
	list      bool
}

// run plots the selected trajectory and returns the files written. The
// newest session and its first body are used when none is given.
func run(ctx context.Context, opts options) ([]string, error) {
	joint, ok := kinect.JointByName(opts.joint)
	if !ok {
		return nil, fmt.Errorf("unknown joint %q", opts.joint)
	}
	if err := security.ValidateExportPath(opts.outDir); err != nil {
		return nil, err
	}

	database, err := db.OpenDB(opts.dbPath)
	if err != nil {
		return nil, err
	}
	defer database.Close()

	sessionID := opts.sessionID
	if sessionID == "" {
		sessions, err := database.Sessions(ctx)
		if err != nil {
			return nil, err
		}
		if len(sessions) == 0 {
			return nil, errors.New("skeleton log has no sessions")
		}
		sessionID = sessions[0].ID
	}

	var bodyID uint32
	if opts.bodyID >= 0 {
		bodyID = uint32(opts.bodyID)
	} else {
		ids, err := database.BodyIDs(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("session %s has no bodies", sessionID)
		}
		bodyID = ids[0]
	}

	points, err := database.JointTrajectory(ctx, sessionID, bodyID, joint, kinect.ConfidenceLow)
	if err != nil {
		return nil, err
	}
	log.Printf("session %s body %d: %d %s points", sessionID, bodyID, len(points), joint)

	return monitor.SaveTrajectoryPlots(monitor.TrajectoryPlot{
		Title:  fmt.Sprintf("Body %d %s", bodyID, joint),
		Points: points,
	}, opts.outDir, fmt.Sprintf("body%d_%s", bodyID, joint))
}

func listSessions(ctx context.Context, path string) error {
	database, err := db.OpenDB(path)
	if err != nil {
		return err
	}
	defer database.Close()

	sessions, err := database.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		fmt.Printf("%s  %s  %-14s %6d frames  %s\n", s.ID, s.Started.Format("2006-01-02 15:04:05"), s.DepthMode, s.Frames, s.Source)
	}
	return nil
}

func main() {
	var opts options
	flag.StringVar(&opts.dbPath, "db", "skeletons.db", "skeleton log database")
	flag.StringVar(&opts.sessionID, "session", "", "session ID (default: newest)")
	flag.IntVar(&opts.bodyID, "body", -1, "body ID (default: first seen)")
	flag.StringVar(&opts.joint, "joint", "pelvis", "joint name, e.g. pelvis, head, hand_left")
	flag.StringVar(&opts.outDir, "o", ".", "output directory")
	flag.BoolVar(&opts.list, "list", false, "list sessions and exit")
	flag.Parse()

	if _, err := os.Stat(opts.dbPath); err != nil {
		log.Fatalf("failed to open skeleton log: %v", err)
	}

	ctx := context.Background()
	if opts.list {
		if err := listSessions(ctx, opts.dbPath); err != nil {
			log.Fatal(err)
		}
		return
	}

	files, err := run(ctx, opts)
	if err != nil {
		log.Fatalf("failed to plot trajectory: %v", err)
	}
	for _, f := range files {
		log.Printf("Created: %s", f)
	}
}
