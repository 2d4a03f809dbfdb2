// Package viewer is the 3D presentation sink. A Window collects the point
// cloud, joints and bones for a frame and, on Render, publishes the scene
// to browser clients over a websocket. Input from the clients is queued and
// dispatched to the key and close callbacks inside Render, on the caller's
// goroutine.
package viewer

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"tailscale.com/tsweb"

	"github.com/banshee-data/bodyviewer/internal/httputil"
	"github.com/banshee-data/bodyviewer/internal/kinect"
	"github.com/banshee-data/bodyviewer/internal/monitoring"
)

//go:embed static/*
var staticFS embed.FS

// inputQueueSize bounds input events waiting for the next Render.
const inputQueueSize = 64

// writeTimeout bounds a single scene write to a client.
const writeTimeout = 2 * time.Second

// Options configures a Window.
type Options struct {
	Title       string
	Calibration kinect.Calibration
	// PointStride keeps every n-th depth pixel in each direction.
	PointStride int
}

// Window is a browser-backed 3D window.
type Window struct {
	opts Options
	mux  *http.ServeMux
	srv  *http.Server
	hub  *hub

	// Scene under construction; touched only by the render goroutine.
	scene        Scene
	orientations []kinect.Quaternion
	layout       Layout
	jointFrames  bool
	frame        uint64
	dirty        bool

	latest atomic.Pointer[[]byte]
	input  chan event

	callbackMu    sync.Mutex
	keyCallback   func(Key)
	closeCallback func()

	deleteOnce sync.Once
}

// NewWindow creates a Window and registers its HTTP routes. Call Serve or
// ListenAndServe to accept clients.
func NewWindow(opts Options) *Window {
	if opts.PointStride < 1 {
		opts.PointStride = 1
	}
	w := &Window{
		opts:  opts,
		mux:   http.NewServeMux(),
		hub:   newHub(),
		input: make(chan event, inputQueueSize),
	}
	w.scene.Layout = w.layout.String()
	w.publish()

	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		log.Fatalf("failed to open embedded viewer assets: %v", err)
	}
	w.mux.Handle("/", http.FileServer(http.FS(static)))
	w.mux.HandleFunc("/ws", w.handleWebsocket)
	w.mux.HandleFunc("/api/scene", w.handleScene)
	w.mux.HandleFunc("/api/input", w.handleInput)
	w.attachAdminRoutes()
	return w
}

// Mux returns the window's HTTP mux so other components can attach routes.
func (w *Window) Mux() *http.ServeMux {
	return w.mux
}

// Handler returns the window's HTTP handler.
func (w *Window) Handler() http.Handler {
	return w.mux
}

// ListenAndServe binds addr and serves clients in the background. It
// returns once the listener is bound.
func (w *Window) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	w.Serve(ln)
	log.Printf("[Viewer] %s: open http://%s/", w.opts.Title, ln.Addr())
	return nil
}

// Serve accepts clients on ln in the background.
func (w *Window) Serve(ln net.Listener) {
	w.srv = &http.Server{
		Handler:           w.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := w.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[Viewer] server error: %v", err)
		}
	}()
}

// SetKeyCallback sets the function called for each key press.
func (w *Window) SetKeyCallback(f func(Key)) {
	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.keyCallback = f
}

// SetCloseCallback sets the function called when a client closes the window.
func (w *Window) SetCloseCallback(f func()) {
	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.closeCallback = f
}

// UpdatePointClouds replaces the point cloud with the depth image. colors
// has one entry per depth pixel.
func (w *Window) UpdatePointClouds(depth *kinect.DepthImage, colors []Color) {
	w.scene.Points = buildPointCloud(w.opts.Calibration, depth, colors, w.opts.PointStride)
	w.dirty = true
}

// CleanJointsAndBones removes all joints and bones.
func (w *Window) CleanJointsAndBones() {
	w.scene.Joints = w.scene.Joints[:0]
	w.scene.Bones = w.scene.Bones[:0]
	w.orientations = w.orientations[:0]
	w.dirty = true
}

// AddJoint adds a joint marker.
func (w *Window) AddJoint(position kinect.Float3, orientation kinect.Quaternion, color Color) {
	w.scene.Joints = append(w.scene.Joints, JointMarker{Position: vec(position), Color: color.RGBA8()})
	w.orientations = append(w.orientations, orientation)
	w.dirty = true
}

// AddBone adds a bone between two joint positions.
func (w *Window) AddBone(from, to kinect.Float3, color Color) {
	w.scene.Bones = append(w.scene.Bones, BoneSegment{From: vec(from), To: vec(to), Color: color.RGBA8()})
	w.dirty = true
}

// SetLayout3d sets the view layout.
func (w *Window) SetLayout3d(l Layout) {
	if l != w.layout {
		w.layout = l
		w.dirty = true
	}
}

// SetJointFrameVisualization shows or hides the joint axes.
func (w *Window) SetJointFrameVisualization(on bool) {
	if on != w.jointFrames {
		w.jointFrames = on
		w.dirty = true
	}
}

// Render dispatches queued input to the callbacks, then sends the scene to
// every client if anything changed since the last render.
func (w *Window) Render() {
	w.dispatchInput()
	if !w.dirty {
		return
	}
	w.dirty = false

	w.frame++
	w.scene.Frame = w.frame
	w.scene.Layout = w.layout.String()
	w.scene.JointFrames = w.jointFrames
	for i := range w.scene.Joints {
		if w.jointFrames {
			axes := jointAxes(w.orientations[i])
			w.scene.Joints[i].Axes = &axes
		} else {
			w.scene.Joints[i].Axes = nil
		}
	}
	w.publish()
}

func (w *Window) publish() {
	payload, err := json.Marshal(&w.scene)
	if err != nil {
		monitoring.Logf("[Viewer] failed to encode scene: %v", err)
		return
	}
	w.latest.Store(&payload)
	w.hub.Broadcast(payload)
}

// dispatchInput runs the callbacks for every queued event.
func (w *Window) dispatchInput() {
	w.callbackMu.Lock()
	onKey, onClose := w.keyCallback, w.closeCallback
	w.callbackMu.Unlock()

	for {
		select {
		case ev := <-w.input:
			switch ev.Type {
			case "key":
				if k := ParseKey(ev.Key); k != KeyUnknown && onKey != nil {
					onKey(k)
				}
			case "close":
				if onClose != nil {
					onClose()
				}
			}
		default:
			return
		}
	}
}

// queueInput hands an event to the render goroutine. Events are dropped
// when the queue is full.
func (w *Window) queueInput(ev event) bool {
	select {
	case w.input <- ev:
		return true
	default:
		monitoring.Debugf("[Viewer] input queue full, dropping %s event", ev.Type)
		return false
	}
}

// Clients returns the number of connected websocket clients.
func (w *Window) Clients() int {
	return w.hub.Count()
}

// Delete disconnects all clients and stops the HTTP server.
func (w *Window) Delete() {
	w.deleteOnce.Do(func() {
		w.hub.Close()
		if w.srv != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := w.srv.Shutdown(ctx); err != nil {
				log.Printf("[Viewer] shutdown: %v", err)
			}
		}
		log.Printf("[Viewer] window closed after %d frames", w.frame)
	})
}

func (w *Window) handleScene(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(rw)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.Header().Set("Cache-Control", "no-cache")
	_, _ = rw.Write(*w.latest.Load())
}

// handleInput accepts an input event as JSON for clients without
// websockets.
func (w *Window) handleInput(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(rw)
		return
	}
	var ev event
	if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1024)).Decode(&ev); err != nil {
		httputil.BadRequest(rw, "invalid event")
		return
	}
	if ev.Type != "key" && ev.Type != "close" {
		httputil.BadRequest(rw, "unknown event type")
		return
	}
	if !w.queueInput(ev) {
		httputil.WriteJSONError(rw, http.StatusServiceUnavailable, "input queue full")
		return
	}
	httputil.WriteJSON(rw, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (w *Window) handleWebsocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		monitoring.Logf("[Viewer] websocket accept failed: %v", err)
		return
	}
	defer conn.CloseNow()

	id, scenes := w.hub.Subscribe()
	defer w.hub.Unsubscribe(id)
	monitoring.Debugf("[Viewer] client %s connected from %s", id, r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader: input events from the client.
	go func() {
		defer cancel()
		for {
			var ev event
			if err := wsjson.Read(ctx, conn, &ev); err != nil {
				return
			}
			w.queueInput(ev)
		}
	}()

	send := func(payload []byte) error {
		wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
		defer wcancel()
		return conn.Write(wctx, websocket.MessageText, payload)
	}

	if err := send(*w.latest.Load()); err != nil {
		return
	}
	for {
		select {
		case payload, ok := <-scenes:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "window closed")
				return
			}
			if err := send(payload); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// attachAdminRoutes adds the viewer's entries to the /debug/ index.
func (w *Window) attachAdminRoutes() {
	debug := tsweb.Debugger(w.mux)
	debug.KVFunc("Viewer clients", func() any { return w.hub.Count() })
	debug.HandleSilentFunc("viewer-scene", w.handleScene)
}
