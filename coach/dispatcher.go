package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"habitcoach/model"
)

// DefaultLoadTimeout bounds a local model load.
const DefaultLoadTimeout = 30 * time.Second

// PreferenceStore persists the user's backend choice.
type PreferenceStore interface {
	LoadMode() (model.BackendMode, error)
	SaveMode(mode model.BackendMode) error
}

// Options tunes a Dispatcher. Zero values select the defaults.
type Options struct {
	LoadTimeout time.Duration
	Logger      *zap.Logger
}

// Snapshot is a copy of the dispatcher's observable state.
type Snapshot struct {
	Mode       model.BackendMode
	State      model.LoadState
	Loaded     bool
	Loading    bool
	Generating bool
	Error      string
	Transcript []model.ChatMessage
}

// Dispatcher is the single entry point for coach replies. It owns one
// backend per mode, forwards prompts to the one selected by the persisted
// preference and keeps the in-memory transcript.
type Dispatcher struct {
	backends    map[model.BackendMode]model.Backend
	prefs       PreferenceStore
	loadTimeout time.Duration
	logger      *zap.Logger

	mu          sync.Mutex
	mode        model.BackendMode
	state       model.LoadState
	generating  bool
	errMsg      string
	transcript  []model.ChatMessage
	loadSeq     uint64 // bumped by every LoadModel, SwitchMode and Unload
	cancelLoad  context.CancelFunc
	session     uint64 // bumped whenever the transcript is wiped
	subscribers map[int]chan Snapshot
	nextSubID   int
}

// New creates a dispatcher over a local and a cloud backend. The starting
// mode is read from prefs; an unreadable preference falls back to
// model.DefaultMode.
func New(backends map[model.BackendMode]model.Backend, prefs PreferenceStore, opts Options) (*Dispatcher, error) {
	for _, mode := range []model.BackendMode{model.ModeLocal, model.ModeCloud} {
		if backends[mode] == nil {
			return nil, fmt.Errorf("no backend configured for %s mode", mode)
		}
	}
	if prefs == nil {
		return nil, fmt.Errorf("preference store is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.LoadTimeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}

	mode, err := prefs.LoadMode()
	if err != nil {
		logger.Warn("backend preference unreadable, using default",
			zap.String("default", model.DefaultMode.String()), zap.Error(err))
		mode = model.DefaultMode
	}

	return &Dispatcher{
		backends:    backends,
		prefs:       prefs,
		loadTimeout: timeout,
		logger:      logger.Named("coach"),
		mode:        mode,
		state:       model.LoadUnloaded,
		subscribers: make(map[int]chan Snapshot),
	}, nil
}

// LoadModel prepares the active backend. Cloud mode runs the health probe;
// local mode runs the model load under the load timeout and cancels it if
// the timer wins. The outcome is recorded as ready or failed, never loading.
func (d *Dispatcher) LoadModel(ctx context.Context) {
	d.mu.Lock()
	d.abortLoadLocked()
	seq := d.loadSeq
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.cancelLoad = cancel
	mode := d.mode
	backend := d.backends[mode]
	d.errMsg = ""
	d.state = model.LoadLoading
	d.publishLocked()
	d.mu.Unlock()

	d.logger.Info("loading backend", zap.String("mode", mode.String()))
	start := time.Now()

	var err error
	if mode == model.ModeLocal {
		err = d.loadWithTimeout(ctx, backend)
	} else {
		err = backend.Load(ctx)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// A newer load, switch or unload owns the state now.
	if seq != d.loadSeq {
		d.logger.Debug("discarding superseded load result",
			zap.String("mode", mode.String()), zap.Error(err))
		return
	}
	d.cancelLoad = nil

	if err != nil {
		d.state = model.LoadFailed
		d.errMsg = model.DescribeLoad(err)
		d.logger.Warn("backend load failed",
			zap.String("mode", mode.String()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	} else {
		d.state = model.LoadReady
		d.logger.Info("backend ready",
			zap.String("mode", mode.String()),
			zap.Duration("elapsed", time.Since(start)))
	}
	d.publishLocked()
}

// loadWithTimeout races backend.Load against the load timeout. The load
// runs under a context that is cancelled when the timer wins, and reports on
// a buffered channel so a late finish never blocks.
func (d *Dispatcher) loadWithTimeout(ctx context.Context, backend model.Backend) error {
	loadCtx, cancel := context.WithTimeout(ctx, d.loadTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- backend.Load(loadCtx)
	}()

	select {
	case err := <-done:
		// A load that gave up because the deadline passed lost the race too.
		if err != nil && ctx.Err() == nil && errors.Is(loadCtx.Err(), context.DeadlineExceeded) {
			return model.ErrLoadTimeout
		}
		return err
	case <-loadCtx.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		d.logger.Warn("local load timed out, cancelling", zap.Duration("timeout", d.loadTimeout))
		return model.ErrLoadTimeout
	}
}

// GenerateResponse returns the active backend's reply to prompt and records
// the exchange. It never fails: when no backend is ready it returns
// model.NotLoadedResponse, and backend errors become explanatory replies.
func (d *Dispatcher) GenerateResponse(ctx context.Context, prompt, promptContext string) string {
	d.mu.Lock()
	if d.state != model.LoadReady {
		d.mu.Unlock()
		return model.NotLoadedResponse
	}
	mode := d.mode
	backend := d.backends[mode]
	session := d.session
	d.generating = true
	d.publishLocked()
	d.mu.Unlock()

	userMsg := model.NewChatMessage(model.RoleUser, prompt)

	reply, err := backend.Generate(ctx, prompt, promptContext)
	if err != nil {
		d.logger.Warn("generation failed", zap.String("mode", mode.String()), zap.Error(err))
		reply = model.Describe(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.generating = false
	// A switch or unload during generation wiped the transcript; the
	// exchange belongs to the old session and is dropped.
	if session == d.session {
		d.transcript = append(d.transcript, userMsg, model.NewChatMessage(model.RoleAssistant, reply))
	}
	d.publishLocked()
	return reply
}

// SwitchMode persists mode, wipes the transcript, releases the backend that
// is no longer selected and loads the new one. The transcript is empty
// afterwards whether or not the load succeeds.
func (d *Dispatcher) SwitchMode(ctx context.Context, mode model.BackendMode) error {
	if d.backends[mode] == nil {
		return fmt.Errorf("no backend configured for %q mode", mode)
	}

	saveErr := d.prefs.SaveMode(mode)
	if saveErr != nil {
		d.logger.Warn("failed to persist backend preference", zap.Error(saveErr))
	}

	d.mu.Lock()
	previous := d.mode
	d.mode = mode
	d.abortLoadLocked()
	d.clearTranscriptLocked()
	d.state = model.LoadUnloaded
	d.publishLocked()
	d.mu.Unlock()

	d.logger.Info("switching backend",
		zap.String("from", previous.String()),
		zap.String("to", mode.String()))

	inactive := d.backends[mode.Other()]
	if err := inactive.Release(ctx); err != nil {
		d.logger.Warn("release failed", zap.String("backend", inactive.Name()), zap.Error(err))
	}

	d.LoadModel(ctx)

	if saveErr != nil {
		d.mu.Lock()
		if d.errMsg == "" {
			d.errMsg = fmt.Sprintf("Couldn't save the backend preference: %v", saveErr)
			d.publishLocked()
		}
		d.mu.Unlock()
	}
	return nil
}

// ClearError drops the stored error message.
func (d *Dispatcher) ClearError() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errMsg = ""
	d.publishLocked()
}

// Unload wipes the transcript, resets the load state and asks both backends
// to release their resources.
func (d *Dispatcher) Unload(ctx context.Context) {
	d.mu.Lock()
	d.abortLoadLocked()
	d.clearTranscriptLocked()
	d.state = model.LoadUnloaded
	d.generating = false
	d.errMsg = ""
	d.publishLocked()
	d.mu.Unlock()

	for _, mode := range []model.BackendMode{model.ModeLocal, model.ModeCloud} {
		backend := d.backends[mode]
		if err := backend.Release(ctx); err != nil {
			d.logger.Warn("release failed", zap.String("backend", backend.Name()), zap.Error(err))
		}
	}
	d.logger.Info("backends released")
}

// Mode returns the selected backend mode.
func (d *Dispatcher) Mode() model.BackendMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Snapshot returns a copy of the current state.
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot after every state
// change, and a function that ends the subscription. A slow reader only
// ever sees the most recent snapshot.
func (d *Dispatcher) Subscribe() (<-chan Snapshot, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextSubID
	d.nextSubID++
	ch := make(chan Snapshot, 1)
	d.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subscribers, id)
			close(ch)
		})
	}
}

// abortLoadLocked supersedes any in-flight load and cancels it.
func (d *Dispatcher) abortLoadLocked() {
	d.loadSeq++
	if d.cancelLoad != nil {
		d.cancelLoad()
		d.cancelLoad = nil
	}
}

func (d *Dispatcher) clearTranscriptLocked() {
	d.transcript = nil
	d.session++
}

func (d *Dispatcher) snapshotLocked() Snapshot {
	transcript := make([]model.ChatMessage, len(d.transcript))
	copy(transcript, d.transcript)
	return Snapshot{
		Mode:       d.mode,
		State:      d.state,
		Loaded:     d.state == model.LoadReady,
		Loading:    d.state == model.LoadLoading,
		Generating: d.generating,
		Error:      d.errMsg,
		Transcript: transcript,
	}
}

// publishLocked delivers the current snapshot to every subscriber,
// replacing any snapshot the subscriber has not read yet.
func (d *Dispatcher) publishLocked() {
	if len(d.subscribers) == 0 {
		return
	}
	snap := d.snapshotLocked()
	for _, ch := range d.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
