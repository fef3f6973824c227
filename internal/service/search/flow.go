package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"infrastreet/marketplace/internal/model"
	"infrastreet/marketplace/internal/service/backend"
	"infrastreet/marketplace/internal/service/location"
	"infrastreet/marketplace/internal/service/voice"
)

const (
	MessageEnableLocation = "Enable location to find vendors"
	MessageFailed         = "Search failed. Try again."
	MessageNoResults      = "No vendors found nearby. Try another dish."
)

var (
	ErrLocationRequired = errors.New("location is required before searching")
	ErrSuperseded       = errors.New("search superseded by a newer request")
	ErrEmptyTranscript  = errors.New("transcript is empty")
)

type Phase int

const (
	PhaseAwaitingInput Phase = iota
	PhaseListening
	PhaseTranscribed
	PhaseCancelled
	PhaseSearching
	PhaseResults
	PhaseEmpty
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingInput:
		return "awaiting_input"
	case PhaseListening:
		return "listening"
	case PhaseTranscribed:
		return "transcribed"
	case PhaseCancelled:
		return "cancelled"
	case PhaseSearching:
		return "searching"
	case PhaseResults:
		return "results"
	case PhaseEmpty:
		return "empty"
	case PhaseError:
		return "error"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Searcher interface {
	Voice(ctx context.Context, req backend.VoiceRequest) (*model.VoiceResponse, error)
}

type Capturer interface {
	Capture(ctx context.Context) (string, error)
}

type State struct {
	Phase      Phase
	Transcript string
	Intent     string
	Vendors    []model.Vendor
	Message    string
	Err        error
}

// Flow runs the voice-to-results round trip. Each search takes a new generation and
// cancels the one before it, so only the newest response ever reaches State.
type Flow struct {
	searcher Searcher
	capture  Capturer
	logger   *zap.Logger

	mu       sync.Mutex
	loc      *model.Location
	state    State
	gen      uint64
	cancelFn context.CancelFunc
}

func NewFlow(searcher Searcher, capture Capturer, logger *zap.Logger) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{searcher: searcher, capture: capture, logger: logger}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// ResolveLocation stores the coordinate pair searches are issued with.
func (f *Flow) ResolveLocation(ctx context.Context, provider location.Provider) error {
	loc, err := provider.Current(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state.Message = MessageEnableLocation
		return fmt.Errorf("%w: %v", location.ErrUnavailable, err)
	}
	f.loc = &loc
	if f.state.Message == MessageEnableLocation {
		f.state.Message = ""
	}
	return nil
}

func (f *Flow) Location() (model.Location, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loc == nil {
		return model.Location{}, false
	}
	return *f.loc, true
}

// Listen captures one transcript and searches with it.
func (f *Flow) Listen(ctx context.Context) (State, error) {
	f.mu.Lock()
	if f.loc == nil {
		f.state.Message = MessageEnableLocation
		st := f.state
		f.mu.Unlock()
		return st, ErrLocationRequired
	}
	f.state.Phase = PhaseListening
	f.mu.Unlock()

	transcript, err := f.capture.Capture(ctx)
	if err != nil {
		f.mu.Lock()
		if errors.Is(err, voice.ErrNoTranscript) || errors.Is(err, context.Canceled) {
			f.state.Phase = PhaseCancelled
		} else {
			f.state.Phase = PhaseError
			f.state.Err = err
		}
		st := f.state
		f.mu.Unlock()
		return st, err
	}

	f.mu.Lock()
	f.state.Phase = PhaseTranscribed
	f.state.Transcript = transcript
	f.mu.Unlock()

	return f.Search(ctx, transcript)
}

// Search issues exactly one backend request for transcript. If a newer search starts
// before this one settles, the result is discarded and ErrSuperseded returned.
func (f *Flow) Search(ctx context.Context, transcript string) (State, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return f.State(), ErrEmptyTranscript
	}

	f.mu.Lock()
	if f.loc == nil {
		f.state.Message = MessageEnableLocation
		st := f.state
		f.mu.Unlock()
		return st, ErrLocationRequired
	}
	if f.cancelFn != nil {
		f.cancelFn()
	}
	f.gen++
	gen := f.gen
	reqCtx, cancel := context.WithCancel(ctx)
	f.cancelFn = cancel
	loc := *f.loc
	f.state = State{Phase: PhaseSearching, Transcript: transcript}
	f.mu.Unlock()
	defer cancel()

	f.logger.Debug("Searching vendors",
		zap.String("transcript", transcript),
		zap.Uint64("generation", gen),
	)

	resp, err := f.searcher.Voice(reqCtx, backend.VoiceRequest{
		Transcript: transcript,
		Lat:        loc.Lat,
		Lng:        loc.Lng,
	})

	f.mu.Lock()
	defer f.mu.Unlock()

	if gen != f.gen {
		f.logger.Debug("Discarding superseded search", zap.Uint64("generation", gen))
		return f.state, ErrSuperseded
	}
	f.cancelFn = nil

	if err != nil {
		f.state = State{
			Phase:      PhaseError,
			Transcript: transcript,
			Message:    MessageFailed,
			Err:        err,
		}
		f.logger.Warn("Search failed", zap.String("transcript", transcript), zap.Error(err))
		return f.state, err
	}

	if resp == nil {
		resp = &model.VoiceResponse{}
	}
	st := State{
		Phase:      PhaseResults,
		Transcript: transcript,
		Intent:     resp.Intent,
		Vendors:    resp.Results,
		Message:    resp.Message,
	}
	if len(resp.Results) == 0 {
		st.Phase = PhaseEmpty
		if strings.TrimSpace(st.Message) == "" {
			st.Message = MessageNoResults
		}
	}
	f.state = st
	return f.state, nil
}

// Clear drops results and cancels any search still in flight.
func (f *Flow) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelFn != nil {
		f.cancelFn()
		f.cancelFn = nil
	}
	f.gen++
	f.state = State{}
}
