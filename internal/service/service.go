package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/mixcapture/internal/audio"
	"github.com/audiolibrelab/mixcapture/internal/catalog"
	"github.com/audiolibrelab/mixcapture/internal/config"
)

// ErrNotRecording is returned by operations that need an active session.
var ErrNotRecording = errors.New("no recording in progress")

// Service represents the core MixCapture service interface
type Service interface {
	// Source operations
	ListSources() []audio.AudioSource
	ResolveSources(ids []string) ([]audio.AudioSource, error)
	SaveSelection(ids []string) error

	// Recording operations
	StartRecording(ctx context.Context, sourceIDs []string) (*RecordingSession, error)
	StopRecording() error
	PauseRecording() error
	ResumeRecording() error
	GetRecordingStatus() (audio.RecordingInfo, *RecordingSession)
	Subscribe(buffer int) (<-chan audio.RecordingInfo, func())

	// History
	ListRecordings(ctx context.Context, limit int) ([]catalog.Recording, error)

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config

	GetLastError() string
	Close() error
}

// RecordingSession contains information about the current recording session
type RecordingSession struct {
	ID         string              `json:"id"`
	Profile    string              `json:"profile"`
	StartTime  time.Time           `json:"start_time"`
	OutputFile string              `json:"output_file"`
	Sources    []audio.AudioSource `json:"sources"`
}

// Catalog stores finalized recordings
type Catalog interface {
	Add(ctx context.Context, rec catalog.Recording) error
	List(ctx context.Context, limit int) ([]catalog.Recording, error)
	Close() error
}

// RecorderFactory builds the capture engine for a configuration
type RecorderFactory func(cfg *config.Config) (audio.Recorder, error)

// MixCaptureService is the main service implementation
type MixCaptureService struct {
	configFile  string
	newRecorder RecorderFactory
	recordings  Catalog
	now         func() time.Time

	// ctrlMu serializes start, stop and profile changes. It is never held
	// while state_changed handlers run.
	ctrlMu      sync.Mutex
	cfg         *config.Config
	recorder    audio.Recorder
	unsubscribe func()

	sessionMu sync.Mutex
	current   *RecordingSession

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service backed by the configured audio backend and the
// on-disk recording catalog.
func New(cfg *config.Config, configFile string) (*MixCaptureService, error) {
	store, err := catalog.New(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording catalog: %w", err)
	}

	svc, err := NewWithRecorder(cfg, configFile, func(cfg *config.Config) (audio.Recorder, error) {
		return audio.NewRecorder(cfg)
	}, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	return svc, nil
}

// NewWithRecorder creates a service using newRecorder to build the engine.
func NewWithRecorder(cfg *config.Config, configFile string, newRecorder RecorderFactory, recordings Catalog) (*MixCaptureService, error) {
	recorder, err := newRecorder(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create recorder: %w", err)
	}

	s := &MixCaptureService{
		cfg:         cfg,
		configFile:  configFile,
		newRecorder: newRecorder,
		recordings:  recordings,
		now:         time.Now,
	}
	s.attach(recorder)
	return s, nil
}

func (s *MixCaptureService) attach(recorder audio.Recorder) {
	s.recorder = recorder
	s.unsubscribe = recorder.OnStateChanged(s.onStateChanged)
}

// ListSources enumerates the capturable devices
func (s *MixCaptureService) ListSources() []audio.AudioSource {
	return s.getRecorder().ListSources()
}

// ResolveSources maps ids onto a fresh enumeration. With no ids the persisted
// selection is used; with nothing persisted every default device is selected.
// Unknown ids are logged and skipped.
func (s *MixCaptureService) ResolveSources(ids []string) ([]audio.AudioSource, error) {
	s.ctrlMu.Lock()
	recorder, persisted := s.recorder, s.cfg.Sources
	s.ctrlMu.Unlock()

	return resolveSources(recorder.ListSources(), ids, persisted)
}

func resolveSources(available []audio.AudioSource, ids, persisted []string) ([]audio.AudioSource, error) {
	if len(ids) == 0 {
		ids = persisted
	}

	if len(ids) == 0 {
		var defaults []audio.AudioSource
		for _, src := range available {
			if src.IsDefault {
				defaults = append(defaults, src)
			}
		}
		if len(defaults) == 0 {
			return nil, fmt.Errorf("%w: no default devices available", audio.ErrNoUsableSource)
		}
		slog.Debug("Using default devices", "count", len(defaults))
		return defaults, nil
	}

	byID := make(map[string]audio.AudioSource, len(available))
	for _, src := range available {
		byID[src.ID] = src
	}

	var selected []audio.AudioSource
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		src, ok := byID[id]
		if !ok {
			slog.Warn("Selected audio source is not available", "source", id)
			continue
		}
		selected = append(selected, src)
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: none of the selected sources %v are available", audio.ErrNoUsableSource, ids)
	}
	return selected, nil
}

// SaveSelection persists ids as the active profile's source selection
func (s *MixCaptureService) SaveSelection(ids []string) error {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	if err := config.SaveSelectedSources(s.configFile, s.cfg.Profile, ids); err != nil {
		return err
	}
	s.cfg.Sources = append([]string(nil), ids...)
	return nil
}

// StartRecording begins a session over the resolved sources, writing to a new
// timestamped file in the output directory.
func (s *MixCaptureService) StartRecording(ctx context.Context, sourceIDs []string) (*RecordingSession, error) {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	slog.Debug("Service.StartRecording called", "sources", sourceIDs)

	if s.recorder.CurrentInfo().State != audio.StateStopped {
		return nil, audio.ErrAlreadyRecording
	}

	sources, err := resolveSources(s.recorder.ListSources(), sourceIDs, s.cfg.Sources)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return nil, err
	}

	outputPath, err := s.nextOutputPath()
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return nil, err
	}

	session := &RecordingSession{
		ID:         uuid.NewString(),
		Profile:    s.cfg.Profile,
		StartTime:  s.now(),
		OutputFile: outputPath,
		Sources:    sources,
	}

	// Published before Start so a write failure right after start still
	// finds the session to catalog.
	s.sessionMu.Lock()
	s.current = session
	s.sessionMu.Unlock()

	if err := s.recorder.Start(ctx, sources, outputPath); err != nil {
		s.sessionMu.Lock()
		if s.current == session {
			s.current = nil
		}
		s.sessionMu.Unlock()

		slog.Error("Service.StartRecording failed", "error", err)
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return nil, err
	}

	s.clearLastError()
	slog.Info("Recording session started", "session", session.ID, "output", outputPath, "sources", len(sources))
	return session, nil
}

// nextOutputPath names the file <prefix>_<YYYYMMDD_HHMMSS>.wav, adding a
// counter when that name is taken.
func (s *MixCaptureService) nextOutputPath() (string, error) {
	dir := s.cfg.Output.Directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s", s.cfg.Output.FilePrefix, s.now().Format("20060102_150405"))
	path := filepath.Join(dir, base+".wav")
	for i := 2; fileExists(path); i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d.wav", base, i))
	}
	return path, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// StopRecording ends the current session. Stopping while stopped is a no-op.
func (s *MixCaptureService) StopRecording() error {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	s.recorder.Stop()
	return nil
}

// PauseRecording suspends the current session
func (s *MixCaptureService) PauseRecording() error {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	if s.recorder.CurrentInfo().State != audio.StateRecording {
		return fmt.Errorf("cannot pause: %w", ErrNotRecording)
	}
	s.recorder.Pause()
	return nil
}

// ResumeRecording continues a paused session
func (s *MixCaptureService) ResumeRecording() error {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	if s.recorder.CurrentInfo().State != audio.StatePaused {
		return fmt.Errorf("cannot resume: recording is not paused")
	}
	s.recorder.Resume()
	return nil
}

// GetRecordingStatus returns the current snapshot and the active session, if any
func (s *MixCaptureService) GetRecordingStatus() (audio.RecordingInfo, *RecordingSession) {
	info := s.getRecorder().CurrentInfo()

	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	if s.current == nil {
		return info, nil
	}
	session := *s.current
	return info, &session
}

// Subscribe streams state snapshots of the current engine
func (s *MixCaptureService) Subscribe(buffer int) (<-chan audio.RecordingInfo, func()) {
	return s.getRecorder().Subscribe(buffer)
}

// onStateChanged catalogs sessions as they finish. It runs on the engine's
// emitting goroutine.
func (s *MixCaptureService) onStateChanged(info audio.RecordingInfo) {
	if info.State != audio.StateStopped {
		return
	}

	s.sessionMu.Lock()
	session := s.current
	s.current = nil
	s.sessionMu.Unlock()
	if session == nil {
		return
	}

	rec := catalog.Recording{
		ID:        session.ID,
		Path:      session.OutputFile,
		Profile:   session.Profile,
		StartedAt: session.StartTime,
		Duration:  info.Duration,
		SizeBytes: info.FileSizeBytes,
	}
	for _, src := range session.Sources {
		rec.Sources = append(rec.Sources, src.ID)
	}

	if info.Err != nil {
		rec.Error = info.Err.Error()
		s.setLastError(fmt.Sprintf("Recording stopped: %v", info.Err))
	}

	if s.recordings == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.recordings.Add(ctx, rec); err != nil {
		slog.Error("Failed to catalog recording", "session", session.ID, "error", err)
		return
	}
	slog.Info("Recording cataloged", "session", session.ID, "output", session.OutputFile, "duration", info.Duration)
}

// ListRecordings returns finished sessions, newest first
func (s *MixCaptureService) ListRecordings(ctx context.Context, limit int) ([]catalog.Recording, error) {
	if s.recordings == nil {
		return []catalog.Recording{}, nil
	}
	return s.recordings.List(ctx, limit)
}

// LoadProfile loads a new configuration profile and rebuilds the engine.
// It is rejected while a session is active.
func (s *MixCaptureService) LoadProfile(profile string) error {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	if s.recorder.CurrentInfo().State != audio.StateStopped {
		return fmt.Errorf("cannot switch profile while recording")
	}

	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}

	recorder, err := s.newRecorder(newCfg)
	if err != nil {
		return fmt.Errorf("failed to create recorder for profile '%s': %w", profile, err)
	}

	s.unsubscribe()
	if err := s.recorder.Close(); err != nil {
		slog.Warn("Failed to close previous recorder", "error", err)
	}

	s.cfg = newCfg
	s.attach(recorder)
	slog.Info("Profile loaded", "profile", newCfg.Profile)
	return nil
}

// GetConfig returns the current configuration
func (s *MixCaptureService) GetConfig() *config.Config {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	return s.cfg
}

func (s *MixCaptureService) getRecorder() audio.Recorder {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()
	return s.recorder
}

// Close stops any session and releases the engine and catalog
func (s *MixCaptureService) Close() error {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	// Stop first so the final snapshot is cataloged before the store closes.
	s.recorder.Stop()
	s.unsubscribe()

	var errs []error
	if err := s.recorder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close recorder: %w", err))
	}
	if s.recordings != nil {
		if err := s.recordings.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close catalog: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GetLastError returns the last error message
func (s *MixCaptureService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *MixCaptureService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err
	if err != "" {
		slog.Debug("Service error recorded", "error", err)
	}
}

func (s *MixCaptureService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

var _ Service = (*MixCaptureService)(nil)
