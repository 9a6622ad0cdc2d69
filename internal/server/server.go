package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/mixcapture/internal/audio"
	"github.com/audiolibrelab/mixcapture/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// eventBuffer is the per-client snapshot backlog before new snapshots are dropped
	eventBuffer = 16

	defaultRecordingsLimit = 50
	shutdownTimeout        = 5 * time.Second
)

// Server represents the web server for controlling MixCapture
type Server struct {
	service  service.Service
	port     string
	upgrader websocket.Upgrader
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status    string                    `json:"status"`
	Message   string                    `json:"message,omitempty"`
	Info      audio.RecordingInfo       `json:"info"`
	Session   *service.RecordingSession `json:"session,omitempty"`
	Profile   string                    `json:"profile"`
	LastError string                    `json:"last_error,omitempty"`
}

// SourceInfo contains information about an audio source
type SourceInfo struct {
	audio.AudioSource
	DisplayName string `json:"display_name"`
}

// SourcesResponse represents the JSON response for sources endpoint
type SourcesResponse struct {
	Sources []SourceInfo `json:"sources"`
}

// StartRequest is the JSON body accepted by /start
type StartRequest struct {
	Sources []string `json:"sources"`
}

// New creates a web server controlling svc
func New(svc service.Service, port string) *Server {
	return &Server{
		service: svc,
		port:    port,
	}
}

// Handler returns the routes of the control API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/sources", s.handleSources)
	mux.HandleFunc("/start", s.handleStartRecording)
	mux.HandleFunc("/stop", s.handleStopRecording)
	mux.HandleFunc("/pause", s.handlePauseRecording)
	mux.HandleFunc("/resume", s.handleResumeRecording)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/api/recordings", s.handleRecordings)
	mux.HandleFunc("/ws/events", s.handleEvents)
	return mux
}

// Start serves the control API until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	localIP := getLocalIP()

	slog.Info("Starting MixCapture Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleIndex serves a minimal control page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>MixCapture</title>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/@picocss/pico@2/css/pico.min.css">
</head>
<body>
    <main class="container">
        <h1>MixCapture</h1>
        <p id="state">STOPPED</p>
        <p><span id="duration">0s</span> &middot; <span id="size">0 B</span></p>
        <div role="group">
            <button onclick="post('/start')">Record</button>
            <button onclick="post('/pause')" class="secondary">Pause</button>
            <button onclick="post('/resume')" class="secondary">Resume</button>
            <button onclick="post('/stop')" class="contrast">Stop</button>
        </div>
        <p id="error"></p>
    </main>
    <script>
    function post(path) {
        fetch(path, {method: 'POST'}).then(r => r.json()).then(body => {
            document.getElementById('error').textContent = body.success ? '' : body.error;
        });
    }
    function render(info) {
        document.getElementById('state').textContent = info.state;
        document.getElementById('duration').textContent = Math.floor(info.duration / 1e9) + 's';
        document.getElementById('size').textContent = info.file_size_bytes + ' B';
    }
    const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    const ws = new WebSocket(proto + location.host + '/ws/events');
    ws.onmessage = ev => render(JSON.parse(ev.data));
    </script>
</body>
</html>`

// handleSources returns the capturable devices
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendMethodNotAllowed(w)
		return
	}

	sources := make([]SourceInfo, 0)
	for _, src := range s.service.ListSources() {
		sources = append(sources, SourceInfo{AudioSource: src, DisplayName: src.DisplayName()})
	}

	slog.Debug("Sources listed", "count", len(sources))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SourcesResponse{Sources: sources})
}

// handleStartRecording starts a session over the requested sources. Sources
// come from a JSON body or from repeated or comma-separated form values.
func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendMethodNotAllowed(w)
		return
	}

	ids, err := parseSourceIDs(r)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "start_recording")
		return
	}

	slog.Debug("Start request received", "sources", ids)

	session, err := s.service.StartRecording(r.Context(), ids)
	if err != nil {
		s.sendErrorResponse(w, statusForError(err),
			fmt.Sprintf("Failed to start recording: %v", err),
			"sources", ids, "operation", "start_recording")
		return
	}
	slog.Info("Server: recording started", "session", session.ID, "output", session.OutputFile)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Recording started",
		"session": session,
	})
}

func parseSourceIDs(r *http.Request) ([]string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("invalid JSON body: %v", err)
		}
		return req.Sources, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("failed to parse form: %v", err)
	}

	var ids []string
	for _, value := range r.Form["sources"] {
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// handleStopRecording stops the current recording session
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendMethodNotAllowed(w)
		return
	}

	if err := s.service.StopRecording(); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to stop recording: %v", err),
			"operation", "stop_recording")
		return
	}

	response := map[string]interface{}{
		"success": true,
		"message": "Recording stopped",
	}
	if lastError := s.service.GetLastError(); lastError != "" {
		response["last_error"] = lastError
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handlePauseRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendMethodNotAllowed(w)
		return
	}

	if err := s.service.PauseRecording(); err != nil {
		s.sendErrorResponse(w, http.StatusConflict, err.Error(), "operation", "pause_recording")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Recording paused",
	})
}

func (s *Server) handleResumeRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		sendMethodNotAllowed(w)
		return
	}

	if err := s.service.ResumeRecording(); err != nil {
		s.sendErrorResponse(w, http.StatusConflict, err.Error(), "operation", "resume_recording")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"message": "Recording resumed",
	})
}

// handleStatus returns the current snapshot and session info
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendMethodNotAllowed(w)
		return
	}

	info, session := s.service.GetRecordingStatus()

	response := StatusResponse{
		Status:    string(info.State),
		Message:   generateStatusMessage(info, session),
		Info:      info,
		Session:   session,
		LastError: s.service.GetLastError(),
	}
	if cfg := s.service.GetConfig(); cfg != nil {
		response.Profile = cfg.Profile
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRecordings lists finished recordings, newest first
func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendMethodNotAllowed(w)
		return
	}

	limit := defaultRecordingsLimit
	if value := r.URL.Query().Get("limit"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n <= 0 {
			s.sendErrorResponse(w, http.StatusBadRequest,
				fmt.Sprintf("limit must be a positive integer, got: %s", value),
				"operation", "list_recordings")
			return
		}
		limit = n
	}

	recordings, err := s.service.ListRecordings(r.Context(), limit)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to list recordings: %v", err),
			"operation", "list_recordings")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"recordings":  recordings,
		"total_count": len(recordings),
	})
}

// handleEvents streams state snapshots to a websocket client. The current
// snapshot is sent first, then every state_changed emission.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.service.Subscribe(eventBuffer)
	defer cancel()

	remote := r.RemoteAddr
	slog.Debug("Event stream client connected", "remote", remote)

	done := make(chan struct{})
	go readPump(conn, done)

	info, _ := s.service.GetRecordingStatus()
	if err := writeEvent(conn, info); err != nil {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			slog.Debug("Event stream client disconnected", "remote", remote)
			return

		case info, ok := <-events:
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "event stream closed"))
				return
			}
			if err := writeEvent(conn, info); err != nil {
				slog.Warn("Event stream write error", "remote", remote, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, info audio.RecordingInfo) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(eventFromInfo(info))
}

// Event is the websocket payload for one snapshot
type Event struct {
	audio.RecordingInfo
	Error string `json:"error,omitempty"`
}

func eventFromInfo(info audio.RecordingInfo) Event {
	ev := Event{RecordingInfo: info}
	if info.Err != nil {
		ev.Error = info.Err.Error()
	}
	return ev
}

// readPump drains client messages so control frames are handled, and closes
// done when the client goes away.
func readPump(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Event stream read error", "error", err)
			}
			return
		}
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, audio.ErrAlreadyRecording):
		return http.StatusConflict
	case errors.Is(err, audio.ErrNoUsableSource):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// generateStatusMessage creates appropriate status messages based on current state
func generateStatusMessage(info audio.RecordingInfo, session *service.RecordingSession) string {
	switch info.State {
	case audio.StateRecording:
		if session != nil {
			return fmt.Sprintf("Recording in progress - %s", session.OutputFile)
		}
		return "Recording in progress"
	case audio.StatePaused:
		return "Recording paused"
	default:
		return ""
	}
}

func sendMethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

// getLocalIP returns the local IP address for network access
func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
