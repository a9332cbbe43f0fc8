package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"hf_downloader/internal/download"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/events"
	"hf_downloader/internal/state"
	"hf_downloader/internal/utils"
)

// ErrNotRunning means no instance answered on the control port.
var ErrNotRunning = errors.New("HFetch is not running")

// CommandResult is the body of /pause, /resume and /stop responses.
type CommandResult struct {
	Command string `json:"command"`
	Applied bool   `json:"applied"`
}

// RemoteDownloadService drives a running instance through its control server.
type RemoteDownloadService struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewRemoteDownloadService(baseURL, token string) *RemoteDownloadService {
	return &RemoteDownloadService{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

var _ DownloadService = (*RemoteDownloadService)(nil)

func (s *RemoteDownloadService) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound && path == "/status":
		return types.ErrNoSession
	case resp.StatusCode == http.StatusConflict:
		return types.ErrSessionActive
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		text := strings.TrimSpace(string(msg))
		if resp.StatusCode == http.StatusBadRequest {
			return &types.ConfigurationError{Field: "request", Reason: text}
		}
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, text)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (s *RemoteDownloadService) Start(req types.FileSetRequest) (download.Snapshot, error) {
	var snap download.Snapshot
	err := s.do(context.Background(), http.MethodPost, "/start", req, &snap)
	return snap, err
}

func (s *RemoteDownloadService) command(name string) (bool, error) {
	var res CommandResult
	if err := s.do(context.Background(), http.MethodPost, "/"+name, nil, &res); err != nil {
		return false, err
	}
	return res.Applied, nil
}

func (s *RemoteDownloadService) Pause() (bool, error)  { return s.command("pause") }
func (s *RemoteDownloadService) Resume() (bool, error) { return s.command("resume") }
func (s *RemoteDownloadService) Stop() (bool, error)   { return s.command("stop") }

func (s *RemoteDownloadService) Status() (download.Snapshot, error) {
	var snap download.Snapshot
	err := s.do(context.Background(), http.MethodGet, "/status", nil, &snap)
	return snap, err
}

func (s *RemoteDownloadService) History(limit int) ([]state.SessionRecord, error) {
	var out []state.SessionRecord
	err := s.do(context.Background(), http.MethodGet, "/history?limit="+strconv.Itoa(limit), nil, &out)
	return out, err
}

// StreamEvents reads the server's SSE stream and decodes each event back
// into its message type.
func (s *RemoteDownloadService) StreamEvents(ctx context.Context) (<-chan any, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/events", nil)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	// No client timeout: the stream lives as long as ctx.
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("%w: %v", ErrNotRunning, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, nil, fmt.Errorf("events: %s", resp.Status)
	}

	out := make(chan any)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		readSSE(ctx, resp.Body, out)
	}()
	return out, cancel, nil
}

func readSSE(ctx context.Context, r io.Reader, out chan<- any) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var name string
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if name != "" && len(data) > 0 {
				msg, err := events.Decode(name, data)
				if err != nil {
					utils.Debug("remote: %v", err)
				} else {
					select {
					case out <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
			name, data = "", nil
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		}
	}
}

// Shutdown is a no-op: the remote instance owns its own lifecycle.
func (s *RemoteDownloadService) Shutdown() error { return nil }
