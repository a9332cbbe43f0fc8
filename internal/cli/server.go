package cli

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"hf_downloader/internal/config"
	"hf_downloader/internal/core"
	"hf_downloader/internal/download/types"
	"hf_downloader/internal/events"
	"hf_downloader/internal/utils"
)

const defaultControlPort = 1700

func getServerBindHost() string {
	return "127.0.0.1"
}

// findAvailablePort scans for a free TCP port starting at the given base.
func findAvailablePort(start int) (int, net.Listener) {
	bindHost := getServerBindHost()
	for port := start; port < start+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bindHost, port))
		if err == nil {
			return port, ln
		}
	}
	return 0, nil
}

// bindServerListener resolves the port selection policy and returns a listener.
func bindServerListener(portFlag int) (int, net.Listener, error) {
	bindHost := getServerBindHost()
	if portFlag > 0 {
		ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bindHost, portFlag))
		if err != nil {
			return 0, nil, fmt.Errorf("could not bind to port %d: %w", portFlag, err)
		}
		return portFlag, ln, nil
	}
	port, ln := findAvailablePort(defaultControlPort)
	if ln == nil {
		return 0, nil, fmt.Errorf("could not find available port")
	}
	return port, ln, nil
}

func portFile() string {
	return filepath.Join(config.GetRuntimeDir(), "port")
}

// saveActivePort records the control port so other invocations can find us.
func saveActivePort(port int) {
	if err := os.WriteFile(portFile(), []byte(strconv.Itoa(port)), 0o644); err != nil {
		utils.Debug("Error writing port file: %v", err)
	}
	utils.Debug("HTTP server listening on port %d", port)
}

// readActivePort returns the recorded control port, or 0.
func readActivePort() int {
	data, err := os.ReadFile(portFile())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return port
}

// removeActivePort cleans up the port file on exit.
func removeActivePort() {
	if err := os.Remove(portFile()); err != nil && !os.IsNotExist(err) {
		utils.Debug("Error removing port file: %v", err)
	}
}

// remoteService connects to the instance advertised in the port file.
func remoteService() (*core.RemoteDownloadService, error) {
	port := readActivePort()
	if port == 0 {
		return nil, core.ErrNotRunning
	}
	base := fmt.Sprintf("http://%s:%d", getServerBindHost(), port)
	return core.NewRemoteDownloadService(base, ensureAuthToken()), nil
}

// startHTTPServer serves the control plane on ln until the returned server
// is shut down.
func startHTTPServer(ln net.Listener, port int, service core.DownloadService) *http.Server {
	server := &http.Server{
		Handler:           newControlHandler(port, ensureAuthToken(), service),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			utils.Debug("HTTP server error: %v", err)
		}
	}()
	return server
}

func stopHTTPServer(server *http.Server) {
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		utils.Debug("HTTP server shutdown: %v", err)
		_ = server.Close()
	}
}

// newControlHandler builds the control plane: health, status, session
// commands, history and the SSE event stream.
func newControlHandler(port int, authToken string, service core.DownloadService) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (Public)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"port":    port,
			"version": Version,
		})
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap, err := service.Status()
		if errors.Is(err, types.ErrNoSession) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req types.FileSetRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<20)).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
		snap, err := service.Start(req)
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, snap)
		case errors.Is(err, types.ErrConfiguration):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, types.ErrSessionActive):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.Is(err, core.ErrServiceClosed):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	commands := map[string]func() (bool, error){
		"pause":  service.Pause,
		"resume": service.Resume,
		"stop":   service.Stop,
	}
	for name, fn := range commands {
		name, fn := name, fn
		mux.HandleFunc("/"+name, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			applied, err := fn()
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, core.CommandResult{Command: name, Applied: applied})
		})
	}

	mux.HandleFunc("/history", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		history, err := service.History(limit)
		if err != nil {
			http.Error(w, "Failed to retrieve history: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, history)
	})

	// SSE Events Endpoint (Protected).
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		stream, cleanup, err := service.StreamEvents(r.Context())
		if err != nil {
			http.Error(w, "Failed to subscribe to events", http.StatusInternalServerError)
			return
		}
		defer cleanup()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		// Flush headers immediately so the client knows the stream is live.
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				data, err := json.Marshal(msg)
				if err != nil {
					utils.Debug("Error marshaling event: %v", err)
					continue
				}
				// SSE Format:
				// event: <type>
				// data: <json>
				_, _ = fmt.Fprintf(w, "event: %s\n", events.Name(msg))
				_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			}
		}
	})

	// CORS outermost so 401s carry the headers too.
	return corsMiddleware(authMiddleware(authToken, mux))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Debug("Failed to encode response: %v", err)
	}
}

// corsMiddleware keeps local tools unblocked across origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests.
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware protects control endpoints with a shared bearer token.
func authMiddleware(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Allow health check without auth.
		if r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			provided := strings.TrimPrefix(authHeader, "Bearer ")
			if len(provided) == len(token) && subtle.ConstantTimeCompare([]byte(provided), []byte(token)) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}

		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

// ensureAuthToken loads or generates the control server auth token.
func ensureAuthToken() string {
	tokenFile := tokenPath()
	data, err := os.ReadFile(tokenFile)
	if err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token
		}
	}

	token := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(tokenFile), 0o755); err != nil {
		utils.Debug("Failed to create token directory: %v", err)
	}
	if err := os.WriteFile(tokenFile, []byte(token), 0o600); err != nil {
		utils.Debug("Failed to write token file: %v", err)
	}
	return token
}
