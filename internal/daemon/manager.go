package daemon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go2ctl/go2ctl/internal/version"
)

// ErrNotRunning is returned when no background bridge answers.
var ErrNotRunning = errors.New("bridge not running, start it with 'go2ctl serve --detach'")

// DefaultStartTimeout covers robot connection and negotiation, which happen
// before the bridge starts listening.
const DefaultStartTimeout = 45 * time.Second

// Manager handles the background `go2ctl serve` process lifecycle and calls
// its HTTP API.
type Manager struct {
	url  string
	home string

	// StartTimeout bounds how long StartServer waits for the bridge to
	// answer its health check.
	StartTimeout time.Duration
}

// NewManager creates a manager for a bridge reachable at url whose pid and
// log files live under home.
func NewManager(url, home string) *Manager {
	return &Manager{
		url:          strings.TrimSuffix(url, "/"),
		home:         home,
		StartTimeout: DefaultStartTimeout,
	}
}

// URLFor turns a listen address into a URL a local client can dial.
func URLFor(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// URL returns the bridge base URL.
func (m *Manager) URL() string {
	return m.url
}

// IsServerRunning checks if the bridge is running
func (m *Manager) IsServerRunning() bool {
	// First check PID file
	pidFile := m.getPIDFile()
	if pid, err := readPID(pidFile); err == nil {
		if isProcessAlive(pid) && m.checkHTTPHealth() {
			return true
		}
		// PID file exists but process is dead or not responding
		if !isProcessAlive(pid) {
			os.Remove(pidFile)
		}
	}

	// The bridge may have been started in the foreground
	return m.checkHTTPHealth()
}

// checkHTTPHealth checks if the bridge is responding to HTTP requests
func (m *Manager) checkHTTPHealth() bool {
	client := &http.Client{Timeout: 500 * time.Millisecond}
	resp, err := client.Get(m.url + "/healthz")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StartServer runs `go2ctl serve` with args in the background and waits
// until it answers. It returns the child pid.
func (m *Manager) StartServer(args []string) (int, error) {
	if err := os.MkdirAll(m.home, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create go2ctl home: %v", err)
	}

	logFd, err := os.OpenFile(m.LogFile(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to create log file: %v", err)
	}
	defer logFd.Close()

	exePath, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("failed to get executable path: %v", err)
	}

	cmd := exec.Command(exePath, append([]string{"serve"}, args...)...)
	cmd.Stdout = logFd
	cmd.Stderr = logFd
	setSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start bridge: %v", err)
	}
	pid := cmd.Process.Pid

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	if err := os.WriteFile(m.getPIDFile(), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		log.Printf("Warning: failed to write PID file: %v", err)
	}

	deadline := time.Now().Add(m.StartTimeout)
	for time.Now().Before(deadline) {
		select {
		case err := <-exited:
			os.Remove(m.getPIDFile())
			return 0, fmt.Errorf("bridge exited during startup (%v), see %s", err, m.LogFile())
		case <-time.After(250 * time.Millisecond):
		}
		if m.checkHTTPHealth() {
			log.Printf("go2ctl bridge started (PID: %d)", pid)
			return pid, nil
		}
	}

	return pid, fmt.Errorf("bridge started but not responding at %s, see %s", m.url, m.LogFile())
}

// StopServer terminates the background bridge.
func (m *Manager) StopServer() error {
	pidFile := m.getPIDFile()
	pid, err := readPID(pidFile)
	if err != nil {
		return ErrNotRunning
	}

	if err := killProcess(pid, syscall.SIGTERM); err != nil {
		os.Remove(pidFile)
		return fmt.Errorf("failed to stop bridge: %v", err)
	}

	os.Remove(pidFile)
	log.Printf("go2ctl bridge stopped (PID: %d)", pid)
	return nil
}

// LogFile returns the path of the background bridge log.
func (m *Manager) LogFile() string {
	return filepath.Join(m.home, "serve.log")
}

// getPIDFile returns the path to the PID file
func (m *Manager) getPIDFile() string {
	return filepath.Join(m.home, "serve.pid")
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// APIError is a non-2xx bridge response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// CallAPI makes an API call to the bridge
func (m *Manager) CallAPI(method, endpoint string, body interface{}, result interface{}) error {
	url := m.url + endpoint

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %v", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", version.UserAgent())

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return ErrNotRunning
		}
		return fmt.Errorf("API call failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var msg struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &msg) == nil && msg.Error != "" {
			apiErr.Message = msg.Error
		}
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %v", err)
		}
	}

	return nil
}
