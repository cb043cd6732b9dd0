package control

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"mivta/internal/corrector"
)

// Request is one line of JSON sent over the control socket.
type Request struct {
	Op        string   `json:"op"`
	Path      string   `json:"path,omitempty"`
	Output    string   `json:"output,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

type Status struct {
	Running    bool           `json:"running"`
	UptimeSec  float64        `json:"uptime_sec"`
	Trained    int            `json:"trained"`
	Total      int            `json:"total"`
	Percentage float64        `json:"percentage"`
	ModelReady bool           `json:"model_ready"`
	Threshold  float64        `json:"threshold"`
	Jobs       int64          `json:"jobs"`
	History    []HistoryEntry `json:"history"`
}

type SimpleResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// CorrectResponse answers a correct request.
type CorrectResponse struct {
	OK      bool              `json:"ok"`
	Message string            `json:"message"`
	Output  string            `json:"output,omitempty"`
	Report  *corrector.Report `json:"report,omitempty"`
}

// HistoryEntry summarizes one finished correction job.
type HistoryEntry struct {
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	Summary   string    `json:"summary"`
	Corrected int       `json:"corrected"`
	Timestamp time.Time `json:"timestamp"`
}

// Call sends req to the daemon socket and decodes one response into resp.
func Call(socket string, req Request, resp any) error {
	conn, err := net.Dial("unix", socket)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon: %w", err)
	}
	defer conn.Close()
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return err
	}
	return json.NewDecoder(conn).Decode(resp)
}
