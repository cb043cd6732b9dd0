package control

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mivta/internal/wavio"

	"github.com/spf13/cobra"
)

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func isolatedConfig(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return filepath.Join(home, "config.toml")
}

func writeTone(t *testing.T, dir, name string, freq float64) string {
	t.Helper()
	const sr = 22050
	audio := make([]float32, sr/2)
	for i := range audio {
		audio[i] = float32(0.5 * math.Sin(2*math.Pi*freq*float64(i)/sr))
	}
	path := filepath.Join(dir, name)
	if err := wavio.Write(path, audio, sr); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func TestSyllablesJSON(t *testing.T) {
	out, err := execute(t, NewSyllablesCmd(), "--json")
	if err != nil {
		t.Fatalf("syllables: %v", err)
	}
	var entries []struct {
		Index    int    `json:"index"`
		Text     string `json:"text"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 99 || entries[0].Index != 1 || entries[0].Text != "בְּ" || entries[0].Category != "CV" {
		t.Fatalf("unexpected catalog output: %d entries, first %+v", len(entries), entries[0])
	}
}

func TestTrainAndFitFlow(t *testing.T) {
	cfgPath := isolatedConfig(t)
	dir := t.TempDir()
	be := writeTone(t, dir, "be.wav", 300)
	le := writeTone(t, dir, "le.wav", 900)

	if _, err := execute(t, NewModelCmd(&cfgPath), "fit"); err == nil {
		t.Fatalf("fit without recordings should fail")
	}
	if _, err := execute(t, NewTrainCmd(&cfgPath), "add", "בְּ", be); err != nil {
		t.Fatalf("add be: %v", err)
	}
	if _, err := execute(t, NewTrainCmd(&cfgPath), "add", "לְ", le); err != nil {
		t.Fatalf("add le: %v", err)
	}
	if _, err := execute(t, NewTrainCmd(&cfgPath), "add", "xyz", le); err == nil {
		t.Fatalf("labels outside the catalog need --force")
	}

	out, err := execute(t, NewTrainCmd(&cfgPath), "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st struct {
		Status struct {
			Trained int `json:"trained"`
			Total   int `json:"total"`
		} `json:"status"`
		Labels []string `json:"trained_labels"`
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status: %v (%s)", err, out)
	}
	if st.Status.Trained != 2 || st.Status.Total != 99 || len(st.Labels) != 2 {
		t.Fatalf("unexpected status %+v", st)
	}

	out, err = execute(t, NewTrainCmd(&cfgPath), "next")
	if err != nil || !strings.HasPrefix(out, "שֶׁ") {
		t.Fatalf("next: %q %v", out, err)
	}

	if out, err = execute(t, NewModelCmd(&cfgPath), "fit", "--epochs", "3"); err != nil {
		t.Fatalf("fit: %v (%s)", err, out)
	}
	out, err = execute(t, NewModelCmd(&cfgPath), "show", "--json")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var info modelInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("decode show: %v", err)
	}
	if !info.Trained || info.References != 2 || info.Stale != 0 {
		t.Fatalf("unexpected model info %+v", info)
	}

	if _, err := execute(t, NewTrainCmd(&cfgPath), "reset", "בְּ"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	out, _ = execute(t, NewTrainCmd(&cfgPath), "next")
	if !strings.HasPrefix(out, "בְּ") {
		t.Fatalf("reset label should be next again, got %q", out)
	}
}

func TestCorrectWritesOutput(t *testing.T) {
	cfgPath := isolatedConfig(t)
	dir := t.TempDir()
	in := writeTone(t, dir, "reading.wav", 440)
	outWav := filepath.Join(dir, "fixed.wav")
	out, err := execute(t, NewCorrectCmd(&cfgPath), in, "--out", outWav, "--json")
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	var resp struct {
		Output string `json:"output"`
		Report struct {
			Version        int `json:"version"`
			CorrectedCount int `json:"corrected_count"`
		} `json:"report"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("decode: %v (%s)", err, out)
	}
	if resp.Output != outWav || resp.Report.Version != 1 || resp.Report.CorrectedCount != 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if _, err := os.Stat(outWav); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestTailFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	if err := os.WriteFile(path, []byte("a\nb\n\nc\nd\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var buf bytes.Buffer
	if err := tailFile(&buf, path, 2); err != nil {
		t.Fatalf("tail: %v", err)
	}
	if buf.String() != "c\nd\n" {
		t.Fatalf("unexpected tail %q", buf.String())
	}
}
