package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestTrainThenEval(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "records.ndjson")
	snapshots := filepath.Join(dir, "snapshots")

	rootCmd.SetArgs([]string{
		"train",
		"--log-level", "warn",
		"--generator", "erdos", "--param", "0.3",
		"--vcount", "20",
		"--dim-from", "2", "--dim-to", "2",
		"--steps", "4096",
		"--batch-size", "256",
		"--workers", "2",
		"--emb", "symmetric",
		"--output", output,
		"--snapshot-dir", snapshots,
	})
	if err := Execute(); err != nil {
		t.Fatalf("train: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	var records []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad record %q: %v", sc.Text(), err)
		}
		records = append(records, rec)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0]["emb"] != "symmetric" || records[0]["rgm"] != "erdos" {
		t.Errorf("record = %v", records[0])
	}

	model, _ := records[0]["model"].(string)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{
		"eval",
		"--log-level", "warn",
		"--snapshot", filepath.Join(snapshots, model+".snapshot"),
		"--graph", filepath.Join(snapshots, "erdos-0.graph"),
		"--draws", "2",
	})
	if err := Execute(); err != nil {
		t.Fatalf("eval: %v", err)
	}
	var res evalResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("eval output %q: %v", out.String(), err)
	}
	if res.Embedding != "symmetric" || res.Dim != 2 || res.Accuracy < 0 || res.Accuracy > 1 {
		t.Errorf("eval result = %+v", res)
	}
}

func TestTrainRejectsBadFlags(t *testing.T) {
	rootCmd.SetArgs([]string{"train", "--log-level", "warn", "--emb", "hyperbolic", "--output", filepath.Join(t.TempDir(), "x.ndjson")})
	err := Execute()
	if err == nil || !strings.Contains(err.Error(), "hyperbolic") {
		t.Fatalf("err = %v, want unknown embedding type", err)
	}
}
