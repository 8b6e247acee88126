package persistence

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)

	payloads := [][]byte{[]byte("first"), {}, bytes.Repeat([]byte{7}, 4096)}
	for _, p := range payloads {
		if err := fw.WriteFrame(OpGraph, p); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	for i, want := range payloads {
		op, got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if op != OpGraph {
			t.Errorf("frame %d: opcode %x", i, op)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d: payload mismatch", i)
		}
	}

	if _, _, err := ReadFrame(&buf); err != io.EOF {
		t.Errorf("expected clean EOF, got %v", err)
	}
}

func TestFrameCorruption(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFrameWriter(&buf).WriteFrame(OpSnapshot, []byte("payload")); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	t.Run("checksum", func(t *testing.T) {
		data := append([]byte{}, raw...)
		data[len(data)-1] ^= 0xFF
		if _, _, err := ReadFrame(bytes.NewReader(data)); !errors.Is(err, ErrChecksumMismatch) {
			t.Errorf("got %v, want ErrChecksumMismatch", err)
		}
	})

	t.Run("magic", func(t *testing.T) {
		data := append([]byte{}, raw...)
		data[0] = 0
		if _, _, err := ReadFrame(bytes.NewReader(data)); !errors.Is(err, ErrInvalidMagic) {
			t.Errorf("got %v, want ErrInvalidMagic", err)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		data := raw[:len(raw)-3]
		if _, _, err := ReadFrame(bytes.NewReader(data)); !errors.Is(err, ErrIncompleteFrame) {
			t.Errorf("got %v, want ErrIncompleteFrame", err)
		}
	})

	t.Run("opcode", func(t *testing.T) {
		if _, err := ReadFrameOf(bytes.NewReader(raw), OpGraph); !errors.Is(err, ErrUnexpectedOpCode) {
			t.Errorf("got %v, want ErrUnexpectedOpCode", err)
		}
	})
}

func TestRecordWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.ndjson")
	rw, err := NewRecordWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := rw.Write(map[string]int{"dim": i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]int
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("line %d: %v", lines, err)
		}
		if rec["dim"] != lines {
			t.Errorf("line %d: got dim %d", lines, rec["dim"])
		}
		lines++
	}
	if lines != 3 {
		t.Errorf("got %d lines, want 3", lines)
	}
}
