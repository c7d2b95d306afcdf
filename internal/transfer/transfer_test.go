package transfer

import (
	"os"
	"strings"
	"testing"
)

type scriptedExec struct {
	calls []string
	// responses returns the next (stdout, stderr) for each call.
	stdoutByIndex map[int][]byte
	statSize      int64
}

func (s *scriptedExec) Execute(payload []byte, sink func([]byte)) ([]byte, []byte, error) {
	idx := len(s.calls)
	s.calls = append(s.calls, string(payload))
	if strings.Contains(string(payload), "os.stat(") && strings.Contains(string(payload), "[6]") {
		return []byte(itoa(s.statSize)), nil, nil
	}
	if out, ok := s.stdoutByIndex[idx]; ok {
		return out, nil, nil
	}
	return nil, nil, nil
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func TestGetWritesLocalFile(t *testing.T) {
	se := &scriptedExec{statSize: 5, stdoutByIndex: map[int][]byte{1: []byte("hello")}}
	e := New(se, "/")

	dir := t.TempDir()
	local := dir + "/out.bin"
	if err := e.Get("/remote.bin", local, nil); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(local)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}
}

func TestPutBatchesWritesUnderLimit(t *testing.T) {
	se := &scriptedExec{}
	e := New(se, "/")

	dir := t.TempDir()
	local := dir + "/in.bin"
	content := strings.Repeat("x", 20000)
	if err := os.WriteFile(local, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	var progressCalls int
	if err := e.Put(local, "/remote.bin", func(p Progress) { progressCalls++ }); err != nil {
		t.Fatal(err)
	}
	if progressCalls == 0 {
		t.Fatal("expected progress callbacks")
	}
	// open + >=1 batch flush(es) + close
	if len(se.calls) < 3 {
		t.Fatalf("expected at least open/batch/close calls, got %d", len(se.calls))
	}
	if !strings.Contains(se.calls[0], "open(") {
		t.Fatalf("first call should open the file: %q", se.calls[0])
	}
	if !strings.Contains(se.calls[len(se.calls)-1], "close()") {
		t.Fatalf("last call should close the file: %q", se.calls[len(se.calls)-1])
	}
}

func TestCpComposesGetAndPut(t *testing.T) {
	se := &scriptedExec{statSize: 5, stdoutByIndex: map[int][]byte{1: []byte("hello")}}
	e := New(se, "/")
	if err := e.Cp("/a.txt", "/b.txt"); err != nil {
		t.Fatal(err)
	}
	foundOpen := false
	for _, c := range se.calls {
		if strings.Contains(c, "/b.txt") {
			foundOpen = true
		}
	}
	if !foundOpen {
		t.Fatal("expected a call referencing the destination path")
	}
}
