package devicefs

import "testing"

type fakeExec struct {
	stdout, stderr []byte
	err            error
	lastPayload    string
}

func (f *fakeExec) Execute(payload []byte, sink func([]byte)) ([]byte, []byte, error) {
	f.lastPayload = string(payload)
	return f.stdout, f.stderr, f.err
}

func TestLsSortsDirectoriesFirstCaseInsensitive(t *testing.T) {
	fe := &fakeExec{stdout: []byte(`[["zeta.txt", 10, false], ["Apple", 0, true], ["banana.py", 5, false]]`)}
	fs := New(fe, "RP2350", "/")
	entries, err := fs.Ls("/", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || !entries[0].IsDir {
		t.Fatalf("expected dir first: %+v", entries)
	}
	if entries[1].Name != "banana.py" || entries[2].Name != "zeta.txt" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestCatDetectsBinary(t *testing.T) {
	fe := &fakeExec{stdout: []byte{0xff, 0xfe, 0x00, 0x01}}
	fs := New(fe, "RP2350", "/")
	res, err := fs.Cat("/data.bin")
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsBinary {
		t.Fatal("expected binary detection")
	}
	if res.Content != "fffe0001" {
		t.Fatalf("content = %q", res.Content)
	}
}

func TestCatTextPassthrough(t *testing.T) {
	fe := &fakeExec{stdout: []byte("hello world\n")}
	fs := New(fe, "RP2350", "/")
	res, err := fs.Cat("/hello.txt")
	if err != nil {
		t.Fatal(err)
	}
	if res.IsBinary || res.Content != "hello world\n" {
		t.Fatalf("got %+v", res)
	}
}

func TestMemComputesPercent(t *testing.T) {
	fe := &fakeExec{stdout: []byte("[1000, 3000, 4000]")}
	fs := New(fe, "RP2350", "/")
	info, err := fs.Mem()
	if err != nil {
		t.Fatal(err)
	}
	if info.Free != 1000 || info.Alloc != 3000 || info.Total != 4000 {
		t.Fatalf("got %+v", info)
	}
	if info.Percent != 75 {
		t.Fatalf("percent = %v, want 75", info.Percent)
	}
}

func TestNormalizeUnderAlternateRootFS(t *testing.T) {
	fe := &fakeExec{stdout: []byte("0")}
	fs := New(fe, "EFR32MG", "/flash")
	fs.Stat("/foo/bar.py")
	if !containsFold(fe.lastPayload, "/flash/foo/bar.py") {
		t.Fatalf("expected normalized path in payload, got %q", fe.lastPayload)
	}
}

func containsFold(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestDfComputesPercent(t *testing.T) {
	fe := &fakeExec{stdout: []byte("[10000, 4000, 6000]")}
	fs := New(fe, "RP2350", "/")
	info, err := fs.Df("/")
	if err != nil {
		t.Fatal(err)
	}
	if info.Total != 10000 || info.Used != 4000 || info.Free != 6000 {
		t.Fatalf("got %+v", info)
	}
	if info.Percent != 40 {
		t.Fatalf("percent = %v, want 40", info.Percent)
	}
}

func TestFormatUnsupportedCore(t *testing.T) {
	fe := &fakeExec{}
	fs := New(fe, "UnknownCore", "/")
	if err := fs.Format(); err == nil {
		t.Fatal("expected error for unsupported core")
	}
}
