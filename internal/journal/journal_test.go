package journal

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	logx "ctrdash/pkg/logx"
)

func script(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	path := filepath.Join(t.TempDir(), "journalctl")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestArgs(t *testing.T) {
	f := &Follower{}
	want := []string{"--no-hostname", "--follow", "--lines=0", "--unit", "container@web.service"}
	if got := f.Args("container@web.service"); !reflect.DeepEqual(got, want) {
		t.Fatalf("Args = %v, want %v", got, want)
	}

	f = &Follower{Lines: 50, ExtraArgs: []string{"--output=cat"}}
	want = []string{"--no-hostname", "--follow", "--lines=50", "--unit", "web.service", "--output=cat"}
	if got := f.Args("web.service"); !reflect.DeepEqual(got, want) {
		t.Fatalf("Args = %v, want %v", got, want)
	}
}

func TestFollowStreamsStdout(t *testing.T) {
	f := &Follower{Command: script(t, `echo "$@"; echo second`)}
	rc, err := f.Follow(context.Background(), "container@web.service")
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := "--no-hostname --follow --lines=0 --unit container@web.service\nsecond\n"
	if string(out) != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
}

func TestFollowNonZeroExitEndsCleanly(t *testing.T) {
	var logs bytes.Buffer
	f := &Follower{
		Command: script(t, `echo last; echo "No journal files were found." >&2; exit 3`),
		Logger:  logx.NewWriter(&logs, "debug"),
	}
	rc, err := f.Follow(context.Background(), "web.service")
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(out) != "last\n" {
		t.Fatalf("output = %q", out)
	}
	got := logs.String()
	for _, want := range []string{"journal follower exited", "exit status 3", "No journal files", `"service":"web.service"`, `"level":"warn"`} {
		if !strings.Contains(got, want) {
			t.Fatalf("log %q is missing %q", got, want)
		}
	}
}

func TestCloseKillsChild(t *testing.T) {
	f := &Follower{Command: script(t, `exec sleep 30`)}
	rc, err := f.Follow(context.Background(), "web.service")
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- rc.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Close did not reap the child")
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestCancelEndsStreamCleanly(t *testing.T) {
	f := &Follower{Command: script(t, `echo ready; exec sleep 30`)}
	ctx, cancel := context.WithCancel(context.Background())
	rc, err := f.Follow(ctx, "web.service")
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	defer rc.Close()

	buf := make([]byte, 6)
	if _, err := io.ReadFull(rc, buf); err != nil || string(buf) != "ready\n" {
		t.Fatalf("first read = %q, %v", buf, err)
	}
	cancel()
	if _, err := io.ReadAll(rc); err != nil {
		t.Fatalf("read after cancel: %v", err)
	}
}

func TestFollowMissingCommand(t *testing.T) {
	f := &Follower{Command: filepath.Join(t.TempDir(), "nope")}
	if _, err := f.Follow(context.Background(), "web.service"); err == nil {
		t.Fatalf("expected start error")
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	b := &tailBuffer{max: 4}
	_, _ = b.Write([]byte("abcdef"))
	_, _ = b.Write([]byte("gh"))
	if got := b.String(); got != "efgh" {
		t.Fatalf("tail = %q", got)
	}
}
