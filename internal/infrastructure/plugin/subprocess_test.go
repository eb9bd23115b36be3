package plugin

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func writeShellScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("subprocess protocol tests target unix shells")
	}
	path := filepath.Join(t.TempDir(), "plugin.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestInvoke_SuccessLine(t *testing.T) {
	bin := writeShellScript(t, `read line
echo '{"success":true,"output":"done"}'
`)
	result, err := Invoke(context.Background(), bin, map[string]interface{}{"x": 1})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !result.Success || result.Output != "done" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestInvoke_NonZeroExitOverridesSuccess(t *testing.T) {
	bin := writeShellScript(t, `read line
echo '{"success":true,"output":"done"}'
exit 1
`)
	result, err := Invoke(context.Background(), bin, map[string]interface{}{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Success {
		t.Fatal("non-zero exit status must override parsed success")
	}
}

func TestInvoke_UnparseableLineTruncatesAtCharBoundary(t *testing.T) {
	long := strings.Repeat("é", 300) // multi-byte rune, must not be sliced mid-codepoint
	bin := writeShellScript(t, `read line
echo "`+long+`"
`)
	result, err := Invoke(context.Background(), bin, map[string]interface{}{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Success {
		t.Fatal("unparseable output must be reported as failure")
	}
	if strings.Count(result.Error, "é") != 200 {
		t.Fatalf("expected echo truncated to 200 runes, got %d: %s", strings.Count(result.Error, "é"), result.Error)
	}
}

func TestInvoke_Timeout(t *testing.T) {
	bin := writeShellScript(t, `read line
sleep 30
`)
	result, err := Invoke(context.Background(), bin, map[string]interface{}{})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if result.Success || !strings.Contains(result.Error, "timed out after 10s") {
		t.Fatalf("expected timeout failure, got %+v", result)
	}
}

func TestTruncateAtCharBoundary(t *testing.T) {
	s := strings.Repeat("a", 5)
	if got := truncateAtCharBoundary(s, 10); got != s {
		t.Fatalf("short string should be unchanged, got %q", got)
	}
	multi := strings.Repeat("日", 10)
	if got := truncateAtCharBoundary(multi, 3); len([]rune(got)) != 3 {
		t.Fatalf("expected 3 runes, got %d", len([]rune(got)))
	}
}
