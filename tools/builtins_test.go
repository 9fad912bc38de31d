package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runTool(t *testing.T, r *Registry, name string, args any, workingDir string) (string, error) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("failed to marshal args: %v", err)
	}
	return r.Execute(context.Background(), name, raw, workingDir)
}

func TestShellCommand(t *testing.T) {
	r := NewRegistry(NewShellCommand())

	out, err := runTool(t, r, "shell_command", map[string]any{"command": "echo hello"}, "")
	if err != nil {
		t.Fatalf("shell_command failed: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestShellCommand_BlocksDangerous(t *testing.T) {
	r := NewRegistry(NewShellCommand())

	_, err := runTool(t, r, "shell_command", map[string]any{"command": "sudo rm -rf /"}, "")
	if err == nil || !strings.Contains(err.Error(), "blocked") {
		t.Fatalf("expected a blocked-command error, got %v", err)
	}
}

func TestReadWriteListRoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(NewReadFile(), NewWriteFile(), NewListDir())

	if _, err := runTool(t, r, "write_file", map[string]any{
		"path":    "notes/hello.txt",
		"content": "hi there",
	}, dir); err != nil {
		t.Fatalf("write_file failed: %v", err)
	}

	out, err := runTool(t, r, "read_file", map[string]any{"path": "notes/hello.txt"}, dir)
	if err != nil {
		t.Fatalf("read_file failed: %v", err)
	}
	if out != "hi there" {
		t.Fatalf("unexpected content: %q", out)
	}

	listing, err := runTool(t, r, "list_dir", map[string]any{"path": "notes"}, dir)
	if err != nil {
		t.Fatalf("list_dir failed: %v", err)
	}
	if !strings.Contains(listing, "hello.txt") {
		t.Fatalf("unexpected listing: %q", listing)
	}
}

func TestReadFile_Truncates(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("x", maxFileRead+100)
	if err := os.WriteFile(filepath.Join(dir, "big.txt"), []byte(big), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	r := NewRegistry(NewReadFile())
	out, err := runTool(t, r, "read_file", map[string]any{"path": "big.txt"}, dir)
	if err != nil {
		t.Fatalf("read_file failed: %v", err)
	}
	if !strings.HasSuffix(out, "[truncated]") {
		t.Fatal("expected a truncation marker")
	}
	if len(out) > maxFileRead+64 {
		t.Fatalf("output too large: %d bytes", len(out))
	}
}

func TestResolvePath(t *testing.T) {
	if _, err := resolvePath("", "/tmp"); err == nil {
		t.Fatal("empty path must fail")
	}
	got, err := resolvePath("/abs/file", "/work")
	if err != nil || got != "/abs/file" {
		t.Fatalf("absolute path mishandled: %q, %v", got, err)
	}
	got, err = resolvePath("rel.txt", "/work")
	if err != nil || got != filepath.Join("/work", "rel.txt") {
		t.Fatalf("relative path mishandled: %q, %v", got, err)
	}
}

func TestHTTPGet_RejectsNonHTTP(t *testing.T) {
	r := NewRegistry(NewHTTPGet())
	_, err := runTool(t, r, "http_get", map[string]any{"url": "ftp://example.com"}, "")
	if err == nil || !strings.Contains(fmt.Sprint(err), "http") {
		t.Fatalf("expected a scheme error, got %v", err)
	}
}
