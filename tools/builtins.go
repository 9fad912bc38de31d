package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Builtins returns the default tool set exposed to chat-completions
// providers: shell, file IO, and web fetch. The agent-sdk runtime brings
// its own tools and ignores these.
func Builtins() []Tool {
	return []Tool{
		NewShellCommand(),
		NewReadFile(),
		NewWriteFile(),
		NewListDir(),
		NewHTTPGet(),
	}
}

type shellArgs struct {
	Command string `json:"command" jsonschema:"description=Shell command line to execute"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"description=Timeout in seconds (max 300)"`
}

// Patterns that indicate destructive operations.
var dangerousPatterns = []string{
	"rm -rf", "rm -fr", "> /dev/", "mkfs", ":(){", "sudo", "shutdown", "reboot",
}

func NewShellCommand() Tool {
	return NewFuncTool(
		"shell_command",
		"Execute a shell command and return its combined output. Destructive commands are blocked.",
		mustSchemaFor(shellArgs{}),
		func(ctx context.Context, args json.RawMessage, workingDir string) (string, error) {
			var in shellArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid shell_command args: %w", err)
			}
			if strings.TrimSpace(in.Command) == "" {
				return "", fmt.Errorf("command is required")
			}
			lower := strings.ToLower(in.Command)
			for _, pattern := range dangerousPatterns {
				if strings.Contains(lower, pattern) {
					return "", fmt.Errorf("command blocked: contains %q", pattern)
				}
			}

			timeout := 60 * time.Second
			if in.Timeout > 0 {
				if in.Timeout > 300 {
					in.Timeout = 300
				}
				timeout = time.Duration(in.Timeout) * time.Second
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			cmd := exec.CommandContext(ctx, "sh", "-c", in.Command)
			cmd.Dir = workingDir
			var buf bytes.Buffer
			cmd.Stdout = &buf
			cmd.Stderr = &buf
			err := cmd.Run()
			out := buf.String()
			if err != nil {
				return out, fmt.Errorf("command failed: %w", err)
			}
			return out, nil
		},
	)
}

type readFileArgs struct {
	Path string `json:"path" jsonschema:"description=File path, absolute or relative to the working directory"`
}

const maxFileRead = 256 * 1024

func NewReadFile() Tool {
	return NewFuncTool(
		"read_file",
		"Read a text file and return its contents (truncated past 256 KiB).",
		mustSchemaFor(readFileArgs{}),
		func(ctx context.Context, args json.RawMessage, workingDir string) (string, error) {
			var in readFileArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid read_file args: %w", err)
			}
			path, err := resolvePath(in.Path, workingDir)
			if err != nil {
				return "", err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return "", fmt.Errorf("failed to read %q: %w", path, err)
			}
			if len(data) > maxFileRead {
				return string(data[:maxFileRead]) + "\n... [truncated]", nil
			}
			return string(data), nil
		},
	)
}

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"description=Destination file path"`
	Content string `json:"content" jsonschema:"description=Full file content to write"`
}

func NewWriteFile() Tool {
	return NewFuncTool(
		"write_file",
		"Write content to a file, creating parent directories as needed.",
		mustSchemaFor(writeFileArgs{}),
		func(ctx context.Context, args json.RawMessage, workingDir string) (string, error) {
			var in writeFileArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid write_file args: %w", err)
			}
			path, err := resolvePath(in.Path, workingDir)
			if err != nil {
				return "", err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return "", fmt.Errorf("failed to create parent dir: %w", err)
			}
			if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
				return "", fmt.Errorf("failed to write %q: %w", path, err)
			}
			return fmt.Sprintf("wrote %d bytes to %s", len(in.Content), path), nil
		},
	)
}

type listDirArgs struct {
	Path string `json:"path,omitempty" jsonschema:"description=Directory to list, defaults to the working directory"`
}

func NewListDir() Tool {
	return NewFuncTool(
		"list_dir",
		"List directory entries, one per line, directories suffixed with /.",
		mustSchemaFor(listDirArgs{}),
		func(ctx context.Context, args json.RawMessage, workingDir string) (string, error) {
			var in listDirArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid list_dir args: %w", err)
			}
			if in.Path == "" {
				in.Path = "."
			}
			path, err := resolvePath(in.Path, workingDir)
			if err != nil {
				return "", err
			}
			entries, err := os.ReadDir(path)
			if err != nil {
				return "", fmt.Errorf("failed to list %q: %w", path, err)
			}
			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				name := entry.Name()
				if entry.IsDir() {
					name += "/"
				}
				names = append(names, name)
			}
			sort.Strings(names)
			return strings.Join(names, "\n"), nil
		},
	)
}

type httpGetArgs struct {
	URL string `json:"url" jsonschema:"description=HTTP or HTTPS URL to fetch"`
}

const maxFetchBody = 512 * 1024

func NewHTTPGet() Tool {
	client := &http.Client{Timeout: 30 * time.Second}
	return NewFuncTool(
		"http_get",
		"Fetch a URL and return the response body as text (truncated past 512 KiB).",
		mustSchemaFor(httpGetArgs{}),
		func(ctx context.Context, args json.RawMessage, workingDir string) (string, error) {
			var in httpGetArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return "", fmt.Errorf("invalid http_get args: %w", err)
			}
			if !strings.HasPrefix(in.URL, "http://") && !strings.HasPrefix(in.URL, "https://") {
				return "", fmt.Errorf("url must be http or https")
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
			if err != nil {
				return "", fmt.Errorf("failed to build request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("fetch failed: %w", err)
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody+1))
			if err != nil {
				return "", fmt.Errorf("failed to read body: %w", err)
			}
			if resp.StatusCode >= 300 {
				return "", fmt.Errorf("fetch returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			}
			if len(body) > maxFetchBody {
				return string(body[:maxFetchBody]) + "\n... [truncated]", nil
			}
			return string(body), nil
		},
	)
}

func resolvePath(path, workingDir string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	if workingDir == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		return abs, nil
	}
	return filepath.Join(workingDir, path), nil
}
