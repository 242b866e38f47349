package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tobert/microdash/internal/backend"
)

type mockFsUtils struct {
	executable    string
	executableErr error
	statMap       map[string]os.FileInfo
	statErr       error
	readFileMap   map[string][]byte
	readFileErr   error
	homeDir       string
	homeDirErr    error
	cwd           string
	cwdErr        error
	lookPathMap   map[string]string
	lookPathErr   error
}

func (m *mockFsUtils) Executable() (string, error) { return m.executable, m.executableErr }
func (m *mockFsUtils) Stat(name string) (os.FileInfo, error) {
	if info, ok := m.statMap[name]; ok {
		return info, nil
	}
	return nil, m.statErr
}
func (m *mockFsUtils) ReadFile(name string) ([]byte, error) {
	if content, ok := m.readFileMap[name]; ok {
		return content, nil
	}
	return nil, m.readFileErr
}
func (m *mockFsUtils) UserHomeDir() (string, error) { return m.homeDir, m.homeDirErr }
func (m *mockFsUtils) Getwd() (string, error)       { return m.cwd, m.cwdErr }
func (m *mockFsUtils) LookPath(file string) (string, error) {
	if path, ok := m.lookPathMap[file]; ok {
		return path, nil
	}
	return "", m.lookPathErr
}

// captureStdout runs fn with os.Stdout redirected and returns what it printed.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w
	defer func() {
		os.Stdout = oldStdout
	}()

	var buf bytes.Buffer
	outC := make(chan string)
	go func() {
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()

	fn()
	w.Close()
	return <-outC
}

func TestDoctorCommand(t *testing.T) {
	// Test case 1: no config file, platform down, otel-cli not found.
	// The platform check fails; config, MCP and otel-cli only warn.
	mockUtils1 := &mockFsUtils{
		executable: "/usr/local/bin/microdash",
		homeDir:    "/home/testuser",
		cwd:        "/home/testuser/project",
		statMap: map[string]os.FileInfo{
			"/usr/local/bin/microdash": &mockFileInfo{mode: 0755},
		},
		statErr:     os.ErrNotExist,
		lookPathErr: os.ErrNotExist,
	}

	var err error
	out := captureStdout(t, func() {
		err = runDoctorWithUtils(context.Background(), "test-version", mockUtils1, doctorInput{
			config: DefaultConfig(),
			client: &fakeClient{err: errors.New("connection refused")},
		})
	})

	assert.Error(t, err)
	assert.Contains(t, out, "⚠ No config file found, using built-in defaults")
	assert.Contains(t, out, "✗ Platform API not reachable at http://localhost:8080")
	assert.Contains(t, out, "⚠ Optional: MCP config not found")
	assert.Contains(t, out, "⚠ Optional: otel-cli not found")
	assert.Contains(t, out, "❌ Found 1 issue(s) that need attention")

	// Test case 2: project config, .mcp.json with a microdash entry,
	// platform up and otel-cli found. Everything passes.
	project := "/home/testuser/project"
	mcpConfig := []byte(`{
		"mcpServers": {
			"microdash": {
				"command": "/usr/local/bin/microdash",
				"args": ["mcp"]
			}
		}
	}`)

	mockUtils2 := &mockFsUtils{
		executable: "/usr/local/bin/microdash",
		homeDir:    "/home/testuser",
		cwd:        project,
		statMap: map[string]os.FileInfo{
			"/usr/local/bin/microdash":                &mockFileInfo{mode: 0755},
			filepath.Join(project, ".microdash.yaml"): &mockFileInfo{mode: 0644},
			filepath.Join(project, ".mcp.json"):       &mockFileInfo{mode: 0644},
		},
		statErr: os.ErrNotExist,
		readFileMap: map[string][]byte{
			filepath.Join(project, ".microdash.yaml"): []byte("api_url: http://platform:8080\npage_size: 5\n"),
			filepath.Join(project, ".mcp.json"):       mcpConfig,
		},
		lookPathMap: map[string]string{
			"otel-cli": "/usr/local/bin/otel-cli",
		},
	}

	cfg := DefaultConfig()
	cfg.APIURL = "http://platform:8080"
	out = captureStdout(t, func() {
		err = runDoctorWithUtils(context.Background(), "test-version", mockUtils2, doctorInput{
			config: cfg,
			client: fixture(),
		})
	})

	assert.NoError(t, err)
	assert.Contains(t, out, "✓ Config: "+filepath.Join(project, ".microdash.yaml"))
	assert.Contains(t, out, "✓ Platform API reachable at http://platform:8080 (2 services)")
	assert.Contains(t, out, "✓ MCP config found: "+filepath.Join(project, ".mcp.json"))
	assert.Contains(t, out, "✓ Optional: otel-cli found at /usr/local/bin/otel-cli")
	assert.Contains(t, out, "✅ All checks passed!")
}

func TestCheckConfigFilesInvalid(t *testing.T) {
	utils := &mockFsUtils{
		statErr: os.ErrNotExist,
		readFileMap: map[string][]byte{
			"/etc/microdash.json": []byte(`{"distribution": "bogus"}`),
		},
		readFileErr: os.ErrNotExist,
	}

	result := checkConfigFiles(utils, "/etc/microdash.json")
	assert.Equal(t, "fail", result.Status)
	assert.Contains(t, result.Suggestion, "bogus")

	result = checkConfigFiles(utils, "/etc/missing.yaml")
	assert.Equal(t, "fail", result.Status)
	assert.Equal(t, "Could not read config file", result.Message)
}

func TestCheckConfigFilesStopsAtGitRoot(t *testing.T) {
	utils := &mockFsUtils{
		homeDir: "/home/testuser",
		cwd:     "/home/testuser/repo/sub",
		statMap: map[string]os.FileInfo{
			"/home/testuser/repo/.git":       &mockFileInfo{isDir: true},
			"/home/testuser/.microdash.json": &mockFileInfo{mode: 0644},
		},
		statErr: os.ErrNotExist,
	}

	result := checkConfigFiles(utils, "")
	assert.Equal(t, "warn", result.Status, "config above the repo root is not a project config")
}

func TestCheckTraceDirs(t *testing.T) {
	utils := &mockFsUtils{
		statMap: map[string]os.FileInfo{
			filepath.Join("/data/a", "traces"): &mockFileInfo{isDir: true},
		},
		statErr: os.ErrNotExist,
	}

	result := checkTraceDirs(utils, &Config{})
	assert.Equal(t, "pass", result.Status)
	assert.Contains(t, result.Message, "no local trace directories")

	result = checkTraceDirs(utils, &Config{TraceDirs: []string{"/data/a"}})
	assert.Equal(t, "pass", result.Status)

	result = checkTraceDirs(utils, &Config{TraceDirs: []string{"/data/a", "/data/b"}})
	assert.Equal(t, "warn", result.Status)
	assert.Contains(t, result.Message, "/data/b")
	assert.NotContains(t, result.Message, "/data/a")
}

func TestCheckPlatformAPINoClient(t *testing.T) {
	result := checkPlatformAPI(context.Background(), nil, "::bad")
	assert.Equal(t, "fail", result.Status)
	assert.True(t, result.IsCritical)
}

func TestCheckMCPConfigMismatch(t *testing.T) {
	path := filepath.Join("/work", ".mcp.json")
	utils := &mockFsUtils{
		executable: "/opt/bin/microdash",
		homeDir:    "/home/testuser",
		cwd:        "/work",
		statMap:    map[string]os.FileInfo{path: &mockFileInfo{mode: 0644}},
		statErr:    os.ErrNotExist,
		readFileMap: map[string][]byte{
			path: []byte(`{"mcpServers": {"microdash": {"command": "/usr/local/bin/microdash"}}}`),
		},
	}

	result := checkMCPConfig(utils)
	assert.Equal(t, "warn", result.Status)
	assert.Contains(t, result.Suggestion, "differs from current binary")

	utils.readFileMap[path] = []byte(`{"mcpServers": {"other": {"command": "x"}}}`)
	result = checkMCPConfig(utils)
	assert.Equal(t, "warn", result.Status)
	assert.Contains(t, result.Suggestion, "'microdash'")
}

func TestSummarizeResults(t *testing.T) {
	summary := summarizeResults([]checkResult{
		{Status: "pass"}, {Status: "warn"}, {Status: "fail"}, {Status: "pass"},
	})
	assert.Equal(t, resultSummary{PassCount: 2, WarnCount: 1, FailCount: 1}, summary)
}

var _ backend.Client = (*fakeClient)(nil)

// mockFileInfo implements os.FileInfo for testing purposes
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
	sys     interface{}
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) Mode() os.FileMode  { return m.mode }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() interface{}   { return m.sys }
