package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/tobert/microdash/internal/backend"
)

// platformTimeout bounds the doctor's platform API probe.
const platformTimeout = 5 * time.Second

// DoctorCommand returns the CLI command definition for the 'doctor' subcommand.
// This command runs diagnostic checks to verify microdash is properly configured.
func DoctorCommand(version string) *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Diagnose common setup and configuration issues",
		Description: `Run checks to verify microdash is properly configured.

This command checks:
  - Binary location and permissions
  - Config files (global, project, --config)
  - Platform API reachability
  - Local trace directories
  - MCP configuration file (optional)
  - otel-cli for sending test spans (optional)

Exit codes:
  0 - All critical checks passed
  1 - One or more issues found`,
		Flags: commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := LoadEffectiveConfig(cmd.String("config"))
			if err != nil {
				cfg = DefaultConfig()
			}
			if cmd.IsSet("api-url") {
				cfg.APIURL = cmd.String("api-url")
			}
			var client backend.Client
			if c, cerr := newClient(cfg); cerr == nil {
				client = c
			}
			return runDoctorWithUtils(ctx, version, &realFsUtils{}, doctorInput{
				configPath: cmd.String("config"),
				config:     cfg,
				client:     client,
			})
		},
	}
}

type checkResult struct {
	Name       string
	Status     string // "pass", "warn", "fail"
	Message    string
	Suggestion string
	IsCritical bool
}

type fsUtils interface {
	Executable() (string, error)
	Stat(name string) (os.FileInfo, error)
	ReadFile(name string) ([]byte, error)
	UserHomeDir() (string, error)
	Getwd() (string, error)
	LookPath(file string) (string, error)
}

type realFsUtils struct{}

func (r *realFsUtils) Executable() (string, error)           { return os.Executable() }
func (r *realFsUtils) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }
func (r *realFsUtils) ReadFile(name string) ([]byte, error)  { return os.ReadFile(name) }
func (r *realFsUtils) UserHomeDir() (string, error)          { return os.UserHomeDir() }
func (r *realFsUtils) Getwd() (string, error)                { return os.Getwd() }
func (r *realFsUtils) LookPath(file string) (string, error)  { return exec.LookPath(file) }

// doctorInput is what the checks inspect besides the filesystem.
type doctorInput struct {
	configPath string // --config, if given
	config     *Config
	client     backend.Client // nil if the API URL is unusable
}

func runDoctorWithUtils(ctx context.Context, version string, utils fsUtils, in doctorInput) error {
	fmt.Printf("🔍 microdash doctor v%s\n\n", version)

	checks := []func() checkResult{
		func() checkResult { return checkBinaryLocation(utils) },
		func() checkResult { return checkBinaryExecutable(utils) },
		func() checkResult { return checkConfigFiles(utils, in.configPath) },
		func() checkResult { return checkPlatformAPI(ctx, in.client, in.config.APIURL) },
		func() checkResult { return checkTraceDirs(utils, in.config) },
		func() checkResult { return checkMCPConfig(utils) },
		func() checkResult { return checkOtelCLI(utils, in.config) },
	}

	results := make([]checkResult, 0, len(checks))
	for _, check := range checks {
		result := check()
		results = append(results, result)
		printCheckResult(result)
	}

	fmt.Println()
	summary := summarizeResults(results)
	printSummary(summary)

	if summary.FailCount > 0 {
		return fmt.Errorf("found %d issues that need attention", summary.FailCount)
	}

	return nil
}

func printCheckResult(result checkResult) {
	var icon string
	switch result.Status {
	case "pass":
		icon = "✓"
	case "warn":
		icon = "⚠"
	case "fail":
		icon = "✗"
	}

	fmt.Printf("%s %s\n", icon, result.Message)

	if result.Suggestion != "" {
		fmt.Printf("  %s\n", result.Suggestion)
	}
}

type resultSummary struct {
	PassCount int
	WarnCount int
	FailCount int
}

func summarizeResults(results []checkResult) resultSummary {
	var summary resultSummary
	for _, r := range results {
		switch r.Status {
		case "pass":
			summary.PassCount++
		case "warn":
			summary.WarnCount++
		case "fail":
			summary.FailCount++
		}
	}
	return summary
}

func printSummary(summary resultSummary) {
	if summary.FailCount > 0 {
		fmt.Printf("❌ Found %d issue(s) that need attention\n", summary.FailCount)
		if summary.WarnCount > 0 {
			fmt.Printf("⚠️  %d warning(s)\n", summary.WarnCount)
		}
	} else if summary.WarnCount > 0 {
		fmt.Printf("✅ All critical checks passed!\n")
		fmt.Printf("⚠️  %d optional warning(s)\n", summary.WarnCount)
		fmt.Printf("💡 Run 'microdash serve --verbose' to start the dashboard\n")
	} else {
		fmt.Printf("✅ All checks passed!\n")
		fmt.Printf("💡 Run 'microdash serve --verbose' to start the dashboard\n")
	}
}

// Check 1: Binary location
func checkBinaryLocation(utils fsUtils) checkResult {
	executable, err := utils.Executable()
	if err != nil {
		return checkResult{
			Name:       "binary_location",
			Status:     "fail",
			Message:    "Could not determine binary location",
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}

	absPath, err := filepath.Abs(executable)
	if err != nil {
		absPath = executable
	}

	return checkResult{
		Name:    "binary_location",
		Status:  "pass",
		Message: fmt.Sprintf("Binary location: %s", absPath),
	}
}

// Check 2: Binary executable
func checkBinaryExecutable(utils fsUtils) checkResult {
	executable, err := utils.Executable()
	if err != nil {
		return checkResult{
			Name:       "binary_executable",
			Status:     "fail",
			Message:    "Could not check if binary is executable",
			IsCritical: true,
		}
	}

	info, err := utils.Stat(executable)
	if err != nil || info == nil {
		return checkResult{
			Name:       "binary_executable",
			Status:     "fail",
			Message:    "Could not stat binary",
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}

	if info.Mode()&0111 == 0 {
		return checkResult{
			Name:       "binary_executable",
			Status:     "fail",
			Message:    "Binary is not executable",
			Suggestion: fmt.Sprintf("Run: chmod +x %s", executable),
			IsCritical: true,
		}
	}

	return checkResult{
		Name:    "binary_executable",
		Status:  "pass",
		Message: "Binary is executable",
	}
}

// Check 3: Config files parse
func checkConfigFiles(utils fsUtils, explicit string) checkResult {
	var found []string
	if explicit != "" {
		found = append(found, explicit)
	} else {
		if home, err := utils.UserHomeDir(); err == nil {
			if p, ok := firstExistingWith(utils, filepath.Join(home, ".config", "microdash", "config")); ok {
				found = append(found, p)
			}
		}
		if cwd, err := utils.Getwd(); err == nil {
			if p, ok := findProjectConfigWith(utils, cwd); ok {
				found = append(found, p)
			}
		}
	}

	if len(found) == 0 {
		return checkResult{
			Name:    "config_files",
			Status:  "warn",
			Message: "No config file found, using built-in defaults",
			Suggestion: `Create .microdash.yaml in your project, e.g.:
    api_url: http://localhost:8080
    otlp_enabled: true`,
		}
	}

	for _, path := range found {
		data, err := utils.ReadFile(path)
		if err != nil {
			return checkResult{
				Name:       "config_files",
				Status:     "fail",
				Message:    "Could not read config file",
				Suggestion: fmt.Sprintf("Error reading %s: %v", path, err),
				IsCritical: true,
			}
		}
		var cfg Config
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &cfg)
		default:
			err = json.Unmarshal(data, &cfg)
		}
		if err == nil {
			err = MergeConfigs(DefaultConfig(), &cfg).Validate()
		}
		if err != nil {
			return checkResult{
				Name:       "config_files",
				Status:     "fail",
				Message:    fmt.Sprintf("Config file is invalid: %s", path),
				Suggestion: fmt.Sprintf("Error: %v", err),
				IsCritical: true,
			}
		}
	}

	return checkResult{
		Name:    "config_files",
		Status:  "pass",
		Message: fmt.Sprintf("Config: %s", strings.Join(found, ", ")),
	}
}

func firstExistingWith(utils fsUtils, base string) (string, bool) {
	for _, ext := range configExts {
		if _, err := utils.Stat(base + ext); err == nil {
			return base + ext, true
		}
	}
	return "", false
}

func findProjectConfigWith(utils fsUtils, dir string) (string, bool) {
	for {
		if p, ok := firstExistingWith(utils, filepath.Join(dir, ".microdash")); ok {
			return p, true
		}
		if _, err := utils.Stat(filepath.Join(dir, ".git")); err == nil {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Check 4: Platform API reachable
func checkPlatformAPI(ctx context.Context, client backend.Client, apiURL string) checkResult {
	if client == nil {
		return checkResult{
			Name:       "platform_api",
			Status:     "fail",
			Message:    fmt.Sprintf("Platform API URL is not usable: %q", apiURL),
			Suggestion: "Set api_url in your config or pass --api-url http://host:port",
			IsCritical: true,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, platformTimeout)
	defer cancel()

	services, err := client.List(ctx)
	if err != nil {
		return checkResult{
			Name:       "platform_api",
			Status:     "fail",
			Message:    fmt.Sprintf("Platform API not reachable at %s", apiURL),
			Suggestion: fmt.Sprintf("Error: %v", err),
			IsCritical: true,
		}
	}

	return checkResult{
		Name:    "platform_api",
		Status:  "pass",
		Message: fmt.Sprintf("Platform API reachable at %s (%d services)", apiURL, len(services)),
	}
}

// Check 5: Local trace directories
func checkTraceDirs(utils fsUtils, cfg *Config) checkResult {
	dirs := append([]string(nil), cfg.TraceDirs...)
	if cfg.OtelConfig != "" {
		found, err := ParseOtelConfig(cfg.OtelConfig)
		if err != nil {
			return checkResult{
				Name:       "trace_dirs",
				Status:     "warn",
				Message:    "Could not read collector config",
				Suggestion: fmt.Sprintf("Error: %v", err),
			}
		}
		dirs = append(dirs, found...)
	}

	if len(dirs) == 0 {
		return checkResult{
			Name:    "trace_dirs",
			Status:  "pass",
			Message: "Optional: no local trace directories configured",
		}
	}

	var missing []string
	for _, dir := range dirs {
		if _, err := utils.Stat(filepath.Join(dir, "traces")); err != nil {
			missing = append(missing, dir)
		}
	}
	if len(missing) > 0 {
		return checkResult{
			Name:       "trace_dirs",
			Status:     "warn",
			Message:    fmt.Sprintf("Trace directories without traces/: %s", strings.Join(missing, ", ")),
			Suggestion: "The directory is created on serve; point the collector file exporter at <dir>/traces/traces.jsonl",
		}
	}

	return checkResult{
		Name:    "trace_dirs",
		Status:  "pass",
		Message: fmt.Sprintf("Trace directories: %s", strings.Join(dirs, ", ")),
	}
}

// Check 6: MCP configuration (optional)
func checkMCPConfig(utils fsUtils) checkResult {
	configPath := getMCPConfigPath(utils)

	if _, err := utils.Stat(configPath); err != nil {
		executable, _ := utils.Executable()
		absPath, _ := filepath.Abs(executable)

		return checkResult{
			Name:    "mcp_config",
			Status:  "warn",
			Message: "Optional: MCP config not found",
			Suggestion: fmt.Sprintf(`To use the dashboard from an agent, add to your MCP config:
  {
    "mcpServers": {
      "microdash": {
        "command": "%s",
        "args": ["mcp"]
      }
    }
  }`, absPath),
		}
	}

	data, err := utils.ReadFile(configPath)
	if err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    "Optional: could not read MCP config",
			Suggestion: fmt.Sprintf("Error reading %s: %v", configPath, err),
		}
	}

	var config struct {
		MCPServers map[string]struct {
			Command string `json:"command"`
		} `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &config); err != nil {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    "Optional: MCP config is not valid JSON",
			Suggestion: fmt.Sprintf("Error parsing %s: %v", configPath, err),
		}
	}

	entry, ok := config.MCPServers["microdash"]
	if !ok {
		return checkResult{
			Name:       "mcp_config",
			Status:     "warn",
			Message:    fmt.Sprintf("Optional: MCP config found: %s", configPath),
			Suggestion: "Config does not contain a 'microdash' server entry",
		}
	}

	executable, _ := utils.Executable()
	absExecutable, _ := filepath.Abs(executable)
	if entry.Command != "" && entry.Command != absExecutable {
		return checkResult{
			Name:    "mcp_config",
			Status:  "warn",
			Message: fmt.Sprintf("MCP config found: %s", configPath),
			Suggestion: fmt.Sprintf("Config path (%s) differs from current binary (%s)\n  Update config to use current binary if needed",
				entry.Command, absExecutable),
		}
	}

	return checkResult{
		Name:    "mcp_config",
		Status:  "pass",
		Message: fmt.Sprintf("MCP config found: %s", configPath),
	}
}

// Check 7: otel-cli (optional)
func checkOtelCLI(utils fsUtils, cfg *Config) checkResult {
	path, err := utils.LookPath("otel-cli")
	if err != nil {
		return checkResult{
			Name:       "otel_cli",
			Status:     "warn",
			Message:    "Optional: otel-cli not found",
			Suggestion: "Install from https://github.com/equinix-labs/otel-cli to send test spans to 'serve --otlp'",
		}
	}

	msg := fmt.Sprintf("Optional: otel-cli found at %s", path)
	if cfg.OTLPEnabled {
		msg += fmt.Sprintf(" (endpoint %s:%d)", cfg.OTLPHost, cfg.OTLPPort)
	}
	return checkResult{
		Name:    "otel_cli",
		Status:  "pass",
		Message: msg,
	}
}

// getMCPConfigPaths returns possible MCP config file paths, project-level first.
func getMCPConfigPaths(utils fsUtils) []string {
	homeDir, err := utils.UserHomeDir()
	if err != nil {
		return nil
	}

	var paths []string
	if cwd, _ := utils.Getwd(); cwd != "" {
		paths = append(paths,
			filepath.Join(cwd, ".mcp.json"),
			filepath.Join(cwd, ".gemini", "settings.json"),
		)
	}

	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		paths = append(paths, filepath.Join(appData, "mcp", "mcp_settings.json"))
	default:
		paths = append(paths, filepath.Join(homeDir, ".config", "mcp", "mcp_settings.json"))
	}

	return paths
}

// getMCPConfigPath returns the first existing MCP config file path
func getMCPConfigPath(utils fsUtils) string {
	paths := getMCPConfigPaths(utils)
	for _, path := range paths {
		if _, err := utils.Stat(path); err == nil {
			return path
		}
	}
	if len(paths) > 0 {
		return paths[0]
	}
	return ""
}
