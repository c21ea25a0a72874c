// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/consolebridge/lib/ref"
)

// Environment variables consulted by Load.
const (
	PathEnvironmentVariable        = "CONSOLEBRIDGE_CONFIG"
	EnvironmentEnvironmentVariable = "CONSOLEBRIDGE_ENV"
)

// Boundary detector names accepted in console.boundary.
const (
	BoundaryRepeatedMarker = "repeated-marker"
	BoundarySingleMarker   = "single-marker"
)

// Transcript compression names accepted in transcript.compression.
var compressions = []string{"zstd", "lz4", "none"}

// Config is the complete bridge configuration.
type Config struct {
	// Environment selects an entry of Environments to apply over the
	// base values. CONSOLEBRIDGE_ENV takes precedence when set.
	Environment string `yaml:"environment"`

	Console    ConsoleConfig    `yaml:"console"`
	Matrix     MatrixConfig     `yaml:"matrix"`
	State      StateConfig      `yaml:"state"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Control    ControlConfig    `yaml:"control"`
	Schedule   []ScheduleEntry  `yaml:"schedule"`

	// Environments holds per-environment patches. Each is a partial
	// document with the same shape as Config; only the fields it sets
	// are changed.
	Environments map[string]yaml.Node `yaml:"environments,omitempty"`
}

// ConsoleConfig describes the console process and its framing.
type ConsoleConfig struct {
	// Command is the console's command line, split with shell quoting
	// rules. ${VAR} references are expanded.
	Command string `yaml:"command"`

	// WorkingDirectory is the console's working directory.
	WorkingDirectory string `yaml:"working_directory"`

	// Environment lists extra KEY=VALUE entries for the console.
	Environment []string `yaml:"environment"`

	// MergeStderr sends the console's stderr through the decoder, so
	// error replies reach chat. When false, stderr lines are logged.
	// Defaults to true.
	MergeStderr bool `yaml:"merge_stderr"`

	// StopGrace is how long the console gets to exit after SIGTERM.
	StopGrace time.Duration `yaml:"stop_grace"`

	// Marker is the sentinel command written after each command.
	Marker string `yaml:"marker"`

	// EndMarker is the output line that the marker produces. Defaults
	// to Marker, for consoles that echo unknown input.
	EndMarker string `yaml:"end_marker"`

	// Boundary names the frame boundary detector.
	Boundary string `yaml:"boundary"`

	// Banners are output lines dropped wherever they appear.
	Banners []string `yaml:"banners"`

	// LinePrefix is a regular expression stripped from the start of
	// every output line, e.g. a timestamp.
	LinePrefix string `yaml:"line_prefix"`

	// HelpCommand lists the console's commands.
	HelpCommand string `yaml:"help_command"`

	// HelpPrefix marks output frames that are help listings.
	HelpPrefix string `yaml:"help_prefix"`

	// Denylist names console commands never exposed remotely. /exit
	// is always denied.
	Denylist []string `yaml:"denylist"`

	QueueCapacity int `yaml:"queue_capacity"`
	MaxChunkSize  int `yaml:"max_chunk_size"`
}

// MatrixConfig configures the chat front end. An empty HomeserverURL
// disables it.
type MatrixConfig struct {
	HomeserverURL string `yaml:"homeserver_url"`

	// UserID is the bridge account, required with TokenFile.
	UserID ref.UserID `yaml:"user_id"`

	// TokenFile holds an access token, either plain or age-encrypted.
	TokenFile string `yaml:"token_file"`

	// IdentityFile is the age identity that decrypts TokenFile. Empty
	// means TokenFile is plain text.
	IdentityFile string `yaml:"identity_file"`

	// Username and PasswordFile log in with a password instead of a
	// stored token.
	Username     string `yaml:"username"`
	PasswordFile string `yaml:"password_file"`

	// Rooms limits where commands are accepted. Empty accepts every
	// room the bridge is invited to.
	Rooms []ref.RoomRef `yaml:"rooms"`

	// CommandPrefix is accepted in place of "/".
	CommandPrefix string `yaml:"command_prefix"`

	DisplayName string `yaml:"display_name"`
}

// StateConfig locates persistent state.
type StateConfig struct {
	Directory string `yaml:"directory"`
}

// TranscriptConfig configures the frame transcript. An empty Path
// disables it.
type TranscriptConfig struct {
	Path        string `yaml:"path"`
	Compression string `yaml:"compression"`
}

// ControlConfig configures the HTTP control API. An empty Listen
// disables it.
type ControlConfig struct {
	Listen string `yaml:"listen"`

	// TokenHash is a bcrypt hash of the bearer token. Empty disables
	// authentication.
	TokenHash string `yaml:"token_hash"`
}

// ScheduleEntry runs Command on a cron schedule.
type ScheduleEntry struct {
	Name    string `yaml:"name"`
	Spec    string `yaml:"spec"`
	Command string `yaml:"command"`
}

// Default returns the configuration every file is loaded over.
func Default() *Config {
	return &Config{
		Console: ConsoleConfig{
			MergeStderr:   true,
			StopGrace:     10 * time.Second,
			Marker:        "END_CMD",
			Boundary:      BoundaryRepeatedMarker,
			HelpCommand:   "help",
			HelpPrefix:    "Commands:",
			QueueCapacity: 2,
			MaxChunkSize:  4096,
		},
		Matrix: MatrixConfig{
			CommandPrefix: "!",
			DisplayName:   "consolebridge",
		},
		State: StateConfig{
			Directory: "${HOME}/.local/state/consolebridge",
		},
		Transcript: TranscriptConfig{
			Compression: "zstd",
		},
	}
}

// Load loads the file named by CONSOLEBRIDGE_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(PathEnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your configuration file, or use --config", PathEnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads path over Default, applies the selected environment
// and expands variables. It does not validate; call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, filepath.Ext(path))
}

// Parse is LoadFile for in-memory data. extension selects the format:
// ".json" and ".jsonc" are JSON with comments and trailing commas,
// anything else is YAML.
func Parse(data []byte, extension string) (*Config, error) {
	config := Default()

	switch strings.ToLower(extension) {
	case ".json", ".jsonc":
		// YAML is a superset of JSON, so one set of struct tags covers
		// both formats once comments are stripped.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if environment := os.Getenv(EnvironmentEnvironmentVariable); environment != "" {
		config.Environment = environment
	}
	if err := config.applyEnvironment(); err != nil {
		return nil, err
	}
	config.expandVariables()
	return config, nil
}

// applyEnvironment decodes the selected environment's patch over the
// loaded values.
func (c *Config) applyEnvironment() error {
	if c.Environment == "" {
		return nil
	}
	patch, ok := c.Environments[c.Environment]
	if !ok {
		if len(c.Environments) == 0 {
			return nil
		}
		return fmt.Errorf("config: environment %q has no entry under environments", c.Environment)
	}

	// Keep the selection and the table itself out of the patch's reach.
	environment, environments := c.Environment, c.Environments
	if err := patch.Decode(c); err != nil {
		return fmt.Errorf("config: environment %q: %w", environment, err)
	}
	c.Environment, c.Environments = environment, environments
	return nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.State.Directory = expandVars(c.State.Directory, vars)
	vars["STATE_DIRECTORY"] = c.State.Directory

	c.Console.Command = expandVars(c.Console.Command, vars)
	c.Console.WorkingDirectory = expandVars(c.Console.WorkingDirectory, vars)
	c.Matrix.TokenFile = expandVars(c.Matrix.TokenFile, vars)
	c.Matrix.IdentityFile = expandVars(c.Matrix.IdentityFile, vars)
	c.Matrix.PasswordFile = expandVars(c.Matrix.PasswordFile, vars)
	c.Transcript.Path = expandVars(c.Transcript.Path, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// EndMarkerLine returns the output line that ends a frame.
func (c *ConsoleConfig) EndMarkerLine() string {
	if c.EndMarker != "" {
		return c.EndMarker
	}
	return c.Marker
}

// MatrixEnabled reports whether the chat front end is configured.
func (c *Config) MatrixEnabled() bool { return c.Matrix.HomeserverURL != "" }

// ControlEnabled reports whether the control API is configured.
func (c *Config) ControlEnabled() bool { return c.Control.Listen != "" }

// Validate reports every problem in the configuration at once.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Console.Command) == "" {
		errs = append(errs, fmt.Errorf("console.command is required"))
	}
	if c.Console.Marker == "" || strings.ContainsAny(c.Console.Marker, " \t\r\n") {
		errs = append(errs, fmt.Errorf("console.marker must be a single word"))
	}
	if strings.ContainsAny(c.Console.EndMarker, "\r\n") {
		errs = append(errs, fmt.Errorf("console.end_marker must be a single line"))
	}
	if c.Console.Boundary != BoundaryRepeatedMarker && c.Console.Boundary != BoundarySingleMarker {
		errs = append(errs, fmt.Errorf("console.boundary must be %q or %q", BoundaryRepeatedMarker, BoundarySingleMarker))
	}
	if c.Console.LinePrefix != "" {
		if _, err := regexp.Compile(c.Console.LinePrefix); err != nil {
			errs = append(errs, fmt.Errorf("console.line_prefix: %w", err))
		}
	}
	if c.Console.HelpCommand == "" {
		errs = append(errs, fmt.Errorf("console.help_command is required"))
	}
	if c.Console.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("console.queue_capacity must be at least 1"))
	}
	if c.Console.MaxChunkSize < 1 {
		errs = append(errs, fmt.Errorf("console.max_chunk_size must be at least 1"))
	}
	for _, entry := range c.Console.Environment {
		if !strings.Contains(entry, "=") {
			errs = append(errs, fmt.Errorf("console.environment entry %q is not KEY=VALUE", entry))
		}
	}

	if !c.MatrixEnabled() && !c.ControlEnabled() {
		errs = append(errs, fmt.Errorf("nothing to bridge: set matrix.homeserver_url or control.listen"))
	}
	if c.MatrixEnabled() {
		errs = append(errs, c.Matrix.validate()...)
	}

	if c.State.Directory == "" {
		errs = append(errs, fmt.Errorf("state.directory is required"))
	}
	if !slices.Contains(compressions, c.Transcript.Compression) {
		errs = append(errs, fmt.Errorf("transcript.compression must be one of %v", compressions))
	}

	if c.ControlEnabled() {
		if _, _, err := net.SplitHostPort(c.Control.Listen); err != nil {
			errs = append(errs, fmt.Errorf("control.listen: %w", err))
		}
	}
	if c.Control.TokenHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Control.TokenHash)); err != nil {
			errs = append(errs, fmt.Errorf("control.token_hash is not a bcrypt hash: %w", err))
		}
	}

	seen := make(map[string]bool)
	for index, entry := range c.Schedule {
		switch {
		case entry.Name == "":
			errs = append(errs, fmt.Errorf("schedule[%d].name is required", index))
		case seen[entry.Name]:
			errs = append(errs, fmt.Errorf("schedule[%d].name %q is not unique", index, entry.Name))
		}
		seen[entry.Name] = true
		if entry.Spec == "" {
			errs = append(errs, fmt.Errorf("schedule[%d].spec is required", index))
		}
		if strings.TrimSpace(entry.Command) == "" {
			errs = append(errs, fmt.Errorf("schedule[%d].command is required", index))
		}
	}

	return errors.Join(errs...)
}

func (m *MatrixConfig) validate() []error {
	var errs []error
	switch {
	case m.TokenFile != "" && m.PasswordFile != "":
		errs = append(errs, fmt.Errorf("matrix: set token_file or password_file, not both"))
	case m.TokenFile != "":
		if m.UserID.IsZero() {
			errs = append(errs, fmt.Errorf("matrix.user_id is required with token_file"))
		}
	case m.PasswordFile != "":
		if m.Username == "" {
			errs = append(errs, fmt.Errorf("matrix.username is required with password_file"))
		}
	default:
		errs = append(errs, fmt.Errorf("matrix: token_file or password_file is required"))
	}
	if m.IdentityFile != "" && m.TokenFile == "" {
		errs = append(errs, fmt.Errorf("matrix.identity_file only applies to token_file"))
	}
	if m.CommandPrefix == "" || strings.ContainsAny(m.CommandPrefix, " \t\r\n") {
		errs = append(errs, fmt.Errorf("matrix.command_prefix must be non-empty and contain no whitespace"))
	}
	return errs
}

// EnsurePaths creates the state directory, and the transcript's
// directory when a transcript is configured.
func (c *Config) EnsurePaths() error {
	paths := []string{c.State.Directory}
	if c.Transcript.Path != "" {
		paths = append(paths, filepath.Dir(c.Transcript.Path))
	}
	for _, path := range paths {
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}
