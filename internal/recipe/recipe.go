package recipe

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	goruntime "runtime"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Conventional recipe filename, looked up in the working directory.
const DefaultFilename = "cruxgate.yaml"

const (
	defaultBase      = "python:3.11-slim"
	defaultWorkdir   = "/app"
	defaultShell     = "/bin/sh"
	defaultManifest  = "requirements.txt"
	defaultSource    = "."
	defaultReportDir = "/tmp/cruxgate-report"
	defaultPort      = 5000
	fallbackName     = "app"
)

// Installer invocation; each requirement is appended as one extra argument.
var defaultInstall = []string{"pip", "install", "--no-cache-dir", "--disable-pip-version-check"}

// Runs every discoverable test with coverage over the staged source, writing
// the machine-readable reports into the report directory. The pytest cache
// is disabled and the coverage data file is redirected so the run leaves no
// residue in the workdir.
const defaultVerify = `python -m pytest -p no:cacheprovider ` +
	`--junitxml="$CRUXGATE_REPORT_DIR/junit.xml" ` +
	`--cov=. --cov-report=term ` +
	`--cov-report=json:"$CRUXGATE_REPORT_DIR/coverage.json" ` +
	`--cov-report=html:"$CRUXGATE_REPORT_DIR/htmlcov"`

var defaultEntrypoint = []string{"python", "app.py"}

// Characters not allowed in recipe names.
var nameInvalid = regexp.MustCompile(`[^a-z0-9._-]+`)

//go:embed schema.json
var schemaJSON []byte

// Installer configuration.
type Install struct {
	Command []string `yaml:"command"` // Installer argv prefix.
}

// Verification gate configuration.
type Verify struct {
	Command     string  `yaml:"command"`     // Shell command that runs the verification tool.
	ReportDir   string  `yaml:"reportDir"`   // Scratch directory inside the workspace for tool reports.
	MinCoverage float64 `yaml:"minCoverage"` // Minimum aggregate coverage percentage; 0 disables the check.
}

// Object storage target for verification reports.
type Publish struct {
	Endpoint string `yaml:"endpoint"` // S3-compatible endpoint (host:port).
	Bucket   string `yaml:"bucket"`   // Destination bucket.
	Prefix   string `yaml:"prefix"`   // Key prefix.
	Region   string `yaml:"region"`   // Bucket region.
	Secure   bool   `yaml:"secure"`   // Use TLS.
}

// A gated build recipe.
type Recipe struct {
	Name       string            `yaml:"name"`       // Recipe name, used for container IDs and output paths.
	Base       string            `yaml:"base"`       // Base image reference or path to an OCI archive.
	Platform   string            `yaml:"platform"`   // Target platform (e.g., "linux/amd64").
	Workdir    string            `yaml:"workdir"`    // Directory inside the image that receives the source.
	Shell      string            `yaml:"shell"`      // Shell used for the verification command.
	Env        map[string]string `yaml:"env"`        // Environment for every command and for the final image.
	Manifest   string            `yaml:"manifest"`   // Dependency manifest path.
	Source     string            `yaml:"source"`     // Source tree path.
	Ignore     []string          `yaml:"ignore"`     // Source patterns excluded from staging.
	Install    Install           `yaml:"install"`    // Installer configuration.
	Verify     Verify            `yaml:"verify"`     // Verification gate configuration.
	Port       int               `yaml:"port"`       // Network port declared on the image.
	Entrypoint []string          `yaml:"entrypoint"` // Image entrypoint.
	Cmd        []string          `yaml:"cmd"`        // Image default arguments.
	Publish    *Publish          `yaml:"publish"`    // Optional report upload target.

	dir string // Directory relative paths resolve against.
}

// Returns a recipe with every field defaulted, rooted at dir.
//
// Used when a project has no recipe file.
func Default(dir string) (*Recipe, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecipe, err)
	}
	r := &Recipe{dir: abs}
	r.applyDefaults()
	return r, nil
}

// Reads, validates, and decodes the recipe at path.
func Load(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecipe, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecipe, err)
	}

	r, err := Parse(data, filepath.Dir(abs))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Loads the recipe at path. A directory yields its cruxgate.yaml, or the
// defaults when it has none.
func Resolve(path string) (*Recipe, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecipe, err)
	}
	if !info.IsDir() {
		return Load(path)
	}

	file := filepath.Join(path, DefaultFilename)
	if _, err := os.Stat(file); err == nil {
		return Load(file)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecipe, err)
	}
	return Default(path)
}

// Validates and decodes recipe YAML, resolving relative paths against dir.
func Parse(data []byte, dir string) (*Recipe, error) {
	if err := validate(data); err != nil {
		return nil, err
	}

	r := &Recipe{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(r); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecipe, err)
	}

	r.dir = dir
	r.applyDefaults()

	return r, nil
}

// Checks the document against the embedded schema.
func validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecipe, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecipe, err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidRecipe, strings.Join(msgs, "; "))
	}

	return nil
}

func (r *Recipe) applyDefaults() {
	if r.Name == "" {
		r.Name = nameFromDir(r.dir)
	}
	if r.Base == "" {
		r.Base = defaultBase
	}
	if r.Platform == "" {
		r.Platform = "linux/" + goruntime.GOARCH
	}
	if r.Workdir == "" {
		r.Workdir = defaultWorkdir
	}
	if r.Shell == "" {
		r.Shell = defaultShell
	}
	if r.Manifest == "" {
		r.Manifest = defaultManifest
	}
	if r.Source == "" {
		r.Source = defaultSource
	}
	if len(r.Install.Command) == 0 {
		r.Install.Command = append([]string(nil), defaultInstall...)
	}
	if r.Verify.Command == "" {
		r.Verify.Command = defaultVerify
	}
	if r.Verify.ReportDir == "" {
		r.Verify.ReportDir = defaultReportDir
	}
	if r.Port == 0 {
		r.Port = defaultPort
	}
	if r.Entrypoint == nil && r.Cmd == nil {
		r.Entrypoint = append([]string(nil), defaultEntrypoint...)
	}
}

// Returns the directory relative paths resolve against.
func (r *Recipe) Dir() string {
	return r.dir
}

// Returns the absolute path of the dependency manifest.
func (r *Recipe) ManifestPath() string {
	return r.resolve(r.Manifest)
}

// Returns the absolute path of the source tree.
func (r *Recipe) SourcePath() string {
	return r.resolve(r.Source)
}

// Returns the base image. A local OCI archive path is resolved against the
// recipe directory; registry references are returned unchanged.
func (r *Recipe) BaseRef() string {
	if strings.HasSuffix(r.Base, ".tar") {
		return r.resolve(r.Base)
	}
	return r.Base
}

// Returns the recipe environment as "key=value" pairs sorted by key.
func (r *Recipe) Environ() []string {
	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+r.Env[k])
	}
	return env
}

func (r *Recipe) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.dir, path)
}

// Derives a valid recipe name from a directory path.
func nameFromDir(dir string) string {
	name := strings.ToLower(filepath.Base(dir))
	name = nameInvalid.ReplaceAllString(name, "-")
	name = strings.Trim(name, "._-")
	if name == "" {
		return fallbackName
	}
	if len(name) > 63 {
		name = strings.TrimRight(name[:63], "._-")
	}
	return name
}
