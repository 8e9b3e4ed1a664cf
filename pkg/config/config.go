// Package config loads Chisel's project configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	chiselerrors "github.com/chisel-dev/chisel/pkg/errors"
)

// Default configuration values exported for documentation and validation
const (
	DefaultCommitPrefix    = "[chisel]"
	DefaultAuthorName      = "chisel"
	DefaultAuthorEmail     = "agent@chisel.local"
	DefaultFuzzyThreshold  = 0.8
	DefaultAmendExtraFiles = true
	DefaultSharedDir       = "convex/shared"
	DefaultFunctionsDir    = "convex"
)

const (
	envChiselConfig  = "CHISEL_CONFIG"
	envChiselDataDir = "CHISEL_DATA_DIR"
)

// Config holds the pipeline's project-level settings.
type Config struct {
	// ProjectPath is the root of the working copy being mutated.
	ProjectPath string `yaml:"project_path"`

	// BackendID identifies the hosted backend tied to this project, if any.
	BackendID string `yaml:"backend_id"`

	Commit  CommitConfig  `yaml:"commit"`
	Patch   PatchConfig   `yaml:"patch"`
	Backend BackendConfig `yaml:"backend"`

	// DataDir holds logs, the consent database, and transcripts.
	DataDir string `yaml:"data_dir"`
}

// CommitConfig controls per-turn commit behavior.
type CommitConfig struct {
	Prefix      string `yaml:"prefix"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`

	// AmendExtraFiles folds working-tree changes made outside the pipeline
	// into the turn commit. On by default; opt out per project.
	AmendExtraFiles *bool `yaml:"amend_extra_files"`
}

// PatchConfig controls the patch engine.
type PatchConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// BackendConfig describes the deployable layout of the project: which
// directory holds deployable functions and which subdirectory is shared by
// all of them.
type BackendConfig struct {
	FunctionsDir string `yaml:"functions_dir"`
	SharedDir    string `yaml:"shared_dir"`
}

// Load reads configuration from path (or $CHISEL_CONFIG, or
// <project>/chisel.yaml) and applies defaults.
func Load(projectPath, path string) (*Config, error) {
	cfg := defaults(projectPath)

	if path == "" {
		path = strings.TrimSpace(os.Getenv(envChiselConfig))
	}
	if path == "" {
		candidate := filepath.Join(projectPath, "chisel.yaml")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, chiselerrors.Wrap(err, chiselerrors.ErrCodeConfigLoad, "read config file").
				WithContext("path", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, chiselerrors.Wrap(err, chiselerrors.ErrCodeConfigParse, "parse config YAML").
				WithContext("path", path)
		}
	}

	applyEnv(cfg)
	normalize(cfg, projectPath)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults(projectPath string) *Config {
	return &Config{
		ProjectPath: projectPath,
		Commit: CommitConfig{
			Prefix:      DefaultCommitPrefix,
			AuthorName:  DefaultAuthorName,
			AuthorEmail: DefaultAuthorEmail,
		},
		Patch: PatchConfig{FuzzyThreshold: DefaultFuzzyThreshold},
		Backend: BackendConfig{
			FunctionsDir: DefaultFunctionsDir,
			SharedDir:    DefaultSharedDir,
		},
	}
}

func applyEnv(cfg *Config) {
	if dir := strings.TrimSpace(os.Getenv(envChiselDataDir)); dir != "" {
		cfg.DataDir = dir
	}
}

func normalize(cfg *Config, projectPath string) {
	if cfg.ProjectPath == "" {
		cfg.ProjectPath = projectPath
	}
	if cfg.DataDir == "" {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			cfg.DataDir = filepath.Join(home, ".chisel")
		} else {
			cfg.DataDir = filepath.Join(cfg.ProjectPath, ".chisel")
		}
	}
	if cfg.Commit.Prefix == "" {
		cfg.Commit.Prefix = DefaultCommitPrefix
	}
	if cfg.Commit.AuthorName == "" {
		cfg.Commit.AuthorName = DefaultAuthorName
	}
	if cfg.Commit.AuthorEmail == "" {
		cfg.Commit.AuthorEmail = DefaultAuthorEmail
	}
	if cfg.Patch.FuzzyThreshold == 0 {
		cfg.Patch.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.Backend.FunctionsDir == "" {
		cfg.Backend.FunctionsDir = DefaultFunctionsDir
	}
	if cfg.Backend.SharedDir == "" {
		cfg.Backend.SharedDir = DefaultSharedDir
	}
}

func validate(cfg *Config) error {
	if cfg.ProjectPath == "" {
		return chiselerrors.New(chiselerrors.ErrCodeConfigLoad, "project path is required")
	}
	if cfg.Patch.FuzzyThreshold <= 0 || cfg.Patch.FuzzyThreshold > 1 {
		return chiselerrors.New(chiselerrors.ErrCodeConfigParse,
			fmt.Sprintf("fuzzy threshold must be in (0, 1], got %s",
				strconv.FormatFloat(cfg.Patch.FuzzyThreshold, 'f', -1, 64)))
	}
	return nil
}

// AmendExtraFiles resolves the opt-out, defaulting to on.
func (c *Config) AmendExtraFiles() bool {
	if c.Commit.AmendExtraFiles == nil {
		return DefaultAmendExtraFiles
	}
	return *c.Commit.AmendExtraFiles
}
