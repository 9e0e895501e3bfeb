package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/jdefrancesco/dskOrder/internal/dfs"
	"github.com/jdefrancesco/dskOrder/pkg/utils"
	"github.com/spf13/viper"
)

// OverwritePolicy controls what happens when a rename target already
// exists and belongs to a file outside the batch.
type OverwritePolicy string

const (
	OverwriteAsk    OverwritePolicy = "ask"
	OverwriteAlways OverwritePolicy = "always"
	OverwriteNever  OverwritePolicy = "never"
)

const (
	DefaultWidth      = 3
	DefaultSeparator  = "_"
	DefaultJournalTag = "rename_log_"
	DefaultLogFile    = "dskorder.log"

	configName = ".dskorder"
	envPrefix  = "DSKORDER"
)

type Config struct {
	// Directory holding the images being ordered.
	Dir string
	// Naming scheme.
	Prefix    string
	Width     int
	Separator string
	// Extensions matched by the scanner, lower case without dot.
	Extensions []string
	// SkipHidden controls whether hidden dotfiles are skipped.
	SkipHidden bool
	// HashAlgorithm selects which digest fingerprints file contents.
	HashAlgorithm dfs.HashAlgorithm
	// Files larger than this are not fingerprinted. Zero means no limit.
	HashMaxSize uint64
	// Verify recorded digests before restoring a file.
	Verify bool
	// Overwrite policy for conflicts with files outside the batch.
	Overwrite OverwritePolicy
	// JournalTag prefixes every journal filename.
	JournalTag string
	// Logging.
	LogFile  string
	LogLevel string
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Width:         DefaultWidth,
		Separator:     DefaultSeparator,
		Extensions:    dfs.ImageExtensions(),
		SkipHidden:    true,
		HashAlgorithm: dfs.HashSHA256,
		HashMaxSize:   512 * utils.MiB,
		Verify:        true,
		Overwrite:     OverwriteAsk,
		JournalTag:    DefaultJournalTag,
		LogFile:       DefaultLogFile,
		LogLevel:      "info",
	}
}

// SetDefaults registers every key on v so env vars and config files can
// override them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("prefix", d.Prefix)
	v.SetDefault("width", d.Width)
	v.SetDefault("separator", d.Separator)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("skip_hidden", d.SkipHidden)
	v.SetDefault("hash", string(d.HashAlgorithm))
	v.SetDefault("hash_max_size", "512MiB")
	v.SetDefault("verify", d.Verify)
	v.SetDefault("overwrite", string(d.Overwrite))
	v.SetDefault("journal_tag", d.JournalTag)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("log_level", d.LogLevel)
}

// ReadFile looks for .dskorder.yaml in DSKORDER_CONFIG_PATH, the target
// directory, the home directory and the working directory. A missing
// file is not an error.
func ReadFile(v *viper.Viper, dir string) error {
	v.SetConfigName(configName)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if override := os.Getenv(envPrefix + "_CONFIG_PATH"); override != "" {
		v.AddConfigPath(override)
	}
	if dir != "" {
		v.AddConfigPath(dir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home)
	}
	v.AddConfigPath("./")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Load builds a Config for dir from v.
func Load(v *viper.Viper, dir string) (Config, error) {
	cfg := Default()
	cfg.Dir = dir
	cfg.Prefix = v.GetString("prefix")
	cfg.Width = v.GetInt("width")
	cfg.Separator = v.GetString("separator")
	cfg.SkipHidden = v.GetBool("skip_hidden")
	cfg.Verify = v.GetBool("verify")
	cfg.JournalTag = v.GetString("journal_tag")
	cfg.LogFile = v.GetString("log_file")
	cfg.LogLevel = v.GetString("log_level")

	if exts := v.GetStringSlice("extensions"); len(exts) > 0 {
		cfg.Extensions = normalizeExtensions(exts)
	}

	algo, err := dfs.ParseHashAlgorithm(v.GetString("hash"))
	if err != nil {
		return cfg, err
	}
	cfg.HashAlgorithm = algo

	if raw := v.GetString("hash_max_size"); raw != "" {
		size, err := utils.ParseSize(raw)
		if err != nil {
			return cfg, fmt.Errorf("hash_max_size: %w", err)
		}
		cfg.HashMaxSize = size
	}

	switch p := OverwritePolicy(strings.ToLower(v.GetString("overwrite"))); p {
	case OverwriteAsk, OverwriteAlways, OverwriteNever:
		cfg.Overwrite = p
	default:
		return cfg, fmt.Errorf("overwrite must be ask, always or never, got %q", p)
	}

	return cfg, cfg.Validate()
}

// Validate checks the values that have no sensible fallback.
func (c Config) Validate() error {
	if c.Width < 1 {
		return fmt.Errorf("width must be at least 1, got %d", c.Width)
	}
	if c.Separator == "" || strings.ContainsAny(c.Separator, `/\`) {
		return fmt.Errorf("invalid separator %q", c.Separator)
	}
	if c.JournalTag == "" || strings.ContainsAny(c.JournalTag, `/\`) {
		return fmt.Errorf("invalid journal tag %q", c.JournalTag)
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("at least one extension is required")
	}
	return nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
