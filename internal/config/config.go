package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	ProjectsDir string `mapstructure:"projects_dir" yaml:"projects_dir"`

	// Preparation defaults
	Split       float64 `mapstructure:"split" yaml:"split"`
	ClassWeight string  `mapstructure:"class_weight" yaml:"class_weight"`

	// Classifier defaults
	Arch            string  `mapstructure:"arch" yaml:"arch"`
	Dropout         float64 `mapstructure:"dropout" yaml:"dropout"`
	LearningRate    float64 `mapstructure:"learning_rate" yaml:"learning_rate"`
	Epochs          int     `mapstructure:"epochs" yaml:"epochs"`
	BatchSize       int     `mapstructure:"batch_size" yaml:"batch_size"`
	ValidationSplit float64 `mapstructure:"validation_split" yaml:"validation_split"`

	// Remote datasets
	HTTPTimeoutSec int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// Keys lists the settable keys in display order.
var Keys = []string{
	"projects_dir", "split", "class_weight",
	"arch", "dropout", "learning_rate", "epochs", "batch_size", "validation_split",
	"http_timeout_sec", "log_level", "log_format",
}

func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".tabula"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.tabula/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := configDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Env keys use the TABULA_ prefix.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("TABULA")
	v.AutomaticEnv()

	v.SetDefault("split", 0.8)
	v.SetDefault("class_weight", "auto")
	v.SetDefault("arch", "128-64")
	v.SetDefault("dropout", 0.2)
	v.SetDefault("learning_rate", 0.001)
	v.SetDefault("epochs", 25)
	v.SetDefault("batch_size", 32)
	v.SetDefault("validation_split", 0.1)
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	// registered so AutomaticEnv can see it during Unmarshal
	v.SetDefault("projects_dir", "")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// a missing file is fine, a broken one is not
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.ProjectsDir == "" {
		dir, err := configDir()
		if err != nil {
			return nil, err
		}
		c.ProjectsDir = filepath.Join(dir, "projects")
	}
	return &c, nil
}

// Get renders the value of key.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "projects_dir":
		return c.ProjectsDir, nil
	case "split":
		return strconv.FormatFloat(c.Split, 'g', -1, 64), nil
	case "class_weight":
		return c.ClassWeight, nil
	case "arch":
		return c.Arch, nil
	case "dropout":
		return strconv.FormatFloat(c.Dropout, 'g', -1, 64), nil
	case "learning_rate":
		return strconv.FormatFloat(c.LearningRate, 'g', -1, 64), nil
	case "epochs":
		return strconv.Itoa(c.Epochs), nil
	case "batch_size":
		return strconv.Itoa(c.BatchSize), nil
	case "validation_split":
		return strconv.FormatFloat(c.ValidationSplit, 'g', -1, 64), nil
	case "http_timeout_sec":
		return strconv.Itoa(c.HTTPTimeoutSec), nil
	case "log_level":
		return c.LogLevel, nil
	case "log_format":
		return c.LogFormat, nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

// Set parses val and assigns it to key.
func (c *Global) Set(key, val string) error {
	switch key {
	case "projects_dir":
		c.ProjectsDir = val
	case "split":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 || f >= 1 {
			return fmt.Errorf("invalid fraction for split: %v (use e.g. 0.8)", val)
		}
		c.Split = f
	case "class_weight":
		switch strings.ToLower(val) {
		case "auto", "none":
			c.ClassWeight = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid class_weight: %s (use auto or none)", val)
		}
	case "arch":
		c.Arch = val
	case "dropout":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f >= 1 {
			return fmt.Errorf("invalid float for dropout: %v", val)
		}
		c.Dropout = f
	case "learning_rate":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid float for learning_rate: %v", val)
		}
		c.LearningRate = f
	case "epochs", "batch_size", "http_timeout_sec":
		i, err := strconv.Atoi(val)
		if err != nil || i <= 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		switch key {
		case "epochs":
			c.Epochs = i
		case "batch_size":
			c.BatchSize = i
		default:
			c.HTTPTimeoutSec = i
		}
	case "validation_split":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f >= 1 {
			return fmt.Errorf("invalid float for validation_split: %v", val)
		}
		c.ValidationSplit = f
	case "log_level":
		c.LogLevel = val
	case "log_format":
		switch val {
		case "text", "json":
			c.LogFormat = val
		default:
			return fmt.Errorf("invalid log_format: %s (use text or json)", val)
		}
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}
