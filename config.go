package main

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/juju/errors"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	stasherrors "github.com/ammesonb/savestash/errors"
	"github.com/ammesonb/savestash/record"
)

// Configuration keys, shared by the config file, SAVESTASH_ env vars and flags
const (
	keySourceDir      = "source_dir"
	keyBackupDir      = "backup_dir"
	keyStrategy       = "backup_dir_strategy"
	keyPromptForLabel = "prompt_for_label"
	keyTitleID        = "title_id"
	keyTitle          = "title"
	keyJournal        = "journal"
	keySpaceCheck     = "space_check"
	keyLogLevel       = "log_level"
	keyLogFile        = "log_file"
)

const envPrefix = "SAVESTASH"

// BackupDirStrategy decides where archives are kept
type BackupDirStrategy string

const (
	// StrategySibling keeps archives in a Backups directory next to the save directory
	StrategySibling BackupDirStrategy = "sibling"
	// StrategyExplicit uses the configured backup_dir
	StrategyExplicit BackupDirStrategy = "explicit"
	// StrategyHome keeps archives under ~/savestash/<title id>
	StrategyHome BackupDirStrategy = "home"
)

var homeDir = homedir.Dir
var expandPath = homedir.Expand
var getenv = os.Getenv
var goos = runtime.GOOS

// Config is the resolved tool configuration
type Config struct {
	SourceDir      string
	BackupDir      string
	Strategy       BackupDirStrategy
	PromptForLabel bool
	TitleID        string
	Title          string
	// Empty disables the journal
	Journal    string
	SpaceCheck bool
	LogLevel   zerolog.Level
	LogFile    string
}

// newViper layers defaults, an optional config file, the environment and flags
func newViper(flags *pflag.FlagSet, cfgFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault(keyStrategy, string(StrategySibling))
	v.SetDefault(keyPromptForLabel, true)
	v.SetDefault(keyTitleID, record.DefaultTitleID)
	v.SetDefault(keyTitle, record.DefaultTitle)
	v.SetDefault(keyJournal, "~/.savestash.db")
	v.SetDefault(keySpaceCheck, true)
	v.SetDefault(keyLogLevel, "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for flag, key := range map[string]string{
			"source":    keySourceDir,
			"backups":   keyBackupDir,
			"strategy":  keyStrategy,
			"title-id":  keyTitleID,
			"journal":   keyJournal,
			"log-level": keyLogLevel,
			"log-file":  keyLogFile,
		} {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errors.Trace(err)
				}
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithType(errors.Annotatef(err, "cannot read config %q", cfgFile), stasherrors.IO)
		}
		return v, nil
	}

	home, err := homeDir()
	if err != nil {
		return v, nil
	}
	v.AddConfigPath(home)
	v.SetConfigName(".savestash")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.WithType(errors.Annotate(err, "cannot read config"), stasherrors.IO)
		}
	}
	return v, nil
}

// LoadConfig resolves and validates the configuration held by v
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		Strategy:       BackupDirStrategy(strings.ToLower(v.GetString(keyStrategy))),
		PromptForLabel: v.GetBool(keyPromptForLabel),
		TitleID:        v.GetString(keyTitleID),
		Title:          v.GetString(keyTitle),
		SpaceCheck:     v.GetBool(keySpaceCheck),
	}

	level, err := LogLevelFromString(v.GetString(keyLogLevel))
	if err != nil {
		return Config{}, errors.NotValidf("log level %q", v.GetString(keyLogLevel))
	}
	cfg.LogLevel = level

	if cfg.LogFile, err = expandOptional(v.GetString(keyLogFile)); err != nil {
		return Config{}, err
	}
	if cfg.Journal, err = expandOptional(v.GetString(keyJournal)); err != nil {
		return Config{}, err
	}

	// Validated here so a bad id fails before any directory is derived from it
	if _, err := record.NewFilenameCodec(cfg.TitleID, cfg.Title, nil); err != nil {
		return Config{}, errors.Trace(err)
	}

	source := v.GetString(keySourceDir)
	if source == "" {
		if source, err = defaultSourceDir(cfg.TitleID); err != nil {
			return Config{}, err
		}
	}
	if cfg.SourceDir, err = expandOptional(source); err != nil {
		return Config{}, err
	}

	if cfg.BackupDir, err = resolveBackupDir(cfg.Strategy, cfg.SourceDir, v.GetString(keyBackupDir), cfg.TitleID); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// defaultSourceDir is where Ryujinx keeps saves for titleID
func defaultSourceDir(titleID string) (string, error) {
	if goos == "windows" {
		appData := getenv("APPDATA")
		if appData == "" {
			return "", errors.NotFoundf("APPDATA")
		}
		return filepath.Join(appData, "Ryujinx", "bis", "user", "save", titleID), nil
	}

	home, err := homeDir()
	if err != nil {
		return "", errors.WithType(errors.Annotate(err, "cannot find home directory"), stasherrors.IO)
	}
	return filepath.Join(home, ".config", "Ryujinx", "bis", "user", "save", titleID), nil
}

// resolveBackupDir applies strategy to find the backup directory
func resolveBackupDir(strategy BackupDirStrategy, sourceDir, explicit, titleID string) (string, error) {
	switch strategy {
	case StrategySibling:
		return filepath.Join(filepath.Dir(filepath.Clean(sourceDir)), "Backups"), nil
	case StrategyExplicit:
		if explicit == "" {
			return "", errors.NotValidf("%s strategy without %s", strategy, keyBackupDir)
		}
		return expandOptional(explicit)
	case StrategyHome:
		home, err := homeDir()
		if err != nil {
			return "", errors.WithType(errors.Annotate(err, "cannot find home directory"), stasherrors.IO)
		}
		return filepath.Join(home, "savestash", titleID), nil
	default:
		return "", errors.NotValidf("backup directory strategy %q", strategy)
	}
}

func expandOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", errors.NotValidf("path %q", path)
	}
	return expanded, nil
}
