// Package config loads addrmgr-tool's on-disk and command-line
// configuration, following the same pre-parse/ini-parse/parse-again
// sequence used throughout the lnd codebase.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/lnpeer/addrmgr"
	"github.com/lnpeer/addrmgr/build"
)

const (
	defaultConfigFilename = "addrmgr.conf"
	defaultDataDirname    = "data"
	defaultPeersFilename  = "peers.dat"
	defaultLogFilename    = "addrmgr.log"
	defaultLogLevel       = "info"
)

var (
	defaultHomeDir   = btcutilAppDataDir()
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir     = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir      = filepath.Join(defaultHomeDir, "logs")
)

// Config holds every configuration value addrmgr-tool accepts, either from
// its ini file or from the command line.
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store the peer address snapshot in"`
	PeersFile  string `long:"peersfile" description:"Filename of the persisted address snapshot, relative to datadir"`

	CheckRate uint32 `long:"checkrate" description:"Run a full consistency check roughly once every N mutating calls (0 disables self-checking)"`

	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level: trace, debug, info, warn, error, critical"`
	LogDir     string `long:"logdir" description:"Directory to store log files in"`

	Log *build.LogConfig `group:"Logging" namespace:"logging"`
}

// DefaultConfig returns a Config populated with addrmgr-tool's defaults,
// before any file or command-line overrides are applied.
func DefaultConfig() Config {
	return Config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		PeersFile:  defaultPeersFilename,
		CheckRate:  addrmgr.DefaultCheckRate,
		DebugLevel: defaultLogLevel,
		LogDir:     defaultLogDir,
		Log:        build.DefaultLogConfig(),
	}
}

// LogFilePath returns the full path of the rotating log file.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogDir, defaultLogFilename)
}

// LoadConfig initializes and parses the config using a config file and
// command line options, in that order of increasing precedence:
//  1. Start from DefaultConfig.
//  2. Pre-parse the command line to pick up an alternative config file path.
//  3. Load the config file, overwriting defaults with anything it sets.
//  4. Parse the command line again so flags take final precedence.
func LoadConfig() (*Config, error) {
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, err
	}

	if preCfg.ShowVersion {
		fmt.Println(filepath.Base(os.Args[0]), "version", build.Version())
		os.Exit(0)
	}

	cfg := preCfg
	if err := flags.IniParse(preCfg.ConfigFile, &cfg); err != nil {
		if _, ok := err.(*flags.IniError); ok {
			return nil, err
		}
		// A missing config file is fine; everything else came from
		// defaults and the command line already.
	}

	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Log.Validate(); err != nil {
		return nil, err
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	if cfg.PeersFile == "" {
		cfg.PeersFile = defaultPeersFilename
	}

	return &cfg, nil
}

// PeersPath returns the full path to the persisted address snapshot.
func (c *Config) PeersPath() string {
	return filepath.Join(c.DataDir, c.PeersFile)
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}

func btcutilAppDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".addrmgr")
}
