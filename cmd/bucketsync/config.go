package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/openmined/bucketsync/internal/controlplane"
	"github.com/openmined/bucketsync/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	envPrefix      = "BUCKETSYNC"
)

var (
	home, _           = os.UserHomeDir()
	defaultDir        = filepath.Join(home, ".bucketsync")
	defaultConfigPath = filepath.Join(defaultDir, "config.json")
	defaultLogDir     = filepath.Join(defaultDir, "logs")
)

// Config is the resolved CLI configuration.
type Config struct {
	Dir            string // profiles, history and the daemon lock live here
	Profile        string // default profile id or name
	DaemonAddr     string
	DaemonToken    string
	AutoSync       bool
	HistoryEnabled bool
}

func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("config dir required")
	}
	if c.DaemonAddr == "" {
		return errors.New("daemon address required")
	}
	return nil
}

// DaemonURL is the control plane base url derived from the daemon address.
func (c *Config) DaemonURL() string {
	addr := c.DaemonAddr
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("dir", defaultDir)
	v.SetDefault("profile", "")
	v.SetDefault("daemon.addr", controlplane.DefaultAddr)
	v.SetDefault("daemon.token", "")
	v.SetDefault("watch.auto_sync", false)
	v.SetDefault("history.enabled", true)
}

// loadConfig reads the config file, the optional .env and the environment into the global viper.
func loadConfig(cmd *cobra.Command) error {
	return readConfig(viper.GetViper(), cmd)
}

func readConfig(v *viper.Viper, cmd *cobra.Command) error {
	setConfigDefaults(v)

	// config path
	if flag := cmd.Flag("config"); flag != nil && flag.Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(configFilePath)
	} else {
		v.AddConfigPath(defaultDir)
		v.AddConfigPath(filepath.Join(home, ".config", "bucketsync"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	// a missing .env is normal
	_ = godotenv.Load()

	if flag := cmd.Flags().Lookup("profile"); flag != nil {
		v.BindPFlag("profile", flag)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return nil
}

// currentConfig returns the validated config from the global viper.
func currentConfig() (*Config, error) {
	return configFrom(viper.GetViper())
}

func configFrom(v *viper.Viper) (*Config, error) {
	dir, err := utils.ResolvePath(v.GetString("dir"))
	if err != nil {
		return nil, fmt.Errorf("config dir: %w", err)
	}

	cfg := &Config{
		Dir:            dir,
		Profile:        v.GetString("profile"),
		DaemonAddr:     v.GetString("daemon.addr"),
		DaemonToken:    v.GetString("daemon.token"),
		AutoSync:       v.GetBool("watch.auto_sync"),
		HistoryEnabled: v.GetBool("history.enabled"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
