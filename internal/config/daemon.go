package config

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Environment variables honored for operators that run the daemon without
// a divi.conf, matching the names the hosted gateway has always used.
const (
	EnvRPCUser     = "RPC_USER"
	EnvRPCPassword = "RPC_PASS"
	EnvRPCPort     = "RPC_PORT"
)

// DaemonConfFile returns the platform-default location of divi.conf.
func DaemonConfFile() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return ""
		}
		return filepath.Join(appData, "DIVI", "divi.conf")
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, "Library", "Application Support", "DIVI", "divi.conf")
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		return filepath.Join(home, ".divi", "divi.conf")
	}
}

// loadDaemonConfig fills in RPC credentials and port that weren't set by
// flags, envs, or the YAML config. divi.conf wins over the legacy RPC_USER,
// RPC_PASS, and RPC_PORT variables; an unreadable file just falls through
// to them. The port falls back to the mainnet default when nothing set it.
func loadDaemonConfig(config *Config) error {
	confFile := config.RPC.ConfFile
	if confFile == "" {
		confFile = DaemonConfFile()
	}

	if confFile != "" {
		if data, err := os.ReadFile(confFile); err == nil {
			settings := parseDaemonConf(data)
			if config.RPC.Username == "" {
				config.RPC.Username = settings["rpcuser"]
			}
			if config.RPC.Password == "" {
				config.RPC.Password = settings["rpcpassword"]
			}
			if config.RPC.Port == 0 {
				if port, err := strconv.ParseUint(settings["rpcport"], 10, 16); err == nil {
					config.RPC.Port = uint16(port)
				}
			}
		}
	}

	if config.RPC.Username == "" {
		config.RPC.Username = os.Getenv(EnvRPCUser)
	}
	if config.RPC.Password == "" {
		config.RPC.Password = os.Getenv(EnvRPCPassword)
	}
	if config.RPC.Port == 0 {
		if port, err := strconv.ParseUint(os.Getenv(EnvRPCPort), 10, 16); err == nil {
			config.RPC.Port = uint16(port)
		}
	}
	if config.RPC.Port == 0 {
		config.RPC.Port = DefaultRPCPort
	}

	return nil
}

// parseDaemonConf reads the daemon's key=value config format. Blank lines
// and #-comments are skipped; the first '=' splits key from value.
func parseDaemonConf(data []byte) map[string]string {
	settings := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		settings[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return settings
}
