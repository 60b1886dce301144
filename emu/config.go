package emu

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"bpedit/emu/log"

	"github.com/BurntSushi/toml"
)

type Config struct {
	General GeneralConfig `toml:"general"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`
}

type GeneralConfig struct {
	// Directory holding the per-game settings files.
	GameSettingsDir string `toml:"game_settings_dir"`
	// Write addresses with upper case hex digits.
	UpperHex bool `toml:"upper_hex"`
	// Optional symbol map, used to annotate listings.
	SymbolMap string `toml:"symbol_map"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type LogConfig struct {
	// Comma-separated list of modules with debug logs enabled.
	Modules string `toml:"modules"`
}

// ConfigDir returns the bpedit config directory, creating it if needed.
var ConfigDir = sync.OnceValue(func() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		log.ModConfig.WarnZ("no user config directory, using current directory").Error("err", err).End()
		return "."
	}
	dir = filepath.Join(dir, "bpedit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.ModConfig.WarnZ("failed to create config directory").String("dir", dir).Error("err", err).End()
	}
	return dir
})

const cfgFilename = "config.toml"

// ConfigPath returns the path of the default config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), cfgFilename)
}

func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			GameSettingsDir: filepath.Join(ConfigDir(), "GameSettings"),
		},
		Server: ServerConfig{
			Addr: "localhost:7777",
		},
	}
}

// LoadConfigOrDefault loads the configuration at path. Values missing from
// the file keep their default. If the file doesn't exist or can't be decoded,
// the default configuration is returned.
func LoadConfigOrDefault(path string) Config {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.ModConfig.WarnZ("invalid config, using defaults").String("path", path).Error("err", err).End()
		}
		return DefaultConfig()
	}
	for _, key := range md.Undecoded() {
		log.ModConfig.WarnZ("unknown config key").String("path", path).String("key", key.String()).End()
	}
	log.ModConfig.DebugZ("loaded config").String("path", path).End()
	return cfg
}

// SaveConfig writes cfg to path.
func SaveConfig(path string, cfg Config) error {
	buf, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0644)
}
