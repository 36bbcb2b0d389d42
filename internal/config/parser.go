// Package config provides configuration file parsing.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fgeck/routeros-safeguard/internal/models"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrSettingsInvalid is wrapped by every error returned from the parser.
var ErrSettingsInvalid = errors.New("settings invalid")

// EnvPrefix is the prefix of environment variables overriding settings keys.
const EnvPrefix = "SAFEGUARD"

// Keys of the settings source. Viper matches them case-insensitively, so
// "Host" in settings.json and "host" in YAML both resolve.
const (
	KeyHost               = "host"
	KeyUsername           = "username"
	KeyPassword           = "password"
	KeyPort               = "port"
	KeyRestoreDelay       = "restoredelay"
	KeyUseTLS             = "usetls"
	KeyInsecureSkipVerify = "insecureskipverify"
	KeyTimeout            = "timeout"
	KeyBackupName         = "backupname"
	KeyBackupPassword     = "backuppassword"
	KeyTelegram           = "telegram"
)

// fileRequired lists keys a settings file must carry.
var fileRequired = []string{KeyHost, KeyUsername, KeyPassword, KeyPort, KeyRestoreDelay}

// flagRequired lists keys that must be passed explicitly on the command line.
// Port and delay fall back to the built-in defaults.
var flagRequired = []string{KeyHost, KeyUsername, KeyPassword}

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path. The format is taken from
// the file extension and defaults to JSON.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, invalid(fmt.Errorf("settings file: %w", err))
	}

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "json"
	}
	p.v.SetConfigType(format)
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, invalid(fmt.Errorf("reading config file: %w", err))
	}

	return p.parse(fileRequired)
}

// LoadReader loads configuration from a string (useful for testing).
func (p *Parser) LoadReader(content, format string) (*models.Config, error) {
	p.v.SetConfigType(format)
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, invalid(fmt.Errorf("reading config: %w", err))
	}

	return p.parse(fileRequired)
}

// LoadFlags builds the configuration from command line flags named after
// the settings keys (host, username, password, port, delay, tls, insecure,
// timeout, backup-name, backup-password). Port and delay default to the
// RouterOS API port and a one minute safety window.
func (p *Parser) LoadFlags(flags *pflag.FlagSet) (*models.Config, error) {
	bindings := map[string]string{
		KeyHost:               "host",
		KeyUsername:           "username",
		KeyPassword:           "password",
		KeyPort:               "port",
		KeyRestoreDelay:       "delay",
		KeyUseTLS:             "tls",
		KeyInsecureSkipVerify: "insecure",
		KeyTimeout:            "timeout",
		KeyBackupName:         "backup-name",
		KeyBackupPassword:     "backup-password",
	}
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := p.v.BindPFlag(key, f); err != nil {
			return nil, invalid(fmt.Errorf("binding flag %s: %w", name, err))
		}
	}

	p.v.SetDefault(KeyPort, models.DefaultAPIPort)
	p.v.SetDefault(KeyRestoreDelay, models.DefaultRestoreDelaySeconds)

	return p.parse(flagRequired)
}

func (p *Parser) parse(required []string) (*models.Config, error) {
	for _, key := range required {
		if !p.v.IsSet(key) {
			return nil, invalid(fmt.Errorf("%s is required", key))
		}
	}

	// A malformed number must not silently become zero: a zero delay
	// would restore immediately.
	port, err := p.intValue(KeyPort)
	if err != nil {
		return nil, err
	}
	delay, err := p.intValue(KeyRestoreDelay)
	if err != nil {
		return nil, err
	}
	timeout, err := p.durationValue(KeyTimeout)
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{}

	// Connection (required).
	cfg.Connection = models.ConnectionConfig{
		Host:                strings.TrimSpace(p.v.GetString(KeyHost)),
		Username:            p.v.GetString(KeyUsername),
		Password:            p.expandEnv(p.v.GetString(KeyPassword)),
		Port:                port,
		RestoreDelaySeconds: delay,
		UseTLS:              p.v.GetBool(KeyUseTLS),
		InsecureSkipVerify:  p.v.GetBool(KeyInsecureSkipVerify),
		Timeout:             timeout,
	}

	if cfg.Connection.Timeout == 0 {
		cfg.Connection.Timeout = models.DefaultTimeout
	}

	// Restore target (optional).
	cfg.Restore = models.RestoreSettings{
		BackupName:     p.v.GetString(KeyBackupName),
		BackupPassword: p.expandEnv(p.v.GetString(KeyBackupPassword)),
	}
	if cfg.Restore.BackupName == "" {
		cfg.Restore.BackupName = models.DefaultBackupName
	}

	// Parse optional Telegram config.
	if p.v.IsSet(KeyTelegram) {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString(KeyTelegram + ".bottoken")),
			ChatID:   p.expandEnv(p.v.GetString(KeyTelegram + ".chatid")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, invalid(fmt.Errorf("telegram.bottoken is required when telegram is configured"))
		}
		if cfg.Telegram.ChatID == "" {
			return nil, invalid(fmt.Errorf("telegram.chatid is required when telegram is configured"))
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// intValue reads an integer key. JSON numbers arrive as float64 and
// environment overrides as strings; booleans, fractions and strings in any
// base but ten are rejected instead of being coerced.
func (p *Parser) intValue(key string) (int, error) {
	var (
		n   int
		err error
	)
	switch v := p.v.Get(key).(type) {
	case bool:
		err = fmt.Errorf("unexpected boolean %t", v)
	case float64:
		n, err = integral(v)
	case float32:
		n, err = integral(float64(v))
	case string:
		n, err = strconv.Atoi(strings.TrimSpace(v))
	default:
		n, err = cast.ToIntE(v)
	}
	if err != nil {
		return 0, invalid(fmt.Errorf("%s must be an integer: %w", key, err))
	}
	return n, nil
}

func integral(f float64) (int, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("unexpected fraction %v", f)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, fmt.Errorf("%v is out of range", f)
	}
	return int(f), nil
}

// durationValue reads a duration key such as "15s". Unset keys are zero.
func (p *Parser) durationValue(key string) (time.Duration, error) {
	if !p.v.IsSet(key) {
		return 0, nil
	}
	d, err := cast.ToDurationE(p.v.Get(key))
	if err != nil {
		return 0, invalid(fmt.Errorf("%s must be a duration: %w", key, err))
	}
	return d, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrSettingsInvalid, err)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return invalid(fmt.Errorf("configuration is nil"))
	}

	c := cfg.Connection
	if c.Host == "" {
		return invalid(fmt.Errorf("host must not be empty"))
	}
	if c.Username == "" {
		return invalid(fmt.Errorf("username must not be empty"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return invalid(fmt.Errorf("port must be a positive integer below 65536, got %d", c.Port))
	}
	if c.RestoreDelaySeconds < 0 {
		return invalid(fmt.Errorf("restore delay must not be negative, got %d", c.RestoreDelaySeconds))
	}
	if c.RestoreDelaySeconds > models.MaxRestoreDelaySeconds {
		return invalid(fmt.Errorf("restore delay must not exceed %d seconds, got %d", models.MaxRestoreDelaySeconds, c.RestoreDelaySeconds))
	}
	if c.Timeout < 0 {
		return invalid(fmt.Errorf("timeout must not be negative, got %s", c.Timeout.Round(time.Millisecond)))
	}

	return nil
}
