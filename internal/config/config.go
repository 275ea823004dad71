package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/platy/smtp-dump/internal/inbox"
	"github.com/platy/smtp-dump/internal/smtp"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variable of every key,
// SMTPDUMP_LISTEN_ADDR sets listen_addr.
const EnvPrefix = "SMTPDUMP"

// Config is the daemon configuration. Every key can come from the config
// file or the environment.
type Config struct {
	Hostname   string `mapstructure:"hostname"`
	ListenAddr string `mapstructure:"listen_addr"`

	// InboxDir receives published messages. StagingDir holds them while
	// they are written and must be on the same filesystem, it defaults to
	// a sibling of InboxDir.
	InboxDir   string `mapstructure:"inbox_dir"`
	StagingDir string `mapstructure:"staging_dir"`
	Layout     string `mapstructure:"layout"`

	CommandTimeout time.Duration `mapstructure:"command_timeout"`
	DataTimeout    time.Duration `mapstructure:"data_timeout"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`

	MaxLineLength  int   `mapstructure:"max_line_length"`
	MaxMessageSize int64 `mapstructure:"max_message_size"`
	MaxRecipients  int   `mapstructure:"max_recipients"`

	ReverseDNS bool `mapstructure:"reverse_dns"`

	// optional side channels, empty disables them
	MetricsAddr string `mapstructure:"metrics_addr"`
	MQURL       string `mapstructure:"mq_url"`

	Debug bool `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	d := smtp.DefaultConfig()

	v.SetDefault("hostname", d.Domain)
	v.SetDefault("listen_addr", d.Addr)
	v.SetDefault("inbox_dir", "inbox")
	v.SetDefault("staging_dir", "")
	v.SetDefault("layout", inbox.LayoutFlat.String())
	v.SetDefault("command_timeout", d.CommandTimeout)
	v.SetDefault("data_timeout", d.DataTimeout)
	v.SetDefault("session_timeout", d.SessionTimeout)
	v.SetDefault("write_timeout", d.WriteTimeout)
	v.SetDefault("max_line_length", d.MaxLineLength)
	v.SetDefault("max_message_size", d.MaxMessageSize)
	v.SetDefault("max_recipients", d.MaxRecipients)
	v.SetDefault("reverse_dns", d.ReverseDNS)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("mq_url", "")
	v.SetDefault("debug", false)
}

// Load reads the YAML file at path, a missing file or an empty path
// leaves the defaults, then applies the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// INBOX_DIR is kept for existing deployments
	if err := v.BindEnv("inbox_dir", EnvPrefix+"_INBOX_DIR", "INBOX_DIR"); err != nil {
		return nil, errors.WithMessage(err, "BindEnv")
	}

	if len(path) > 0 {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
				return nil, errors.Wrapf(err, "reading config '%s'", path)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing config '%s'", path)
	}

	if len(cfg.StagingDir) == 0 && len(cfg.InboxDir) > 0 {
		cfg.StagingDir = filepath.Clean(cfg.InboxDir) + ".staging"
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if len(c.Hostname) == 0 {
		return errors.New("hostname is required")
	}
	if len(c.ListenAddr) == 0 {
		return errors.New("listen_addr is required")
	}
	if len(c.InboxDir) == 0 {
		return errors.New("inbox_dir is required")
	}
	if len(c.StagingDir) == 0 {
		return errors.New("staging_dir is required")
	}
	if filepath.Clean(c.InboxDir) == filepath.Clean(c.StagingDir) {
		return errors.New("staging_dir must differ from inbox_dir")
	}
	if _, err := inbox.ParseLayout(c.Layout); err != nil {
		return err
	}

	for name, d := range map[string]time.Duration{
		"command_timeout": c.CommandTimeout,
		"data_timeout":    c.DataTimeout,
		"session_timeout": c.SessionTimeout,
		"write_timeout":   c.WriteTimeout,
	} {
		if d < 0 {
			return errors.Errorf("%s must not be negative", name)
		}
	}

	if c.MaxLineLength <= 0 {
		return errors.New("max_line_length must be positive")
	}
	if c.MaxMessageSize <= 0 {
		return errors.New("max_message_size must be positive")
	}
	if c.MaxRecipients <= 0 {
		return errors.New("max_recipients must be positive")
	}

	return nil
}

// InboxLayout is the parsed layout, call Validate first.
func (c *Config) InboxLayout() inbox.Layout {
	layout, _ := inbox.ParseLayout(c.Layout)
	return layout
}

// Server is the protocol configuration of the listener.
func (c *Config) Server() smtp.Config {
	return smtp.Config{
		Domain:         c.Hostname,
		Addr:           c.ListenAddr,
		CommandTimeout: c.CommandTimeout,
		DataTimeout:    c.DataTimeout,
		SessionTimeout: c.SessionTimeout,
		WriteTimeout:   c.WriteTimeout,
		MaxLineLength:  c.MaxLineLength,
		MaxMessageSize: c.MaxMessageSize,
		MaxRecipients:  c.MaxRecipients,
		ReverseDNS:     c.ReverseDNS,
	}
}
