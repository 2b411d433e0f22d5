package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"corrade/internal/filter"
	"corrade/internal/model"
)

type Config struct {
	Agent struct {
		FirstName   string `yaml:"first_name"`
		LastName    string `yaml:"last_name"`
		TOSAccepted bool   `yaml:"tos_accepted"`
		Version     string `yaml:"version"`
	} `yaml:"agent"`
	Session struct {
		Driver              string `yaml:"driver"`
		BridgeURL           string `yaml:"bridge_url"`
		ServicesTimeout     string `yaml:"services_timeout"`
		DataTimeout         string `yaml:"data_timeout"`
		Range               int    `yaml:"range"`
		SenderIsObjectUUID  bool   `yaml:"sender_is_object_uuid"`
		ReconnectBackoffMax string `yaml:"reconnect_backoff_max"`
	} `yaml:"session"`
	Server struct {
		Host         string `yaml:"host"`
		Port         int    `yaml:"port"`
		Prefix       string `yaml:"prefix"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		Compression  string `yaml:"compression"`
		RatePerMin   int    `yaml:"rate_per_minute"`
		RateBurst    int    `yaml:"rate_burst"`
	} `yaml:"server"`
	MCP struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"mcp"`
	Database struct {
		Path           string `yaml:"path"`
		WALMode        bool   `yaml:"wal_mode"`
		MaxConnections int    `yaml:"max_connections"`
	} `yaml:"database"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		File   string `yaml:"file"`
	} `yaml:"logging"`
	Filters struct {
		Input  []string `yaml:"input"`
		Output []string `yaml:"output"`
		Enigma struct {
			Rotors    string `yaml:"rotors"`
			Key       string `yaml:"key"`
			Plugs     string `yaml:"plugs"`
			Reflector string `yaml:"reflector"`
		} `yaml:"enigma"`
		VigenereSecret string `yaml:"vigenere_secret"`
	} `yaml:"filters"`
	Limits struct {
		CommandThreads          int    `yaml:"command_threads"`
		NotificationThreads     int    `yaml:"notification_threads"`
		InstantMessageThreads   int    `yaml:"instant_message_threads"`
		RLVThreads              int    `yaml:"rlv_threads"`
		CallbackQueueLength     int    `yaml:"callback_queue_length"`
		NotificationQueueLength int    `yaml:"notification_queue_length"`
		CallbackTimeout         string `yaml:"callback_timeout"`
		CallbackThrottle        string `yaml:"callback_throttle"`
		NotificationTimeout     string `yaml:"notification_timeout"`
		NotificationThrottle    string `yaml:"notification_throttle"`
		MembershipSweep         string `yaml:"membership_sweep"`
		EffectExpiry            string `yaml:"effect_expiry"`
		SenderRatePerMin        int    `yaml:"sender_rate_per_minute"`
		SenderRateBurst         int    `yaml:"sender_rate_burst"`
		ShutdownGrace           string `yaml:"shutdown_grace"`
	} `yaml:"limits"`
	RLV struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"rlv"`
	CommandChannel int      `yaml:"command_channel"`
	Groups         []Group  `yaml:"groups"`
	Masters        []Master `yaml:"masters"`
	ExitCodes      struct {
		Expected int `yaml:"expected"`
		Abnormal int `yaml:"abnormal"`
	} `yaml:"exit_codes"`
}

type Group struct {
	Name          string   `yaml:"name"`
	UUID          string   `yaml:"uuid"`
	Password      string   `yaml:"password"`
	Workers       int      `yaml:"workers"`
	Permissions   []string `yaml:"permissions"`
	Notifications []string `yaml:"notifications"`
	ChatLog       struct {
		Enabled bool   `yaml:"enabled"`
		File    string `yaml:"file"`
	} `yaml:"chatlog"`
}

type Master struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
}

func Default() Config {
	var cfg Config
	cfg.Agent.Version = "corrade-go/1.0"
	cfg.Session.Driver = "memory"
	cfg.Session.ServicesTimeout = "60s"
	cfg.Session.DataTimeout = "2500ms"
	cfg.Session.Range = 64
	cfg.Session.ReconnectBackoffMax = "30s"
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8080
	cfg.Server.Prefix = "/"
	cfg.Server.ReadTimeout = "30s"
	cfg.Server.WriteTimeout = "30s"
	cfg.Server.Compression = "none"
	cfg.Server.RatePerMin = 600
	cfg.Server.RateBurst = 60
	cfg.MCP.Enabled = false
	cfg.MCP.Path = "/mcp"
	cfg.Database.Path = "./corrade.db"
	cfg.Database.WALMode = true
	cfg.Database.MaxConnections = 4
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Filters.Input = []string{filter.RFC1738}
	cfg.Filters.Output = []string{filter.RFC1738}
	cfg.Filters.Enigma.Rotors = "123"
	cfg.Filters.Enigma.Key = "aaa"
	cfg.Filters.Enigma.Reflector = "B"
	cfg.Limits.CommandThreads = 10
	cfg.Limits.NotificationThreads = 10
	cfg.Limits.InstantMessageThreads = 10
	cfg.Limits.RLVThreads = 10
	cfg.Limits.CallbackQueueLength = 100
	cfg.Limits.NotificationQueueLength = 100
	cfg.Limits.CallbackTimeout = "5s"
	cfg.Limits.CallbackThrottle = "250ms"
	cfg.Limits.NotificationTimeout = "5s"
	cfg.Limits.NotificationThrottle = "250ms"
	cfg.Limits.MembershipSweep = "1m"
	cfg.Limits.EffectExpiry = "1s"
	cfg.Limits.SenderRatePerMin = 120
	cfg.Limits.SenderRateBurst = 20
	cfg.Limits.ShutdownGrace = "5s"
	cfg.RLV.Enabled = true
	cfg.ExitCodes.Expected = 0
	cfg.ExitCodes.Abnormal = 2
	return cfg
}

// Load parses path and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Parse(path)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads path over the defaults and applies environment overrides
// without validating.
func Parse(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	overrideFromEnv(&cfg)
	return cfg, nil
}

func Addr(cfg Config) string {
	return cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
}

// Duration parses a configured duration, falling back to def when the
// value is empty or invalid.
func Duration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func ReadTimeout(cfg Config) time.Duration {
	return Duration(cfg.Server.ReadTimeout, 30*time.Second)
}

func WriteTimeout(cfg Config) time.Duration {
	return Duration(cfg.Server.WriteTimeout, 30*time.Second)
}

func ServicesTimeout(cfg Config) time.Duration {
	return Duration(cfg.Session.ServicesTimeout, time.Minute)
}

func DataTimeout(cfg Config) time.Duration {
	return Duration(cfg.Session.DataTimeout, 2500*time.Millisecond)
}

// Groups converts the configured groups into their runtime form.
func Groups(cfg Config) ([]model.Group, error) {
	out := make([]model.Group, 0, len(cfg.Groups))
	for _, g := range cfg.Groups {
		perms, err := model.ParsePermissions(g.Permissions)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.Name, err)
		}
		notes, err := model.ParseNotifications(g.Notifications)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.Name, err)
		}
		id, err := uuid.Parse(g.UUID)
		if err != nil {
			return nil, fmt.Errorf("group %s: invalid uuid: %w", g.Name, err)
		}
		out = append(out, model.Group{
			Name:          g.Name,
			UUID:          id,
			Password:      g.Password,
			Permissions:   perms,
			Notifications: notes,
			Workers:       g.Workers,
			ChatLog:       model.ChatLog{Enabled: g.ChatLog.Enabled, File: g.ChatLog.File},
		})
	}
	return out, nil
}

func Masters(cfg Config) []model.Master {
	out := make([]model.Master, 0, len(cfg.Masters))
	for _, m := range cfg.Masters {
		out = append(out, model.Master{FirstName: m.FirstName, LastName: m.LastName})
	}
	return out
}

// Pipeline builds the filter pipeline described by the filters section.
func Pipeline(cfg Config) (*filter.Pipeline, error) {
	return filter.New(filter.Options{
		Input:           cfg.Filters.Input,
		Output:          cfg.Filters.Output,
		EnigmaRotors:    cfg.Filters.Enigma.Rotors,
		EnigmaKey:       cfg.Filters.Enigma.Key,
		EnigmaPlugs:     cfg.Filters.Enigma.Plugs,
		EnigmaReflector: cfg.Filters.Enigma.Reflector,
		VigenereSecret:  cfg.Filters.VigenereSecret,
	})
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("CORRADE_FIRST_NAME"); v != "" {
		cfg.Agent.FirstName = v
	}
	if v := os.Getenv("CORRADE_LAST_NAME"); v != "" {
		cfg.Agent.LastName = v
	}
	if v := os.Getenv("CORRADE_TOS_ACCEPTED"); v != "" {
		cfg.Agent.TOSAccepted = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CORRADE_SESSION_DRIVER"); v != "" {
		cfg.Session.Driver = v
	}
	if v := os.Getenv("CORRADE_BRIDGE_URL"); v != "" {
		cfg.Session.BridgeURL = v
	}
	if v := os.Getenv("CORRADE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("CORRADE_SERVER_PORT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = i
		}
	}
	if v := os.Getenv("CORRADE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CORRADE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CORRADE_MCP_ENABLED"); v != "" {
		cfg.MCP.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
}

// Validate rejects configurations the agent cannot start with.
func Validate(cfg Config) error {
	if !cfg.Agent.TOSAccepted {
		return errors.New("agent.tos_accepted must be true")
	}
	switch cfg.Session.Driver {
	case "memory":
	case "bridge":
		if strings.TrimSpace(cfg.Session.BridgeURL) == "" {
			return errors.New("session.bridge_url is required for the bridge driver")
		}
	default:
		return fmt.Errorf("invalid session.driver: %s", cfg.Session.Driver)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return errors.New("invalid server.port")
	}
	if cfg.Server.Prefix == "" || cfg.Server.Prefix[0] != '/' {
		return errors.New("server.prefix must start with '/'")
	}
	switch cfg.Server.Compression {
	case "", "none", "gzip", "deflate":
	default:
		return fmt.Errorf("invalid server.compression: %s", cfg.Server.Compression)
	}
	if cfg.MCP.Enabled && (cfg.MCP.Path == "" || cfg.MCP.Path[0] != '/') {
		return errors.New("mcp.path must start with '/'")
	}
	if cfg.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if _, err := Pipeline(cfg); err != nil {
		return fmt.Errorf("filters: %w", err)
	}
	for name, v := range map[string]int{
		"limits.command_threads":           cfg.Limits.CommandThreads,
		"limits.notification_threads":      cfg.Limits.NotificationThreads,
		"limits.instant_message_threads":   cfg.Limits.InstantMessageThreads,
		"limits.rlv_threads":               cfg.Limits.RLVThreads,
		"limits.callback_queue_length":     cfg.Limits.CallbackQueueLength,
		"limits.notification_queue_length": cfg.Limits.NotificationQueueLength,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	groups, err := Groups(cfg)
	if err != nil {
		return err
	}
	names := map[string]struct{}{}
	ids := map[uuid.UUID]struct{}{}
	for _, g := range groups {
		key := strings.ToLower(g.Name)
		if strings.TrimSpace(key) == "" {
			return errors.New("group name is required")
		}
		if _, ok := names[key]; ok {
			return fmt.Errorf("duplicate group name: %s", g.Name)
		}
		if _, ok := ids[g.UUID]; ok {
			return fmt.Errorf("duplicate group uuid: %s", g.UUID)
		}
		names[key] = struct{}{}
		ids[g.UUID] = struct{}{}
		if g.Workers <= 0 {
			return fmt.Errorf("group %s: workers must be > 0", g.Name)
		}
		if g.ChatLog.Enabled && strings.TrimSpace(g.ChatLog.File) == "" {
			return fmt.Errorf("group %s: chatlog.file is required when enabled", g.Name)
		}
	}
	return nil
}
