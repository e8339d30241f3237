// Package config loads settings for the collabtext agent and relay.
//
// Values are layered, later sources winning: built-in defaults, an
// optional YAML file (--config or COLLABTEXT_CONFIG), environment
// variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the YAML file to load when --config is absent.
const EnvConfig = "COLLABTEXT_CONFIG"

const defaultAPIURL = "http://127.0.0.1:8000"

// Log configures the zerolog output.
type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Client configures the sync agent.
type Client struct {
	// APIURL is the provisioning root, e.g. http://127.0.0.1:8000.
	APIURL string `yaml:"api_url"`
	// WSURL is the real-time root. Derived from APIURL when empty.
	WSURL string `yaml:"ws_url"`

	// Room is joined at startup; empty means create one (or reuse the
	// most recent room when Resume is set).
	Room   string `yaml:"room"`
	Resume bool   `yaml:"resume"`

	Debounce time.Duration `yaml:"debounce"`
	Language string        `yaml:"language"`

	// ListenAddr serves the local editor bridge.
	ListenAddr string `yaml:"listen_addr"`
	// DataDir holds the recent-rooms database. Empty disables it.
	DataDir string `yaml:"data_dir"`

	// Discover browses mDNS for a relay unless an API URL is given.
	Discover bool `yaml:"discover"`
	// Rejoin re-joins the room with backoff after the channel drops.
	Rejoin bool `yaml:"rejoin"`

	Log Log `yaml:"log"`
}

// Server configures the relay.
type Server struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`
	// Advertise registers the relay over mDNS.
	Advertise bool `yaml:"advertise"`

	Log Log `yaml:"log"`
}

// DefaultClient returns the agent defaults.
func DefaultClient() Client {
	return Client{
		APIURL:     defaultAPIURL,
		Debounce:   300 * time.Millisecond,
		Language:   "python",
		ListenAddr: ":8080",
		Log:        Log{Level: "info"},
	}
}

// DefaultServer returns the relay defaults.
func DefaultServer() Server {
	return Server{
		Addr: ":8000",
		Log:  Log{Level: "info"},
	}
}

// Validate reports settings the agent cannot run with.
func (c Client) Validate() error {
	if c.Debounce <= 0 {
		return errors.New("debounce must be positive")
	}
	if c.APIURL == "" {
		if !c.Discover {
			return errors.New("api url is required unless discovery is enabled")
		}
		return nil
	}
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api url %q: scheme must be http or https", c.APIURL)
	}
	if u.Host == "" {
		return fmt.Errorf("api url %q: missing host", c.APIURL)
	}
	return nil
}

// WebsocketURL returns WSURL, or APIURL with its scheme switched to
// ws/wss.
func (c Client) WebsocketURL() string {
	if c.WSURL != "" {
		return c.WSURL
	}
	switch {
	case strings.HasPrefix(c.APIURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.APIURL, "https://")
	case strings.HasPrefix(c.APIURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.APIURL, "http://")
	}
	return c.APIURL
}

// LoadClient resolves the agent configuration from args (without the
// program name) and getenv. With discovery on, APIURL stays empty
// unless a file, env or flag sets it.
func LoadClient(args []string, getenv func(string) string) (Client, error) {
	cfg := DefaultClient()
	cfg.APIURL = ""
	if err := loadFile(configPath(args, getenv), &cfg); err != nil {
		return cfg, err
	}
	apiSet := cfg.APIURL != "" || getenv("COLLABTEXT_API_URL") != ""

	env := envReader{getenv: getenv}
	env.str("COLLABTEXT_API_URL", &cfg.APIURL)
	env.str("COLLABTEXT_WS_URL", &cfg.WSURL)
	env.str("COLLABTEXT_ROOM", &cfg.Room)
	env.boolean("COLLABTEXT_RESUME", &cfg.Resume)
	env.duration("COLLABTEXT_DEBOUNCE", &cfg.Debounce)
	env.str("COLLABTEXT_LANGUAGE", &cfg.Language)
	env.str("COLLABTEXT_LISTEN_ADDR", &cfg.ListenAddr)
	env.str("COLLABTEXT_DATA_DIR", &cfg.DataDir)
	env.boolean("COLLABTEXT_DISCOVER", &cfg.Discover)
	env.boolean("COLLABTEXT_REJOIN", &cfg.Rejoin)
	env.str("COLLABTEXT_LOG_LEVEL", &cfg.Log.Level)
	env.boolean("COLLABTEXT_LOG_PRETTY", &cfg.Log.Pretty)
	if env.err != nil {
		return cfg, env.err
	}

	fs := pflag.NewFlagSet("collabtext-agent", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.StringVar(&cfg.APIURL, "api", cfg.APIURL, "room provisioning base URL (default "+defaultAPIURL+" unless --discover)")
	fs.StringVar(&cfg.WSURL, "ws", cfg.WSURL, "real-time channel base URL (default: derived from --api)")
	fs.StringVar(&cfg.Room, "room", cfg.Room, "room ID to join (default: create a new room)")
	fs.BoolVar(&cfg.Resume, "resume", cfg.Resume, "join the most recently used room when --room is empty")
	fs.DurationVar(&cfg.Debounce, "debounce", cfg.Debounce, "quiescence window before sending edits")
	fs.StringVar(&cfg.Language, "language", cfg.Language, "language sent with autocomplete requests")
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "address of the local editor bridge")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for the recent-rooms database")
	fs.BoolVar(&cfg.Discover, "discover", cfg.Discover, "browse mDNS for a relay when no API URL is set")
	fs.BoolVar(&cfg.Rejoin, "rejoin", cfg.Rejoin, "re-join the room with backoff when the channel drops")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.BoolVar(&cfg.Log.Pretty, "log-pretty", cfg.Log.Pretty, "human-readable log output")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if !apiSet && !fs.Changed("api") && !cfg.Discover {
		cfg.APIURL = defaultAPIURL
	}
	return cfg, cfg.Validate()
}

// LoadServer resolves the relay configuration. DATABASE_URL and
// REDIS_ADDR are honoured unprefixed.
func LoadServer(args []string, getenv func(string) string) (Server, error) {
	cfg := DefaultServer()
	if err := loadFile(configPath(args, getenv), &cfg); err != nil {
		return cfg, err
	}

	env := envReader{getenv: getenv}
	env.str("COLLABTEXT_ADDR", &cfg.Addr)
	env.str("DATABASE_URL", &cfg.DatabaseURL)
	env.str("REDIS_ADDR", &cfg.RedisAddr)
	env.boolean("COLLABTEXT_ADVERTISE", &cfg.Advertise)
	env.str("COLLABTEXT_LOG_LEVEL", &cfg.Log.Level)
	env.boolean("COLLABTEXT_LOG_PRETTY", &cfg.Log.Pretty)
	if env.err != nil {
		return cfg, env.err
	}

	fs := pflag.NewFlagSet("collabtext-server", pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.DatabaseURL, "database-url", cfg.DatabaseURL, "Postgres URL (empty keeps rooms in memory)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for cross-instance fan-out (empty: in-process)")
	fs.BoolVar(&cfg.Advertise, "advertise", cfg.Advertise, "advertise the relay over mDNS")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	fs.BoolVar(&cfg.Log.Pretty, "log-pretty", cfg.Log.Pretty, "human-readable log output")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	if fs.NArg() > 0 {
		return cfg, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if cfg.Addr == "" {
		return cfg, errors.New("listen address is required")
	}
	return cfg, nil
}

// configPath finds --config ahead of the full parse so the file can be
// layered under env and flags.
func configPath(args []string, getenv func(string) string) string {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	path := fs.String("config", "", "")
	_ = fs.Parse(args)
	if *path != "" {
		return *path
	}
	return getenv(EnvConfig)
}

func loadFile(path string, into any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) str(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) boolean(key string, dst *bool) {
	v := e.getenv(key)
	if v == "" || e.err != nil {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v := e.getenv(key)
	if v == "" || e.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = d
}
