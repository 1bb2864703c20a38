package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tanglevis/tanglevis/src/common"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Transport kinds.
const (
	// WSTransport subscribes to a plain websocket feed.
	WSTransport = "ws"
	// WAMPTransport subscribes to a topic on a WAMP router.
	WAMPTransport = "wamp"
)

// Default configuration values.
const (
	DefaultLogLevel    = "debug"
	DefaultServiceAddr = "127.0.0.1:8000"
	DefaultTransport   = WSTransport
	DefaultFeedAddr    = "127.0.0.1:5556"
	DefaultFeedRealm   = "main"
	DefaultFeedTopic   = "feed.items"

	// DefaultNodeCap is the graph's node count cap; past it, oldest nodes
	// are evicted first.
	DefaultNodeCap = 5000

	// DefaultCategoryFloor is the minimum number of most-recent items
	// retained in the feed window per item category.
	DefaultCategoryFloor = 50

	// DefaultPruneInterval is the number of batches between two
	// small-component pruning passes.
	DefaultPruneInterval = 100

	// DefaultPruneRatio is the relative size threshold below which a
	// disconnected component is a pruning candidate.
	DefaultPruneRatio = 0.03
)

const (
	// DefaultQuiesceAfter is how long a component must have been quiet
	// before it may be pruned.
	DefaultQuiesceAfter = 60 * time.Second

	// DefaultMilestoneStaleAfter is how long a milestone entry survives its
	// node before the staleness sweep drops it.
	DefaultMilestoneStaleAfter = 300 * time.Second

	// DefaultMilestoneSweep is the frequency of milestone staleness sweeps.
	DefaultMilestoneSweep = 30 * time.Second
)

// Config contains all the configuration properties of a tanglevis engine.
type Config struct {
	// DataDir is the top-level directory containing tanglevis configuration
	// and log files.
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Transport selects the feed transport: "ws" or "wamp".
	Transport string `mapstructure:"transport"`

	// FeedAddr is the address of the feed server (websocket endpoint or
	// WAMP router, depending on Transport).
	FeedAddr string `mapstructure:"feed-addr"`

	// FeedRealm is the WAMP realm. Ignored by the websocket transport.
	FeedRealm string `mapstructure:"feed-realm"`

	// FeedTopic is the WAMP topic carrying feed frames. Ignored by the
	// websocket transport.
	FeedTopic string `mapstructure:"feed-topic"`

	// NodeCap is the maximum number of nodes retained in the graph.
	NodeCap int `mapstructure:"node-cap"`

	// CategoryFloor is the per-category retention floor of the feed window.
	CategoryFloor int `mapstructure:"category-floor"`

	// PruneInterval is the number of batches between pruning passes.
	PruneInterval int `mapstructure:"prune-interval"`

	// PruneRatio is the relative component-size threshold for pruning.
	PruneRatio float64 `mapstructure:"prune-ratio"`

	// QuiesceAfter is the component quiescence window.
	QuiesceAfter time.Duration `mapstructure:"quiesce-after"`

	// MilestoneStaleAfter is the milestone staleness window.
	MilestoneStaleAfter time.Duration `mapstructure:"milestone-stale-after"`

	// MilestoneSweep is the milestone sweep timer period.
	MilestoneSweep time.Duration `mapstructure:"milestone-sweep"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	return &Config{
		DataDir:             DefaultDataDir(),
		LogLevel:            DefaultLogLevel,
		ServiceAddr:         DefaultServiceAddr,
		Transport:           DefaultTransport,
		FeedAddr:            DefaultFeedAddr,
		FeedRealm:           DefaultFeedRealm,
		FeedTopic:           DefaultFeedTopic,
		NodeCap:             DefaultNodeCap,
		CategoryFloor:       DefaultCategoryFloor,
		PruneInterval:       DefaultPruneInterval,
		PruneRatio:          DefaultPruneRatio,
		QuiesceAfter:        DefaultQuiesceAfter,
		MilestoneStaleAfter: DefaultMilestoneStaleAfter,
		MilestoneSweep:      DefaultMilestoneSweep,
	}
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Logger returns a formatted logrus Entry, with prefix set to "tanglevis".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "tanglevis")
}

// LogLevel ...
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}

// DefaultDataDir returns the default directory name for top-level tanglevis
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Tanglevis")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Tanglevis")
		} else {
			return filepath.Join(home, ".tanglevis")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
