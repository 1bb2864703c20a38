package command

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tanglevis/tanglevis/src/config"
	"github.com/tanglevis/tanglevis/src/tanglevis"
	vers "github.com/tanglevis/tanglevis/src/version"
)

var (
	conf    *config.Config
	datadir *string
	logFile *bool
	version *bool
)

func init() {
	conf = config.NewDefaultConfig()

	cobra.OnInitialize(initConfig)

	// Base datadir
	datadir = RootCmd.PersistentFlags().StringP("datadir", "d", conf.DataDir, "Base configuration directory")

	// Feed and service addresses
	RootCmd.PersistentFlags().String("transport", conf.Transport, "Feed transport (ws, wamp)")
	RootCmd.PersistentFlags().StringP("feed-addr", "f", conf.FeedAddr, "IP:Port of the feed server")
	RootCmd.PersistentFlags().String("feed-realm", conf.FeedRealm, "WAMP realm of the feed")
	RootCmd.PersistentFlags().String("feed-topic", conf.FeedTopic, "WAMP topic carrying feed frames")
	RootCmd.PersistentFlags().StringP("service-listen", "s", conf.ServiceAddr, "HTTP service listen IP:Port")
	RootCmd.PersistentFlags().Bool("no-service", conf.NoService, "Disable the HTTP service")

	// Graph tunables
	RootCmd.PersistentFlags().Int("node-cap", conf.NodeCap, "Max number of nodes retained in the graph")
	RootCmd.PersistentFlags().Int("category-floor", conf.CategoryFloor, "Min items retained per feed category")
	RootCmd.PersistentFlags().Int("prune-interval", conf.PruneInterval, "Batches between pruning passes")
	RootCmd.PersistentFlags().Float64("prune-ratio", conf.PruneRatio, "Relative component size threshold for pruning")
	RootCmd.PersistentFlags().Duration("quiesce-after", conf.QuiesceAfter, "Component quiescence window")
	RootCmd.PersistentFlags().Duration("milestone-stale-after", conf.MilestoneStaleAfter, "Milestone staleness window")
	RootCmd.PersistentFlags().Duration("milestone-sweep", conf.MilestoneSweep, "Milestone sweep period")

	// Various
	RootCmd.PersistentFlags().String("log", conf.LogLevel, "Log level (debug, info, warn, error, fatal, panic)")
	logFile = RootCmd.PersistentFlags().Bool("log-file", false, "Also write logs to tanglevis.log in datadir")
	version = RootCmd.PersistentFlags().BoolP("version", "v", false, "Show version and exit")
}

func initConfig() {
	viper.AddConfigPath(*datadir)
	viper.SetConfigName("tanglevis")

	viper.BindPFlags(RootCmd.PersistentFlags())

	if err := viper.ReadInConfig(); err != nil {
		conf.Logger().Warn(err, ". Taking cli or default.")
	}

	if err := viper.Unmarshal(conf); err != nil {
		conf.Logger().Warn(err, ". Taking cli or default.")
	}
}

// RootCmd is the root command of the tanglevis CLI.
var RootCmd = &cobra.Command{
	Use:   "tanglevis",
	Short: "Tanglevis streaming ledger DAG engine",
	Long:  "Tanglevis maintains a live, bounded DAG of ledger items from a streaming feed, for visualization.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if *version {
			fmt.Println(vers.Version)
			return nil
		}

		logger := conf.Logger()
		if *logFile {
			addLogFileHook(logger.Logger)
		}

		logger.WithFields(logrus.Fields{
			"datadir":        conf.DataDir,
			"transport":      conf.Transport,
			"feed-addr":      conf.FeedAddr,
			"service-listen": conf.ServiceAddr,
			"node-cap":       conf.NodeCap,
			"category-floor": conf.CategoryFloor,
			"prune-interval": conf.PruneInterval,
			"log":            conf.LogLevel,
		}).Debug("RUN")

		engine := tanglevis.NewTanglevis(conf)

		if err := engine.Init(); err != nil {
			return fmt.Errorf("initializing engine: %v", err)
		}

		sigintCh := make(chan os.Signal, 1)
		signal.Notify(sigintCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigintCh
			engine.Shutdown()
		}()

		return engine.Run()
	},
}

// addLogFileHook routes info and debug output to a log file in the datadir,
// on top of the usual stderr output.
func addLogFileHook(logger *logrus.Logger) {
	path := filepath.Join(conf.DataDir, "tanglevis.log")

	pathMap := lfshook.PathMap{}

	if _, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0666); err != nil {
		logger.Info("Failed to open tanglevis.log file, using default stderr")
	} else {
		pathMap[logrus.InfoLevel] = path
		pathMap[logrus.DebugLevel] = path
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}
