package run

import (
	"context"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"emperror.dev/errors"
	"github.com/botlabs-gg/dshardrelay/common"
	"github.com/botlabs-gg/dshardrelay/common/sentryhook"
	"github.com/getsentry/sentry-go"
	"github.com/natefinch/lumberjack"
	log "github.com/sirupsen/logrus"
)

// Mode is what this process runs
type Mode string

const (
	// ModeStandalone runs the shards and the local handlers in one process
	ModeStandalone Mode = "standalone"
	// ModeGateway runs the shards and relays their events to workers
	ModeGateway Mode = "gateway"
	// ModeWorker runs the local handlers on events relayed from a gateway
	ModeWorker Mode = "worker"
)

var (
	flagRunStandalone bool
	flagRunGateway    bool
	flagRunWorker     bool

	flagLogTimestamp bool
	flagLogFile      string

	flagSysLog        bool
	flagGenConfigDocs bool

	flagLogAppName string

	flagVersion bool
)

var logger = common.GetFixedPrefixLogger("run")

func init() {
	flag.BoolVar(&flagRunStandalone, "standalone", false, "Set to run the shards and the event handlers in this process")
	flag.BoolVar(&flagRunGateway, "gateway", false, "Set to run the shards and relay events to workers")
	flag.BoolVar(&flagRunWorker, "worker", false, "Set to handle events relayed from a gateway process")
	flag.BoolVar(&flagSysLog, "syslog", false, "Set to log to syslog (only linux)")
	flag.StringVar(&flagLogAppName, "logappname", "dshardrelay", "When using syslog, the application name will be set to this")
	flag.StringVar(&flagLogFile, "logfile", "", "Also write logs to this file, rotated at 100MB")
	flag.BoolVar(&flagGenConfigDocs, "genconfigdocs", false, "Generate config docs and exit")

	flag.BoolVar(&flagLogTimestamp, "ts", false, "Set to include timestamps in log")
	flag.BoolVar(&flagVersion, "version", false, "Print the version and exit")
}

func selectedMode() (Mode, error) {
	var modes []Mode
	if flagRunStandalone {
		modes = append(modes, ModeStandalone)
	}
	if flagRunGateway {
		modes = append(modes, ModeGateway)
	}
	if flagRunWorker {
		modes = append(modes, ModeWorker)
	}

	switch len(modes) {
	case 0:
		return "", errors.New("didnt specify what to run, see -h for more info")
	case 1:
		return modes[0], nil
	}

	return "", errors.New("only one of -standalone, -gateway and -worker can be set")
}

func Init() {
	if !flag.Parsed() {
		flag.Parse()
	}

	if flagVersion {
		fmt.Println(common.VERSION)
		os.Exit(0)
	}

	common.AddLogHook(common.ContextHook{})

	common.SetLogFormatter(&log.TextFormatter{
		DisableTimestamp: !flagLogTimestamp,
		ForceColors:      common.Testing,
		SortingFunc:      logrusSortingFunc,
	})

	if flagLogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   flagLogFile,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     14,
		}))
	}

	// discordgo logs through the standard logger
	stdlog.SetFlags(0)
	stdlog.SetOutput(&common.STDLogProxy{Prefix: "discordgo"})

	if flagSysLog {
		AddSyslogHooks()
	}

	if flagGenConfigDocs {
		return
	}

	if _, err := selectedMode(); err != nil {
		log.Error(err)
		os.Exit(1)
	}

	log.Info("Starting dshardrelay version " + common.VERSION)

	err := common.CoreInit()
	if err != nil {
		log.WithError(err).Fatal("Failed running core init")
	}

	if confSentryDSN.GetString() != "" {
		addSentryHook()
	}
}

func Run() {
	if flagGenConfigDocs {
		GenConfigDocs()
		return
	}

	mode, _ := selectedMode()

	ctx, cancel := context.WithCancel(context.Background())
	abort := make(chan struct{})
	go listenSignal(cancel, abort)

	var code int
	if mode == ModeWorker {
		code = runWorker(ctx, abort)
	} else {
		code = runShards(ctx, abort, mode)
	}

	common.Shutdown()
	sentry.Flush(sentryFlushTimeout)

	log.Info("Bye..")
	os.Exit(code)
}

// listenSignal cancels ctx on the first signal and closes abort on the second
func listenSignal(cancel context.CancelFunc, abort chan struct{}) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c
	logger.Info("SHUTTING DOWN... (signal again to stop waiting)")
	cancel()

	<-c
	logger.Warn("Second signal, aborting")
	close(abort)
}

func addSentryHook() {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:     confSentryDSN.GetString(),
		Release: common.VERSION,
	})

	if err == nil {
		mode, _ := selectedMode()
		common.AddLogHook(sentryhook.Hook{Mode: string(mode)})
		log.Info("Added Sentry Hook")
	} else {
		log.WithError(err).Error("Failed adding sentry hook")
	}
}

var logSortPriority = []string{
	"time",
	"level",
	"p",
	"shard",
	"msg",
	"stck",
}

func logrusSortingFunc(fields []string) {
	sort.Slice(fields, func(i, j int) bool {
		iPriority := findStringIndex(logSortPriority, fields[i])
		jPriority := findStringIndex(logSortPriority, fields[j])

		if iPriority != -1 && jPriority == -1 {
			return true
		} else if jPriority != -1 && iPriority == -1 {
			return false
		} else if iPriority == -1 && jPriority == -1 {
			return strings.Compare(fields[i], fields[j]) < 0
		}

		// both has priority
		return iPriority < jPriority
	})
}

func findStringIndex(slice []string, s string) int {
	for i, v := range slice {
		if v == s {
			return i
		}
	}

	return -1
}
