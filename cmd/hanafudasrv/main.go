package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ychleo102615/hanahuda-sub006/pkg/server"
)

func main() {
	var (
		dbPath      string
		host        string
		port        int
		logFile     string
		maxLogFiles int
		seed        int64
		totalRounds int
		debugLevel  string
	)
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database file (created if missing)")
	flag.StringVar(&host, "host", "127.0.0.1", "Host to listen on")
	flag.IntVar(&port, "port", 8080, "Port to listen on")
	flag.StringVar(&logFile, "logfile", "", "Path to log file (empty = stderr only)")
	flag.IntVar(&maxLogFiles, "maxlogfiles", 10, "Maximum number of rotated log files")
	flag.Int64Var(&seed, "seed", 0, "Deterministic RNG seed for decks (0 = random)")
	flag.IntVar(&totalRounds, "rounds", 0, "Rounds per game (0 = default)")
	flag.StringVar(&debugLevel, "debuglevel", "info", "Logging level: trace, debug, info, warn, error")
	flag.Parse()

	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "hanafuda.sqlite")
	}

	log, closeLog, err := newLogger(logFile, maxLogFiles, debugLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	db, err := server.NewDatabase(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init db: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := server.DefaultConfig()
	if seed == 0 {
		if env := os.Getenv("HANAFUDA_SEED"); env != "" {
			if v, err := strconv.ParseInt(env, 10, 64); err == nil {
				seed = v
			}
		}
	}
	cfg.Seed = seed
	if totalRounds > 0 {
		cfg.TotalRounds = totalRounds
	}

	srv := server.NewServer(cfg, db, log)
	srv.Start()
	defer srv.Stop()

	addr := fmt.Sprintf("%s:%d", host, port)
	log.Infof("Listening on %s", addr)
	if err := srv.Router().Run(addr); err != nil {
		log.Errorf("http serve error: %v", err)
		os.Exit(1)
	}
}

// newLogger builds the slog backend, splitting output between stderr and
// a rotated log file when one is configured.
func newLogger(logFile string, maxLogFiles int, level string) (slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0700); err != nil {
			return nil, nil, err
		}
		rot, err := rotator.New(logFile, 32*1024, false, maxLogFiles)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(os.Stderr, rot)
		closeFn = func() { rot.Close() }
	}

	backend := slog.NewBackend(w)
	log := backend.Logger("SRVR")
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		lvl = slog.LevelInfo
	}
	log.SetLevel(lvl)
	return log, closeFn, nil
}
