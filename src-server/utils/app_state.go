package utils

import (
	"database/sql"
	"log/slog"
	"os"
	"sync"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

type AppState struct {
	Config *Config
	RawDb  *sql.DB
	BunDB  *bun.DB
	When   *when.Parser

	MetricChans *Metric

	mu            sync.Mutex
	shutdownChans []*chan struct{}
}

func NewAppState() *AppState {
	as := &AppState{}

	as.MetricChans = NewMetric()

	// date parser for the natural-language fields on the HTTP surface
	as.When = when.New(nil)
	as.When.Add(en.All...)
	as.When.Add(common.All...)

	// env
	as.Config = NewConfig()

	// database
	var err error
	as.RawDb, err = sql.Open(sqliteshim.ShimName, as.Config.GetDBPath()+"?mode=rwc")
	if err != nil {
		slog.Error("cannot open sqlite database", "error", err)
		os.Exit(1)
	}
	as.RawDb.SetMaxIdleConns(8)

	as.BunDB = bun.NewDB(as.RawDb, sqlitedialect.New())
	as.BunDB.AddQueryHook(bundebug.NewQueryHook(
		bundebug.WithVerbose(true),
		bundebug.FromEnv("BUNDEBUG"),
	))

	return as
}

// CreateGracefulShutdownChan hands out a channel that closes when the
// process is shutting down; background goroutines select on it.
func (as *AppState) CreateGracefulShutdownChan() *chan struct{} {
	as.mu.Lock()
	defer as.mu.Unlock()
	ch := make(chan struct{})
	as.shutdownChans = append(as.shutdownChans, &ch)
	return &ch
}

// Shutdown closes every handed-out shutdown channel.
func (as *AppState) Shutdown() {
	as.mu.Lock()
	defer as.mu.Unlock()
	for _, ch := range as.shutdownChans {
		close(*ch)
	}
	as.shutdownChans = nil
}
