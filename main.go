package main

import (
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupcal/src-server/delivery"
	"groupcal/src-server/engine"
	"groupcal/src-server/metric"
	"groupcal/src-server/model"
	"groupcal/src-server/route"
	"groupcal/src-server/utils"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func main() {
	as := utils.NewAppState()

	if err := model.CreateSchema(as.BunDB); err != nil {
		slog.Error("can't create database schema", "error", err)
		os.Exit(1)
	}

	// per-item locks shared by the engine and the delivery workers, so a
	// direct edit and an incoming message never race on one item
	locks := utils.NewKeyedMutex()
	hub := delivery.NewHub(as.BunDB, locks, as.MetricChans, as.Config.GetExpansionLimit())
	eng := engine.New(as.BunDB, hub, locks, as.Config.GetExpansionLimit())

	// redelivery sweep makes message delivery at-least-once across restarts
	sweeper := cron.New()
	if err := delivery.StartSweep(sweeper, hub, as.Config.GetDeliverySweepSpec()); err != nil {
		slog.Error("can't schedule delivery sweep", "error", err)
		os.Exit(1)
	}
	sweeper.Start()

	go metric.Init(as)

	// http server
	appCloseSignalChan := make(chan os.Signal, 1)
	go func() {
		muxer := http.NewServeMux()
		muxer.Handle("GET /metrics", promhttp.Handler())
		route.Items(muxer, as, eng)
		route.Mailbox(muxer, as)
		route.Ical(muxer, as)
		if err := http.ListenAndServe(":"+as.Config.GetPort(), muxer); err != nil {
			slog.Error("cannot start HTTP server", "error", err)
			appCloseSignalChan <- syscall.SIGTERM
		}
	}()

	slog.Info("app is now running, press Ctrl+C to exit")

	signal.Notify(appCloseSignalChan, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-appCloseSignalChan

	slog.Info("Gracefully shutting down...")
	sweeper.Stop()
	hub.Stop()
	as.Shutdown()
}
