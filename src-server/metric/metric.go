package metric

import (
	"log/slog"
	"time"

	"groupcal/src-server/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func databaseEmptyRead(as *utils.AppState, tickerInterval *time.Duration) {
	databaseEmptyRead := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupcal_database_empty_read_microsec",
		Help: "The latency of an empty database read in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseEmptyRead); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register groupcal_database_empty_read_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("groupcal_database_empty_read_microsec metric registered")
		databaseEmptyRead.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		ticker := time.NewTicker(*tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(databaseEmptyRead) {
				case true:
					slog.Debug("groupcal_database_empty_read_microsec metric unregistered")
				case false:
					slog.Warn("groupcal_database_empty_read_microsec metric not registered")
				}
				return
			case <-ticker.C:
				latency, err := database(as)
				if err != nil {
					slog.Error("can't get database latency", "error", err)
					continue
				}
				databaseEmptyRead.Set(float64(latency.Microseconds()))
			}
		}
	}()
}

func databaseRead(as *utils.AppState, clearTickerInterval *time.Duration) {
	databaseRead := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupcal_database_read_microsec",
		Help: "The latency of a database read in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseRead); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register groupcal_database_read_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("groupcal_database_read_microsec metric registered")
		databaseRead.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(databaseRead) {
				case true:
					slog.Debug("groupcal_database_read_microsec metric unregistered")
				case false:
					slog.Warn("groupcal_database_read_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.DatabaseRead:
				databaseRead.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				databaseRead.Set(0)
			}
		}
	}()
}

func databaseWrite(as *utils.AppState, clearTickerInterval *time.Duration) {
	databaseWrite := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupcal_database_write_microsec",
		Help: "The latency of a database write in microseconds",
	})
	good := true
	if err := prometheus.Register(databaseWrite); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register groupcal_database_write_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("groupcal_database_write_microsec metric registered")
		databaseWrite.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(databaseWrite) {
				case true:
					slog.Debug("groupcal_database_write_microsec metric unregistered")
				case false:
					slog.Warn("groupcal_database_write_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.DatabaseWrite:
				databaseWrite.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				databaseWrite.Set(0)
			}
		}
	}()
}

func messageDelivery(as *utils.AppState, clearTickerInterval *time.Duration) {
	messageDelivery := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupcal_message_delivery_microsec",
		Help: "The latency of one meeting message application in microseconds",
	})
	good := true
	if err := prometheus.Register(messageDelivery); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register groupcal_message_delivery_microsec metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("groupcal_message_delivery_microsec metric registered")
		messageDelivery.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		clearTicker := time.NewTicker(*clearTickerInterval)
		defer clearTicker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(messageDelivery) {
				case true:
					slog.Debug("groupcal_message_delivery_microsec metric unregistered")
				case false:
					slog.Warn("groupcal_message_delivery_microsec metric not registered")
				}
				return
			case latency := <-as.MetricChans.MessageDelivery:
				messageDelivery.Set(latency)
				clearTicker.Reset(*clearTickerInterval)
			case <-clearTicker.C:
				messageDelivery.Set(0)
			}
		}
	}()
}

func undeliveredQueueDepth(as *utils.AppState, tickerInterval *time.Duration) {
	undeliveredQueueDepth := promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupcal_undelivered_messages",
		Help: "The number of meeting messages waiting for delivery",
	})
	good := true
	if err := prometheus.Register(undeliveredQueueDepth); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			slog.Error("can't register groupcal_undelivered_messages metric", "error", err)
			good = false
		}
	}
	if good {
		slog.Debug("groupcal_undelivered_messages metric registered")
		undeliveredQueueDepth.Set(0)
	}
	go func() {
		gracefulShutdownCh := as.CreateGracefulShutdownChan()
		ticker := time.NewTicker(*tickerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-*gracefulShutdownCh:
				switch prometheus.Unregister(undeliveredQueueDepth) {
				case true:
					slog.Debug("groupcal_undelivered_messages metric unregistered")
				case false:
					slog.Warn("groupcal_undelivered_messages metric not registered")
				}
				return
			case <-ticker.C:
				count, err := undelivered(as)
				if err != nil {
					slog.Error("can't count undelivered messages", "error", err)
					continue
				}
				undeliveredQueueDepth.Set(float64(count))
			}
		}
	}()
}

func Init(as *utils.AppState) {
	tickerInterval := as.Config.GetMetricCollectionInterval()
	clearTickerInterval := as.Config.GetMetricCollectionInterval() * 2

	databaseEmptyRead(as, &tickerInterval)
	databaseRead(as, &clearTickerInterval)
	databaseWrite(as, &clearTickerInterval)
	messageDelivery(as, &clearTickerInterval)
	undeliveredQueueDepth(as, &tickerInterval)
}
