package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/perjons/gatequeue/pkg/device"
	"github.com/perjons/gatequeue/pkg/env"
	"github.com/perjons/gatequeue/pkg/gate"
	"github.com/perjons/gatequeue/pkg/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Set global log level
	logLevel, _ := env.GetOptionalString(env.GATEQUEUE_LOG_LEVEL, env.GATEQUEUE_LOG_LEVEL_DEFAULT)
	zerolog.SetGlobalLevel(translateToZerologLevel(logLevel))
	if console, _ := env.GetOptionalBool(env.GATEQUEUE_LOG_OUTPUT_CONSOLE, env.GATEQUEUE_LOG_OUTPUT_CONSOLE_DEFAULT); console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Check if '?' since the version info can only be set for container builds, not via 'go install'
	if version.Version != "?" {
		log.Info().
			Str("version", version.Version).
			Str("commit", version.Commit).
			Str("built", version.Built).
			Msg("starting gatequeue simulator")
	} else {
		log.Info().Msg("starting gatequeue simulator")
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Check if Prometheus metrics are enabled
	var srv *http.Server
	if metrics, _ := env.GetOptionalBool(env.GATEQUEUE_METRICS, env.GATEQUEUE_METRICS_DEFAULT); metrics {
		port, _ := env.GetOptionalUint16(env.GATEQUEUE_METRICS_PORT, env.GATEQUEUE_METRICS_PORT_DEFAULT)
		http.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: fmt.Sprintf(":%d", port)}
		go func() {
			log.Info().Str("address", srv.Addr).Msg("starting metrics server")
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failure")
			} else {
				log.Info().Msg("stopped metrics server")
			}
		}()
	}

	go func() {
		signal_ch := make(chan os.Signal, 1)
		signal.Notify(signal_ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-signal_ch
		log.Info().Any("signal", sig).Msg("captured stop signal")
		if srv != nil {
			if err := srv.Shutdown(ctx); err != nil {
				log.Error().Err(err).Msg("error shutting down metrics server")
			}
		}
		cancel()
	}()

	devices, _ := env.GetOptionalInteger(env.GATEQUEUE_SIM_DEVICES, env.GATEQUEUE_SIM_DEVICES_DEFAULT)
	jobs, _ := env.GetOptionalInteger(env.GATEQUEUE_SIM_JOBS, env.GATEQUEUE_SIM_JOBS_DEFAULT)
	busyTimeMs, _ := env.GetOptionalInteger(env.GATEQUEUE_SIM_BUSY_TIME_MS, env.GATEQUEUE_SIM_BUSY_TIME_MS_DEFAULT)

	runSimulation(ctx, devices, jobs, time.Duration(busyTimeMs)*time.Millisecond)

	log.Info().Msg("simulator stopped")
}

// Submits 'jobs' operations against each of 'devices' simulated devices. A
// job occupies its device and frees it again after busyTime, from a timer
// goroutine, so everything past the first job per device goes through the
// deferred drain path.
func runSimulation(ctx context.Context, devices int, jobs int, busyTime time.Duration) {
	gt := gate.New(nil)

	wg := sync.WaitGroup{}
	wg.Add(devices * jobs)
	for i := 0; i < devices; i++ {
		dev := device.New(fmt.Sprintf("dev-%d", i))
		for j := 0; j < jobs; j++ {
			job := j
			gt.Submit(dev, func() {
				log.Info().Str("device", dev.Name()).Int("job", job).Msg("job started")
				dev.MarkBusy()
				time.AfterFunc(busyTime, func() {
					log.Info().Str("device", dev.Name()).Int("job", job).Msg("job finished")
					dev.MarkFree()
					wg.Done()
				})
			})
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all jobs completed")
	case <-ctx.Done():
		log.Info().Msg("simulation interrupted")
	}
}

func translateToZerologLevel(level string) zerolog.Level {
	switch level {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	case "PANIC":
		return zerolog.PanicLevel
	}

	log.Warn().Msg("unable to decode log level")
	return zerolog.NoLevel
}
