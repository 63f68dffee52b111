// Package app wires configuration, logging, the control-plane channel,
// and the debug HTTP surface together and runs the worker's request
// loop, following the constructor-wiring shape of the teacher's
// app.Run — rebuilt around the routing core instead of the
// translation use case it originally stood up.
package app

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"sfuworker/internal/config"
	"sfuworker/internal/control"
	"sfuworker/internal/httpapi"
	"sfuworker/internal/metrics"
	"sfuworker/internal/sfu"
	"sfuworker/pkg/logger"
)

// Exit codes per the control-plane channel's contract.
const (
	ExitOK          = 0
	ExitInitError   = 41
	ExitChannelFail = 42
)

// channel abstracts over StdioChannel/AmqpChannel so Run doesn't care
// which transport carries the control-plane protocol.
type channel interface {
	ReadRequest() (control.Request, error)
	WriteResponse(control.Response) error
	WriteNotification(control.Notification) error
}

// Run builds the worker and serves its control-plane channel until the
// channel closes or a protocol violation occurs, returning the process
// exit code.
func Run() int {
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return ExitInitError
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	router := sfu.NewRouter(cfg.RouterID, log)
	reg := metrics.New(prometheus.DefaultRegisterer)
	router.SetHealthObserver(healthObserverFunc(reg.RecordHealth))
	observer := metrics.Wrap(router, reg)

	engine := httpapi.NewEngine(router)
	httpServer := httpapi.New(engine, cfg.HTTP.Addr, log)
	defer httpServer.Shutdown()

	ch, err := openChannel(cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to open control-plane channel")
		return ExitInitError
	}

	router.SetNotifier(func(targetID, event string, data interface{}) {
		_ = ch.WriteNotification(control.NewNotification(targetID, event, data))
	})

	dispatcher := control.NewDispatcher(router, observer, log,
		sfu.WithNackAgeWindow(cfg.NackMinAge(), cfg.NackMaxAge()),
		sfu.WithPliCoalesceWindow(cfg.PliCoalesceWindow()),
	)

	for {
		req, err := ch.ReadRequest()
		if err != nil {
			log.Error().Err(err).Msg("control-plane channel closed")
			return ExitChannelFail
		}
		resp := dispatcher.Dispatch(req)
		if err := ch.WriteResponse(resp); err != nil {
			log.Error().Err(err).Msg("failed writing control-plane response")
			return ExitChannelFail
		}
	}
}

func openChannel(cfg *config.Config) (channel, error) {
	switch cfg.Control.Mode {
	case "amqp":
		return control.DialAmqp(cfg.Control.AmqpURL, cfg.Control.RequestQueue, cfg.Control.ResponseQueue)
	default:
		return control.NewStdioChannel(os.Stdin, os.Stdout), nil
	}
}

type healthObserverFunc func(streamID string, healthy bool)

func (f healthObserverFunc) OnRtpStreamHealthReport(streamID string, healthy bool) { f(streamID, healthy) }
