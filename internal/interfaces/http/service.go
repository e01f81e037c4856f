package httpinterface

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/tdex-broker/internal/core/application/multitrade"
	"github.com/tdex-network/tdex-broker/internal/core/application/pubsub"
	"github.com/tdex-network/tdex-broker/internal/core/application/singletrade"
	websockethub "github.com/tdex-network/tdex-broker/internal/infrastructure/pubsub/websocket"
	interfaces "github.com/tdex-network/tdex-broker/internal/interfaces"
)

const shutdownTimeout = 10 * time.Second

type ServiceOpts struct {
	Port          int
	EnableMetrics bool

	MultiTradeSvc  *multitrade.Service
	SingleTradeSvc *singletrade.Service
	PubSubSvc      *pubsub.Service
	Events         *websockethub.Hub
}

func (o ServiceOpts) validate() error {
	if o.Port <= 0 {
		return fmt.Errorf("invalid listening port %d", o.Port)
	}
	if o.MultiTradeSvc == nil {
		return fmt.Errorf("multi trade app service must not be null")
	}
	if o.SingleTradeSvc == nil {
		return fmt.Errorf("single trade app service must not be null")
	}
	if o.PubSubSvc == nil {
		return fmt.Errorf("pubsub app service must not be null")
	}
	return nil
}

type service struct {
	opts   ServiceOpts
	server *http.Server
}

func NewService(opts ServiceOpts) (interfaces.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid opts: %s", err)
	}

	return &service{
		opts: opts,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", opts.Port),
			Handler:           NewRouter(opts),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func (s *service) Start() error {
	go func() {
		if err := s.server.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server stopped unexpectedly")
		}
	}()
	log.Infof("http interface is listening on %s", s.server.Addr)
	return nil
}

func (s *service) Stop() {
	if s.opts.Events != nil {
		s.opts.Events.Close()
		log.Debug("closed websocket connections")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to gracefully stop http interface")
		return
	}
	log.Debug("stopped http interface")
}
