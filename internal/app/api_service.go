package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimplan/internal/api"
)

// APIService runs the HTTP API.
type APIService struct {
	server          *api.Server
	shutdownTimeout time.Duration
}

// NewAPIService creates a new APIService.
func NewAPIService(server *api.Server, shutdownTimeout time.Duration) *APIService {
	return &APIService{server: server, shutdownTimeout: shutdownTimeout}
}

// Start serves until ctx is done. A listen failure is reported through onFatalError.
func (s *APIService) Start(ctx context.Context, onFatalError func(error)) {
	go func() {
		if err := s.server.Run(ctx, s.shutdownTimeout); err != nil {
			log.Error().Err(err).Msg("API server error")
			onFatalError(err)
		}
	}()
}
