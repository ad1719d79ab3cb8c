package service

import (
	"time"

	repository "github.com/okian/rocketstat/internal/adapters/repository"
	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of persistence workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the persistence queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithPersistTimeout bounds a single store write.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithStorage sets the options the Badger store is opened with.
func WithStorage(opts ...repository.Option) Option {
	return func(s *Service) {
		s.storageOpts = append(s.storageOpts, opts...)
	}
}

// WithStore uses an already opened store. The service closes it on Stop.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithPlayers sets the players registered on Start.
func WithPlayers(records ...model.PlayerRecord) Option {
	return func(s *Service) {
		s.initial = append(s.initial, records...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
