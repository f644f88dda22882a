package pool

import (
	"github.com/viant/afs"
	"github.com/viant/convflux/internal/parallel"
	"github.com/viant/convflux/service/messaging"
)

// Option configures the pool Service.
type Option func(*Service)

// WithConfig sets the configuration for the service
func WithConfig(config Config) Option {
	return func(s *Service) {
		s.config = config
	}
}

// WithWorkers sets the number of worker goroutines
func WithWorkers(count int) Option {
	return func(s *Service) {
		s.config.WorkerCount = count
	}
}

// WithMailboxSize sets the per-worker mailbox capacity
func WithMailboxSize(size int) Option {
	return func(s *Service) {
		s.config.MailboxSize = size
	}
}

// WithVendor selects the messaging transport between pool and workers
func WithVendor(vendor messaging.Vendor, basePath string) Option {
	return func(s *Service) {
		s.config.Vendor = vendor
		if basePath != "" {
			s.config.BasePath = basePath
		}
	}
}

// WithFS sets the storage service used by the fs transport
func WithFS(fs afs.Service) Option {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithParallel makes every worker split its kernel across goroutines
func WithParallel(cfg parallel.Config) Option {
	return func(s *Service) {
		s.parallel = &cfg
	}
}
