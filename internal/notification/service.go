package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Email is one outbound message
type Email struct {
	To        string
	Subject   string
	Body      string
	CreatedAt time.Time
}

// EmailProvider delivers email. The dev implementation just logs.
type EmailProvider interface {
	Send(ctx context.Context, email Email) error
}

// Service delivers notifications asynchronously. Senders never block
// and never see delivery failures: a full buffer or a provider error
// is logged and dropped, because notifications must not fail or slow
// the operation that triggered them.
type Service struct {
	provider EmailProvider
	ch       chan Email
	workers  int
	logger   zerolog.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewService creates a notification service
func NewService(provider EmailProvider, workers, buffer int, logger zerolog.Logger) *Service {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = 256
	}
	return &Service{
		provider: provider,
		ch:       make(chan Email, buffer),
		workers:  workers,
		logger:   logger.With().Str("component", "notification_service").Logger(),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the delivery workers
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("service already started")
	}
	s.started = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	return nil
}

// Stop drains the workers
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

// NotifyAccountCreated enqueues the registry account welcome email
func (s *Service) NotifyAccountCreated(email, fullName string) {
	s.enqueue(Email{
		To:        email,
		Subject:   "Your laboratory account is ready",
		Body:      fmt.Sprintf("Hello %s, an account has been created for you in the national identity registry.", fullName),
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Service) enqueue(e Email) {
	select {
	case s.ch <- e:
	default:
		s.logger.Warn().Str("to", e.To).Msg("notification buffer full, dropping email")
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case e := <-s.ch:
			if err := s.provider.Send(ctx, e); err != nil {
				s.logger.Warn().Err(err).Str("to", e.To).Msg("email delivery failed")
			}
		}
	}
}

// LogProvider is the development email provider
type LogProvider struct {
	Logger zerolog.Logger
}

// Send logs the email instead of delivering it
func (p *LogProvider) Send(ctx context.Context, email Email) error {
	p.Logger.Info().Str("to", email.To).Str("subject", email.Subject).Msg("email (dev mode)")
	return nil
}
