package referral

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/memeindex/memeindex/internal/backend"
	"github.com/memeindex/memeindex/internal/host"
	"github.com/memeindex/memeindex/internal/metrics"
	"github.com/memeindex/memeindex/internal/wallet"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// DefaultInviteGoal is the number of invites the progress counter targets.
const DefaultInviteGoal = 10

// ShareText is the message sent along with the invite link.
const ShareText = "Join me on MemeIndex and vote for the next big meme!"

// Backend is the subset of the backend client the invite flow needs.
type Backend interface {
	ReferralLink(ctx context.Context, address string) (*backend.ReferralLink, error)
	ReferralStats(ctx context.Context, address string) (*backend.ReferralStats, error)
	ApplyReferral(ctx context.Context, req backend.ApplyReferralRequest) backend.ApplyResult
}

// Logger is the logging interface used by the service.
type Logger interface {
	Debug(format string, args ...any)
	Error(format string, args ...any)
}

// Options configures a Service.
type Options struct {
	Messenger  host.Messenger
	Notifier   host.Notifier
	InviteGoal int
	Logger     Logger
	Metrics    *metrics.Metrics
}

// Service drives the invite flow for a connected wallet.
type Service struct {
	backend   Backend
	messenger host.Messenger
	notifier  host.Notifier
	goal      int
	logger    Logger
	metrics   *metrics.Metrics
}

// NewService creates an invite service.
func NewService(b Backend, opts Options) *Service {
	s := &Service{
		backend:   b,
		messenger: opts.Messenger,
		notifier:  opts.Notifier,
		goal:      opts.InviteGoal,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	if s.goal <= 0 {
		s.goal = DefaultInviteGoal
	}
	if s.logger == nil {
		s.logger = nopLogger{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Global
	}
	return s
}

// Progress is the invite count against the goal.
type Progress struct {
	Count int `json:"count"`
	Goal  int `json:"goal"`
}

// String renders the progress as "count/goal".
func (p Progress) String() string {
	return fmt.Sprintf("%d/%d", p.Count, p.Goal)
}

// Reached reports whether the goal is met.
func (p Progress) Reached() bool {
	return p.Count >= p.Goal
}

// Overview is everything the invite button shows.
type Overview struct {
	Link     backend.ReferralLink `json:"link"`
	Progress Progress             `json:"progress"`
}

// Link returns the invite link of addr.
func (s *Service) Link(ctx context.Context, addr wallet.Address) (*backend.ReferralLink, error) {
	if addr.IsZero() {
		return nil, apperr.ErrNotConnected
	}
	return s.backend.ReferralLink(ctx, addr.String())
}

// Stats returns the invite count of addr.
func (s *Service) Stats(ctx context.Context, addr wallet.Address) (*backend.ReferralStats, error) {
	if addr.IsZero() {
		return nil, apperr.ErrNotConnected
	}
	return s.backend.ReferralStats(ctx, addr.String())
}

// Progress returns the invite count of addr against the goal.
func (s *Service) Progress(ctx context.Context, addr wallet.Address) (Progress, error) {
	stats, err := s.Stats(ctx, addr)
	if err != nil {
		return Progress{Goal: s.goal}, err
	}
	return Progress{Count: stats.ReferralCount, Goal: s.goal}, nil
}

// Overview fetches the link and stats of addr concurrently.
func (s *Service) Overview(ctx context.Context, addr wallet.Address) (*Overview, error) {
	if addr.IsZero() {
		return nil, apperr.ErrNotConnected
	}

	var (
		link  *backend.ReferralLink
		stats *backend.ReferralStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		link, err = s.backend.ReferralLink(gctx, addr.String())
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.backend.ReferralStats(gctx, addr.String())
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("referral overview for %s: %v", addr.Short(), err)
		return nil, err
	}

	return &Overview{
		Link:     *link,
		Progress: Progress{Count: stats.ReferralCount, Goal: s.goal},
	}, nil
}

// Apply applies code for addr. A code that was already applied counts as
// success without an error toast.
func (s *Service) Apply(ctx context.Context, addr wallet.Address, code string) (backend.ApplyResult, error) {
	if addr.IsZero() {
		return backend.ApplyResult{Outcome: backend.ApplyRejected, Err: apperr.ErrNotConnected}, apperr.ErrNotConnected
	}
	code = strings.TrimSpace(code)
	if code == "" {
		err := apperr.WithDetails(apperr.ErrInvalidInput, map[string]string{"referral_code": "required"})
		return backend.ApplyResult{Outcome: backend.ApplyRejected, Err: err}, err
	}

	res := s.backend.ApplyReferral(ctx, backend.ApplyReferralRequest{
		Address:      addr.String(),
		ReferralCode: code,
	})

	switch res.Outcome {
	case backend.Applied:
		s.metrics.RecordReferralApplied()
		s.logger.Debug("referral %s applied for %s", code, addr.Short())
		s.success("Referral applied")
	case backend.AlreadyApplied:
		s.logger.Debug("referral %s already applied for %s", code, addr.Short())
	default:
		s.logger.Error("apply referral %s for %s: %v", code, addr.Short(), res.Err)
		s.failure(apperr.UserMessage(res.Err))
		return res, res.Err
	}
	return res, nil
}

// Share opens the host share sheet with the invite link of addr.
func (s *Service) Share(ctx context.Context, addr wallet.Address) error {
	link, err := s.Link(ctx, addr)
	if err != nil {
		s.failure("Failed to get invite link")
		return err
	}
	if s.messenger == nil {
		return apperr.WithDetails(apperr.ErrGeneral, map[string]string{"messenger": "not configured"})
	}
	return s.messenger.SendMessage(ctx, ShareText, link.ReferralLink)
}

func (s *Service) success(msg string) {
	if s.notifier != nil {
		s.notifier.Success(msg)
	}
}

func (s *Service) failure(msg string) {
	if s.notifier != nil {
		s.notifier.Error(msg)
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Error(string, ...any) {}
