package referral_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memeindex/memeindex/internal/backend"
	"github.com/memeindex/memeindex/internal/host"
	"github.com/memeindex/memeindex/internal/metrics"
	"github.com/memeindex/memeindex/internal/referral"
	"github.com/memeindex/memeindex/internal/wallet"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

const testAddr = wallet.Address("EQabc...123")

type fakeBackend struct {
	mu       sync.Mutex
	count    int
	applied  map[string]bool
	linkErr  error
	applyErr error
	calls    int
}

func newFakeBackend(count int) *fakeBackend {
	return &fakeBackend{count: count, applied: make(map[string]bool)}
}

func (f *fakeBackend) ReferralLink(_ context.Context, address string) (*backend.ReferralLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.linkErr != nil {
		return nil, f.linkErr
	}
	return &backend.ReferralLink{
		ReferralCode: "code-" + address,
		ReferralLink: "https://t.me/MemeIndexBot?start=code",
		BotUsername:  "MemeIndexBot",
	}, nil
}

func (f *fakeBackend) ReferralStats(_ context.Context, _ string) (*backend.ReferralStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &backend.ReferralStats{ReferralCount: f.count}, nil
}

func (f *fakeBackend) ApplyReferral(_ context.Context, req backend.ApplyReferralRequest) backend.ApplyResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.applyErr != nil {
		return backend.ClassifyApply(0, "", f.applyErr)
	}
	if f.applied[req.Address] {
		return backend.ClassifyApply(400, "Referral already applied", nil)
	}
	f.applied[req.Address] = true
	f.count++
	return backend.ClassifyApply(200, "Referral applied", nil)
}

func newService(b referral.Backend, rec *host.Recorder) *referral.Service {
	return referral.NewService(b, referral.Options{
		Messenger: rec,
		Notifier:  rec,
		Metrics:   &metrics.Metrics{},
	})
}

func TestProgress(t *testing.T) {
	t.Parallel()

	p := referral.Progress{Count: 3, Goal: 10}
	assert.Equal(t, "3/10", p.String())
	assert.False(t, p.Reached())
	assert.True(t, referral.Progress{Count: 10, Goal: 10}.Reached())
}

func TestService_Overview(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(4)
	svc := newService(fb, &host.Recorder{})

	ov, err := svc.Overview(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, "code-EQabc...123", ov.Link.ReferralCode)
	assert.Equal(t, "4/10", ov.Progress.String())
	assert.Equal(t, 2, fb.calls)
}

func TestService_OverviewError(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(0)
	fb.linkErr = apperr.ErrServerError
	svc := newService(fb, &host.Recorder{})

	_, err := svc.Overview(context.Background(), testAddr)
	require.ErrorIs(t, err, apperr.ErrServerError)
}

func TestService_RequiresWallet(t *testing.T) {
	t.Parallel()

	fb := newFakeBackend(0)
	svc := newService(fb, &host.Recorder{})
	ctx := context.Background()

	_, err := svc.Link(ctx, "")
	require.ErrorIs(t, err, apperr.ErrNotConnected)
	_, err = svc.Stats(ctx, "")
	require.ErrorIs(t, err, apperr.ErrNotConnected)
	_, err = svc.Overview(ctx, "")
	require.ErrorIs(t, err, apperr.ErrNotConnected)
	_, err = svc.Apply(ctx, "", "abc")
	require.ErrorIs(t, err, apperr.ErrNotConnected)
	assert.Equal(t, 0, fb.calls)
}

func TestService_Apply(t *testing.T) {
	t.Parallel()

	t.Run("applies once then already applied", func(t *testing.T) {
		t.Parallel()
		fb := newFakeBackend(2)
		rec := &host.Recorder{}
		svc := newService(fb, rec)
		ctx := context.Background()

		res, err := svc.Apply(ctx, testAddr, "friend")
		require.NoError(t, err)
		assert.Equal(t, backend.Applied, res.Outcome)

		p, err := svc.Progress(ctx, testAddr)
		require.NoError(t, err)
		assert.Equal(t, 3, p.Count)

		res, err = svc.Apply(ctx, testAddr, "friend")
		require.NoError(t, err)
		assert.Equal(t, backend.AlreadyApplied, res.Outcome)

		p, err = svc.Progress(ctx, testAddr)
		require.NoError(t, err)
		assert.Equal(t, 3, p.Count, "already applied leaves the count unchanged")

		assert.Equal(t, []string{"success"}, rec.Kinds(), "no error toast for already applied")
	})

	t.Run("failure toasts", func(t *testing.T) {
		t.Parallel()
		fb := newFakeBackend(0)
		fb.applyErr = apperr.ErrNetworkError
		rec := &host.Recorder{}
		svc := newService(fb, rec)

		_, err := svc.Apply(context.Background(), testAddr, "friend")
		require.ErrorIs(t, err, apperr.ErrNetworkError)
		require.Len(t, rec.Events(), 1)
		assert.Equal(t, "error", rec.Events()[0].Kind)
		assert.Equal(t, apperr.ErrNetworkError.Message, rec.Events()[0].Text)
	})

	t.Run("empty code", func(t *testing.T) {
		t.Parallel()
		svc := newService(newFakeBackend(0), &host.Recorder{})
		_, err := svc.Apply(context.Background(), testAddr, "  ")
		require.ErrorIs(t, err, apperr.ErrInvalidInput)
	})
}

func TestService_Share(t *testing.T) {
	t.Parallel()

	rec := &host.Recorder{}
	svc := newService(newFakeBackend(0), rec)

	require.NoError(t, svc.Share(context.Background(), testAddr))
	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "share", events[0].Kind)
	assert.Equal(t, referral.ShareText, events[0].Text)
	assert.Equal(t, "https://t.me/MemeIndexBot?start=code", events[0].Link)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	s := referral.NewMemoryStore(" abc ")
	code, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", code)

	require.NoError(t, s.Clear())
	code, err = s.Load()
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "pending_referral.json")
	s := referral.NewFileStore(path)

	code, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, code, "missing file means no pending code")

	require.NoError(t, s.Save("friend-code"))
	code, err = referral.NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "friend-code", code)

	require.NoError(t, s.Save(""))
	code, err = s.Load()
	require.NoError(t, err)
	assert.Empty(t, code)

	require.NoError(t, s.Clear(), "clearing twice is fine")
}
