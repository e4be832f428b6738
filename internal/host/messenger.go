package host

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
)

// Messenger is the part of the host the app talks back to.
type Messenger interface {
	// ShowAlert shows a blocking alert with text.
	ShowAlert(ctx context.Context, text string) error
	// OpenLink opens an external URL.
	OpenLink(ctx context.Context, link string) error
	// OpenTelegramLink opens a t.me link inside the host.
	OpenTelegramLink(ctx context.Context, link string) error
	// SendMessage opens the host's share sheet prefilled with text and link.
	SendMessage(ctx context.Context, text, link string) error
}

// Notifier shows short non-blocking toasts.
type Notifier interface {
	Success(msg string)
	Error(msg string)
	Info(msg string)
}

// ShareURL builds the t.me share link used to invite friends.
func ShareURL(text, link string) string {
	q := url.Values{}
	q.Set("url", link)
	q.Set("text", text)
	return "https://t.me/share/url?" + q.Encode()
}

// IsTelegramLink reports whether link points at a t.me destination.
func IsTelegramLink(link string) bool {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return u.Scheme == "tg" || host == "t.me" || host == "telegram.me"
}

// Console renders host interactions as lines on a writer. It stands in for
// the host UI when the app runs from a terminal.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// Compile-time interface checks
var (
	_ Messenger = (*Console)(nil)
	_ Notifier  = (*Console)(nil)
)

// NewConsole creates a console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// ShowAlert prints an alert line.
func (c *Console) ShowAlert(_ context.Context, text string) error {
	return c.printf("! %s\n", text)
}

// OpenLink prints the link to open.
func (c *Console) OpenLink(_ context.Context, link string) error {
	return c.printf("Open: %s\n", link)
}

// OpenTelegramLink prints the t.me link to open.
func (c *Console) OpenTelegramLink(_ context.Context, link string) error {
	return c.printf("Open in Telegram: %s\n", link)
}

// SendMessage prints the share link.
func (c *Console) SendMessage(_ context.Context, text, link string) error {
	return c.printf("Share: %s\n", ShareURL(text, link))
}

// Success prints a success toast.
func (c *Console) Success(msg string) {
	_ = c.printf("✓ %s\n", msg)
}

// Error prints an error toast.
func (c *Console) Error(msg string) {
	_ = c.printf("✗ %s\n", msg)
}

// Info prints an informational toast.
func (c *Console) Info(msg string) {
	_ = c.printf("ℹ %s\n", msg)
}

func (c *Console) printf(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, format, args...)
	return err
}

// Recorder captures host interactions. Used by tests and dry runs.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Event is one recorded host interaction.
type Event struct {
	Kind string
	Text string
	Link string
}

// Compile-time interface checks
var (
	_ Messenger = (*Recorder)(nil)
	_ Notifier  = (*Recorder)(nil)
)

// ShowAlert records an alert.
func (r *Recorder) ShowAlert(_ context.Context, text string) error {
	r.add(Event{Kind: "alert", Text: text})
	return nil
}

// OpenLink records an opened link.
func (r *Recorder) OpenLink(_ context.Context, link string) error {
	r.add(Event{Kind: "link", Link: link})
	return nil
}

// OpenTelegramLink records an opened t.me link.
func (r *Recorder) OpenTelegramLink(_ context.Context, link string) error {
	r.add(Event{Kind: "telegram_link", Link: link})
	return nil
}

// SendMessage records a share.
func (r *Recorder) SendMessage(_ context.Context, text, link string) error {
	r.add(Event{Kind: "share", Text: text, Link: link})
	return nil
}

// Success records a success toast.
func (r *Recorder) Success(msg string) { r.add(Event{Kind: "success", Text: msg}) }

// Error records an error toast.
func (r *Recorder) Error(msg string) { r.add(Event{Kind: "error", Text: msg}) }

// Info records an info toast.
func (r *Recorder) Info(msg string) { r.add(Event{Kind: "info", Text: msg}) }

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []string {
	events := r.Events()
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func (r *Recorder) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}
