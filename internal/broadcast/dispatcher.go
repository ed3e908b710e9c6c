// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package broadcast delivers a published newsletter to every active
// subscriber and reports per-recipient outcomes.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olegiv/newsletter-go/internal/mail"
	"github.com/olegiv/newsletter-go/internal/model"
	"github.com/olegiv/newsletter-go/internal/sanitize"
	"github.com/olegiv/newsletter-go/internal/store"
	"github.com/olegiv/newsletter-go/internal/util"
)

// Errors that abort a broadcast before any e-mail is sent.
var (
	ErrNewsletterNotFound   = fmt.Errorf("broadcast: newsletter %w", store.ErrNotFound)
	ErrNoRecipients         = errors.New("broadcast: no active subscribers")
	ErrTransportUnavailable = errors.New("broadcast: mail transport unavailable")
	ErrInProgress           = errors.New("broadcast: already in progress")
)

// Delivery outcomes reported to the Recorder.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// Store is the part of the database adapter the dispatcher reads.
type Store interface {
	FindNewsletterByID(ctx context.Context, id string) (*model.Newsletter, error)
	FindActiveSubscriptions(ctx context.Context) ([]model.Subscriber, error)
}

// Links produces the per-recipient unsubscribe URL.
type Links interface {
	URL(email string) string
}

// Recorder receives delivery metrics. It may be nil.
type Recorder interface {
	ObserveDelivery(outcome string, took time.Duration)
	ObserveBroadcast(total, failed int, took time.Duration)
}

// Failure is one recipient that did not receive the newsletter.
type Failure struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// Result aggregates the outcome of a broadcast.
type Result struct {
	NewsletterID string    `json:"newsletterId"`
	Total        int       `json:"total"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	Failures     []Failure `json:"failures"`
	// Cancelled is set when the broadcast was stopped before every recipient
	// was attempted.
	Cancelled    bool      `json:"cancelled"`
}

// Config holds dispatcher configuration.
type Config struct {
	Workers     int           // Number of concurrent deliveries
	SendTimeout time.Duration // Bound on a single delivery
}

// DefaultConfig returns default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Workers:     8,
		SendTimeout: 30 * time.Second,
	}
}

// Dispatcher runs broadcasts and test sends. It holds no per-broadcast state
// and is safe for concurrent use.
type Dispatcher struct {
	store     Store
	sender    mail.Sender
	links     Links
	sanitizer *sanitize.Sanitizer
	recorder  Recorder
	logger    *slog.Logger
	cfg       Config

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewDispatcher creates a dispatcher. recorder and logger may be nil.
func NewDispatcher(st Store, sender mail.Sender, links Links, recorder Recorder, logger *slog.Logger, cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		store:     st,
		sender:    sender,
		links:     links,
		sanitizer: sanitize.New(),
		recorder:  recorder,
		logger:    logger,
		cfg:       cfg,
		running:   make(map[string]context.CancelFunc),
	}
}

// Broadcast sends the newsletter to every active subscriber. Individual
// delivery failures are reported in the Result, not as an error. If ctx is
// cancelled, recipients not yet attempted are counted as failed and the
// partial Result is returned together with ctx.Err(). Cancel stops a running
// broadcast the same way. Only one broadcast per newsletter runs at a time;
// a second one fails with ErrInProgress.
func (d *Dispatcher) Broadcast(ctx context.Context, newsletterID string) (*Result, error) {
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !d.track(newsletterID, cancel) {
		return nil, ErrInProgress
	}
	defer d.untrack(newsletterID)

	n, err := d.newsletter(ctx, newsletterID)
	if err != nil {
		return nil, err
	}

	// Single snapshot: subscribers who unsubscribe after this point still
	// receive this issue.
	recipients, err := d.store.FindActiveSubscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading recipients: %w", err)
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	if err := d.verifyTransport(ctx); err != nil {
		return nil, err
	}

	content := d.sanitizer.Sanitize(n.Content)
	outcomes := make([]error, len(recipients))

	var g errgroup.Group
	g.SetLimit(d.cfg.Workers)
	for i, r := range recipients {
		if err := ctx.Err(); err != nil {
			outcomes[i] = fmt.Errorf("not attempted: %w", err)
			continue
		}
		g.Go(func() error {
			outcomes[i] = d.deliver(ctx, n, content, r.Email)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{NewsletterID: n.ID, Total: len(recipients), Failures: []Failure{}, Cancelled: ctx.Err() != nil}
	for i, err := range outcomes {
		if err == nil {
			res.Succeeded++
			continue
		}
		res.Failed++
		res.Failures = append(res.Failures, Failure{Email: recipients[i].Email, Reason: err.Error()})
	}
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].Email < res.Failures[j].Email })

	took := time.Since(start)
	if d.recorder != nil {
		d.recorder.ObserveBroadcast(res.Total, res.Failed, took)
	}
	d.logger.Info("broadcast finished",
		"newsletter_id", n.ID,
		"total", res.Total,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"duration", took,
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// Cancel stops the running broadcast of newsletterID. It reports false when
// none is running.
func (d *Dispatcher) Cancel(newsletterID string) bool {
	d.mu.Lock()
	cancel, ok := d.running[newsletterID]
	d.mu.Unlock()
	if ok {
		cancel()
		d.logger.Info("broadcast cancel requested", "newsletter_id", newsletterID)
	}
	return ok
}

func (d *Dispatcher) track(id string, cancel context.CancelFunc) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.running[id]; busy {
		return false
	}
	d.running[id] = cancel
	return true
}

func (d *Dispatcher) untrack(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.running, id)
}

// SendTest delivers the newsletter to a single address through the same
// rendering path as Broadcast.
func (d *Dispatcher) SendTest(ctx context.Context, newsletterID, email string) error {
	email = util.NormalizeEmail(email)
	if !util.IsValidEmail(email) {
		v := &model.ValidationError{}
		v.Add("email", "Please enter a valid email")
		return v
	}

	n, err := d.newsletter(ctx, newsletterID)
	if err != nil {
		return err
	}
	if err := d.verifyTransport(ctx); err != nil {
		return err
	}

	content := d.sanitizer.Sanitize(n.Content)
	if err := d.deliver(ctx, n, content, email); err != nil {
		return fmt.Errorf("sending test to %s: %w", email, err)
	}

	d.logger.Info("test newsletter sent", "newsletter_id", n.ID, "to", email)
	return nil
}

func (d *Dispatcher) newsletter(ctx context.Context, id string) (*model.Newsletter, error) {
	n, err := d.store.FindNewsletterByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading newsletter: %w", err)
	}
	if n == nil {
		return nil, ErrNewsletterNotFound
	}
	return n, nil
}

func (d *Dispatcher) verifyTransport(ctx context.Context) error {
	v, ok := d.sender.(mail.Verifier)
	if !ok {
		return nil
	}
	if err := v.Verify(ctx); err != nil {
		d.logger.Error("mail transport check failed", "error", err)
		return fmt.Errorf("%w: %v", ErrTransportUnavailable, err)
	}
	return nil
}

// deliver renders and sends the e-mail for one recipient within SendTimeout.
func (d *Dispatcher) deliver(ctx context.Context, n *model.Newsletter, content sanitize.Content, email string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("not attempted: %w", err)
	}

	msg, err := mail.RenderNewsletter(mail.NewsletterData{
		Title:          n.Title,
		Excerpt:        n.Excerpt,
		Email:          email,
		UnsubscribeURL: d.links.URL(email),
		HTML:           content.HTML,
		Text:           content.Text,
	})
	if err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	err = d.sender.Send(sendCtx, msg)
	outcome := OutcomeSent
	if err != nil {
		outcome = OutcomeFailed
		d.logger.Warn("newsletter delivery failed", "newsletter_id", n.ID, "to", email, "error", err)
	}
	if d.recorder != nil {
		d.recorder.ObserveDelivery(outcome, time.Since(start))
	}
	return err
}
