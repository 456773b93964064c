package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/jsgian/go-wishes/internal/config"
	"github.com/jsgian/go-wishes/internal/render"
	"golang.org/x/time/rate"
)

// API is the two-phase messaging protocol. *Client implements it.
type API interface {
	UploadMedia(ctx context.Context, data []byte, mimeType, filename string) (string, error)
	SendImage(ctx context.Context, to, mediaID, caption string) (string, error)
}

// Sender delivers artifacts over an API with pacing and bounded retries.
// It is meant to be used by one dispatch loop at a time.
type Sender struct {
	api         API
	limiter     *rate.Limiter
	attempts    int
	backoffBase time.Duration
	backoffMax  time.Duration

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSender wires an API with the pacing and retry policy from settings.
// A zero MinDelay disables pacing.
func NewSender(api API, cfg config.WhatsAppSettings) *Sender {
	limit := rate.Inf
	if cfg.MinDelay > 0 {
		limit = rate.Every(cfg.MinDelay)
	}
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Sender{
		api:         api,
		limiter:     rate.NewLimiter(limit, 1),
		attempts:    attempts,
		backoffBase: cfg.BackoffBase,
		backoffMax:  cfg.BackoffMax,
		sleep:       sleepCtx,
	}
}

// Send uploads the artifact image, then sends it with its caption to phone.
// It returns the provider message id. Failures are *SendError; transient ones
// have already been retried when they surface here.
func (s *Sender) Send(ctx context.Context, phone string, art *render.Artifact) (string, error) {
	if phone == "" {
		return "", &SendError{Kind: Fatal, Reason: ReasonRecipient, Op: OpSend, Message: config.ErrPhoneMissing}
	}
	if len(art.Image) > config.MaxMediaBytes {
		return "", &SendError{Kind: Fatal, Reason: ReasonMedia, Op: OpUpload,
			Message: fmt.Sprintf("%d bytes exceeds %d", len(art.Image), config.MaxMediaBytes)}
	}

	filename := render.OutputName(art.MemberID, art.Kind)

	var mediaID string
	err := s.retry(ctx, OpUpload, art, func(ctx context.Context) error {
		var err error
		mediaID, err = s.api.UploadMedia(ctx, art.Image, art.MIME, filename)
		return err
	})
	if err != nil {
		return "", err
	}

	var messageID string
	err = s.retry(ctx, OpSend, art, func(ctx context.Context) error {
		var err error
		messageID, err = s.api.SendImage(ctx, phone, mediaID, art.Caption)
		return err
	})
	if err != nil {
		return "", err
	}

	slog.Info(config.MsgSent,
		config.LogKeyComponent, config.CompChannel,
		config.LogKeyMemberID, art.MemberID,
		config.LogKeyKind, string(art.Kind),
		config.LogKeyMediaID, mediaID,
		config.LogKeyMessageID, messageID,
	)
	return messageID, nil
}

// retry runs call until it succeeds, fails fatally or the attempts run out.
// Every call, retries included, first waits for the pacing limiter. A wait cut
// short by ctx returns the last transient error, so the caller can resend later.
func (s *Sender) retry(ctx context.Context, op string, art *render.Artifact, call func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if werr := s.limiter.Wait(ctx); werr != nil {
			if err != nil {
				return err
			}
			return &SendError{Kind: Transient, Reason: ReasonNetwork, Op: op, Err: werr}
		}

		err = call(ctx)
		if err == nil {
			return nil
		}

		var se *SendError
		if !errors.As(err, &se) {
			// Unclassified errors from a custom API are treated as network faults.
			se = &SendError{Kind: Transient, Reason: ReasonNetwork, Op: op, Err: err}
			err = se
		}
		if se.Kind != Transient || attempt == s.attempts {
			return err
		}

		delay := s.backoff(attempt)
		if se.RetryAfter > delay {
			delay = min(se.RetryAfter, s.retryAfterCap())
		}
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
			return err
		}
		slog.Warn(config.MsgRetrying,
			config.LogKeyComponent, config.CompChannel,
			config.LogKeyMemberID, art.MemberID,
			config.LogKeyKind, string(art.Kind),
			config.LogKeyAttempt, attempt,
			config.LogKeyBackoff, delay.String(),
			config.LogKeyError, err,
		)
		if s.sleep(ctx, delay) != nil {
			return err
		}
	}
	return err
}

// backoff returns base * 2^(attempt-1) capped at max, with equal jitter.
func (s *Sender) backoff(attempt int) time.Duration {
	if s.backoffBase <= 0 {
		return 0
	}
	d := s.backoffBase << (attempt - 1)
	if d <= 0 || (s.backoffMax > 0 && d > s.backoffMax) {
		d = s.backoffMax
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half)
}

// retryAfterCap bounds a server-requested wait; without a configured maximum
// the provider's value is used as is.
func (s *Sender) retryAfterCap() time.Duration {
	if s.backoffMax <= 0 {
		return math.MaxInt64
	}
	return s.backoffMax
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
