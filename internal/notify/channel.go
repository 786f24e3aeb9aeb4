package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/wolfman30/wellbeing-safety-engine/internal/queue"
	"github.com/wolfman30/wellbeing-safety-engine/internal/risk"
)

// Channel delivers a payload to one recipient audience.
type Channel interface {
	Notify(ctx context.Context, userID string, p Payload) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, userID string, p Payload) error

func (f ChannelFunc) Notify(ctx context.Context, userID string, p Payload) error {
	return f(ctx, userID, p)
}

// EmailChannel renders the payload as an email to a fixed address.
type EmailChannel struct {
	sender EmailSender
	to     string
	toName string
}

func NewEmailChannel(sender EmailSender, to, toName string) *EmailChannel {
	return &EmailChannel{sender: sender, to: to, toName: toName}
}

func (c *EmailChannel) Notify(ctx context.Context, _ string, p Payload) error {
	if c.sender == nil || c.to == "" {
		return fmt.Errorf("notify: email channel not configured")
	}
	return c.sender.Send(ctx, EmailMessage{
		To:       c.to,
		ToName:   c.toName,
		Subject:  p.Subject(),
		Body:     p.Text(),
		Category: string(p.RiskLevel),
	})
}

// QueueMessage is the JSON body published by QueueChannel.
type QueueMessage struct {
	Recipient risk.RecipientKind `json:"recipient"`
	Payload   Payload            `json:"payload"`
}

// QueueChannel publishes the payload for a paging consumer, e.g. the crisis team
// on-call integration.
type QueueChannel struct {
	sender    queue.Sender
	recipient risk.RecipientKind
}

func NewQueueChannel(sender queue.Sender, recipient risk.RecipientKind) *QueueChannel {
	return &QueueChannel{sender: sender, recipient: recipient}
}

func (c *QueueChannel) Notify(ctx context.Context, _ string, p Payload) error {
	if c.sender == nil {
		return fmt.Errorf("notify: queue channel not configured")
	}
	body, err := json.Marshal(QueueMessage{Recipient: c.recipient, Payload: p})
	if err != nil {
		return fmt.Errorf("notify: encode queue message: %w", err)
	}
	return c.sender.Send(ctx, string(body), map[string]string{
		"recipient":  string(c.recipient),
		"risk_level": string(p.RiskLevel),
	})
}

// RateLimitedChannel waits on a token bucket before delegating.
type RateLimitedChannel struct {
	next    Channel
	limiter *rate.Limiter
}

// NewRateLimitedChannel allows perSecond sends with the given burst.
func NewRateLimitedChannel(next Channel, perSecond float64, burst int) *RateLimitedChannel {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedChannel{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (c *RateLimitedChannel) Notify(ctx context.Context, userID string, p Payload) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: rate limit wait: %w", err)
	}
	return c.next.Notify(ctx, userID, p)
}
