// Package notify delivers account verification notices. Registration
// publishes a notice onto the message queue and a separately running
// consumer hands it to a Sender.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rollcall/apiserver/internal/logging"
	"github.com/rollcall/apiserver/internal/mq"
	"github.com/rollcall/apiserver/types"
)

const (
	attrType          = "type"
	noticeType        = "verification"
	noticeContentType = "application/json"
)

// VerificationNotice is the payload published for a new registration.
type VerificationNotice struct {
	Username string    `json:"username"`
	Email    string    `json:"email"`
	Link     string    `json:"link"`
	IssuedAt time.Time `json:"issued_at"`
}

// VerificationLink joins baseURL and the escaped token.
func VerificationLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/" + url.PathEscape(token)
}

// Publisher publishes verification notices to a queue channel.
type Publisher struct {
	queue   *mq.MQ
	channel string
	baseURL string
	now     func() time.Time
}

func NewPublisher(queue *mq.MQ, channel, baseURL string) *Publisher {
	return &Publisher{queue: queue, channel: channel, baseURL: baseURL, now: time.Now}
}

// NotifyVerification publishes a notice carrying the verification link for user.
func (p *Publisher) NotifyVerification(ctx context.Context, user types.User, token string) error {
	notice := VerificationNotice{
		Username: user.Username,
		Email:    user.Email,
		Link:     VerificationLink(p.baseURL, token),
		IssuedAt: p.now().UTC(),
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}
	_, err = p.queue.Publish(ctx, p.channel, data, map[string]string{
		attrType:           noticeType,
		mq.AttrContentType: noticeContentType,
	})
	if err != nil {
		return fmt.Errorf("publish verification notice: %w", err)
	}
	return nil
}

// LogNotifier is used when no queue is configured. It records that a notice
// was due without delivering it.
type LogNotifier struct {
	log     logging.Logger
	baseURL string
}

func NewLogNotifier(log logging.Logger, baseURL string) *LogNotifier {
	return &LogNotifier{log: log, baseURL: baseURL}
}

func (n *LogNotifier) NotifyVerification(ctx context.Context, user types.User, token string) error {
	n.log.Info(ctx, "verification notice not delivered, no queue configured", "username", user.Username)
	n.log.Debug(ctx, "verification link", "username", user.Username, "link", VerificationLink(n.baseURL, token))
	return nil
}

// Sender delivers a notice to its recipient.
type Sender interface {
	Send(ctx context.Context, notice VerificationNotice) error
}

// LogSender writes notices to the log. It stands in for an email gateway.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, notice VerificationNotice) error {
	s.log.Info(ctx, "verification notice",
		"username", notice.Username,
		"email", notice.Email,
		"link", notice.Link,
	)
	return nil
}

// Consumer reads verification notices from a queue and hands them to a Sender.
type Consumer struct {
	queue   *mq.MQ
	channel string
	sender  Sender
	log     logging.Logger
}

func NewConsumer(queue *mq.MQ, channel string, sender Sender, log logging.Logger) *Consumer {
	return &Consumer{queue: queue, channel: channel, sender: sender, log: log.With("component", "notify")}
}

// Run blocks until ctx is done or the subscription fails.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info(ctx, "consuming verification notices", "channel", c.channel)
	err := c.queue.Subscribe(ctx, c.channel, c.Handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Handle processes one message. Undecodable messages are acknowledged and
// dropped. Send failures are returned for redelivery.
func (c *Consumer) Handle(ctx context.Context, msg mq.Message) error {
	if t, ok := msg.Attributes[attrType]; ok && t != noticeType {
		c.log.Warn(ctx, "skipping message of unknown type", "id", msg.ID, "type", t)
		return nil
	}

	var notice VerificationNotice
	if err := json.Unmarshal(msg.Data, &notice); err != nil || notice.Username == "" || notice.Link == "" {
		c.log.Error(ctx, "dropping malformed verification notice", "id", msg.ID, "error", err)
		return nil
	}

	if err := c.sender.Send(ctx, notice); err != nil {
		c.log.Warn(ctx, "verification notice delivery failed", "id", msg.ID, "username", notice.Username, "error", err)
		return err
	}
	return nil
}
