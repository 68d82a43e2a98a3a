package notify

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

type PubNubConfig struct {
	PublishKey   string
	SubscribeKey string
	SecretKey    string
	UserID       string
}

func NewPubNubClient(cfg PubNubConfig) *pubnub.PubNub {
	userID := cfg.UserID
	if userID == "" {
		userID = "ticket-gate-server"
	}
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(userID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey
	return pubnub.NewPubNub(pnConfig)
}

type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{pn: pn}
}

func (p *PubNubPublisher) Publish(ctx context.Context, channel string, msg Message) error {
	_, st, err := p.pn.PublishWithContext(ctx).
		Channel(channel).
		Message(map[string]any(msg)).
		Execute()
	if err != nil {
		return fmt.Errorf("notify: pubnub publish to %s (status %d): %w", channel, st.StatusCode, err)
	}
	return nil
}

// Subscribe delivers every message on channel to handle until ctx is done.
// Each message is handled on its own goroutine.
func Subscribe(ctx context.Context, pn *pubnub.PubNub, channel string, handle func(ctx context.Context, payload any)) {
	listener := pubnub.NewListener()
	pn.AddListener(listener)
	pn.Subscribe().
		Channels([]string{channel}).
		Execute()

	defer func() {
		pn.Unsubscribe().Channels([]string{channel}).Execute()
		pn.RemoveListener(listener)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message := <-listener.Message:
			if message == nil {
				continue
			}
			go handle(ctx, message.Message)
		case <-listener.Status:
		case <-listener.Presence:
		}
	}
}
