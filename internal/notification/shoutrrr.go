package notification

import (
	"context"
	"errors"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/router"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// ShoutrrrForwarder pushes rendered notifications to external services
// (ntfy, telegram, email, ...) through shoutrrr URLs. Delivery failures are
// reported to the dispatcher, which logs them; they never block display.
type ShoutrrrForwarder struct {
	sender *router.ServiceRouter
}

// NewShoutrrrForwarder builds a forwarder for the given shoutrrr URLs.
func NewShoutrrrForwarder(urls []string) (*ShoutrrrForwarder, error) {
	if len(urls) == 0 {
		return nil, errors.New("no notifier URLs configured")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, err
	}
	return &ShoutrrrForwarder{sender: sender}, nil
}

// Send implements Forwarder.
func (f *ShoutrrrForwarder) Send(_ context.Context, n *Notification) error {
	params := &types.Params{"title": n.Title}
	return errors.Join(f.sender.Send(n.Body, params)...)
}
