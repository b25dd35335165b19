package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/jetstack/securechannel/internal/envelope"
	"github.com/jetstack/securechannel/internal/securechannel"
)

// Exchanger pairs a Channel with a Sender and runs one request/response
// exchange at a time, so the Channel's single session key always belongs to
// the response being decrypted.
type Exchanger struct {
	mu      sync.Mutex
	channel *securechannel.Channel
	sender  Sender
}

func NewExchanger(channel *securechannel.Channel, sender Sender) *Exchanger {
	return &Exchanger{
		channel: channel,
		sender:  sender,
	}
}

// Exchange encrypts payload, sends it and decrypts the response into out.
func (e *Exchanger) Exchange(ctx context.Context, payload any, kind envelope.DataKind, out any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	req, err := e.channel.EncryptRequest(ctx, payload, kind)
	if err != nil {
		return err
	}

	resp, err := e.sender.Send(ctx, req)
	if err != nil {
		return err
	}

	if resp.MessageID != req.MessageID {
		return fmt.Errorf("%w: response message id %q does not match request %q", envelope.ErrInvalidEnvelope, resp.MessageID, req.MessageID)
	}

	return e.channel.DecryptResponse(ctx, resp, out)
}
