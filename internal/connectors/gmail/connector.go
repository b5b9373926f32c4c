package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"taxelev/internal"
	"taxelev/internal/config"
	"taxelev/internal/connectors"
)

const provider = "gmail"

type Connector struct {
	service *gmail.Service
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	for _, req := range [][2]string{
		{"GMAIL_CLIENT_ID", cfg.GmailClientID},
		{"GMAIL_CLIENT_SECRET", cfg.GmailClientSecret},
		{"GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken},
	} {
		if err := cfg.Require(req[0], req[1]); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc}, nil
}

// FetchInbox lists the newest max messages carrying label and downloads
// each one in raw RFC 822 form.
func (c *Connector) FetchInbox(label string, max int) ([]internal.InboundMessage, error) {
	listResp, err := c.service.Users.Messages.List("me").LabelIds(label).MaxResults(int64(max)).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list %q: %w", label, err)
	}

	out := make([]internal.InboundMessage, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		if ref.Id == "" {
			continue
		}

		resp, err := c.service.Users.Messages.Get("me", ref.Id).Format("raw").Do()
		if err != nil {
			return nil, fmt.Errorf("gmail get %s: %w", ref.Id, err)
		}
		if resp.Raw == "" {
			continue
		}
		raw, err := decodeBase64URL(resp.Raw)
		if err != nil {
			return nil, err
		}

		out = append(out, inboundFromRaw(ref.Id, resp.InternalDate, raw))
	}

	return out, nil
}

// inboundFromRaw reads the headers from the raw message itself, so a single
// request per message is enough. Gmail's internal date wins over Date.
func inboundFromRaw(id string, internalDateMs int64, raw []byte) internal.InboundMessage {
	var messageID, subject, from string
	var received time.Time
	if env, err := enmime.ReadEnvelope(bytes.NewReader(raw)); err == nil {
		messageID = env.GetHeader("Message-ID")
		subject = env.GetHeader("Subject")
		from = env.GetHeader("From")
		if t, err := env.Date(); err == nil {
			received = t
		}
	}
	if internalDateMs > 0 {
		received = time.UnixMilli(internalDateMs)
	}
	return connectors.NewInbound(provider, messageID, id, subject, from, received, raw)
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}
