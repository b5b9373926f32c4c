package imap

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxelev/internal/config"
)

func TestNewConnectorRequiresCredentials(t *testing.T) {
	_, err := NewConnector(config.Config{IMAPHost: "imap.example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAP_USER")

	c, err := NewConnector(config.Config{IMAPHost: "imap.example.com", IMAPPort: 993, IMAPSecure: true, IMAPUser: "u", IMAPPassword: "p"})
	require.NoError(t, err)
	assert.Equal(t, "imap.example.com:993", c.addr)
	assert.True(t, c.secure)
}

func TestFormatAddresses(t *testing.T) {
	got := formatAddresses([]*imap.Address{
		{PersonalName: "Field Team", MailboxName: "field", HostName: "example.com"},
		nil,
		{MailboxName: "herbarium", HostName: "example.org"},
	})
	assert.Equal(t, "Field Team <field@example.com>, herbarium@example.org", got)
}
