package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const rawMail = "From: =?UTF-8?Q?J=C3=BCrg?= <jurg@example.com>\r\n" +
	"Subject: =?UTF-8?Q?Flora_Gr=C3=BCnalp?=\r\n" +
	"Message-ID: <g1@example.com>\r\n" +
	"Date: Mon, 02 Mar 2026 10:00:00 +0000\r\n" +
	"\r\n" +
	"Genus alpha Author 1200 m\r\n"

func TestInboundFromRawDecodesHeaders(t *testing.T) {
	msg := inboundFromRaw("18c2f", 0, []byte(rawMail))
	assert.Equal(t, "gmail", msg.Provider)
	assert.Equal(t, "<g1@example.com>", msg.MessageID)
	assert.Equal(t, "Flora Grünalp", msg.Subject)
	assert.Equal(t, "Jürg <jurg@example.com>", msg.From)
	assert.Equal(t, "2026-03-02T10:00:00Z", msg.ReceivedAt)
}

func TestInboundFromRawPrefersInternalDate(t *testing.T) {
	internalDate := time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC)
	msg := inboundFromRaw("18c2f", internalDate.UnixMilli(), []byte(rawMail))
	assert.Equal(t, "2026-03-03T08:00:00Z", msg.ReceivedAt)
}

func TestInboundFromRawWithoutHeaders(t *testing.T) {
	msg := inboundFromRaw("18c2f", 0, []byte("not a mail"))
	assert.Equal(t, "gmail-18c2f", msg.MessageID)
	assert.Empty(t, msg.Subject)
}

func TestDecodeBase64URL(t *testing.T) {
	payload := []byte("Subject: ü?\r\n\r\n>>>")
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding} {
		got, err := decodeBase64URL(enc.EncodeToString(payload))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}

	_, err := decodeBase64URL("!!")
	require.Error(t, err)
}

func TestInboundFromRawMultipartWithoutDate(t *testing.T) {
	raw := "Subject: Flora survey\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/mixed; boundary=\"B\"\r\n" +
		"\r\n" +
		"--B\r\nContent-Type: text/plain\r\n\r\nsee attachment\r\n--B--\r\n"

	before := time.Now().Add(-time.Second).UTC()
	msg := inboundFromRaw("18c30", 0, []byte(raw))
	assert.Equal(t, "gmail-18c30", msg.MessageID)
	assert.Equal(t, "Flora survey", msg.Subject)
	received, err := time.Parse(time.RFC3339, msg.ReceivedAt)
	require.NoError(t, err)
	assert.False(t, received.Before(before.Truncate(time.Second)))
}
