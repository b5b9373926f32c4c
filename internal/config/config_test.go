package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxelev/internal"
)

func TestLoadDefaultsAndOverrides(t *testing.T) {
	t.Setenv("LISTENER_INTERVAL_SEC", "15")
	t.Setenv("LISTENER_FETCH_MAX", "not-a-number")
	t.Setenv("LISTENER_AUTO_EXPORT", "off")
	t.Setenv("CSV_SEPARATOR", ",")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.ListenerIntervalSec)
	assert.Equal(t, 20, cfg.ListenerFetchMax)
	assert.False(t, cfg.ListenerAutoExport)
	assert.Equal(t, ",", cfg.CSVSeparator)
	assert.Equal(t, 993, cfg.IMAPPort)
}

func TestRequire(t *testing.T) {
	cfg := Config{}
	assert.NoError(t, cfg.Require("IMAP_HOST", "mail.example.com"))
	err := cfg.Require("IMAP_HOST", "  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMAP_HOST")
}

func TestDefaultOptions(t *testing.T) {
	cfg := Config{DefaultUnit: "ft", DefaultCase: "U", DefaultDigits: "3, 4"}
	opts, err := cfg.DefaultOptions()
	require.NoError(t, err)
	assert.Equal(t, internal.UnitFeet, opts.Unit)
	assert.Equal(t, internal.CaseUpper, opts.Case)
	require.NotNil(t, opts.Digits)
	assert.Equal(t, internal.DigitRange{Min: 3, Max: 4}, *opts.Digits)

	opts, err = Config{}.DefaultOptions()
	require.NoError(t, err)
	assert.Equal(t, internal.UnitMeter, opts.Unit)
	assert.Nil(t, opts.Digits)
}

func TestDefaultOptionsRejectsBadValues(t *testing.T) {
	_, err := Config{DefaultDigits: "3"}.DefaultOptions()
	assert.ErrorIs(t, err, internal.ErrInvalidDigitRange)

	_, err = Config{DefaultDigits: "3,x"}.DefaultOptions()
	assert.ErrorIs(t, err, internal.ErrInvalidDigitRange)

	_, err = Config{DefaultUnit: "km"}.DefaultOptions()
	assert.ErrorIs(t, err, internal.ErrInvalidUnit)

	_, err = Config{DefaultCase: "x"}.DefaultOptions()
	assert.ErrorIs(t, err, internal.ErrInvalidCase)
}
