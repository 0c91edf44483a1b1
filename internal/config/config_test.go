package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allKeys = []string{
	EnvEmailAddress, EnvEmailPassword,
	EnvIMAPServer, EnvIMAPPort, EnvIMAPTLS, EnvIMAPMaxConnections, EnvIMAPLoginRate,
	EnvSMTPServer, EnvSMTPPort, EnvSMTPTLS,
	EnvSentFolder, EnvTrashFolder, EnvOperationTimeout, EnvDefaultWindowDays, EnvCollectionsDB,
}

// clearEnv unsets every variable for the test and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range allKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Chdir(t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEmailAddress, "me@example.com")
	t.Setenv(EnvEmailPassword, "secret")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "imap.gmail.com", cfg.IMAP.Host)
	assert.Equal(t, 993, cfg.IMAP.Port)
	assert.Equal(t, "tls", cfg.IMAP.Security)
	assert.Equal(t, 10, cfg.IMAP.MaxConnections)
	assert.Equal(t, 1.0, cfg.IMAP.LoginRate)
	assert.Equal(t, "smtp.gmail.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "starttls", cfg.SMTP.Security)
	assert.Equal(t, 60*time.Second, cfg.Search.OperationTimeout)
	assert.Zero(t, cfg.Search.DefaultWindowDays)
	assert.Empty(t, cfg.Collections.DatabasePath)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvEmailAddress, "me@example.com")
	t.Setenv(EnvEmailPassword, "secret")
	t.Setenv(EnvIMAPServer, "127.0.0.1")
	t.Setenv(EnvIMAPPort, "1143")
	t.Setenv(EnvIMAPTLS, "NONE")
	t.Setenv(EnvIMAPLoginRate, "0.5")
	t.Setenv(EnvSentFolder, "Sent Items")
	t.Setenv(EnvOperationTimeout, "15s")
	t.Setenv(EnvDefaultWindowDays, "30")
	t.Setenv(EnvCollectionsDB, "/var/lib/mailmcp/collections.db")

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	imap := cfg.IMAPConnection()
	assert.Equal(t, "127.0.0.1:1143", imap.Address())
	assert.Equal(t, "none", imap.Security)
	assert.Equal(t, "me@example.com", imap.Username)
	assert.Equal(t, 0.5, imap.LoginRate)
	assert.Equal(t, 15*time.Second, imap.CommandTimeout)

	opts := cfg.MailboxOptions()
	assert.Equal(t, "Sent Items", opts.Folders.Sent)
	assert.Equal(t, 15*time.Second, opts.Timeout)
	assert.Equal(t, 30, opts.DefaultWindowDays)

	smtp := cfg.SMTPConnection()
	assert.Equal(t, "me@example.com", smtp.From)
	assert.Equal(t, "/var/lib/mailmcp/collections.db", cfg.Collections.DatabasePath)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	t.Cleanup(func() {
		_ = os.Unsetenv(EnvEmailAddress)
		_ = os.Unsetenv(EnvEmailPassword)
		_ = os.Unsetenv(EnvIMAPPort)
	})
	t.Setenv(EnvIMAPPort, "2993")

	path := filepath.Join(t.TempDir(), "mail.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"EMAIL_ADDRESS=file@example.com\nEMAIL_PASSWORD=from-file\nIMAP_PORT=1993\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "file@example.com", cfg.Account.Address)
	assert.Equal(t, "from-file", cfg.Account.Password)
	assert.Equal(t, 2993, cfg.IMAP.Port, "environment wins over the file")
}

func TestLoad_MissingExplicitEnvFile(t *testing.T) {
	clearEnv(t)
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "absent.env")
}

func TestLoad_BadTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOperationTimeout, "soon")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvOperationTimeout)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.IMAP.MaxConnections = 0
	cfg.Search.DefaultWindowDays = -1
	err = cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{EnvEmailAddress, EnvEmailPassword, EnvIMAPMaxConnections, EnvDefaultWindowDays} {
		assert.Contains(t, err.Error(), want)
	}

	cfg.Account = Account{Address: "me@example.com", Password: "secret"}
	cfg.IMAP.MaxConnections = 1
	cfg.Search.DefaultWindowDays = 0
	cfg.IMAP.Security = "ssl"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid imap security")
}
