// Package config loads the server configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/teemow/mailmcp/internal/imapconn"
	"github.com/teemow/mailmcp/internal/mailbox"
	"github.com/teemow/mailmcp/internal/smtp"
)

// Environment variable names.
const (
	EnvEmailAddress       = "EMAIL_ADDRESS"
	EnvEmailPassword      = "EMAIL_PASSWORD"
	EnvIMAPServer         = "IMAP_SERVER"
	EnvIMAPPort           = "IMAP_PORT"
	EnvIMAPTLS            = "IMAP_TLS"
	EnvIMAPMaxConnections = "IMAP_MAX_CONNECTIONS"
	EnvIMAPLoginRate      = "IMAP_LOGIN_RATE"
	EnvSMTPServer         = "SMTP_SERVER"
	EnvSMTPPort           = "SMTP_PORT"
	EnvSMTPTLS            = "SMTP_TLS"
	EnvSentFolder         = "MAIL_SENT_FOLDER"
	EnvTrashFolder        = "MAIL_TRASH_FOLDER"
	EnvOperationTimeout   = "MAIL_OPERATION_TIMEOUT"
	EnvDefaultWindowDays  = "MAIL_DEFAULT_WINDOW_DAYS"
	EnvCollectionsDB      = "MAIL_COLLECTIONS_DB"
)

// Account holds the mailbox credentials shared by IMAP and SMTP.
type Account struct {
	Address  string
	Password string
}

// ServerConfig is one IMAP or SMTP endpoint.
type ServerConfig struct {
	Host     string
	Port     int
	Security string
}

// IMAPConfig adds connection limits to the IMAP endpoint.
type IMAPConfig struct {
	ServerConfig
	MaxConnections int
	LoginRate      float64
}

// SearchConfig tunes mailbox operations.
type SearchConfig struct {
	SentFolder        string
	TrashFolder       string
	OperationTimeout  time.Duration
	DefaultWindowDays int
}

// CollectionsConfig selects the collection backend. An empty DatabasePath
// keeps collections in memory.
type CollectionsConfig struct {
	DatabasePath string
}

// Config is the complete server configuration.
type Config struct {
	Account     Account
	IMAP        IMAPConfig
	SMTP        ServerConfig
	Search      SearchConfig
	Collections CollectionsConfig
}

// Load reads envFile (when it exists) and then the process environment.
// Variables already set in the environment win over the file. An empty
// envFile means ".env" in the working directory.
func Load(envFile string) (*Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault(EnvIMAPServer, "imap.gmail.com")
	v.SetDefault(EnvIMAPPort, 993)
	v.SetDefault(EnvIMAPTLS, imapconn.SecurityTLS)
	v.SetDefault(EnvIMAPMaxConnections, 10)
	v.SetDefault(EnvIMAPLoginRate, 1.0)
	v.SetDefault(EnvSMTPServer, "smtp.gmail.com")
	v.SetDefault(EnvSMTPPort, 587)
	v.SetDefault(EnvSMTPTLS, smtp.SecurityStartTLS)
	v.SetDefault(EnvOperationTimeout, "60s")
	v.SetDefault(EnvDefaultWindowDays, 0)
	for _, key := range []string{EnvEmailAddress, EnvEmailPassword, EnvSentFolder, EnvTrashFolder, EnvCollectionsDB} {
		_ = v.BindEnv(key)
	}

	timeout, err := time.ParseDuration(v.GetString(EnvOperationTimeout))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvOperationTimeout, err)
	}

	cfg := &Config{
		Account: Account{
			Address:  strings.TrimSpace(v.GetString(EnvEmailAddress)),
			Password: v.GetString(EnvEmailPassword),
		},
		IMAP: IMAPConfig{
			ServerConfig: ServerConfig{
				Host:     v.GetString(EnvIMAPServer),
				Port:     v.GetInt(EnvIMAPPort),
				Security: strings.ToLower(v.GetString(EnvIMAPTLS)),
			},
			MaxConnections: v.GetInt(EnvIMAPMaxConnections),
			LoginRate:      v.GetFloat64(EnvIMAPLoginRate),
		},
		SMTP: ServerConfig{
			Host:     v.GetString(EnvSMTPServer),
			Port:     v.GetInt(EnvSMTPPort),
			Security: strings.ToLower(v.GetString(EnvSMTPTLS)),
		},
		Search: SearchConfig{
			SentFolder:        v.GetString(EnvSentFolder),
			TrashFolder:       v.GetString(EnvTrashFolder),
			OperationTimeout:  timeout,
			DefaultWindowDays: v.GetInt(EnvDefaultWindowDays),
		},
		Collections: CollectionsConfig{
			DatabasePath: v.GetString(EnvCollectionsDB),
		},
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Account.Address == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvEmailAddress))
	}
	if c.Account.Password == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvEmailPassword))
	}
	if err := c.IMAPConnection().Validate(); err != nil && c.Account.Address != "" && c.Account.Password != "" {
		errs = append(errs, err)
	}
	if err := c.SMTPConnection().Validate(); err != nil && c.Account.Address != "" {
		errs = append(errs, err)
	}
	if c.IMAP.MaxConnections < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", EnvIMAPMaxConnections))
	}
	if c.IMAP.LoginRate < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative", EnvIMAPLoginRate))
	}
	if c.Search.OperationTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", EnvOperationTimeout))
	}
	if c.Search.DefaultWindowDays < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative", EnvDefaultWindowDays))
	}
	return errors.Join(errs...)
}

// IMAPConnection returns the settings for the IMAP connection provider.
func (c *Config) IMAPConnection() imapconn.Config {
	return imapconn.Config{
		Host:           c.IMAP.Host,
		Port:           c.IMAP.Port,
		Security:       c.IMAP.Security,
		Username:       c.Account.Address,
		Password:       c.Account.Password,
		MaxConnections: c.IMAP.MaxConnections,
		LoginRate:      c.IMAP.LoginRate,
		CommandTimeout: c.Search.OperationTimeout,
	}
}

// SMTPConnection returns the settings for the SMTP sender.
func (c *Config) SMTPConnection() smtp.Config {
	return smtp.Config{
		Host:     c.SMTP.Host,
		Port:     c.SMTP.Port,
		Security: c.SMTP.Security,
		Username: c.Account.Address,
		Password: c.Account.Password,
		From:     c.Account.Address,
		Timeout:  c.Search.OperationTimeout,
	}
}

// MailboxOptions returns the mailbox client options. Logger and Recorder are
// left for the caller.
func (c *Config) MailboxOptions() mailbox.Options {
	return mailbox.Options{
		Folders: mailbox.FolderNames{
			Sent:  c.Search.SentFolder,
			Trash: c.Search.TrashFolder,
		},
		Timeout:           c.Search.OperationTimeout,
		DefaultWindowDays: c.Search.DefaultWindowDays,
	}
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing default .env is not an error; a missing
// explicit path is.
func loadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
