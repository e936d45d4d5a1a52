package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type (
	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          int
		Name          string // database name, or file path for sqlite
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
		DisableReqLogs  bool
	}

	AuthConfig struct {
		SecretKey                 string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		AdminUsername             string
		AdminPasswordHash         string
	}

	AnalyticsConfig struct {
		RefreshInterval time.Duration // 0 disables the periodic refresher
		LockFile        string
	}

	MailConfig struct {
		SendgridApiKey   string
		DefaultFromEmail mail.Address
		DigestRecipients []mail.Address
	}

	// ActionConfig is an administrator-defined entry of the action registry.
	ActionConfig struct {
		Key      string          `mapstructure:"key"`
		Name     string          `mapstructure:"name"`
		Model    string          `mapstructure:"res_model"`
		ViewMode string          `mapstructure:"view_mode"`
		Target   string          `mapstructure:"target"`
		Domain   [][]interface{} `mapstructure:"domain"`
	}

	Config struct {
		AppName      string
		Build        string
		Env          string // DEV (local; default), TEST, QA, PROD
		Debug        bool
		TestMode     bool
		WorkDir      string
		RollbarToken string

		Server    ServerConfig
		Database  DatabaseConfig
		Auth      AuthConfig
		Analytics AnalyticsConfig
		Mail      MailConfig
		Actions   []ActionConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig loads the configuration and exits the program on failure.
func NewConfig() *Config {
	conf, err := LoadConfig()
	if err != nil {
		log.Fatalf("config: %+v", err)
	}
	return conf
}

// LoadConfig reads defaults, the optional `config/.env.<env>` file, the optional `flowboard.*` config file
// and finally the environment (prefixed with the env name, e.g. DEV_DATABASE_ENGINE).
func LoadConfig() (*Config, error) {
	v := viper.New()
	wd := Getwd()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Flowboard")
	v.SetDefault("build", "develop")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "flowboard.db")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("auth.secretKey", "w7d2-x9^f!kq0_3v(o+4uz$r8gl%c=1jh6*pe5ma@tb")
	v.SetDefault("auth.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("auth.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("auth.adminUsername", "admin")
	v.SetDefault("auth.adminPasswordHash", "")

	v.SetDefault("analytics.refreshInterval", time.Duration(0))
	v.SetDefault("analytics.lockFile", filepath.Join(os.TempDir(), "flowboard-analytics.lock"))

	v.SetDefault("mail.sendgridApiKey", "")
	v.SetDefault("mail.defaultFromEmail", "Flowboard <noreply@localhost>")
	v.SetDefault("mail.digestRecipients", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			return nil, errors.Wrapf(err, "loading %s", dotEnvPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking %s", dotEnvPath)
	}
	v.AutomaticEnv()

	v.SetConfigName("flowboard")
	v.AddConfigPath(wd)
	v.AddConfigPath(filepath.Join(wd, "config"))
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "reading config file")
		}
	}

	conf := &Config{
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		WorkDir:      wd,
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        CleanString(v.GetString("database.engine"), true /* lower */),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Auth: AuthConfig{
			SecretKey:                 v.GetString("auth.secretKey"),
			JWTExpirationDelta:        v.GetDuration("auth.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("auth.jwtRefreshExpirationDelta"),
			AdminUsername:             CleanString(v.GetString("auth.adminUsername"), true /* lower */),
			AdminPasswordHash:         v.GetString("auth.adminPasswordHash"),
		},
		Analytics: AnalyticsConfig{
			RefreshInterval: v.GetDuration("analytics.refreshInterval"),
			LockFile:        v.GetString("analytics.lockFile"),
		},
		Mail: MailConfig{
			SendgridApiKey: v.GetString("mail.sendgridApiKey"),
		},
	}

	from, err := mail.ParseAddress(v.GetString("mail.defaultFromEmail"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing mail.defaultFromEmail")
	}
	conf.Mail.DefaultFromEmail = *from

	if rcpts := CleanString(v.GetString("mail.digestRecipients")); rcpts != "" {
		addrs, err := mail.ParseAddressList(rcpts)
		if err != nil {
			return nil, errors.Wrap(err, "parsing mail.digestRecipients")
		}
		for _, a := range addrs {
			conf.Mail.DigestRecipients = append(conf.Mail.DigestRecipients, *a)
		}
	}

	if err = v.UnmarshalKey("actions", &conf.Actions); err != nil {
		return nil, errors.Wrap(err, "decoding actions")
	}

	switch conf.Database.Engine {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported database engine %q", conf.Database.Engine)
	}
	return conf, nil
}
