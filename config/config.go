package config

import (
	"errors"
	"flag"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Host             string        `env:"STEPFORM_HOST" envDefault:"0.0.0.0"`
	Port             uint          `env:"STEPFORM_PORT" envDefault:"80"`
	DBUrl            string        `env:"STEPFORM_DB_URL" envDefault:"stepform.sqlite"`
	TokenSecret      string        `env:"STEPFORM_TOKEN_SECRET"`
	TokenTTL         time.Duration `env:"STEPFORM_TOKEN_TTL" envDefault:"120s"`
	RespondentSecret string        `env:"STEPFORM_RESPONDENT_SECRET"`
	Debug            bool          `env:"STEPFORM_DEBUG"`

	Addr string `env:"-"`
}

// Parse reads the environment first, then lets command line flags override.
func Parse() (cfg Config, err error) {
	cfg, err = env.ParseAs[Config]()
	if err != nil {
		return
	}

	flag.StringVar(&cfg.Host, "host", cfg.Host, "listen host name")
	flag.UintVar(&cfg.Port, "port", cfg.Port, "listen port number")
	flag.StringVar(&cfg.DBUrl, "db-url", cfg.DBUrl, "path to SQLite3 DB file")
	flag.StringVar(&cfg.TokenSecret, "token-secret", cfg.TokenSecret, "secret key for admin token encryption and decryption")
	flag.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "admin token TTL")
	flag.StringVar(&cfg.RespondentSecret, "respondent-secret", cfg.RespondentSecret, "secret key for respondent token signatures")
	flag.BoolVar(&cfg.Debug, "debug", cfg.Debug, "log at DEBUG level")
	flag.Parse()

	cfg.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(int(cfg.Port)))

	if cfg.TokenSecret == "" {
		err = errors.New("missing parameter -token-secret")
		return
	}
	if cfg.RespondentSecret == "" {
		cfg.RespondentSecret = cfg.TokenSecret
	}

	return
}

func (cfg Config) Url() (url string) {
	url = cfg.Addr
	url = regexp.MustCompile(`^0.0.0.0`).ReplaceAllString(url, "localhost")
	url = "http://" + url
	return
}
