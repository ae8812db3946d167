package database

import (
	"net/url"
	"strings"
)

type DBConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// Complete reports whether every field needed to dial is set.
func (c DBConfig) Complete() bool {
	return c.User != "" && c.Host != "" && c.Port != "" && c.DBName != ""
}

// TargetDSN builds a URL-encoded postgres DSN.
func (c DBConfig) TargetDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.DBName,
	}
	sslmode := strings.TrimSpace(c.SSLMode)
	if sslmode == "" {
		sslmode = "disable"
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}
