package backend

import (
	"errors"
	"fmt"
	"strings"

	"pocketmoney/internal/config"
)

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

var backendTypes = []BackendType{MemoryBackend, SQLiteBackend, PostgresBackend}

func (bt BackendType) String() string { return string(bt) }

// ParseBackendType accepts a backend name in any case.
func ParseBackendType(s string) (BackendType, error) {
	bt := BackendType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range backendTypes {
		if bt == known {
			return bt, nil
		}
	}
	return "", fmt.Errorf("unknown backend %q (want one of %s)", s, strings.Join(BackendTypes(), ", "))
}

// BackendTypes lists the accepted DATA_BACKEND values.
func BackendTypes() []string {
	out := make([]string, len(backendTypes))
	for i, t := range backendTypes {
		out[i] = string(t)
	}
	return out
}

// FromAppConfig picks the backend settings out of the process config.
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}
	bt, err := ParseBackendType(appConfig.DataBackend)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Type:         bt,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate reports every missing setting for the chosen backend at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Type {
	case MemoryBackend:
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			errs = append(errs, errors.New("sqlite backend needs a database path"))
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres backend needs a database URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Type))
	}
	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		errs = append(errs, errors.New("ledger events need both an exchange and a queue name"))
	}
	return errors.Join(errs...)
}
