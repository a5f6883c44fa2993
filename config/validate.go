package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if strings.TrimSpace(c.Tokens.Secret) == "" {
		return errors.New("tokens.secret is empty")
	}
	if strings.TrimSpace(c.GRPC.ServiceToken) == "" {
		return errors.New("grpc.service_token is empty")
	}
	if c.Tokens.AccessTTL <= 0 || c.Tokens.RefreshTTL <= 0 {
		return errors.New("token ttls must be positive")
	}
	if c.Tokens.RefreshTTL < c.Tokens.AccessTTL {
		return errors.New("tokens.refresh_ttl must not be shorter than tokens.access_ttl")
	}
	if c.Sweep.Interval < 0 {
		return errors.New("sweep.interval must not be negative")
	}

	return nil
}
