package cli

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/warden/pkg/config"
	"github.com/platinummonkey/warden/pkg/gateway"
	"github.com/platinummonkey/warden/pkg/rbac"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// gatewayFlags selects a permission gateway the same way the server config does
type gatewayFlags struct {
	kind    string
	url     string
	driver  string
	dsn     string
	fixture string
	timeout time.Duration
}

func (f *gatewayFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.kind, "gateway", envOr("WARDEN_GATEWAY_TYPE", config.GatewayHTTP), "gateway type (http, sql, file)")
	flags.StringVar(&f.url, "url", envOr("WARDEN_GATEWAY_URL", ""), "base URL of the HTTP gateway")
	f.registerSQL(cmd)
	flags.StringVar(&f.fixture, "fixture", envOr("WARDEN_GATEWAY_FIXTURE", ""), "YAML fixture for the file gateway")
	flags.DurationVar(&f.timeout, "gateway-timeout", 10*time.Second, "gateway request timeout")
}

func (f *gatewayFlags) registerSQL(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.driver, "driver", envOr("WARDEN_GATEWAY_SQL_DRIVER", gateway.DriverPostgres), "SQL driver (postgres, sqlite3)")
	flags.StringVar(&f.dsn, "dsn", envOr("WARDEN_GATEWAY_SQL_DSN", ""), "SQL data source name")
}

// open returns the gateway and a function releasing it
func (f *gatewayFlags) open(logger logrus.FieldLogger) (rbac.Gateway, func() error, error) {
	noop := func() error { return nil }

	switch f.kind {
	case config.GatewayHTTP:
		if f.url == "" {
			return nil, nil, fmt.Errorf("--url is required for the http gateway")
		}
		gw, err := gateway.NewHTTPGateway(f.url, gateway.WithHTTPClient(gateway.NewHTTPClient(f.timeout)))
		if err != nil {
			return nil, nil, err
		}
		return gw, noop, nil
	case config.GatewaySQL:
		db, err := f.openDB()
		if err != nil {
			return nil, nil, err
		}
		return gateway.NewSQLGateway(db, f.driver), db.Close, nil
	case config.GatewayFile:
		if f.fixture == "" {
			return nil, nil, fmt.Errorf("--fixture is required for the file gateway")
		}
		gw, err := gateway.NewFileGateway(f.fixture, logger)
		if err != nil {
			return nil, nil, err
		}
		return gw, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown gateway type %q", f.kind)
	}
}

func (f *gatewayFlags) openDB() (*sql.DB, error) {
	if f.dsn == "" {
		return nil, fmt.Errorf("--dsn is required")
	}
	return gateway.OpenDB(gateway.SQLConfig{Driver: f.driver, DSN: f.dsn, Timeout: f.timeout})
}
