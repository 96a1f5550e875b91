package mssql

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/raaihank/pii-sentinel/internal/catalog"
)

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// Target is a parsed instance name: host, host:port, host\NAME or
// host\NAME,port.
type Target struct {
	Host         string
	Port         int
	InstanceName string
	ExplicitPort bool
}

// ParseTarget parses an instance string as written by SQL Server tooling.
func ParseTarget(instance string, defaultPort int) (Target, error) {
	instance = strings.TrimSpace(instance)
	instance = strings.TrimPrefix(instance, "tcp:")
	if instance == "" {
		return Target{}, fmt.Errorf("instance name is empty")
	}

	t := Target{Port: defaultPort}

	hostPart := instance
	if i := strings.LastIndexAny(instance, ",:"); i > 0 {
		port, err := strconv.Atoi(instance[i+1:])
		if err != nil || port <= 0 || port > 65535 {
			return Target{}, fmt.Errorf("invalid port in instance %q", instance)
		}
		t.Port = port
		t.ExplicitPort = true
		hostPart = instance[:i]
	}

	if host, name, ok := strings.Cut(hostPart, `\`); ok {
		t.Host = host
		t.InstanceName = name
	} else {
		t.Host = hostPart
	}
	if t.Host == "" || t.Host == "." {
		t.Host = "localhost"
	}
	return t, nil
}

// DSN builds a sqlserver:// connection string for SQL authentication.
// Named instances without an explicit port are resolved through SQL Browser.
func (t Target) DSN(opts catalog.Options) string {
	query := url.Values{}
	query.Add("database", "master")
	query.Add("app name", "pii-sentinel")

	if opts.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if opts.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if opts.ConnectTimeout > 0 {
		query.Add("connection timeout", strconv.Itoa(int(opts.ConnectTimeout.Seconds())))
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		RawQuery: query.Encode(),
	}
	if opts.Username != "" {
		u.User = url.UserPassword(opts.Username, opts.Password)
	}

	switch {
	case t.InstanceName != "" && !t.ExplicitPort:
		u.Host = t.Host
		u.Path = t.InstanceName
	default:
		u.Host = fmt.Sprintf("%s:%d", t.Host, t.Port)
	}
	return u.String()
}
