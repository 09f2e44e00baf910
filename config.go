// SPDX-License-Identifier: MIT

package petscan

import (
	"encoding/json"
	"os"
)

const (
	defaultDBPort        = 3306
	defaultServerGroup   = ".web.db.svc.eqiad.wmflabs"
	defaultPoolSize      = 10
	toolDBPortOnLoopback = 3308
)

// MySQLCredential is one [user, pass, connection_count, toolname] tuple
// from the optional "mysql" config array (§6).
type MySQLCredential struct {
	User             string
	Password         string
	ConnectionCount  int
	ToolName         string
}

// Config is the JSON configuration document described in §6, plus the
// ambient keys §"AMBIENT STACK" adds for logging, metrics, and the
// site-matrix snapshot cache.
type Config struct {
	User           string             `json:"user"`
	Password       string             `json:"password"`
	Host           string             `json:"host"`
	Schema         string             `json:"schema"`
	DBPort         uint16             `json:"db_port"`
	DBServerGroup  string             `json:"dbservergroup"`
	MySQL          []mysqlConfigEntry `json:"mysql"`

	ToolDBUser     string `json:"tool_db_user"`
	ToolDBPassword string `json:"tool_db_password"`
	ToolDBHost     string `json:"tool_db_host"`
	ToolDBSchema   string `json:"tool_db_schema"`

	LogLevel                 string `json:"log_level"`
	MetricsAddr              string `json:"metrics_addr"`
	SiteMatrixCachePath      string `json:"site_matrix_cache_path"`
	SiteMatrixMaxAgeSeconds  int    `json:"site_matrix_max_age_seconds"`
	LargeSortThreshold       int    `json:"large_sort_threshold"`
}

// mysqlConfigEntry decodes a ["user", "pass", connection_count, "toolname"]
// JSON array into named fields.
type mysqlConfigEntry struct {
	User            string
	Password        string
	ConnectionCount int
	ToolName        string
}

func (e *mysqlConfigEntry) UnmarshalJSON(data []byte) error {
	var tuple [4]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &e.User); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[1], &e.Password); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[2], &e.ConnectionCount); err != nil {
		return err
	}
	return json.Unmarshal(tuple[3], &e.ToolName)
}

// LoadConfig reads and validates a Config from path, mirroring the
// teacher's NewStorageClient JSON-file-then-env-var-fallback shape, but
// this module has no secretless fallback: the credentials are mandatory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newConfigError("petscan: reading config %q: %v", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, newConfigError("petscan: parsing config %q: %v", path, err)
	}
	if cfg.User == "" && len(cfg.MySQL) == 0 {
		return nil, newConfigError("petscan: config %q has no credentials (missing \"user\" or \"mysql\")", path)
	}
	if cfg.DBPort == 0 {
		cfg.DBPort = defaultDBPort
	}
	if cfg.DBServerGroup == "" {
		cfg.DBServerGroup = defaultServerGroup
	}
	return &cfg, nil
}

// credentials returns the pool's credential slots. When the "mysql" array
// is given, each entry expands into ConnectionCount slots sharing that
// credential, so the pool actually holds as many concurrent connections per
// user as configured; otherwise it falls back to defaultPoolSize slots
// built from the top-level user/password (§4.5, §6).
func (c *Config) credentials() []MySQLCredential {
	if len(c.MySQL) > 0 {
		var creds []MySQLCredential
		for _, e := range c.MySQL {
			n := e.ConnectionCount
			if n <= 0 {
				n = 1
			}
			for i := 0; i < n; i++ {
				creds = append(creds, MySQLCredential{
					User:            e.User,
					Password:        e.Password,
					ConnectionCount: e.ConnectionCount,
					ToolName:        e.ToolName,
				})
			}
		}
		return creds
	}
	creds := make([]MySQLCredential, defaultPoolSize)
	for i := range creds {
		creds[i] = MySQLCredential{User: c.User, Password: c.Password}
	}
	return creds
}
