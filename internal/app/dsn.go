package app

import (
	"net/url"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// dsnInfo summarizes a DSN for logging without its credentials.
type dsnInfo struct {
	Type        string
	Host        string
	Port        int
	User        string
	Name        string
	SSLMode     string
	Path        string
	PasswordSet bool
}

// parseDSN splits a SQLite file DSN or a PostgreSQL URL into its parts.
func parseDSN(dsn string) (dsnInfo, bool) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return dsnInfo{}, false
	}

	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "file:") {
		pathPart := trimmed[len("file:"):]
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return dsnInfo{Type: "sqlite", Path: strings.TrimSpace(pathPart)}, true
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return dsnInfo{}, false
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			parsedPort, errPort := strconv.Atoi(rawPort)
			if errPort != nil {
				return dsnInfo{}, false
			}
			port = parsedPort
		}
		info := dsnInfo{
			Type:    "postgres",
			Host:    strings.TrimSpace(u.Hostname()),
			Port:    port,
			Name:    strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
			SSLMode: strings.TrimSpace(u.Query().Get("sslmode")),
		}
		if info.SSLMode == "" {
			info.SSLMode = "disable"
		}
		if u.User != nil {
			info.User = strings.TrimSpace(u.User.Username())
			_, info.PasswordSet = u.User.Password()
		}
		return info, true
	case "":
		// Bare paths such as ":memory:" or "estateiq.db" open as SQLite.
		return dsnInfo{Type: "sqlite", Path: trimmed}, true
	default:
		return dsnInfo{}, false
	}
}

// describeDSN returns log fields for a DSN. Passwords are reported only as present or not.
func describeDSN(dsn string) log.Fields {
	info, ok := parseDSN(dsn)
	if !ok {
		return log.Fields{"db_type": "unknown"}
	}
	if info.Type == "sqlite" {
		return log.Fields{"db_type": info.Type, "db_path": info.Path}
	}
	return log.Fields{
		"db_type":      info.Type,
		"db_host":      info.Host,
		"db_port":      info.Port,
		"db_user":      info.User,
		"db_name":      info.Name,
		"db_sslmode":   info.SSLMode,
		"password_set": info.PasswordSet,
	}
}
