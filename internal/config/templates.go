package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "centralsystem":
		return centralSystemTemplate, nil
	case "fleet":
		return fleetTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const centralSystemTemplate = `id = "central.local"
host = "0.0.0.0"
websocket_port = 8887
soap_port = 8888
soap_endpoint = ""
versions = ["2.0.1", "1.6"]
workers = 4
admin_addr = "127.0.0.1:8080"
cors_origins = ["http://localhost:3000"]
heartbeat_interval = "5m"
id_tags = []
call_timeout = "30s"
max_pending_calls = 0
soap_idle_timeout = "10m"
admin_token = ""

[passwords]
CP-001 = "change-me"
`

const fleetTemplate = `url = "ws://127.0.0.1:8887/ocpp"
versions = ["2.0.1", "1.6"]
max_connect_attempts = 0

[[stations]]
id = "CP-001"
vendor = "ocppctl"
model = "sim-1"
password = "change-me"

[[stations]]
id = "CP-002"
vendor = "ocppctl"
model = "sim-1"
version = "1.6"
`
