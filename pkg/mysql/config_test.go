package mysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestConfigFromYAML(t *testing.T) {
	raw := `
host: db.internal
user: ledger
password: secret
db_name: atm
conn_max_lifetime: 10m
`
	var cfg Config
	assert.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	cfg.ApplyDefaults()

	assert.Equal(t, 3306, cfg.Port)
	assert.Equal(t, 100, cfg.MaxOpenConns)
	assert.Equal(t, 10*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, 10, cfg.MaxRetries)
	assert.Equal(t, "ledger:secret@tcp(db.internal:3306)/atm?charset=utf8mb4&parseTime=True&loc=UTC", cfg.DSN())
}
