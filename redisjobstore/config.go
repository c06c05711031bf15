package redisjobstore

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config carries every option spec §6 enumerates. Yaml tags let LoadConfig
// read it from a file the way the teacher's own sibling repos in the
// retrieval pack load their configuration.
type Config struct {
	KeyPrefix          string        `yaml:"key_prefix"`
	KeyDelimiter       string        `yaml:"key_delimiter"`
	TriggerLockTimeout time.Duration `yaml:"trigger_lock_timeout"`
	RedisLockTimeout   time.Duration `yaml:"redis_lock_timeout"`
	MisfireThreshold   time.Duration `yaml:"misfire_threshold"`
	InstanceID         string        `yaml:"instance_id"`

	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	MaxIdle     int           `yaml:"max_idle"`
}

// Defaults fills zero-valued fields with the documented defaults (spec §6):
// triggerLockTimeout 300000ms, redisLockTimeout 5000ms, key delimiter ":".
// InstanceID, if empty, gets a fresh random uuid so two Configs never
// collide by accident.
func (c Config) Defaults() Config {
	if c.KeyDelimiter == "" {
		c.KeyDelimiter = ":"
	}
	if c.TriggerLockTimeout <= 0 {
		c.TriggerLockTimeout = 300000 * time.Millisecond
	}
	if c.RedisLockTimeout <= 0 {
		c.RedisLockTimeout = 5000 * time.Millisecond
	}
	if c.InstanceID == "" {
		c.InstanceID = uuid.New().String()
	}
	return c
}

// LoadConfig reads a YAML config file from path and applies Defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("redisjobstore: load config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("redisjobstore: parse config %s: %w", path, err)
	}
	return c.Defaults(), nil
}
