package config

import (
	"os"
	"strings"
)

type EnvSource struct{}

func (e *EnvSource) GetValue(key string) interface{} {
	v := os.Getenv(envKey(key))
	if v == "" {
		return nil
	}
	return v
}

func (e *EnvSource) Name() string {
	return "env"
}

func envKey(key string) string {
	return strings.Replace(strings.ToUpper(key), ".", "_", -1)
}
