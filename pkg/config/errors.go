package config

import "github.com/tokmz/huddle/pkg/errors"

var (
	// ErrConfigNotFound 配置文件未找到
	ErrConfigNotFound = errors.New(3001, "config_not_found", "config file not found", 500)
	// ErrConfigReadFailed 配置读取失败
	ErrConfigReadFailed = errors.New(3002, "config_read_failed", "config read failed", 500)
)
