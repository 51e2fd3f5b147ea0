package config

import "github.com/fsnotify/fsnotify"

// startWatch 开始监控配置文件变更（调用方持有 mu）
func (c *Config) startWatch() {
	if c.watching {
		return
	}
	c.viper.OnConfigChange(func(fsnotify.Event) {
		c.mu.RLock()
		watching := c.watching
		onChange := c.onChange
		c.mu.RUnlock()

		if watching && onChange != nil {
			onChange()
		}
	})
	c.viper.WatchConfig()
	c.watching = true
}

// StartWatch 开始监控配置文件变更
func (c *Config) StartWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startWatch()
}

// StopWatch 停止监控
// viper 不提供关闭底层 watcher 的方法，这里只屏蔽回调
func (c *Config) StopWatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = false
}

// IsWatching 是否在监控中
func (c *Config) IsWatching() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.watching
}
