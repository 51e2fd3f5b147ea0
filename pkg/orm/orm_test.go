package orm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tokmz/huddle/pkg/logger"
)

type note struct {
	ID   uint
	Body string
}

func memoryConfig() *Config {
	cfg := DefaultConfig()
	cfg.DSN = "file::memory:"
	cfg.MaxOpenConns = 1
	return cfg
}

func TestNew_SQLite(t *testing.T) {
	db, err := New(memoryConfig(), logger.NewNop())
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, db.AutoMigrate(&note{}))
	require.NoError(t, db.Create(&note{Body: "hello"}).Error)

	var n note
	require.NoError(t, db.First(&n).Error)
	assert.Equal(t, "hello", n.Body)
}

func TestNew_TablePrefix(t *testing.T) {
	cfg := memoryConfig()
	cfg.TablePrefix = "hd_"
	db, err := New(cfg, nil)
	require.NoError(t, err)
	defer Close(db)

	require.NoError(t, db.AutoMigrate(&note{}))
	assert.True(t, db.Migrator().HasTable("hd_notes"))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(&Config{Type: SQLite}, nil)
	assert.Error(t, err)

	_, err = New(&Config{Type: "oracle", DSN: "x"}, nil)
	assert.ErrorContains(t, err, "unsupported")

	cfg := memoryConfig()
	cfg.Replicas = &ReplicaConfig{}
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "no replica sources")
}

func TestNew_Replicas(t *testing.T) {
	cfg := memoryConfig()
	cfg.Replicas = &ReplicaConfig{Sources: []string{"file::memory:"}, Policy: "round_robin"}
	db, err := New(cfg, nil)
	require.NoError(t, err)
	defer Close(db)
}

func TestGormLogger_LogMode(t *testing.T) {
	l := &gormLogger{log: logger.NewNop(), slow: time.Millisecond, level: gormlogger.Warn}
	silent := l.LogMode(gormlogger.Silent)
	assert.NotSame(t, l, silent)
	assert.Equal(t, gormlogger.Warn, l.level)

	// 不应触发 fc
	silent.Trace(context.Background(), time.Now(), func() (string, int64) {
		t.Fatal("fc called in silent mode")
		return "", 0
	}, nil)
}
