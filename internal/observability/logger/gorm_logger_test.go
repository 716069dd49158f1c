package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestClassifyStatement(t *testing.T) {
	cases := map[string]statement{
		`SELECT id FROM "users" WHERE id = $1`:             {"SELECT", "users"},
		"  update users SET current_prompt_usage = 1":      {"UPDATE", "users"},
		"INSERT INTO `audit_logs` (id) VALUES (?)":         {"INSERT", "audit_logs"},
		"WITH x AS (SELECT 1) INSERT INTO invoices VALUES": {"SELECT", ""},
		"":                          {"UNKNOWN", ""},
		"VACUUM":                    {"UNKNOWN", ""},
		"(DELETE FROM share_links)": {"DELETE", "share_links"},
	}
	for sql, want := range cases {
		if got := classifyStatement(sql); got != want {
			t.Fatalf("classifyStatement(%q) = %+v, want %+v", sql, got, want)
		}
	}
}

func TestTraceSkipsRecordNotFound(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	t.Cleanup(zap.ReplaceGlobals(zap.New(core)))

	l := NewGormLogger(DefaultGormLoggerConfig())
	sql := func() (string, int64) { return "SELECT * FROM users", 0 }

	l.Trace(context.Background(), time.Now(), sql, gormlogger.ErrRecordNotFound)
	if logs.Len() != 0 {
		t.Fatalf("expected record not found to be ignored, got %d entries", logs.Len())
	}

	l.Trace(context.Background(), time.Now(), sql, errors.New("database is locked"))
	entries := logs.All()
	if len(entries) != 1 || entries[0].Level != zapcore.ErrorLevel {
		t.Fatalf("expected one error entry, got %+v", entries)
	}
	if entries[0].ContextMap()["table"] != "users" {
		t.Fatalf("expected table field, got %v", entries[0].ContextMap())
	}
}
