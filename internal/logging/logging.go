package logging

import (
	"log"
	"os"
	"strings"
)

var levelOrder = map[string]int{"debug": 10, "info": 20, "warn": 30, "error": 40}

type Logger struct {
	level  string
	prefix string
	base   *log.Logger
}

func New(level string) *Logger {
	lv := strings.ToLower(strings.TrimSpace(level))
	if _, ok := levelOrder[lv]; !ok {
		lv = "info"
	}
	return &Logger{level: lv, base: log.New(os.Stdout, "", log.LstdFlags)}
}

// Named returns a logger whose lines carry a component tag, sharing the
// parent's level and output.
func (l *Logger) Named(name string) *Logger {
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{level: l.level, prefix: prefix, base: l.base}
}

func (l *Logger) enabled(level string) bool {
	cur, ok := levelOrder[l.level]
	if !ok {
		cur = 20
	}
	v, ok := levelOrder[level]
	if !ok {
		v = 20
	}
	return v >= cur
}

func (l *Logger) printf(tag, format string, args ...any) {
	if l.prefix != "" {
		l.base.Printf(tag+" ["+l.prefix+"] "+format, args...)
		return
	}
	l.base.Printf(tag+" "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	if l.enabled("debug") {
		l.printf("[DEBUG]", format, args...)
	}
}

func (l *Logger) Infof(format string, args ...any) {
	if l.enabled("info") {
		l.printf("[INFO]", format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...any) {
	if l.enabled("warn") {
		l.printf("[WARN]", format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...any) {
	if l.enabled("error") {
		l.printf("[ERROR]", format, args...)
	}
}
