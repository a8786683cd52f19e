/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger = logrus.Logger

const timestampFormat = "2006-01-02 15:04:05.000"

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}
	defaultLevel     = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	consoleLogFormat = EnvDefaultString("CONSOLE_LOG_FORMAT", "text")
	fileLogEnabled   = EnvDefaultBool("FILE_LOG_ENABLED", false)
	fileLogDir       = EnvDefaultString("FILE_LOG_DIR", "logs")
	fileLogMaxAge    = EnvDefaultInt("FILE_LOG_MAX_AGE_DAYS", 7)
	fileLogMaxSizeMB = EnvDefaultInt("FILE_LOG_MAX_SIZE_MB", 100)
	consoleOutput    io.Writer = os.Stdout
)

// ConfigureFileLog adds rolling file output under dir to every logger. An
// empty dir or a negative maxAgeDays keeps the current setting.
func ConfigureFileLog(dir string, maxAgeDays int) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if dir != "" {
		fileLogDir = dir
	}
	if maxAgeDays >= 0 {
		fileLogMaxAge = maxAgeDays
	}
	fileLogEnabled = true
	for _, lg := range loggerRegistry {
		lg.SetOutput(outputFor(lg))
	}
}

func DisableFileLog() {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	fileLogEnabled = false
	for _, lg := range loggerRegistry {
		lg.SetOutput(outputFor(lg))
	}
}

// ConfigureConsoleLogFormat switches every logger to "json" or "text".
func ConfigureConsoleLogFormat(format string) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		consoleLogFormat = "json"
	} else {
		consoleLogFormat = "text"
	}
	for name, lg := range loggerRegistry {
		lg.SetFormatter(formatterFor(name))
	}
}

// SetConsoleOutput redirects console output of every registered logger.
func SetConsoleOutput(w io.Writer) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	consoleOutput = w
	for _, lg := range loggerRegistry {
		lg.SetOutput(outputFor(lg))
	}
}

func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func SetLoggerLevel(name string, lvlStr string) bool {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(lvlStr))
	return true
}

// ConfigureLogLevel sets the level of every registered logger and of loggers
// created afterwards.
func ConfigureLogLevel(levelStr string) {
	lvl := ParseLogLevel(levelStr)
	loggerRegistryMu.Lock()
	defaultLevel = lvl
	for _, lg := range loggerRegistry {
		lg.SetLevel(lvl)
	}
	loggerRegistryMu.Unlock()
}

// NewLogger returns the named logger, creating and registering it on first use.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if lg, ok := loggerRegistry[name]; ok {
		return lg
	}

	l := logrus.New()
	l.SetLevel(defaultLevel)
	l.SetReportCaller(true)
	l.SetFormatter(formatterFor(name))
	loggerRegistry[name] = l
	l.SetOutput(outputFor(l))
	return l
}

// formatterFor and outputFor expect loggerRegistryMu to be held.
func formatterFor(name string) logrus.Formatter {
	if consoleLogFormat == "json" {
		return &logrus.JSONFormatter{
			TimestampFormat: timestampFormat,
			FieldMap:        logrus.FieldMap{logrus.FieldKeyMsg: "message"},
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				return "", fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			},
		}
	}
	return &Log4jColorFormatter{LoggerName: name, NameWidth: 10, CallerWidth: 25}
}

func outputFor(l *logrus.Logger) io.Writer {
	if !fileLogEnabled {
		return consoleOutput
	}
	name := "prism"
	for n, lg := range loggerRegistry {
		if lg == l {
			name = strings.ToLower(n)
		}
	}
	return io.MultiWriter(consoleOutput, &lumberjack.Logger{
		Filename: filepath.Join(fileLogDir, name+".log"),
		MaxSize:  fileLogMaxSizeMB,
		MaxAge:   fileLogMaxAge,
		Compress: true,
	})
}

// Log4jColorFormatter renders entries as
// "time LEVEL pid - [main] name caller : message key=value".
type Log4jColorFormatter struct {
	LoggerName  string
	NameWidth   int
	CallerWidth int
	NoColor     bool
}

func (f *Log4jColorFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	lvl := fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String()))
	b.WriteString(entry.Time.Format(timestampFormat))
	b.WriteString(" ")
	b.WriteString(f.color(lvl, levelColor(entry.Level)))
	b.WriteString(" ")
	b.WriteString(f.color(fmt.Sprintf("%-6d", os.Getpid()), ansiMagenta))
	b.WriteString(" - ")
	b.WriteString(f.color("[main]", ansiMagenta))
	b.WriteString(" ")
	b.WriteString(f.color(padLeft(limitRunes(f.LoggerName, f.NameWidth), f.NameWidth), ansiCyan))
	if entry.Caller != nil {
		caller := filepath.Base(filepath.Dir(entry.Caller.File)) + "/" +
			filepath.Base(entry.Caller.File) + ":" + strconv.Itoa(entry.Caller.Line)
		b.WriteString(f.color(" "+padLeft(caller, f.CallerWidth), ansiFaint))
	}
	b.WriteString(" ")
	b.WriteString(f.color(":", ansiFaint))
	b.WriteString(" ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func (f *Log4jColorFormatter) color(s, code string) string {
	if f.NoColor {
		return s
	}
	return code + s + ansiReset
}

const (
	ansiReset   = "\x1b[0m"
	ansiFaint   = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiYellow  = "\x1b[33m"
	ansiGreen   = "\x1b[32m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

func levelColor(level logrus.Level) string {
	switch level {
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return ansiRed
	case logrus.WarnLevel:
		return ansiYellow
	case logrus.InfoLevel:
		return ansiGreen
	case logrus.DebugLevel:
		return ansiBlue
	default:
		return ansiMagenta
	}
}

func padLeft(s string, width int) string {
	r := []rune(s)
	if len(r) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(r)) + s
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}

func EnvDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return def
		}
		return n
	}
	return def
}
