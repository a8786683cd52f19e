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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
)

func TestNewLoggerIsRegistered(t *testing.T) {
	c := qt.New(t)
	a := NewLogger("REGISTRY")
	b := NewLogger("REGISTRY")
	c.Assert(a, qt.Equals, b)

	c.Assert(SetLoggerLevel("REGISTRY", "debug"), qt.IsTrue)
	c.Assert(a.GetLevel(), qt.Equals, logrus.DebugLevel)
	c.Assert(SetLoggerLevel("NOT-REGISTERED", "debug"), qt.IsFalse)
}

func TestConsoleOutput(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	SetConsoleOutput(&buf)
	c.Cleanup(func() { SetConsoleOutput(os.Stdout) })

	lg := NewLogger("OUTPUT")
	lg.SetLevel(logrus.InfoLevel)
	lg.WithField("dialect", "pg").Info("Database handle ready")
	lg.Debug("hidden")

	out := buf.String()
	c.Assert(out, qt.Contains, "Database handle ready")
	c.Assert(out, qt.Contains, "dialect=pg")
	c.Assert(out, qt.Not(qt.Contains), "hidden")
}

func TestConfigureConsoleLogFormat(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	SetConsoleOutput(&buf)
	c.Cleanup(func() {
		ConfigureConsoleLogFormat("text")
		SetConsoleOutput(os.Stdout)
	})

	existing := NewLogger("FORMAT-EXISTING")
	ConfigureConsoleLogFormat(" JSON ")
	created := NewLogger("FORMAT-CREATED")
	c.Assert(existing.Formatter, qt.Satisfies, func(f logrus.Formatter) bool { _, ok := f.(*logrus.JSONFormatter); return ok })
	c.Assert(created.Formatter, qt.Satisfies, func(f logrus.Formatter) bool { _, ok := f.(*logrus.JSONFormatter); return ok })

	existing.WithField("dialect", "pg").Info("Database handle ready")
	var entry map[string]interface{}
	c.Assert(json.Unmarshal(buf.Bytes(), &entry), qt.IsNil)
	c.Assert(entry["message"], qt.Equals, "Database handle ready")
	c.Assert(entry["dialect"], qt.Equals, "pg")

	ConfigureConsoleLogFormat("text")
	c.Assert(existing.Formatter, qt.DeepEquals, &Log4jColorFormatter{LoggerName: "FORMAT-EXISTING", NameWidth: 10, CallerWidth: 25})
}

func TestConfigureFileLog(t *testing.T) {
	c := qt.New(t)
	var buf bytes.Buffer
	SetConsoleOutput(&buf)
	c.Cleanup(func() {
		DisableFileLog()
		SetConsoleOutput(os.Stdout)
	})

	dir := c.TempDir()
	lg := NewLogger("FILELOG")
	lg.SetLevel(logrus.InfoLevel)
	ConfigureFileLog(dir, 1)
	lg.Info("written to both")

	data, err := os.ReadFile(filepath.Join(dir, "filelog.log"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Contains, "written to both")
	c.Assert(buf.String(), qt.Contains, "written to both")

	DisableFileLog()
	lg.Info("console only")
	data, err = os.ReadFile(filepath.Join(dir, "filelog.log"))
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Not(qt.Contains), "console only")
	c.Assert(buf.String(), qt.Contains, "console only")
}

func TestLog4jColorFormatter(t *testing.T) {
	c := qt.New(t)
	f := &Log4jColorFormatter{LoggerName: "DATABASE", NameWidth: 10, NoColor: true}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 6_000_000, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "slow query",
		Data:    logrus.Fields{"b": 2, "a": 1},
	}

	out, err := f.Format(entry)
	c.Assert(err, qt.IsNil)
	line := string(out)
	c.Assert(strings.HasPrefix(line, "2025-01-02 03:04:05.006 WARNING "), qt.IsTrue, qt.Commentf("%q", line))
	c.Assert(line, qt.Contains, "[main]   DATABASE : slow query a=1 b=2\n")
	c.Assert(line, qt.Not(qt.Contains), "\x1b[")
}

func TestParseLogLevel(t *testing.T) {
	c := qt.New(t)
	c.Assert(ParseLogLevel("WARNING"), qt.Equals, logrus.WarnLevel)
	c.Assert(ParseLogLevel(" trace "), qt.Equals, logrus.TraceLevel)
	c.Assert(ParseLogLevel("bogus"), qt.Equals, logrus.InfoLevel)
}

func TestEnvDefaults(t *testing.T) {
	c := qt.New(t)
	c.Setenv("PRISM_TEST_STR", "value")
	c.Setenv("PRISM_TEST_BOOL", "true")
	c.Setenv("PRISM_TEST_BAD_BOOL", "maybe")
	c.Setenv("PRISM_TEST_INT", " 42 ")

	c.Assert(EnvDefaultString("PRISM_TEST_STR", "def"), qt.Equals, "value")
	c.Assert(EnvDefaultString("PRISM_TEST_UNSET", "def"), qt.Equals, "def")
	c.Assert(EnvDefaultBool("PRISM_TEST_BOOL", false), qt.IsTrue)
	c.Assert(EnvDefaultBool("PRISM_TEST_BAD_BOOL", true), qt.IsTrue)
	c.Assert(EnvDefaultInt("PRISM_TEST_INT", 0), qt.Equals, 42)
	c.Assert(EnvDefaultInt("PRISM_TEST_UNSET", 7), qt.Equals, 7)
}
