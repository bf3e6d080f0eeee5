// Package log is a thin leveled logging facade used by the rest of this
// module (Debug/Info/Warn/Error, each with an f-suffixed format variant)
// on top of a real structured backend.
package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel adjusts the minimum level that will be emitted.
func SetLevel(lvl string) error {
	l, err := logrus.ParseLevel(lvl)
	if err != nil {
		return err
	}
	std.SetLevel(l)
	return nil
}

func Debug(args ...interface{})                 { std.Debug(args...) }
func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }
func Info(args ...interface{})                  { std.Info(args...) }
func Infof(format string, args ...interface{})  { std.Infof(format, args...) }
func Warn(args ...interface{})                  { std.Warn(args...) }
func Warnf(format string, args ...interface{})  { std.Warnf(format, args...) }
func Error(args ...interface{})                 { std.Error(args...) }
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }
func Fatal(args ...interface{})                 { std.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { std.Fatalf(format, args...) }
