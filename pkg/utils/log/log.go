// Copyright Elasticsearch B.V. and/or licensed to Elasticsearch B.V. under one
// or more contributor license agreements. Licensed under the Elastic License 2.0;
// you may not use this file except in compliance with the Elastic License 2.0.

package log

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/helixstack/helixctl/pkg/about"
	"github.com/helixstack/helixctl/pkg/dev"
)

const (
	EcsVersion     = "1.4.0"
	EcsServiceType = "helixctl"

	VerbosityFlag = "log-verbosity"
	FormatFlag    = "log-format"

	FormatJSON    = "json"
	FormatConsole = "console"
)

var (
	verbosity int
	format    = FormatJSON
)

// BindFlags attaches logging flags to the given flag set.
func BindFlags(flags *pflag.FlagSet) {
	flags.IntVar(&verbosity, VerbosityFlag, 0, "Verbosity level of logs (-2=Error, -1=Warn, 0=Info, >0=Debug)")
	flags.StringVar(&format, FormatFlag, FormatJSON, fmt.Sprintf("Log line format, %q or %q", FormatJSON, FormatConsole))
}

type logBuilder struct {
	verbosity int
	format    string
	out       io.Writer
}

// Option represents log configuration options.
type Option func(*logBuilder)

// WithVerbosity sets the log verbosity level.
// level | Zap level | name
// -------------------------
//
//	 1    | -1        | Debug
//	 0    |  0        | Info
//	-1    |  1        | Warn
//	-2    |  2        | Error
func WithVerbosity(verbosity int) Option {
	return func(lb *logBuilder) {
		lb.verbosity = verbosity
	}
}

// WithFormat selects the json or console encoder.
func WithFormat(format string) Option {
	return func(lb *logBuilder) {
		lb.format = format
	}
}

// WithOutput sets where log lines are written. Defaults to stderr, stdout only carries the report.
func WithOutput(w io.Writer) Option {
	return func(lb *logBuilder) {
		lb.out = w
	}
}

// InitLogger initializes the global logger from the bound flags and the given options.
func InitLogger(opts ...Option) {
	lb := &logBuilder{verbosity: verbosity, format: format, out: os.Stderr}
	for _, opt := range opts {
		opt(lb)
	}
	logger := lb.build()
	crlog.SetLogger(logger)
	// client-go logs through klog
	klog.SetLogger(logger.WithName("client-go"))
}

func (lb *logBuilder) build() logr.Logger {
	level := determineLogLevel(lb.verbosity)
	// stack traces are noise for a CLI, failures are reported as a single line
	stackTraceLevel := zap.NewAtomicLevelAt(zapcore.DPanicLevel)
	encoder, fields := newEncoder(lb.format)
	return crzap.New(func(o *crzap.Options) {
		o.DestWriter = lb.out
		o.Development = dev.Enabled
		o.Level = &level
		o.StacktraceLevel = &stackTraceLevel
		o.Encoder = encoder
		o.ZapOpts = []zap.Option{zap.Fields(fields...)}
	})
}

func newEncoder(format string) (zapcore.Encoder, []zap.Field) {
	fields := []zap.Field{zap.String("service.version", about.GetBuildInfo().VersionString())}
	if dev.Enabled || format == FormatConsole {
		conf := zap.NewDevelopmentEncoderConfig()
		conf.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if !dev.Enabled {
			conf.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		return zapcore.NewConsoleEncoder(conf), fields
	}
	conf := zap.NewProductionEncoderConfig()
	conf.MessageKey = "message"
	conf.TimeKey = "@timestamp"
	conf.LevelKey = "log.level"
	conf.NameKey = "log.logger"
	conf.StacktraceKey = "error.stack_trace"
	conf.EncodeTime = zapcore.ISO8601TimeEncoder
	fields = append(fields,
		zap.String("service.type", EcsServiceType),
		zap.String("ecs.version", EcsVersion),
	)
	return zapcore.NewJSONEncoder(conf), fields
}

func determineLogLevel(v int) zap.AtomicLevel {
	switch {
	case v > -3 && v != 0:
		return zap.NewAtomicLevelAt(zapcore.Level(-v))
	case dev.Enabled:
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

// FromContext returns the logger attached to ctx, or the global logger.
func FromContext(ctx context.Context) logr.Logger {
	return crlog.FromContext(ctx)
}

// IntoContext returns a copy of ctx carrying the given logger.
func IntoContext(ctx context.Context, log logr.Logger) context.Context {
	return crlog.IntoContext(ctx, log)
}

// Log is the root logger. It forwards to the global logger once InitLogger has run.
var Log = crlog.Log.WithName("helixctl")
