/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure the process logger.
type Options struct {
	Environment string
	// Level overrides the environment default (debug in development, info otherwise).
	Level string
	// File adds a JSON sink rotated by lumberjack.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// Capture receives the JSON lines as well, e.g. a logbuffer.Buffer.
	Capture io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup configures zerolog for the process. The returned closer flushes
// the log file, if any.
func Setup(opts Options) (zerolog.Logger, io.Closer, error) {
	if opts.File == "" {
		return SetupWithWriter(opts, opts.Capture), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
		return zerolog.Nop(), nil, err
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 100
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 28
	}
	file := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	var sink io.Writer = file
	if opts.Capture != nil {
		sink = zerolog.MultiLevelWriter(file, opts.Capture)
	}
	return SetupWithWriter(opts, sink), file, nil
}

// SetupWithWriter logs to the console and, when additional is set, writes
// JSON lines to it as well.
func SetupWithWriter(opts Options, additional io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var writer io.Writer = zerolog.ConsoleWriter{Out: os.Stdout}
	if additional != nil {
		writer = zerolog.MultiLevelWriter(writer, additional)
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level(opts))
	log.Logger = logger
	return logger
}

func level(opts Options) zerolog.Level {
	if opts.Level != "" {
		if l, err := zerolog.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			return l
		}
	}
	if opts.Environment == "development" {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
