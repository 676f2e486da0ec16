package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sophialabs/mimicry/internal/app"
)

func main() {
	cfg := app.DefaultConfig()
	flag.StringVar(&cfg.RootDir, "root", cfg.RootDir, "root directory of YAML definitions")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.IntVar(&cfg.AuditSize, "audit-size", cfg.AuditSize, "number of audit entries kept in memory")
	flag.StringVar(&cfg.AuditFile, "audit-file", cfg.AuditFile, "JSON-lines audit file, rotated; empty disables")
	flag.StringVar(&cfg.TemplateEngine, "template-engine", cfg.TemplateEngine, "engine for templated responses (jinja2, expr)")
	flag.StringVar(&cfg.RecordDir, "record-dir", cfg.RecordDir, "directory under root for recorded proxy exchanges")
	flag.IntVar(&cfg.BreakerFailures, "breaker-failures", cfg.BreakerFailures, "consecutive upstream failures that open a proxy circuit (0 disables)")
	flag.DurationVar(&cfg.BreakerCooldown, "breaker-cooldown", cfg.BreakerCooldown, "time an open proxy circuit waits before probing again")
	flag.Parse()

	a, err := app.New(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(context.Background()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
