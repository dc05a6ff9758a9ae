package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/timzifer/litepool"
	"github.com/timzifer/litepool/config"
	"github.com/timzifer/litepool/internal/logging"
	"github.com/timzifer/litepool/telemetry"
)

func main() {
	cfgPath := flag.String("config", "litepool.yaml", "Path to configuration file")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	read := flag.Bool("read", false, "Run statements on a reader connection instead of the writer")
	closeTimeout := flag.Duration("close-timeout", 10*time.Second, "How long to wait for workers to drain on shutdown")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		fmt.Println("configuration OK")
		return
	}

	logger, cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup logger")
	}
	defer cleanup()
	log.Logger = logger

	collector, err := telemetry.NewPrometheusCollector(nil)
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry disabled")
	}

	opts := []litepool.Option{litepool.WithLogger(logger)}
	if collector != nil {
		opts = append(opts, litepool.WithCollector(collector))
	}

	pool, err := litepool.OpenPool(cfg.Pool, opts...)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open pool")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), *closeTimeout)
		defer cancel()
		if err := pool.Close(closeCtx); err != nil {
			logger.Error().Err(err).Msg("closing pool")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	for _, statement := range flag.Args() {
		if err := run(ctx, pool, statement, *read); err != nil {
			logger.Error().Err(err).Str("statement", statement).Msg("statement failed")
			return
		}
	}
}

func run(ctx context.Context, pool *litepool.Pool, statement string, read bool) error {
	if read || isQuery(statement) {
		rows, err := litepool.Read(ctx, pool, func(db *sqlx.DB) ([]map[string]any, error) {
			return collectRows(db, statement)
		})
		if err != nil {
			return err
		}
		for _, row := range rows {
			printRow(row)
		}
		return nil
	}

	affected, err := litepool.Write(ctx, pool, func(db *sqlx.DB) (int64, error) {
		res, err := db.Exec(statement)
		if err != nil {
			return 0, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return err
	}
	fmt.Printf("%d row(s) affected\n", affected)
	return nil
}

func collectRows(db *sqlx.DB, statement string) ([]map[string]any, error) {
	rows, err := db.Queryx(statement)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func printRow(row map[string]any) {
	parts := make([]string, 0, len(row))
	for column, value := range row {
		parts = append(parts, fmt.Sprintf("%s=%v", column, value))
	}
	fmt.Println(strings.Join(parts, "\t"))
}

func isQuery(statement string) bool {
	head := strings.ToLower(strings.TrimSpace(statement))
	return strings.HasPrefix(head, "select") || strings.HasPrefix(head, "pragma")
}
