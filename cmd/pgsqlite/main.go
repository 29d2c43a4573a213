package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/pgsqlite-go/pgsqlite/pkg/pgwire"
	"github.com/pgsqlite-go/pgsqlite/pkg/session"
	"github.com/pgsqlite-go/pgsqlite/pkg/translator"
	"github.com/pgsqlite-go/pgsqlite/pkg/util/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// stringFlag registers a flag whose default is overridable by an
// environment variable, matching the teacher's flag-only cmd/kqlite/main.go
// generalized with the env-var fallback SPEC_FULL's configuration surface
// adds on top.
func stringFlag(name, env, def, usage string) *string {
	if v, ok := os.LookupEnv(env); ok {
		def = v
	}
	return flag.String(name, def, usage)
}

func intFlag(name, env string, def int, usage string) *int {
	if v, ok := os.LookupEnv(env); ok {
		if n, err := strconv.Atoi(v); err == nil {
			def = n
		}
	}
	return flag.Int(name, def, usage)
}

func run(ctx context.Context) error {
	addr := stringFlag("addr", "PGSQLITE_ADDR", ":5432", "postgres protocol bind address")
	dataDir := stringFlag("data-dir", "PGSQLITE_DATA_DIR", "", "data directory")
	logLevel := intFlag("log-level", "PGSQLITE_LOG_LEVEL", log.LogLevelInfo, "0=info, 1=debug")

	journalMode := stringFlag("journal-mode", "PGSQLITE_JOURNAL_MODE", "WAL", "sqlite journal mode")
	synchronous := stringFlag("synchronous", "PGSQLITE_SYNCHRONOUS", "NORMAL", "sqlite synchronous pragma")
	cacheSizeKB := intFlag("cache-size-kb", "PGSQLITE_CACHE_SIZE", -64000, "sqlite cache_size pragma (negative means KB of RAM)")
	mmapSize := intFlag("mmap-size", "PGSQLITE_MMAP_SIZE", 268435456, "sqlite mmap_size pragma")

	queryCacheSize := intFlag("query-cache-size", "PGSQLITE_QUERY_CACHE_SIZE", 1000, "translated-query cache entries")
	queryCacheTTL := intFlag("query-cache-ttl-seconds", "PGSQLITE_QUERY_CACHE_TTL", 600, "translated-query cache entry TTL, seconds")
	resultCacheSize := intFlag("result-cache-size", "PGSQLITE_RESULT_CACHE_SIZE", 100, "result-set cache entries")
	resultCacheTTL := intFlag("result-cache-ttl-seconds", "PGSQLITE_RESULT_CACHE_TTL", 60, "result-set cache entry TTL, seconds")
	statementPoolSize := intFlag("statement-pool-size", "PGSQLITE_STATEMENT_POOL_SIZE", 100, "prepared-statement pool size")
	maxPortals := intFlag("max-portals", "PGSQLITE_MAX_PORTALS", 100, "maximum open portals per connection")
	maxConnections := intFlag("max-connections", "PGSQLITE_MAX_CONNECTIONS", 64, "maximum concurrent client connections")

	tlsCert := flag.String("tls-cert", "", "TLS certificate file (enables TLS when set with -tls-key)")
	tlsKey := flag.String("tls-key", "", "TLS private key file")
	flag.Parse()

	if *dataDir == "" {
		return fmt.Errorf("required: -data-dir PATH")
	}

	logger := log.CreateLogger("pgsqlite", *logLevel, "")

	pragma := session.PragmaConfig{
		JournalMode: *journalMode,
		Synchronous: *synchronous,
		CacheSizeKB: *cacheSizeKB,
		MMapSize:    int64(*mmapSize),
	}

	translator.ConfigureCache(*queryCacheSize, time.Duration(*queryCacheTTL)*time.Second)

	cfg := session.Config{
		MaxPortals:         *maxPortals,
		MaxStatements:      *statementPoolSize,
		ResultCacheEntries: *resultCacheSize,
		ResultCacheMaxRows: 10000,
		ResultCacheTTL:     time.Duration(*resultCacheTTL) * time.Second,
		EnumCacheTTL:       5 * time.Minute,
	}

	server := pgwire.NewServer(*addr, *dataDir, pragma, cfg, logger)
	server.MaxConnections = *maxConnections

	if *tlsCert != "" && *tlsKey != "" {
		cert, err := tls.LoadX509KeyPair(*tlsCert, *tlsKey)
		if err != nil {
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		server.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
	}

	if err := server.Start(); err != nil {
		return err
	}
	logger.Info("listening", "address", server.Address)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := server.Stop(); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
