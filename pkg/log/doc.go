/*
Package log provides structured logging via zerolog: JSON-structured
output with component-specific child loggers, configurable severity
filtering, and small helpers for the identifiers this engine's callers
care about (shard, vertex, transaction).

# Usage

Initializing the logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("engine opened")
	log.Warn("registry near capacity")
	log.Error("commit failed")

Structured logging:

	log.Logger.Info().
		Uint64("shard", shardID).
		Int("degree", n).
		Msg("neighborhood promoted to art")

Component and scope loggers:

	txnLog := log.WithComponent("txn")
	txnLog.Debug().Msg("begin_write")

	log.WithShard(3).Info().Msg("gc reclaimed versions")
	log.WithVertex(uint64(v)).Debug().Msg("insert_edge")
	log.WithTxn(42, "write").Info().Msg("commit")

# Do / Don't

Do:
  - Use Info level in production, Debug only when troubleshooting.
  - Use typed fields (.Uint64, .Str, .Err) instead of string
    concatenation; this keeps logs JSON-parseable and queryable.
  - Scope a logger with WithComponent/WithShard/WithVertex/WithTxn once
    and reuse it, rather than repeating the same fields at every call
    site.

Don't:
  - Block on log writes in a transaction's commit path; buffer the
    output writer upstream if throughput matters.
  - Log full vertex/edge property payloads at Info level -- they can be
    arbitrarily large; log counts or keys instead.
*/
package log
