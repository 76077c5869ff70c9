// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package metrics provides Prometheus metrics for the observation store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunkReadsTotal tracks the total number of chunk files read
	ChunkReadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsdb_chunk_reads_total",
		Help: "Total number of chunk files read",
	})

	// ChunkReadErrors tracks the number of failed chunk file reads
	ChunkReadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsdb_chunk_read_errors_total",
		Help: "Total number of failed chunk file reads",
	})

	// ChunksMissing tracks bucket candidates whose chunk file did not exist
	ChunksMissing = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsdb_chunks_missing_total",
		Help: "Total number of bucket candidates skipped because no chunk file existed",
	})

	// ChunkWritesTotal tracks the total number of chunk files written
	ChunkWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsdb_chunk_writes_total",
		Help: "Total number of chunk files written",
	})

	// ChunkWriteErrors tracks the number of failed chunk file writes
	ChunkWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsdb_chunk_write_errors_total",
		Help: "Total number of failed chunk file writes",
	})

	// MergeWritesTotal tracks writes that merged with pre-existing chunk data
	MergeWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsdb_merge_writes_total",
		Help: "Total number of writes merged with existing chunk data",
	})

	// RemoteWritesTotal tracks the total number of point batches written to the remote service
	RemoteWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsdb_remote_writes_total",
		Help: "Total number of observation batches written to the remote service",
	})

	// RemoteWriteErrors tracks the number of failed remote writes
	RemoteWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsdb_remote_write_errors_total",
		Help: "Total number of failed remote service writes",
	})

	// RemoteQueriesTotal tracks the total number of remote range queries
	RemoteQueriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsdb_remote_queries_total",
		Help: "Total number of remote service range queries",
	})

	// ReadDuration tracks how long a range read takes
	ReadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "obsdb_read_duration_seconds",
		Help:    "Duration of range reads in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// WriteDuration tracks how long a persist takes
	WriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "obsdb_write_duration_seconds",
		Help:    "Duration of persist operations in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// RowsRead tracks the rows returned per range read, by backend type
	RowsRead = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obsdb_rows_read_total",
		Help: "Total number of observation rows returned by range reads",
	}, []string{"backend"})

	// RowsWritten tracks the rows persisted, by backend type
	RowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obsdb_rows_written_total",
		Help: "Total number of observation rows persisted",
	}, []string{"backend"})
)
