// Package metrics exposes prometheus counters for the engine and MVCC
// layers. Registration happens on a private registry rather than the
// default one so importing this package has no global side effects; a
// caller wanting /metrics wires Registry into an HTTP handler themselves.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var Registry = prometheus.NewRegistry()

var (
	DiskEngineOpens = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bitdb",
		Subsystem: "disk_engine",
		Name:      "opens_total",
		Help:      "Number of times a disk engine log file was opened.",
	}))

	DiskEngineReads = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bitdb",
		Subsystem: "disk_engine",
		Name:      "reads_total",
		Help:      "Number of Get calls served from the disk engine.",
	}))

	DiskEngineWrites = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bitdb",
		Subsystem: "disk_engine",
		Name:      "writes_total",
		Help:      "Number of Set/Delete records appended to the disk engine's log.",
	}))

	DiskEngineCompactions = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bitdb",
		Subsystem: "disk_engine",
		Name:      "compactions_total",
		Help:      "Number of completed offline compactions.",
	}))

	TxnBegins = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bitdb",
		Subsystem: "mvcc",
		Name:      "txn_begins_total",
		Help:      "Number of transactions begun.",
	}))

	TxnCommits = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bitdb",
		Subsystem: "mvcc",
		Name:      "txn_commits_total",
		Help:      "Number of transactions committed.",
	}))

	TxnRollbacks = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bitdb",
		Subsystem: "mvcc",
		Name:      "txn_rollbacks_total",
		Help:      "Number of transactions rolled back.",
	}))

	TxnConflicts = register(prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "bitdb",
		Subsystem: "mvcc",
		Name:      "txn_conflicts_total",
		Help:      "Number of WriteConflict errors returned by Txn.Set/Txn.Delete.",
	}))

	ActiveTransactions = register(prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "bitdb",
		Subsystem: "mvcc",
		Name:      "active_transactions",
		Help:      "Number of transactions currently begun but neither committed nor rolled back.",
	}))
)

func register[T prometheus.Collector](c T) T {
	Registry.MustRegister(c)
	return c
}
