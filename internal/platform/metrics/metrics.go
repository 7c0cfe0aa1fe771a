package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values for the id_type dimension. National identifiers carry a
// type-prefix digit indicating the issuing scheme.
const (
	IDTypeAny    = "any"
	IDTypeADELI  = "0"
	IDTypeFINESS = "3"
	IDTypeSIRET  = "5"
	IDTypeRPPS   = "8"
)

// Label values for the operation dimension.
const (
	OpUpload = "upload"
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Metrics holds all Prometheus metrics for the reconciliation pipeline.
type Metrics struct {
	// Partition sizes of the last computed diff, by id type and operation.
	ProfessionalSize *prometheus.GaugeVec
	StructureSize    *prometheus.GaugeVec

	// Number of operations dispatched so far in the current upload.
	Progression *prometheus.GaugeVec

	// Current orchestrator stage (see internal/process).
	Stage prometheus.Gauge

	SnapshotsWritten prometheus.Counter
}

// New creates and registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ProfessionalSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regsync_professional_size",
			Help: "Size of the professional diff partition per id type and operation",
		}, []string{"id_type", "operation"}),
		StructureSize: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regsync_structure_size",
			Help: "Size of the structure diff partition per operation",
		}, []string{"operation"}),
		Progression: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regsync_upload_progression",
			Help: "Operations dispatched so far in the current upload, per entity and operation",
		}, []string{"entity", "operation"}),
		Stage: factory.NewGauge(prometheus.GaugeOpts{
			Name: "regsync_stage",
			Help: "Current pipeline stage of the orchestrator",
		}),
		SnapshotsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "regsync_snapshots_written_total",
			Help: "Number of snapshot baselines serialized to disk",
		}),
	}
}

// NewUnregistered returns metrics on a throwaway registry, for tests and for
// components that are constructed without a metrics sink.
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}
