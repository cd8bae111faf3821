package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnalyzeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icelens_analyze_requests_total",
		Help: "Total number of table analyze requests.",
	}, []string{"status"})

	AnalyzeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "icelens_analyze_duration_seconds",
		Help:    "Duration of full table analyze operations.",
		Buckets: prometheus.DefBuckets,
	})

	ObjectReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icelens_object_reads_total",
		Help: "Total number of object store reads.",
	}, []string{"scheme"})

	ObjectReadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icelens_object_read_bytes_total",
		Help: "Total bytes fetched from object stores.",
	}, []string{"scheme"})

	ManifestDecodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "icelens_manifest_decodes_total",
		Help: "Total number of manifest decode attempts.",
	}, []string{"outcome"})

	MetadataCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "icelens_metadata_cache_hits_total",
		Help: "Total number of metadata cache hits.",
	})

	MetadataCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "icelens_metadata_cache_misses_total",
		Help: "Total number of metadata cache misses.",
	})

	SampleFilesRead = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "icelens_sample_files_read",
		Help:    "Number of data files read per sample request.",
		Buckets: []float64{1, 2, 3, 5, 8, 10},
	})
)
