package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildVersion = "dev"
	buildCommit  = "unknown"

	buildInfoOnce sync.Once

	// gauge pinned to 1, labelled with version and commit.
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "inkpost_build_info",
			Help: "Inkpost API build information.",
		},
		[]string{"version", "commit"},
	)
)

// InitBuildInfo records version metadata and publishes inkpost_build_info once.
func InitBuildInfo(version, commit string) {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(buildVersion, buildCommit).Set(1)
}

// Version returns the running build version.
func Version() string { return buildVersion }

// Commit returns the running build commit.
func Commit() string { return buildCommit }
