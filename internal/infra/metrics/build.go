package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(buildInfo)
}

var buildInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "build_info",
		Help: "A constant metric with labels for binary, version and commit hash.",
	},
	[]string{"binary", "version", "commit"},
)

func SetBuildInfo(binary, version, commit string) {
	buildInfo.WithLabelValues(binary, version, commit).Set(1)
}
