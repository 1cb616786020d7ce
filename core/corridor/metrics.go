package corridor

import "github.com/prometheus/client_golang/prometheus"

var (
	overridesDenied   prometheus.Counter
	commandsPublished *prometheus.CounterVec
)

func newCollectors() (prometheus.Counter, *prometheus.CounterVec) {
	denied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "corridor_overrides_denied_total",
		Help: "Signal override requests rejected in favour of a stronger holder",
	})
	cmds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "corridor_commands_published_total",
		Help: "Signal commands and corridor events handed to the bus",
	}, []string{"result"})
	return denied, cmds
}

func init() {
	overridesDenied, commandsPublished = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers corridor metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(overridesDenied, commandsPublished)
}

// ResetMetrics recreates the collectors for tests and registers them on reg
// when not nil.
func ResetMetrics(reg prometheus.Registerer) {
	overridesDenied, commandsPublished = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
