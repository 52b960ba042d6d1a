package command

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the adapter's Prometheus collectors.
type Metrics struct {
	Commands   *prometheus.CounterVec
	Inserted   prometheus.Counter
	Duplicates prometheus.Counter
	Growths    prometheus.Counter
	Created    prometheus.Counter
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "growbloom",
			Name:      "commands_total",
			Help:      "Commands executed, by command and result.",
		}, []string{"command", "result"}),
		Inserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "growbloom",
			Name:      "elements_inserted_total",
			Help:      "Elements inserted into a filter.",
		}),
		Duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "growbloom",
			Name:      "elements_present_total",
			Help:      "Elements not inserted because they already tested positive.",
		}),
		Growths: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "growbloom",
			Name:      "generations_added_total",
			Help:      "Generations added to existing filters.",
		}),
		Created: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "growbloom",
			Name:      "filters_created_total",
			Help:      "Filters created by BF.CREATE or by a first BF.SET.",
		}),
	}
}

func (m *Metrics) command(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Commands.WithLabelValues(name, result).Inc()
}

func (m *Metrics) added(inserted []bool, growths int, created bool) {
	if m == nil {
		return
	}
	for _, ok := range inserted {
		if ok {
			m.Inserted.Inc()
		} else {
			m.Duplicates.Inc()
		}
	}
	m.Growths.Add(float64(growths))
	if created {
		m.Created.Inc()
	}
}
