// Package stats summarises operational durations such as response times and
// corridor lifetimes.
package stats

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/resqroute/core/incident"
	"github.com/kilianp07/resqroute/core/model"
)

// Summary describes a sample of durations.
type Summary struct {
	Count  int           `json:"count"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stddev"`
	Min    time.Duration `json:"min"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	Max    time.Duration `json:"max"`
}

// Summarize computes a Summary. An empty sample yields the zero Summary.
func Summarize(ds []time.Duration) Summary {
	if len(ds) == 0 {
		return Summary{}
	}
	x := make([]float64, len(ds))
	for i, d := range ds {
		x[i] = float64(d)
	}
	sort.Float64s(x)
	mean, std := stat.MeanStdDev(x, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return Summary{
		Count:  len(x),
		Mean:   time.Duration(mean),
		StdDev: time.Duration(std),
		Min:    time.Duration(x[0]),
		P50:    time.Duration(stat.Quantile(0.5, stat.Empirical, x, nil)),
		P90:    time.Duration(stat.Quantile(0.9, stat.Empirical, x, nil)),
		Max:    time.Duration(x[len(x)-1]),
	}
}

// Report groups incident summaries per domain.
type Report struct {
	Domain            model.Domain `json:"domain"`
	Incidents         int          `json:"incidents"`
	Completed         int          `json:"completed"`
	Cancelled         int          `json:"cancelled"`
	ResponseTime      Summary      `json:"response_time"`
	OperationDuration Summary      `json:"operation_duration"`
}

// Incidents builds one Report per domain present in incs, sorted by domain.
func Incidents(incs []*model.Incident) []Report {
	type acc struct {
		r        Report
		resp, op []time.Duration
	}
	by := map[model.Domain]*acc{}
	for _, inc := range incs {
		a, ok := by[inc.Domain]
		if !ok {
			a = &acc{r: Report{Domain: inc.Domain}}
			by[inc.Domain] = a
		}
		a.r.Incidents++
		switch inc.Status {
		case model.StatusCompleted:
			a.r.Completed++
		case model.StatusCancelled:
			a.r.Cancelled++
		}
		if d, ok := incident.ResponseTime(inc); ok {
			a.resp = append(a.resp, d)
		}
		if d, ok := incident.OperationDuration(inc); ok {
			a.op = append(a.op, d)
		}
	}
	out := make([]Report, 0, len(by))
	for _, a := range by {
		a.r.ResponseTime = Summarize(a.resp)
		a.r.OperationDuration = Summarize(a.op)
		out = append(out, a.r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}
