// Package factory instantiates pluggable modules, such as metrics sinks, from
// configuration. A module is a type string plus a map of raw settings that
// the registered factory decodes with Decode.
//
//	reg := factory.NewRegistry[metrics.MetricsSink]()
//	reg.Register("influx", func(conf map[string]any) (metrics.MetricsSink, error) {
//	    var c influxConf
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return newInflux(c)
//	})
package factory
