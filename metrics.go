// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package carp

import "expvar"

// rtMetrics record runtime activity counters.
type rtMetrics struct {
	moduleLoads       expvar.Int // number of module descriptors loaded
	moduleLoadsFailed expvar.Int // number of module descriptor loads that failed
	typesResolved     expvar.Int // number of type resolutions completed
	callsOut          expvar.Int // number of outbound calls initiated
	callsOutErr       expvar.Int // number of outbound calls reporting an error
	translatorsBuilt  expvar.Int // number of call translators constructed
	proxiesCreated    expvar.Int // number of proxies constructed
	proxiesLive       expvar.Int // proxies currently cached (gauge)
	reclaimRuns       expvar.Int // number of cleanup actions run
	reclaimPanics     expvar.Int // number of cleanup actions that panicked

	emap *expvar.Map
}

var runtimeMetrics = newRTMetrics()

func newRTMetrics() *rtMetrics {
	m := &rtMetrics{emap: new(expvar.Map)}
	m.emap.Set("module_loads", &m.moduleLoads)
	m.emap.Set("module_loads_failed", &m.moduleLoadsFailed)
	m.emap.Set("types_resolved", &m.typesResolved)
	m.emap.Set("calls_out", &m.callsOut)
	m.emap.Set("calls_out_failed", &m.callsOutErr)
	m.emap.Set("translators_built", &m.translatorsBuilt)
	m.emap.Set("proxies_created", &m.proxiesCreated)
	m.emap.Set("proxies_live", &m.proxiesLive)
	m.emap.Set("reclaims_run", &m.reclaimRuns)
	m.emap.Set("reclaims_panicked", &m.reclaimPanics)
	return m
}
