// Package cache provides a generic, thread-safe keyed cache with built-in
// statistics and optional Prometheus metrics.
//
// It backs lookup tables that are computed lazily and reused
// for the life of their owner, such as the per-enum symbol tables of the
// codec. Statistics are always collected:
//
//	c, _ := cache.NewSimple[*symbol.Table]()
//	table, err := c.GetOrCompute("pkg.Color", func() (*symbol.Table, error) {
//	    return symbol.NewTable(names, "_"), nil
//	})
//	fmt.Println(c.Stats().HitRatio())
//
// WithMetrics additionally exports the statistics as
// protosignal_cache_{hits,misses,sets,deletes}_total and protosignal_cache_size,
// labelled by component.
package cache
