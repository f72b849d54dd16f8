// Package job defines the scrape job entity — the unit of admission — along
// with its payload, lifecycle states, construction options, and the
// per-mode handler registry used by the worker pool.
package job
