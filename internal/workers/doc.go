// Package workers sizes goroutine pools from the CPUs the process may use.
//
// Library walks are filesystem bound, so the scanner sizes its walker with
// ForIO unless library.workers is set:
//
//	n := workers.Resolve(cfg.Library.Workers, workers.ForIO, 16)
package workers
