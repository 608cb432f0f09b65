// Package handlers holds the health checking used by the HTTP transport.
//
// Checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("0.1.0")
//	checker.AddCheck("ledger", handlers.NewPingCheck(host))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
package handlers
