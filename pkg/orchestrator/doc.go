// Package orchestrator drives the three-role pipeline (producer, critic,
// integrator) over a remote completion service.
//
// Invariants:
// - History is append-only; sequence indexes are exactly 0..n-1.
// - At most one role invocation is in flight per run.
// - Cancellation is honored only between turns; a completed turn is always recorded.
// - Once the termination rule is satisfied no further role is invoked.
//
// Usage:
//
//	ctrl, _ := orchestrator.NewController(orchestrator.ControllerConfig{
//		Roles:       roles,
//		Termination: orchestrator.DefaultTermination("integrator"),
//		Selector:    orchestrator.NewRoundRobin(),
//	})
//	events, _ := ctrl.Start(ctx, "write a sort function")
//	for ev := range events {
//		_ = ev
//	}
package orchestrator
