/*
Package orchestrator sequences one job against an execution server.

A run walks a fixed state machine:

	idle → connected → loaded → asset_resolved → patched → submitted → polling → completed

Any step may end the run in failed, or in cancelled when the caller's context
is done. Each transition is logged at debug level and reported through
domain.LifecycleHooks. A job ledger, when configured, keeps a client-side
record of every submitted job so an interrupted wait is never orphaned from
bookkeeping.

	client, _ := comfy.New(comfy.Options{Server: addr})
	result, err := orchestrator.RunOnce(ctx, client, orchestrator.Request{
		Workflow:  "workflow_api.json",
		AssetPath: "portrait.png",
		Updates:   updates,
		OutputDir: "output",
	})
*/
package orchestrator
