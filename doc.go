/*
Package comfyctl drives a ComfyUI-compatible execution server from Go.

It loads a workflow saved in API format, optionally uploads an input asset and
binds it to the first image loader, patches node parameters, submits the graph
as a job, waits for the job to reach history and downloads every output file.

# Concept

A workflow is an ordered mapping of node ids to records carrying a class_type
and an inputs mapping. Parameter updates address one field with a
node.section.field path and never mutate the loaded document: each run works
on its own copy. The remote server is opaque; it is reached only through its
HTTP surface, with bounded retries for transient failures.

# Usage

	session, err := comfyctl.Open(comfy.Options{Server: "127.0.0.1:8188"})
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	updates, _ := graph.ParseUpdates([]string{"52.inputs.steps=12", "49.inputs.positive_prompt=a cat"})
	result, err := session.Run(ctx, orchestrator.Request{
		Workflow:  "workflows/image_to_video.json",
		AssetPath: "portrait.png",
		Updates:   updates,
		OutputDir: "output",
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(result.Primary)

# Packages

  - pkg/graph: workflow documents, parameter updates and patching.
  - pkg/adapters/comfy: the HTTP transport client.
  - pkg/assets: upload-and-bind of input assets.
  - pkg/orchestrator: the run state machine.
  - pkg/adapters/memory, pkg/adapters/redis: job ledgers.
  - pkg/comfytest: an in-process fake server for tests.
*/
package comfyctl
