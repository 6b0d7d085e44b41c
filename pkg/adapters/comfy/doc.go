/*
Package comfy is the transport client for a ComfyUI-compatible execution
server.

A Client owns one connection pool and one session identifier for its whole
lifetime. It exposes the primitive verbs the orchestrator sequences: probe,
submit, history, queue, upload and download. Transient failures (HTTP 429,
any 5xx, dropped connections) are retried with exponential backoff up to
RetryPolicy.MaxAttempts; everything else surfaces immediately as an error
wrapping one of the domain sentinels.

	client, err := comfy.New(comfy.Options{Server: "127.0.0.1:8188"})
	if err != nil {
		return err
	}
	defer client.Close()

	if !client.CheckConnection(ctx) {
		return domain.ErrConnectivity
	}
*/
package comfy
