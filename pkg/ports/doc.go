/*
Package ports defines the driven ports (interfaces) used by the comfyctl
orchestrator.

These interfaces decouple the run state machine from the concrete HTTP client
and from the bookkeeping backend, so that both can be replaced in tests and in
embedding applications.

# Key Interfaces

  - Transport: the verbs of the remote execution server (probe, submit,
    history, queue, upload, download, close).
  - Uploader: the subset of Transport needed to push an input asset.
  - JobLedger: client-side record of submitted jobs (memory or Redis).
*/
package ports
