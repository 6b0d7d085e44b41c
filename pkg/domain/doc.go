/*
Package domain contains the core types shared by every comfyctl component.

It defines the values that travel between the transport client, the graph
patcher and the job orchestrator, as well as the error taxonomy used across
the module. The package is kept free of I/O so that it can be imported by
adapters and by the orchestrator alike.

# Key Entities

  - ParameterUpdate: a structured (node, section, field, value) patch.
  - Submission: the server's acknowledgement of a queued job.
  - HistoryRecord: the terminal record of a job and the files it produced.
  - QueueState: running/pending counters used for progress reporting.
  - JobEntry: the client-side ledger line for one submitted job.
  - RunState: the states of the orchestration state machine.
*/
package domain
