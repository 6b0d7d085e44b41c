package domain

import "time"

// Output categories reported by the server, in collection order.
const (
	CategoryImages = "images"
	CategoryGifs   = "gifs"
	CategoryVideos = "videos"
)

// OutputCategories lists the categories that are downloaded, in the order they
// are visited for every node.
var OutputCategories = []string{CategoryImages, CategoryGifs, CategoryVideos}

// Submission is the server acknowledgement of a queued job.
type Submission struct {
	JobID      string         `json:"prompt_id"`
	ClientID   string         `json:"client_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors,omitempty"`
}

// OutputFile references one file stored on the server.
type OutputFile struct {
	Filename  string `json:"filename" mapstructure:"filename"`
	Subfolder string `json:"subfolder,omitempty" mapstructure:"subfolder"`
	Type      string `json:"type,omitempty" mapstructure:"type"`
	Category  string `json:"category,omitempty"`
}

// NodeOutput groups the files one node produced.
type NodeOutput struct {
	NodeID string
	Files  []OutputFile
}

// JobStatus is the execution status reported inside a history record.
type JobStatus struct {
	Status    string `json:"status_str" mapstructure:"status_str"`
	Completed bool   `json:"completed" mapstructure:"completed"`
	Messages  []any  `json:"messages,omitempty" mapstructure:"messages"`
}

// Failed reports whether the server marked the execution as an error.
func (s JobStatus) Failed() bool {
	return s.Status == "error"
}

// HistoryRecord is the terminal record of a job. Outputs keep the order in
// which the server listed the nodes.
type HistoryRecord struct {
	JobID   string
	Outputs []NodeOutput
	Status  JobStatus
}

// Files flattens the outputs in node-then-category order.
func (r *HistoryRecord) Files() []OutputFile {
	var files []OutputFile
	for _, out := range r.Outputs {
		files = append(files, out.Files...)
	}
	return files
}

// QueueState counts the jobs the server is running and holding.
type QueueState struct {
	Running int `json:"running"`
	Pending int `json:"pending"`
}

// Remaining is the number of jobs ahead of or alongside ours.
func (q QueueState) Remaining() int {
	return q.Running + q.Pending
}

// UploadedAsset is the server-side reference of an uploaded input file.
type UploadedAsset struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder,omitempty"`
	Type      string `json:"type,omitempty"`
	Size      int64  `json:"size"`
}

// EntryStatus is the client-side bookkeeping status of a submitted job.
type EntryStatus string

const (
	EntrySubmitted   EntryStatus = "submitted"
	EntryCompleted   EntryStatus = "completed"
	EntryFailed      EntryStatus = "failed"
	EntryInterrupted EntryStatus = "interrupted"
)

// JobEntry is the ledger line for one submitted job.
type JobEntry struct {
	JobID         string      `json:"job_id"`
	ClientID      string      `json:"client_id"`
	Workflow      string      `json:"workflow,omitempty"`
	Status        EntryStatus `json:"status"`
	PrimaryOutput string      `json:"primary_output,omitempty"`
	Outputs       []string    `json:"outputs,omitempty"`
	Error         string      `json:"error,omitempty"`
	SubmittedAt   time.Time   `json:"submitted_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}
