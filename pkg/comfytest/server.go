// Package comfytest provides an in-process fake execution server for tests.
//
// The server speaks the subset of the HTTP API the client uses. History
// answers are scripted, so a test can describe "not finished, not finished,
// finished with these outputs" and inspect what the client sent.
package comfytest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Route names accepted by FailNext and Calls.
const (
	RouteQueue   = "queue"
	RoutePrompt  = "prompt"
	RouteHistory = "history"
	RouteUpload  = "upload"
	RouteView    = "view"
)

// Node lists the files one node reports, per category.
type Node struct {
	ID     string
	Images []string
	Gifs   []string
	Videos []string
}

// Record is one scripted history answer for the job.
type Record struct {
	Nodes  []Node
	Status string
}

// Submission is a captured POST /prompt body.
type Submission struct {
	ClientID string
	Prompt   map[string]any
}

// Upload is a captured multipart upload.
type Upload struct {
	Field     string
	Filename  string
	Data      []byte
	Overwrite string
}

// Server is a fake execution server bound to a local port.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	jobID       string
	history     []*Record
	historyHits int
	running     int
	pending     int
	uploadName  string
	files       map[string][]byte
	missing     map[string]bool
	failures    map[string][]int
	calls       map[string]int
	submissions []Submission
	uploads     []Upload
	downloads   []string
}

// Option configures a Server.
type Option func(*Server)

// WithJobID sets the identifier returned on submission. An empty id makes the
// server omit prompt_id from its answer.
func WithJobID(id string) Option {
	return func(s *Server) { s.jobID = id }
}

// WithHistory scripts successive history answers. The n-th history request
// gets the n-th record and the last one repeats. A nil record means the job is
// not finished yet.
func WithHistory(records ...*Record) Option {
	return func(s *Server) { s.history = records }
}

// WithQueue sets the running and pending counters.
func WithQueue(running, pending int) Option {
	return func(s *Server) {
		s.running = running
		s.pending = pending
	}
}

// WithUploadName makes the server store uploads under name.
func WithUploadName(name string) Option {
	return func(s *Server) { s.uploadName = name }
}

// WithFile serves data for filename on /view.
func WithFile(filename string, data []byte) Option {
	return func(s *Server) { s.files[filename] = data }
}

// WithMissingFile makes /view answer 404 for filename even when a record lists it.
func WithMissingFile(filename string) Option {
	return func(s *Server) { s.missing[filename] = true }
}

// New starts a server and closes it when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		jobID:    "job-1",
		files:    make(map[string][]byte),
		missing:  make(map[string]bool),
		failures: make(map[string][]int),
		calls:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/queue", s.guard(RouteQueue, s.handleQueue))
	r.Post("/prompt", s.guard(RoutePrompt, s.handlePrompt))
	r.Get("/history/{jobID}", s.guard(RouteHistory, s.handleHistory))
	r.Post("/upload/image", s.guard(RouteUpload, s.handleUpload))
	r.Get("/view", s.guard(RouteView, s.handleView))
	return r
}

// FailNext makes the next len(codes) requests on route answer with codes, in
// order, before normal handling resumes.
func (s *Server) FailNext(route string, codes ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], codes...)
}

// SetHistory replaces the scripted history answers and restarts the script.
func (s *Server) SetHistory(records ...*Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = records
	s.historyHits = 0
}

// Calls counts the requests received on route, injected failures included.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// Submissions returns the captured submissions.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

// Uploads returns the captured uploads.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Downloads returns the filenames served by /view, in request order.
func (s *Server) Downloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.downloads...)
}

func (s *Server) guard(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[route]++
		var code int
		if pending := s.failures[route]; len(pending) > 0 {
			code = pending[0]
			s.failures[route] = pending[1:]
		}
		s.mu.Unlock()

		if code != 0 {
			http.Error(w, fmt.Sprintf("injected failure %d", code), code)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	running := make([]any, s.running)
	pending := make([]any, s.pending)
	s.mu.Unlock()
	for i := range running {
		running[i] = []any{i, "running"}
	}
	for i := range pending {
		pending[i] = []any{i, "pending"}
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue_running": running, "queue_pending": pending})
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt   map[string]any `json:"prompt"`
		ClientID string         `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       map[string]any{"type": "invalid_prompt", "message": "invalid prompt", "details": err.Error()},
			"node_errors": map[string]any{},
		})
		return
	}

	s.mu.Lock()
	s.submissions = append(s.submissions, Submission{ClientID: body.ClientID, Prompt: body.Prompt})
	jobID := s.jobID
	number := len(s.submissions)
	s.mu.Unlock()

	resp := map[string]any{"number": number, "node_errors": map[string]any{}}
	if jobID != "" {
		resp["prompt_id"] = jobID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	jobID := s.jobID
	var record *Record
	if len(s.history) > 0 {
		idx := s.historyHits
		if idx >= len(s.history) {
			idx = len(s.history) - 1
		}
		record = s.history[idx]
	}
	s.historyHits++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if record == nil || chi.URLParam(r, "jobID") != jobID {
		_, _ = io.WriteString(w, "{}")
		return
	}
	_, _ = w.Write(encodeHistory(jobID, record))
}

// encodeHistory writes the record by hand so node order survives.
func encodeHistory(jobID string, record *Record) []byte {
	var buf bytes.Buffer
	key, _ := json.Marshal(jobID)
	buf.WriteString("{")
	buf.Write(key)
	buf.WriteString(`:{"outputs":{`)
	for i, node := range record.Nodes {
		if i > 0 {
			buf.WriteString(",")
		}
		id, _ := json.Marshal(node.ID)
		files := map[string]any{}
		for category, names := range map[string][]string{"images": node.Images, "gifs": node.Gifs, "videos": node.Videos} {
			if len(names) == 0 {
				continue
			}
			entries := make([]map[string]string, 0, len(names))
			for _, name := range names {
				entries = append(entries, map[string]string{"filename": name, "subfolder": "", "type": "output"})
			}
			files[category] = entries
		}
		body, _ := json.Marshal(files)
		buf.Write(id)
		buf.WriteString(":")
		buf.Write(body)
	}
	status := record.Status
	if status == "" {
		status = "success"
	}
	statusBody, _ := json.Marshal(map[string]any{"status_str": status, "completed": status == "success", "messages": []any{}})
	buf.WriteString(`},"status":`)
	buf.Write(statusBody)
	buf.WriteString("}}")
	return buf.Bytes()
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{
		Field:     "image",
		Filename:  header.Filename,
		Data:      data,
		Overwrite: r.FormValue("overwrite"),
	})
	name := s.uploadName
	s.mu.Unlock()
	if name == "" {
		name = header.Filename
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "subfolder": "", "type": "input"})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("filename")

	s.mu.Lock()
	data, ok := s.files[name]
	if !ok && !s.missing[name] && s.listed(name) {
		data, ok = []byte("content of "+name), true
	}
	if ok {
		s.downloads = append(s.downloads, name)
	}
	s.mu.Unlock()

	if !ok {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}

// listed reports whether any scripted record names filename. Callers hold mu.
func (s *Server) listed(filename string) bool {
	for _, record := range s.history {
		if record == nil {
			continue
		}
		for _, node := range record.Nodes {
			for _, names := range [][]string{node.Images, node.Gifs, node.Videos} {
				for _, name := range names {
					if name == filename {
						return true
					}
				}
			}
		}
	}
	return false
}
