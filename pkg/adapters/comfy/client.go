package comfy

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
	"github.com/aretw0/comfyctl/pkg/observability"
	"github.com/aretw0/comfyctl/pkg/ports"
)

const userAgent = "comfyctl"

// Server endpoints.
const (
	pathQueue   = "/queue"
	pathPrompt  = "/prompt"
	pathHistory = "/history/"
	pathUpload  = "/upload/image"
	pathView    = "/view"
)

// Multipart fields of an upload: the file itself and the overwrite flag.
const (
	uploadField    = "image"
	overwriteField = "overwrite"
)

// Client talks to one execution server. It is safe for concurrent use.
type Client struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
	retry      RetryPolicy

	timeout         time.Duration
	probeTimeout    time.Duration
	uploadTimeout   time.Duration
	downloadTimeout time.Duration

	closeOnce sync.Once
	closed    atomic.Bool
}

var _ ports.Transport = (*Client)(nil)

// New builds a client with a fresh session identifier and its own pool.
func New(opts Options) (*Client, error) {
	base, err := normalizeServer(opts.Server)
	if err != nil {
		return nil, err
	}

	c := &Client{
		baseURL:         base,
		sessionID:       uuid.NewString(),
		httpClient:      opts.HTTPClient,
		logger:          opts.Logger,
		metrics:         opts.Metrics,
		retry:           opts.Retry.withDefaults(),
		timeout:         orDefault(opts.Timeout, DefaultTimeout),
		probeTimeout:    orDefault(opts.ProbeTimeout, DefaultProbeTimeout),
		uploadTimeout:   orDefault(opts.UploadTimeout, DefaultUploadTimeout),
		downloadTimeout: orDefault(opts.DownloadTimeout, DefaultDownloadTimeout),
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Transport: newPool(opts.InsecureSkipVerify)}
	}
	c.logger = c.logger.With("server", c.baseURL)
	return c, nil
}

func newPool(insecure bool) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConnsPerHost = 10
	if insecure {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return t
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// normalizeServer accepts host:port or a URL and returns a base URL without a
// trailing slash. Bare addresses are assumed to be plain http.
func normalizeServer(server string) (string, error) {
	server = strings.TrimSpace(server)
	if server == "" {
		server = DefaultServer
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server address %q: %w", server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid server address %q: unsupported scheme %q", server, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server address %q: missing host", server)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	if len(query) == 0 {
		return c.baseURL + path
	}
	return c.baseURL + path + "?" + query.Encode()
}

// BaseURL is the normalized server address.
func (c *Client) BaseURL() string { return c.baseURL }

// SessionID is the client identifier sent with every submission.
func (c *Client) SessionID() string { return c.sessionID }

// Closed reports whether Close has been called.
func (c *Client) Closed() bool { return c.closed.Load() }

// Close releases idle connections. Later calls are no-ops and every verb
// called afterwards fails with domain.ErrClientClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.httpClient.CloseIdleConnections()
		c.logger.Debug("client closed")
	})
	return nil
}

// CheckConnection probes the queue endpoint. Any failure reports false.
func (c *Client) CheckConnection(ctx context.Context) bool {
	req := request{verb: "probe", method: http.MethodGet, path: pathQueue, timeout: c.probeTimeout}
	res, err := c.do(ctx, req)
	if err != nil {
		c.logger.Warn("server probe failed", "err", err)
		return false
	}
	if res.code != http.StatusOK {
		c.logger.Warn("server probe failed", "status", res.code)
		return false
	}
	c.logger.Debug("server reachable")
	return true
}

// Submit queues doc under the client session.
func (c *Client) Submit(ctx context.Context, doc *graph.Document) (*domain.Submission, error) {
	body, err := json.Marshal(submitRequest{Prompt: doc, ClientID: c.sessionID})
	if err != nil {
		return nil, fmt.Errorf("%w: encode document: %w", domain.ErrSubmission, err)
	}
	req := request{
		verb:        "submit",
		method:      http.MethodPost,
		path:        pathPrompt,
		body:        body,
		contentType: "application/json",
		timeout:     c.timeout,
	}
	res, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSubmission, err)
	}
	if err := permanentStatus(res, req); err != nil {
		se := err.(*domain.StatusError)
		var rejection submitRejection
		if json.Unmarshal(res.body, &rejection) == nil && rejection.Error.Message != "" {
			se.Body = rejection.summary()
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrSubmission, se)
	}

	var ack submitResponse
	if err := json.Unmarshal(res.body, &ack); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", domain.ErrSubmission, err)
	}
	if ack.PromptID == "" {
		return nil, fmt.Errorf("%w: response carries no prompt_id", domain.ErrSubmission)
	}
	c.logger.Info("job submitted", "job_id", ack.PromptID, "number", ack.Number)
	return &domain.Submission{
		JobID:      ack.PromptID,
		ClientID:   c.sessionID,
		Number:     ack.Number,
		NodeErrors: ack.NodeErrors,
	}, nil
}

// FetchHistory returns the job record, or nil, nil when the server has no
// record for it yet.
func (c *Client) FetchHistory(ctx context.Context, jobID string) (*domain.HistoryRecord, error) {
	req := request{
		verb:    "history",
		method:  http.MethodGet,
		path:    pathHistory + url.PathEscape(jobID),
		timeout: c.timeout,
	}
	res, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	if err := permanentStatus(res, req); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(res.body, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode history: %w", domain.ErrTransport, err)
	}
	raw, ok := entries[jobID]
	if !ok {
		return nil, nil
	}
	record, err := decodeHistory(jobID, raw, c.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	return record, nil
}

// FetchQueue reads the running and pending counters.
func (c *Client) FetchQueue(ctx context.Context) (domain.QueueState, error) {
	req := request{verb: "queue", method: http.MethodGet, path: pathQueue, timeout: c.timeout}
	res, err := c.do(ctx, req)
	if err != nil {
		return domain.QueueState{}, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	if err := permanentStatus(res, req); err != nil {
		return domain.QueueState{}, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	var q queueResponse
	if err := json.Unmarshal(res.body, &q); err != nil {
		return domain.QueueState{}, fmt.Errorf("%w: decode queue: %w", domain.ErrTransport, err)
	}
	return domain.QueueState{Running: len(q.Running), Pending: len(q.Pending)}, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// UploadAsset sends the file at localPath to the input store and returns the
// name the server stored it under. The whole file is buffered so retries can
// resend it.
func (c *Client) UploadAsset(ctx context.Context, localPath string) (*domain.UploadedAsset, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	name := filepath.Base(localPath)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename="%s"`, uploadField, quoteEscaper.Replace(name)))
	header.Set("Content-Type", contentTypeFor(name, data))
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	// Without overwrite the server renames clashing files.
	if err := mw.WriteField(overwriteField, "true"); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}

	c.logger.Info("uploading asset", "path", localPath, "bytes", len(data))
	req := request{
		verb:        "upload",
		method:      http.MethodPost,
		path:        pathUpload,
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		timeout:     c.uploadTimeout,
	}
	res, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}
	if err := permanentStatus(res, req); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpload, err)
	}

	var ack uploadResponse
	if err := json.Unmarshal(res.body, &ack); err != nil {
		c.logger.Warn("upload response not understood, using local name", "err", err)
	}
	if ack.Name == "" {
		ack.Name = name
	}
	return &domain.UploadedAsset{
		Name:      ack.Name,
		Subfolder: ack.Subfolder,
		Type:      ack.Type,
		Size:      int64(len(data)),
	}, nil
}

// localSubfolder keeps the named segments of a server subfolder, dropping
// empty, "." and ".." parts.
func localSubfolder(subfolder string) string {
	segments := strings.FieldsFunc(subfolder, func(r rune) bool { return r == '/' || r == '\\' })
	kept := segments[:0]
	for _, s := range segments {
		if s == "." || s == ".." || strings.ContainsRune(s, ':') {
			continue
		}
		kept = append(kept, s)
	}
	return filepath.Join(kept...)
}

func contentTypeFor(name string, data []byte) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// Download fetches file and writes it as destDir/<subfolder>/<basename>,
// creating directories when needed. The subfolder is reduced to plain path
// segments so it stays inside destDir. An existing file is replaced.
func (c *Client) Download(ctx context.Context, file domain.OutputFile, destDir string) (string, error) {
	name := filepath.Base(file.Filename)
	if file.Filename == "" || name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("%w: invalid file name %q", domain.ErrDownload, file.Filename)
	}
	kind := file.Type
	if kind == "" {
		kind = "output"
	}
	query := url.Values{"filename": {file.Filename}, "type": {kind}}
	if file.Subfolder != "" {
		query.Set("subfolder", file.Subfolder)
	}

	req := request{
		verb:    "download",
		method:  http.MethodGet,
		path:    pathView,
		query:   query,
		timeout: c.downloadTimeout,
	}
	res, err := c.do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrDownload, file.Filename, err)
	}
	if err := permanentStatus(res, req); err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrDownload, file.Filename, err)
	}

	dest := filepath.Join(destDir, localSubfolder(file.Subfolder), name)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrDownload, err)
	}
	if err := os.WriteFile(dest, res.body, 0o644); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrDownload, err)
	}
	c.logger.Info("output saved", "file", dest, "bytes", len(res.body))
	return dest, nil
}
