package comfy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
)

type submitRequest struct {
	Prompt   *graph.Document `json:"prompt"`
	ClientID string          `json:"client_id"`
}

type submitResponse struct {
	PromptID   string         `json:"prompt_id"`
	Number     int            `json:"number"`
	NodeErrors map[string]any `json:"node_errors"`
}

// submitRejection is the body the server sends with a 400 on /prompt.
type submitRejection struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Details string `json:"details"`
	} `json:"error"`
	NodeErrors map[string]any `json:"node_errors"`
}

func (r submitRejection) summary() string {
	msg := r.Error.Message
	if r.Error.Details != "" {
		msg += ": " + r.Error.Details
	}
	if len(r.NodeErrors) > 0 {
		msg += fmt.Sprintf(" (%d node errors)", len(r.NodeErrors))
	}
	return msg
}

type queueResponse struct {
	Running []json.RawMessage `json:"queue_running"`
	Pending []json.RawMessage `json:"queue_pending"`
}

type uploadResponse struct {
	Name      string `json:"name"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

type historyEntry struct {
	Outputs json.RawMessage `json:"outputs"`
	Status  map[string]any  `json:"status"`
}

// nodeFiles is the subset of a node's outputs that names downloadable files.
type nodeFiles struct {
	Images []domain.OutputFile `mapstructure:"images"`
	Gifs   []domain.OutputFile `mapstructure:"gifs"`
	Videos []domain.OutputFile `mapstructure:"videos"`
}

func (n nodeFiles) byCategory(category string) []domain.OutputFile {
	switch category {
	case domain.CategoryImages:
		return n.Images
	case domain.CategoryGifs:
		return n.Gifs
	case domain.CategoryVideos:
		return n.Videos
	}
	return nil
}

func weakDecode(input, output any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// decodeHistory turns one history entry into a record. Nodes keep the order
// the server listed them in. A node whose outputs do not have the expected
// shape is logged and skipped.
func decodeHistory(jobID string, raw json.RawMessage, logger *slog.Logger) (*domain.HistoryRecord, error) {
	var entry historyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode history entry: %w", err)
	}

	record := &domain.HistoryRecord{JobID: jobID}
	if entry.Status != nil {
		if err := weakDecode(entry.Status, &record.Status); err != nil {
			logger.Warn("ignoring malformed job status", "job_id", jobID, "err", err)
		}
	}

	nodes, err := orderedObject(entry.Outputs)
	if err != nil {
		return nil, fmt.Errorf("decode history outputs: %w", err)
	}
	for _, node := range nodes {
		var files nodeFiles
		if err := weakDecode(node.value, &files); err != nil {
			logger.Warn("skipping node with malformed outputs", "job_id", jobID, "node_id", node.key, "err", err)
			continue
		}
		out := domain.NodeOutput{NodeID: node.key}
		for _, category := range domain.OutputCategories {
			for _, f := range files.byCategory(category) {
				if f.Filename == "" {
					continue
				}
				f.Category = category
				out.Files = append(out.Files, f)
			}
		}
		record.Outputs = append(record.Outputs, out)
	}
	return record, nil
}

type member struct {
	key   string
	value any
}

// orderedObject decodes a JSON object keeping its member order. A missing or
// null object decodes to no members.
func orderedObject(raw json.RawMessage) ([]member, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected an object, got %v", tok)
	}

	var members []member
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key, got %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("member %q: %w", key, err)
		}
		members = append(members, member{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return members, nil
}
