// Package assets binds a local input file to the graph node that consumes it.
package assets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
	"github.com/aretw0/comfyctl/pkg/ports"
)

// Defaults for the asset-consuming node.
const (
	DefaultKind  = "LoadImage"
	DefaultField = "image"
)

// Resolver uploads an asset and produces the update that points the first
// asset-consuming node at it.
type Resolver struct {
	uploader ports.Uploader
	kinds    []string
	field    string
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithKinds sets the node kinds that consume assets. Empty keeps the default.
func WithKinds(kinds ...string) Option {
	return func(r *Resolver) {
		if len(kinds) > 0 {
			r.kinds = kinds
		}
	}
}

// WithField sets the input field receiving the uploaded name.
func WithField(field string) Option {
	return func(r *Resolver) {
		if field != "" {
			r.field = field
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver uploading through uploader.
func NewResolver(uploader ports.Uploader, opts ...Option) *Resolver {
	r := &Resolver{
		uploader: uploader,
		kinds:    []string{DefaultKind},
		field:    DefaultField,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve uploads localPath and returns at most one update. An empty path is a
// no-op. When the document has no asset-consuming node the file is still
// uploaded and no update is returned.
func (r *Resolver) Resolve(ctx context.Context, doc *graph.Document, localPath string) ([]domain.ParameterUpdate, error) {
	if localPath == "" {
		return nil, nil
	}

	asset, err := r.uploader.UploadAsset(ctx, localPath)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, fmt.Errorf("%w: empty upload result for %s", domain.ErrUpload, localPath)
	}
	name := asset.Name
	if name == "" {
		name = filepath.Base(localPath)
	}

	nodeID, _, ok := doc.FirstOfKind(r.kinds...)
	if !ok {
		r.logger.Debug("no node consumes the uploaded asset", "asset", name, "kinds", r.kinds)
		return nil, nil
	}
	r.logger.Debug("asset bound to node", "asset", name, "node_id", nodeID, "field", r.field)
	return []domain.ParameterUpdate{{
		NodeID:  nodeID,
		Section: domain.SectionInputs,
		Field:   r.field,
		Value:   name,
	}}, nil
}
