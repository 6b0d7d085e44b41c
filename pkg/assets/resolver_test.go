package assets_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/comfyctl/pkg/assets"
	"github.com/aretw0/comfyctl/pkg/domain"
	"github.com/aretw0/comfyctl/pkg/graph"
)

type fakeUploader struct {
	name  string
	err   error
	paths []string
}

func (f *fakeUploader) UploadAsset(_ context.Context, localPath string) (*domain.UploadedAsset, error) {
	f.paths = append(f.paths, localPath)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.UploadedAsset{Name: f.name}, nil
}

func document(nodes ...string) *graph.Document {
	doc := graph.NewDocument()
	for i := 0; i+1 < len(nodes); i += 2 {
		doc.Set(nodes[i], graph.Node{"class_type": nodes[i+1], "inputs": map[string]any{}})
	}
	return doc
}

func TestResolve_EmptyPath(t *testing.T) {
	up := &fakeUploader{}
	updates, err := assets.NewResolver(up).Resolve(context.Background(), document("1", "LoadImage"), "")
	require.NoError(t, err)
	assert.Empty(t, updates)
	assert.Empty(t, up.paths)
}

func TestResolve_FirstMatchInDocumentOrder(t *testing.T) {
	up := &fakeUploader{name: "portrait.png"}
	doc := document("52", "WanVideoSampler", "58", "LoadImage", "59", "LoadImage")

	updates, err := assets.NewResolver(up).Resolve(context.Background(), doc, "/tmp/in/portrait.png")
	require.NoError(t, err)
	assert.Equal(t, []domain.ParameterUpdate{{
		NodeID: "58", Section: "inputs", Field: "image", Value: "portrait.png",
	}}, updates)
	assert.Equal(t, []string{"/tmp/in/portrait.png"}, up.paths)
}

func TestResolve_FallsBackToBasename(t *testing.T) {
	up := &fakeUploader{}
	updates, err := assets.NewResolver(up).Resolve(context.Background(), document("7", "LoadImage"), "/data/cat.jpg")
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "cat.jpg", updates[0].Value)
}

func TestResolve_NoConsumerNode(t *testing.T) {
	up := &fakeUploader{name: "x.png"}
	updates, err := assets.NewResolver(up).Resolve(context.Background(), document("1", "KSampler"), "x.png")
	require.NoError(t, err)
	assert.Empty(t, updates)
	assert.Len(t, up.paths, 1, "the asset is uploaded regardless")
}

func TestResolve_UploadFailure(t *testing.T) {
	up := &fakeUploader{err: fmt.Errorf("%w: boom", domain.ErrUpload)}
	_, err := assets.NewResolver(up).Resolve(context.Background(), document("1", "LoadImage"), "x.png")
	assert.True(t, errors.Is(err, domain.ErrUpload))
}

func TestResolve_CustomKindsAndField(t *testing.T) {
	up := &fakeUploader{name: "clip.mp4"}
	r := assets.NewResolver(up, assets.WithKinds("VHS_LoadVideo", "LoadVideo"), assets.WithField("video"))
	doc := document("1", "LoadImage", "2", "LoadVideo", "3", "VHS_LoadVideo")

	updates, err := r.Resolve(context.Background(), doc, "clip.mp4")
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "2", updates[0].NodeID)
	assert.Equal(t, "video", updates[0].Field)
}
