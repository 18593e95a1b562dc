package export

import (
	"context"
	"io"
)

// ObjectUploader puts one object into a bucket of a remote object store.
type ObjectUploader interface {
	Upload(ctx context.Context, bucket, key string, r io.Reader, size int64) error
	Name() string
}

// Result 导出结果
type Result struct {
	Status      string   `json:"status"`
	Uploaded    []string `json:"uploaded"`
	DatasetName string   `json:"dataset_name,omitempty"`
}

// Event is the payload of export signals.
type Event struct {
	Target      string `json:"target"`
	Status      string `json:"status"`
	Count       int    `json:"count"`
	ProjectID   uint   `json:"project_id,omitempty"`
	DatasetName string `json:"dataset_name,omitempty"`
	Detail      string `json:"detail,omitempty"`
}
