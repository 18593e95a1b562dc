package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HubFile is one file of a dataset commit.
type HubFile struct {
	Path string
	Open func() (io.ReadCloser, error)
}

// HubClient 数据集仓库（Hugging Face Hub）HTTP 客户端
type HubClient struct {
	Endpoint string
	HTTP     *http.Client
}

func NewHubClient(endpoint string) *HubClient {
	return &HubClient{
		Endpoint: strings.TrimRight(endpoint, "/"),
		HTTP:     &http.Client{},
	}
}

// CreateDatasetRepo creates a dataset repository. An existing repository is
// not an error.
func (c *HubClient) CreateDatasetRepo(ctx context.Context, token, repoID string, private bool) error {
	body := map[string]any{"type": "dataset", "private": private}
	if org, name, ok := strings.Cut(repoID, "/"); ok {
		body["organization"] = org
		body["name"] = name
	} else {
		body["name"] = repoID
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint+"/api/repos/create", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	return checkResponse(resp)
}

// Commit pushes files to the main branch of a dataset repository in one
// commit. Contents are streamed as base64 NDJSON lines.
func (c *HubClient) Commit(ctx context.Context, token, repoID, summary string, files []HubFile) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeCommit(pw, summary, files))
	}()

	url := fmt.Sprintf("%s/api/datasets/%s/commit/main", c.Endpoint, repoID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return err
	}
	defer resp.Body.Close()
	return checkResponse(resp)
}

func writeCommit(w io.Writer, summary string, files []HubFile) error {
	header, err := json.Marshal(map[string]any{
		"key":   "header",
		"value": map[string]string{"summary": summary, "description": ""},
	})
	if err != nil {
		return err
	}
	if _, err := w.Write(append(header, '\n')); err != nil {
		return err
	}
	for _, f := range files {
		if err := writeFileLine(w, f); err != nil {
			return fmt.Errorf("%s: %w", f.Path, err)
		}
	}
	return nil
}

func writeFileLine(w io.Writer, f HubFile) error {
	path, err := json.Marshal(f.Path)
	if err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if _, err := fmt.Fprintf(w, `{"key":"file","value":{"path":%s,"encoding":"base64","content":"`, path); err != nil {
		return err
	}
	enc := base64.NewEncoder(base64.StdEncoding, w)
	if _, err := io.Copy(enc, rc); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err = io.WriteString(w, "\"}}\n")
	return err
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("hub returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("hub returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
