package export

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"TTSCurator/internal/curation"
	"TTSCurator/internal/models"
	"TTSCurator/pkg/config"
	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/util"
)

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string]string
	failOn  string
}

func (u *fakeUploader) Name() string { return "fake" }

func (u *fakeUploader) Upload(_ context.Context, bucket, key string, r io.Reader, size int64) error {
	if key == u.failOn {
		return errors.New("access denied")
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.objects == nil {
		u.objects = make(map[string]string)
	}
	u.objects[bucket+"/"+key] = string(body)
	return nil
}

type env struct {
	db         *gorm.DB
	dir        string
	settings   *curation.SettingsService
	recordings *curation.RecordingManager
	projects   *curation.ProjectManager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := util.InitDatabase(util.DriverSQLite, "file::memory:", false)
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		util.Sig().Clear()
	})
	dir := filepath.Join(t.TempDir(), "recordings")
	settings := curation.NewSettingsService(db, nil, dir)
	recordings := curation.NewRecordingManager(db, settings, nil)
	return &env{
		db:         db,
		dir:        dir,
		settings:   settings,
		recordings: recordings,
		projects:   curation.NewProjectManager(db, recordings, nil),
	}
}

func (e *env) seed(t *testing.T, name string, texts []string, record ...string) uint {
	t.Helper()
	ctx := context.Background()
	res, err := e.projects.CreateWithPrompts(ctx, name, texts, false)
	require.NoError(t, err)
	for _, text := range record {
		_, err := e.recordings.Upload(ctx, res.ProjectID, text, strings.NewReader("audio:"+text))
		require.NoError(t, err)
	}
	return res.ProjectID
}

func (e *env) set(t *testing.T, upd curation.SettingsUpdate) {
	t.Helper()
	_, err := e.settings.Update(context.Background(), upd)
	require.NoError(t, err)
}

func ptr(s string) *string { return &s }

func TestObjectExportRequiresBucket(t *testing.T) {
	e := newEnv(t)
	exp := NewObjectExporter(e.settings, &fakeUploader{}, 0, nil)

	_, err := exp.Export(context.Background(), "")
	assert.Equal(t, "S3 bucket not configured", apperrors.GetMessage(err))
}

func TestObjectExportSingleAndAll(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "Demo", []string{"Hello", "World"}, "Hello", "World")
	e.set(t, curation.SettingsUpdate{S3Bucket: ptr("bucket")})

	up := &fakeUploader{failOn: curation.Filename("World")}
	exp := NewObjectExporter(e.settings, up, time.Minute, nil)

	res, err := exp.Export(context.Background(), curation.Filename("Hello"))
	require.NoError(t, err)
	assert.Equal(t, []string{curation.Filename("Hello")}, res.Uploaded)
	assert.Equal(t, "audio:Hello", up.objects["bucket/"+curation.Filename("Hello")])

	_, err = exp.Export(context.Background(), "missing.wav")
	assert.Equal(t, "File not found", apperrors.GetMessage(err))

	_, err = exp.Export(context.Background(), curation.Filename("World"))
	assert.Equal(t, "access denied", apperrors.GetMessage(err))

	// 批量模式跳过失败的文件
	res, err = exp.Export(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, []string{curation.Filename("Hello")}, res.Uploaded)
}

type fakeHub struct {
	mu      sync.Mutex
	created []map[string]any
	commits map[string][]map[string]any
	status  int
}

func (h *fakeHub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/repos/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer hf_token", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		h.mu.Lock()
		h.created = append(h.created, body)
		h.mu.Unlock()
		if h.status != 0 {
			w.WriteHeader(h.status)
			_, _ = w.Write([]byte(`{"error":"quota exceeded"}`))
			return
		}
		_, _ = w.Write([]byte(`{"url":"ok"}`))
	})
	mux.HandleFunc("/api/datasets/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))
		var lines []map[string]any
		sc := bufio.NewScanner(r.Body)
		sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
		for sc.Scan() {
			var line map[string]any
			require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
			lines = append(lines, line)
		}
		h.mu.Lock()
		if h.commits == nil {
			h.commits = make(map[string][]map[string]any)
		}
		h.commits[r.URL.Path] = lines
		h.mu.Unlock()
		_, _ = w.Write([]byte(`{"commitOid":"abc"}`))
	})
	return mux
}

func TestDatasetName(t *testing.T) {
	assert.Equal(t, "me/tts-my-demo-set", DatasetName("me/tts", "My Demo Set"))
}

func TestHubExportPushesAudiofolder(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, "My Demo", []string{"Hello", "World", "Skip"}, "World", "Hello")
	e.set(t, curation.SettingsUpdate{HuggingfaceToken: ptr("hf_token"), HuggingfaceRepo: ptr("me/tts")})

	hub := &fakeHub{}
	srv := httptest.NewServer(hub.handler(t))
	defer srv.Close()

	exp := NewHubExporter(e.db, e.settings, NewHubClient(srv.URL), config.HubConfig{Timeout: 10 * time.Second}, nil)
	res, err := exp.Export(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, "me/tts-my-demo", res.DatasetName)
	assert.Equal(t, []string{
		filepath.Join(e.dir, curation.Filename("Hello")),
		filepath.Join(e.dir, curation.Filename("World")),
	}, res.Uploaded)

	require.Len(t, hub.created, 1)
	assert.Equal(t, "me", hub.created[0]["organization"])
	assert.Equal(t, "tts-my-demo", hub.created[0]["name"])
	assert.Equal(t, true, hub.created[0]["private"])

	lines := hub.commits["/api/datasets/me/tts-my-demo/commit/main"]
	require.Len(t, lines, 4)
	assert.Equal(t, "header", lines[0]["key"])

	files := map[string]string{}
	for _, l := range lines[1:] {
		v := l["value"].(map[string]any)
		raw, err := base64.StdEncoding.DecodeString(v["content"].(string))
		require.NoError(t, err)
		files[v["path"].(string)] = string(raw)
	}
	assert.Equal(t, "audio:Hello", files["data/"+curation.Filename("Hello")])
	meta := files["data/metadata.csv"]
	assert.True(t, strings.HasPrefix(meta, "file_name,text,prompt_id,order_index,recorded_at\n"))
	assert.Contains(t, meta, curation.Filename("World")+",World,")
}

func TestHubExportErrors(t *testing.T) {
	e := newEnv(t)
	empty := e.seed(t, "Empty", []string{"Hello"})

	hub := &fakeHub{status: http.StatusForbidden}
	srv := httptest.NewServer(hub.handler(t))
	defer srv.Close()
	exp := NewHubExporter(e.db, e.settings, NewHubClient(srv.URL), config.HubConfig{}, nil)

	_, err := exp.Export(context.Background(), empty)
	assert.Equal(t, "Hugging Face token or repo not configured", apperrors.GetMessage(err))

	// 环境变量兜底
	exp.cfg.Token = "hf_token"
	exp.cfg.Repo = "me/tts"

	_, err = exp.Export(context.Background(), 999)
	assert.Equal(t, "Project not found", apperrors.GetMessage(err))

	_, err = exp.Export(context.Background(), empty)
	assert.Equal(t, "No audio files found for this project", apperrors.GetMessage(err))

	id := e.seed(t, "Full", []string{"Hi"}, "Hi")
	_, err = exp.Export(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, apperrors.GetMessage(err), "Failed to push dataset")
	assert.Contains(t, apperrors.GetMessage(err), "quota exceeded")
}

func TestHubExportTimeout(t *testing.T) {
	e := newEnv(t)
	id := e.seed(t, "Slow", []string{"Hi"}, "Hi")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	exp := NewHubExporter(e.db, e.settings, NewHubClient(srv.URL),
		config.HubConfig{Token: "hf_token", Repo: "me/tts", Timeout: 50 * time.Millisecond}, nil)
	_, err := exp.Export(context.Background(), id)
	assert.Equal(t, "Upload timed out. Please try again or check your internet connection.", apperrors.GetMessage(err))
}

func TestResetClearsFilesAndRows(t *testing.T) {
	e := newEnv(t)
	e.seed(t, "Demo", []string{"Hello"}, "Hello")
	e.set(t, curation.SettingsUpdate{S3Bucket: ptr("bucket")})

	msg, err := NewResetter(e.db, e.settings).Reset(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "All data cleared successfully", msg)

	files, err := e.recordings.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)

	projects, err := e.projects.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, projects)

	bucket, err := e.settings.Get(context.Background(), curation.KeyS3Bucket)
	require.NoError(t, err)
	assert.Empty(t, bucket)
}
