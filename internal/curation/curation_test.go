package curation

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"TTSCurator/internal/models"
	"TTSCurator/pkg/cache"
	apperrors "TTSCurator/pkg/errors"
	"TTSCurator/pkg/metrics"
	stores "TTSCurator/pkg/storage"
	"TTSCurator/pkg/util"
)

type fixture struct {
	db         *gorm.DB
	dir        string
	settings   *SettingsService
	recordings *RecordingManager
	projects   *ProjectManager
}

func newFixture(t *testing.T) *fixture {
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
	settings := NewSettingsService(db, cache.NewLocalCache(cache.LocalConfig{MaxSize: 100}), dir)
	recordings := NewRecordingManager(db, settings, nil)
	return &fixture{
		db:         db,
		dir:        dir,
		settings:   settings,
		recordings: recordings,
		projects:   NewProjectManager(db, recordings, nil),
	}
}

func (f *fixture) create(t *testing.T, name string, texts ...string) uint {
	t.Helper()
	res, err := f.projects.CreateWithPrompts(context.Background(), name, texts, false)
	require.NoError(t, err)
	return res.ProjectID
}

func (f *fixture) upload(t *testing.T, projectID uint, text string) *UploadResult {
	t.Helper()
	res, err := f.recordings.Upload(context.Background(), projectID, text, strings.NewReader("RIFF"+text))
	require.NoError(t, err)
	return res
}

func (f *fixture) progress(t *testing.T, projectID uint) models.Progress {
	t.Helper()
	p, err := f.projects.Progress(context.Background(), projectID)
	require.NoError(t, err)
	return *p
}

func md5wav(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:]) + ".wav"
}

func TestParsePromptsText(t *testing.T) {
	prompts, err := ParsePromptsText("  Hello \r\n\r\nWorld\n   \n")
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello", "World"}, prompts)

	_, err = ParsePromptsText("   ")
	assert.Equal(t, "No prompts provided", apperrors.GetMessage(err))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestParsePromptsCSV(t *testing.T) {
	csvData := "\xEF\xBB\xBFfirst,extra\n\"second, quoted\"\n,ignored\nthird,a,b,c\n"
	prompts, err := ParsePromptsCSV("prompts.csv", strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second, quoted", "third"}, prompts)

	_, err = ParsePromptsCSV("prompts.txt", strings.NewReader("a"))
	assert.Equal(t, "File must be a CSV", apperrors.GetMessage(err))

	_, err = ParsePromptsCSV("empty.csv", strings.NewReader(" ,x\n\n"))
	assert.Equal(t, "No valid prompts found in CSV", apperrors.GetMessage(err))
}

func TestNormalizeTextUnifiesCompositions(t *testing.T) {
	decomposed := "Cafe\u0301"
	composed := "Caf\u00e9"
	require.NotEqual(t, decomposed, composed)
	assert.Equal(t, composed, NormalizeText(decomposed))
	assert.Equal(t, Filename(composed), Filename(NormalizeText(decomposed)))
}

func TestFilenameIsMD5OfText(t *testing.T) {
	assert.Equal(t, md5wav("World"), Filename("World"))
}

func TestHelloWorldScenario(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Demo", "Hello", "World")

	res := f.upload(t, id, "World")
	assert.Equal(t, "ok", res.Status)
	assert.Equal(t, md5wav("World"), res.Filename)
	assert.Empty(t, res.Message)
	assert.FileExists(t, filepath.Join(f.dir, res.Filename))

	assert.Equal(t, models.Progress{TotalPrompts: 2, RecordedCount: 1, LastRecordedIndex: 1}, f.progress(t, id))

	require.NoError(t, f.recordings.Delete(context.Background(), id, "World"))
	assert.Equal(t, models.Progress{TotalPrompts: 2, RecordedCount: 0, LastRecordedIndex: -1}, f.progress(t, id))
	assert.NoFileExists(t, filepath.Join(f.dir, res.Filename))
}

func TestUploadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Demo", "Hello")

	first := f.upload(t, id, "Hello")
	second := f.upload(t, id, "Hello")
	assert.Equal(t, first.Filename, second.Filename)
	assert.Equal(t, "Recording already exists", second.Message)

	var n int64
	require.NoError(t, f.db.Model(&models.Recording{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestUploadUnknownPrompt(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Demo", "Hello")

	_, err := f.recordings.Upload(context.Background(), id, "Nope", strings.NewReader("x"))
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	assert.Equal(t, "Prompt not found for this project", apperrors.GetMessage(err))

	files, err := f.recordings.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUploadRemovesFileWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Demo", "Hello")

	require.NoError(t, f.db.Callback().Create().Before("gorm:create").Register("test:fail_recordings", func(tx *gorm.DB) {
		if tx.Statement.Table == "recordings" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	_, err := f.recordings.Upload(context.Background(), id, "Hello", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeStorage))
	assert.NoFileExists(t, filepath.Join(f.dir, md5wav("Hello")))
}

func TestDeleteMissingRecording(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Demo", "Hello")

	err := f.recordings.Delete(context.Background(), id, "Hello")
	assert.Equal(t, "Recording not found", apperrors.GetMessage(err))

	err = f.recordings.Delete(context.Background(), id, "Other")
	assert.Equal(t, "Prompt not found for this project", apperrors.GetMessage(err))
}

func TestDeleteToleratesMissingFile(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Demo", "Hello")
	res := f.upload(t, id, "Hello")
	require.NoError(t, os.Remove(filepath.Join(f.dir, res.Filename)))

	require.NoError(t, f.recordings.Delete(context.Background(), id, "Hello"))
	assert.Equal(t, int64(0), f.progress(t, id).RecordedCount)
}

func TestLastRecordedIndexIsMaxNotCount(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Demo", "A", "B", "C", "D")

	f.upload(t, id, "A")
	f.upload(t, id, "B")
	f.upload(t, id, "D")
	assert.Equal(t, 3, f.progress(t, id).LastRecordedIndex)

	require.NoError(t, f.recordings.Delete(context.Background(), id, "D"))
	p := f.progress(t, id)
	assert.Equal(t, int64(2), p.RecordedCount)
	assert.Equal(t, 1, p.LastRecordedIndex)

	require.NoError(t, f.recordings.Delete(context.Background(), id, "A"))
	p = f.progress(t, id)
	assert.Equal(t, int64(1), p.RecordedCount)
	assert.Equal(t, 1, p.LastRecordedIndex)
}

func TestSharedFileSurvivesUntilLastReference(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, "First", "Hello")
	b := f.create(t, "Second", "Hello")
	f.upload(t, a, "Hello")
	f.upload(t, b, "Hello")
	path := filepath.Join(f.dir, md5wav("Hello"))

	require.NoError(t, f.recordings.Delete(context.Background(), a, "Hello"))
	assert.FileExists(t, path)

	_, err := f.projects.Delete(context.Background(), b)
	require.NoError(t, err)
	assert.NoFileExists(t, path)
}

func TestProjectRecordingsOrdered(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Demo", "one", "two", "three")
	f.upload(t, id, "three")
	f.upload(t, id, "one")

	views, err := f.recordings.ProjectRecordings(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "one", views[0].Text)
	assert.Equal(t, 0, views[0].OrderIndex)
	assert.Equal(t, "three", views[1].Text)
	assert.Equal(t, 2, views[1].OrderIndex)
}

func TestOpenRecording(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Demo", "Hello")
	res := f.upload(t, id, "Hello")

	rc, size, err := f.recordings.Open(context.Background(), res.Filename)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "RIFFHello", string(body))
	assert.Equal(t, int64(len(body)), size)

	_, _, err = f.recordings.Open(context.Background(), "../secret.wav")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, _, err = f.recordings.Open(context.Background(), "missing.wav")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestCreateProjectValidationAndConflict(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Demo", "Hello")

	_, err := f.projects.CreateWithPrompts(context.Background(), "Demo", []string{"x"}, true)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))

	_, err = f.projects.CreateWithPrompts(context.Background(), "Other", nil, false)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	_, err = f.projects.CreateWithPrompts(context.Background(), "  ", []string{"x"}, false)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))
}

func TestGetAndDeleteProject(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "My Project", "Hello", "World")
	f.upload(t, id, "Hello")

	detail, err := f.projects.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "My Project", detail.Name)
	assert.Equal(t, []string{"Hello", "World"}, detail.Prompts)
	assert.Equal(t, 0, detail.LastRecordedIndex)

	msg, err := f.projects.Delete(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Project 'My Project' deleted successfully", msg)
	assert.NoFileExists(t, filepath.Join(f.dir, md5wav("Hello")))

	_, err = f.projects.Get(context.Background(), id)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
	_, err = f.projects.Delete(context.Background(), id)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, err := f.settings.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, &Settings{StoragePath: f.dir}, s)

	bucket := "my-bucket"
	newDir := filepath.Join(t.TempDir(), "audio")
	s, err = f.settings.Update(ctx, SettingsUpdate{S3Bucket: &bucket, StoragePath: &newDir})
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", s.S3Bucket)
	assert.Equal(t, newDir, s.StoragePath)
	assert.DirExists(t, newDir)

	// 未提供的键保持不变
	token := "hf_x"
	s, err = f.settings.Update(ctx, SettingsUpdate{HuggingfaceToken: &token})
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", s.S3Bucket)
	assert.Equal(t, "hf_x", s.HuggingfaceToken)

	store, err := f.settings.AudioStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(newDir, "a.wav"), store.Location("a.wav"))
}

func TestSignalsEmitted(t *testing.T) {
	f := newFixture(t)
	var events []string
	for _, name := range []string{models.SigProjectCreated, models.SigRecordingCreated, models.SigRecordingDeleted, models.SigProjectDeleted} {
		name := name
		util.Sig().Connect(name, func(sender any, params ...any) { events = append(events, name) })
	}

	id := f.create(t, "Demo", "Hello")
	f.upload(t, id, "Hello")
	f.upload(t, id, "Hello")
	require.NoError(t, f.recordings.Delete(context.Background(), id, "Hello"))
	_, err := f.projects.Delete(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.SigProjectCreated,
		models.SigRecordingCreated,
		models.SigRecordingDeleted,
		models.SigProjectDeleted,
	}, events)
}

func TestConcurrentUploadsInsertOneRow(t *testing.T) {
	f := newFixture(t)
	texts := []string{"Hello", "World", "Again"}
	id := f.create(t, "Demo", texts...)

	const perPrompt = 20
	var wg sync.WaitGroup
	results := make(chan *UploadResult, perPrompt*len(texts))
	errs := make(chan error, perPrompt*len(texts))
	for _, text := range texts {
		for i := 0; i < perPrompt; i++ {
			wg.Add(1)
			go func(text string) {
				defer wg.Done()
				res, err := f.recordings.Upload(context.Background(), id, text, strings.NewReader("RIFF"+text))
				if err != nil {
					errs <- err
					return
				}
				results <- res
			}(text)
		}
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Errorf("upload failed: %v", err)
	}
	fresh := 0
	for res := range results {
		assert.Equal(t, "ok", res.Status)
		if res.Message == "" {
			fresh++
		}
	}
	assert.Equal(t, len(texts), fresh, "exactly one upload per prompt inserts")

	var rows int64
	require.NoError(t, f.db.Model(&models.Recording{}).Where("project_id = ?", id).Count(&rows).Error)
	assert.Equal(t, int64(len(texts)), rows)
	assert.Equal(t, models.Progress{TotalPrompts: 3, RecordedCount: 3, LastRecordedIndex: 2}, f.progress(t, id))
	for _, text := range texts {
		assert.FileExists(t, filepath.Join(f.dir, md5wav(text)))
	}
}

func TestDeleteSwallowsFileRemovalError(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, "Demo", "Hello", "World")
	res := f.upload(t, id, "Hello")

	// 用非空目录占住文件名，使删除文件失败
	path := filepath.Join(f.dir, res.Filename)
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), []byte("x"), 0o644))

	require.NoError(t, f.recordings.Delete(context.Background(), id, "Hello"))
	assert.Equal(t, models.Progress{TotalPrompts: 2, RecordedCount: 0, LastRecordedIndex: models.NoRecordedIndex}, f.progress(t, id))
	assert.DirExists(t, path)
}

type unavailableStores struct{}

func (unavailableStores) AudioStore(context.Context) (stores.Store, error) {
	return nil, apperrors.Storage(errors.New("mount gone"), "Audio store unavailable")
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestFailedOperationsAreCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.create(t, "Demo", "Hello")
	m := metrics.NewMetrics()

	broken := NewRecordingManager(f.db, unavailableStores{}, m)
	_, err := broken.Upload(ctx, id, "Hello", strings.NewReader("x"))
	require.Error(t, err)

	projects := NewProjectManager(f.db, NewRecordingManager(f.db, f.settings, m), m)
	_, err = projects.Delete(ctx, 999)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	require.NoError(t, f.db.Callback().Delete().Before("gorm:delete").Register("test:fail_prompts", func(tx *gorm.DB) {
		if tx.Statement.Table == "prompts" {
			_ = tx.AddError(errors.New("locked"))
		}
	}))
	_, err = projects.Delete(ctx, id)
	require.Error(t, err)

	body := scrape(t, m)
	assert.Contains(t, body, `curation_operations_total{operation="recording_upload",status="error"} 1`)
	assert.Contains(t, body, `curation_operations_total{operation="project_delete",status="error"} 2`)
	assert.NotContains(t, body, `curation_operations_total{operation="project_delete",status="ok"}`)
}

func TestSettingReadRacingUpdateIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old, fresh := "old-bucket", "new-bucket"
	_, err := f.settings.Update(ctx, SettingsUpdate{S3Bucket: &old})
	require.NoError(t, err)
	f.settings.Reset(ctx)

	// 第一次读取 settings 表之后、回填缓存之前，完成一次写入
	var armed atomic.Bool
	armed.Store(true)
	require.NoError(t, f.db.Callback().Query().After("gorm:query").Register("test:concurrent_update", func(tx *gorm.DB) {
		if tx.Statement.Table != "settings" || !armed.CompareAndSwap(true, false) {
			return
		}
		done := make(chan error, 1)
		go func() {
			_, err := f.settings.Update(ctx, SettingsUpdate{S3Bucket: &fresh})
			done <- err
		}()
		require.NoError(t, <-done)
	}))

	v, err := f.settings.Get(ctx, KeyS3Bucket)
	require.NoError(t, err)
	assert.Equal(t, old, v, "the racing read saw the value before the write")

	v, err = f.settings.Get(ctx, KeyS3Bucket)
	require.NoError(t, err)
	assert.Equal(t, fresh, v)
}
