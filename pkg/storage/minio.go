package stores

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore keeps audio objects in an S3 compatible bucket.
type MinioStore struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET"`
	UseSSL    bool   `env:"MINIO_USE_SSL"`
	BaseURL   string `env:"MINIO_PUBLIC_BASE"` // 对外访问域名，可选

	once      sync.Once
	cli       *minio.Client
	clientErr error
	bucketOK  bool
	mu        sync.Mutex
}

func NewMinioStore(endpoint, accessKey, secretKey, bucket string, useSSL bool, baseURL string) *MinioStore {
	return &MinioStore{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		Bucket:    bucket,
		UseSSL:    useSSL,
		BaseURL:   baseURL,
	}
}

func (m *MinioStore) client() (*minio.Client, error) {
	m.once.Do(func() {
		m.cli, m.clientErr = minio.New(m.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(m.AccessKey, m.SecretKey, ""),
			Secure: m.UseSSL,
		})
	})
	return m.cli, m.clientErr
}

func (m *MinioStore) ensureBucket(ctx context.Context, cli *minio.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bucketOK {
		return nil
	}
	exists, err := cli.BucketExists(ctx, m.Bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, m.Bucket, minio.MakeBucketOptions{}); err != nil {
			return err
		}
	}
	m.bucketOK = true
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (m *MinioStore) Read(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	if !ValidKey(key) {
		return nil, 0, ErrInvalidKey
	}
	cli, err := m.client()
	if err != nil {
		return nil, 0, err
	}
	obj, err := cli.GetObject(ctx, m.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, 0, err
	}
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, 0, ErrObjectNotFound
		}
		return nil, 0, err
	}
	return obj, st.Size, nil
}

func (m *MinioStore) Write(ctx context.Context, key string, r io.Reader) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	cli, err := m.client()
	if err != nil {
		return err
	}
	if err := m.ensureBucket(ctx, cli); err != nil {
		return err
	}
	_, err = cli.PutObject(ctx, m.Bucket, key, r, -1, minio.PutObjectOptions{ContentType: "audio/wav"})
	return err
}

func (m *MinioStore) Delete(ctx context.Context, key string) error {
	if !ValidKey(key) {
		return ErrInvalidKey
	}
	cli, err := m.client()
	if err != nil {
		return err
	}
	// RemoveObject 对不存在的键也返回成功
	return cli.RemoveObject(ctx, m.Bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinioStore) Exists(ctx context.Context, key string) (bool, error) {
	if !ValidKey(key) {
		return false, ErrInvalidKey
	}
	cli, err := m.client()
	if err != nil {
		return false, err
	}
	_, err = cli.StatObject(ctx, m.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (m *MinioStore) List(ctx context.Context) ([]string, error) {
	cli, err := m.client()
	if err != nil {
		return nil, err
	}
	names := []string{}
	for obj := range cli.ListObjects(ctx, m.Bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if ValidKey(obj.Key) {
			names = append(names, obj.Key)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MinioStore) Location(key string) string {
	if m.BaseURL != "" {
		return strings.TrimRight(m.BaseURL, "/") + "/" + key
	}
	// 回退使用 endpoint（注意直连可能需配置公共读策略）
	scheme := "http://"
	if m.UseSSL {
		scheme = "https://"
	}
	return scheme + m.Endpoint + "/" + m.Bucket + "/" + key
}
