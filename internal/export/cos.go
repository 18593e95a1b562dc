package export

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/tencentyun/cos-go-sdk-v5"

	"TTSCurator/pkg/config"
)

// COSUploader 上传到腾讯云 COS，bucket 形如 name-appid
type COSUploader struct {
	cfg config.COSConfig

	mu      sync.Mutex
	clients map[string]*cos.Client
}

func NewCOSUploader(cfg config.COSConfig) *COSUploader {
	return &COSUploader{cfg: cfg, clients: make(map[string]*cos.Client)}
}

func (u *COSUploader) Name() string { return "cos" }

func (u *COSUploader) client(bucket string) (*cos.Client, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if c, ok := u.clients[bucket]; ok {
		return c, nil
	}
	bucketURL, err := cos.NewBucketURL(bucket, u.cfg.Region, u.cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	c := cos.NewClient(&cos.BaseURL{BucketURL: bucketURL}, &http.Client{
		Transport: &cos.AuthorizationTransport{
			SecretID:  u.cfg.SecretID,
			SecretKey: u.cfg.SecretKey,
		},
	})
	u.clients[bucket] = c
	return c, nil
}

func (u *COSUploader) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	c, err := u.client(bucket)
	if err != nil {
		return err
	}
	_, err = c.Object.Put(ctx, key, r, &cos.ObjectPutOptions{
		ObjectPutHeaderOptions: &cos.ObjectPutHeaderOptions{
			ContentType:   "audio/wav",
			ContentLength: size,
		},
	})
	return err
}
