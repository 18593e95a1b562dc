package export

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"TTSCurator/pkg/config"
)

// S3Uploader 通过 minio-go 上传到任意 S3 兼容存储
type S3Uploader struct {
	cfg config.MinioConfig

	once sync.Once
	cli  *minio.Client
	err  error
}

func NewS3Uploader(cfg config.MinioConfig) *S3Uploader {
	return &S3Uploader{cfg: cfg}
}

func (u *S3Uploader) Name() string { return "s3" }

func (u *S3Uploader) client() (*minio.Client, error) {
	u.once.Do(func() {
		var creds *credentials.Credentials
		if u.cfg.AccessKey != "" {
			creds = credentials.NewStaticV4(u.cfg.AccessKey, u.cfg.SecretKey, "")
		} else {
			// 未配置密钥时走环境变量 / 实例角色
			creds = credentials.NewChainCredentials([]credentials.Provider{
				&credentials.EnvAWS{},
				&credentials.EnvMinio{},
				&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
			})
		}
		u.cli, u.err = minio.New(u.cfg.Endpoint, &minio.Options{
			Creds:  creds,
			Secure: u.cfg.UseSSL,
			Region: u.cfg.Region,
		})
	})
	return u.cli, u.err
}

func (u *S3Uploader) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64) error {
	cli, err := u.client()
	if err != nil {
		return err
	}
	_, err = cli.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: "audio/wav"})
	return err
}
