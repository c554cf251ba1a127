package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yonid4/job-postings-scraper-sub002/internal/automation"
	"github.com/yonid4/job-postings-scraper-sub002/internal/config"
)

// MinIO 提供申请材料（简历/求职信）的对象存储功能。
// 表单上传控件只接受本地文件，FetchArtifact 负责把对象落到本地暂存目录
type MinIO struct {
	client   *minio.Client
	cfg      *config.MinIOConfig
	bucket   string
	cacheDir string
	logger   *log.Logger
}

// 确保MinIO实现了编排器需要的材料存储面
var _ automation.ArtifactStore = (*MinIO)(nil)

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	logger.Printf("[MinIO] Initializing MinIO client with endpoint: %s, bucket: %s", cfg.Endpoint, cfg.ArtifactsBucket)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		logger.Printf("[MinIO] Initialization failed: %v", err)
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	bucket := cfg.ArtifactsBucket
	if bucket == "" {
		bucket = "applicant-artifacts"
	}

	cacheDir := cfg.ArtifactCacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "job-agent-artifacts")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建材料暂存目录 %s 失败: %w", cacheDir, err)
	}

	m := &MinIO{
		client:   client,
		cfg:      cfg,
		bucket:   bucket,
		cacheDir: cacheDir,
		logger:   logger,
	}

	if err := m.ensureBucketExists(bucket, cfg.Location); err != nil {
		logger.Printf("[MinIO] Failed to ensure bucket %s exists: %v", bucket, err)
		return nil, fmt.Errorf("确保材料存储桶 %s 存在失败: %w", bucket, err)
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s", cfg.Endpoint)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	m.logger.Printf("[MinIO] Ensuring bucket exists: %s (Location: %s)", bucketName, location)
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		m.logger.Printf("[MinIO] Bucket %s does not exist, attempting to create...", bucketName)
		err = m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location})
		if err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] Bucket %s created successfully.", bucketName)
	}
	return nil
}

// UploadArtifact 上传申请材料
func (m *MinIO) UploadArtifact(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	if objectKey == "" {
		return fmt.Errorf("对象key不能为空")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("上传材料 %s 失败: %w", objectKey, err)
	}
	m.logger.Printf("[MinIO] Uploaded artifact: %s", objectKey)
	return nil
}

// FetchArtifact 把材料下载到本地暂存目录并返回路径。
// 暂存文件已存在且非空时直接复用，同一次运行里反复申请不重复下载
func (m *MinIO) FetchArtifact(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("对象key不能为空")
	}

	localPath := filepath.Join(m.cacheDir, filepath.Base(objectKey))
	if info, err := os.Stat(localPath); err == nil && info.Size() > 0 {
		return localPath, nil
	}

	if err := m.client.FGetObject(ctx, m.bucket, objectKey, localPath, minio.GetObjectOptions{}); err != nil {
		return "", fmt.Errorf("下载材料 %s 失败: %w", objectKey, err)
	}
	m.logger.Printf("[MinIO] Fetched artifact %s -> %s", objectKey, localPath)
	return localPath, nil
}

// DeleteArtifact 删除对象存储里的材料
func (m *MinIO) DeleteArtifact(ctx context.Context, objectKey string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除材料 %s 失败: %w", objectKey, err)
	}
	return nil
}

// GetPresignedURL 获取材料的预签名下载URL
func (m *MinIO) GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名URL失败: %w", err)
	}
	return u.String(), nil
}

// CleanCache 清空本地暂存目录，进程退出前调用
func (m *MinIO) CleanCache() error {
	entries, err := os.ReadDir(m.cacheDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(m.cacheDir, entry.Name())); err != nil {
			m.logger.Printf("[MinIO] Failed to remove cached artifact %s: %v", entry.Name(), err)
		}
	}
	return nil
}
