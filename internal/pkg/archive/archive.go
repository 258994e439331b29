package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qzr8/dealer_go_portal/config"
	"github.com/qzr8/dealer_go_portal/internal/model"
)

// Store exports finished job results so they outlive server-side retention.
// OSS when configured, a local directory otherwise.
type Store interface {
	SaveResults(job *model.Job, results []model.Result) (string, error)
	Delete(location string) error
}

// New picks the backend from configuration.
func New(cfg *config.ArchiveConfig) (Store, error) {
	if cfg.Endpoint != "" && cfg.BucketName != "" {
		return NewOSSStore(cfg)
	}
	return NewLocalStore(cfg.LocalDir)
}

type exportDocument struct {
	JobID          string         `json:"job_id"`
	Kind           string         `json:"kind"`
	OwnerID        string         `json:"owner_id"`
	Status         string         `json:"status"`
	SourceFile     string         `json:"source_file,omitempty"`
	SourceURL      string         `json:"source_url,omitempty"`
	TargetLanguage string         `json:"target_language,omitempty"`
	TotalItems     int            `json:"total_items"`
	FailedItems    int            `json:"failed_items"`
	ExportedAt     time.Time      `json:"exported_at"`
	Results        []model.Result `json:"results"`
}

func marshalExport(job *model.Job, results []model.Result) ([]byte, error) {
	doc := exportDocument{
		JobID:          job.ID,
		Kind:           job.Kind,
		OwnerID:        job.OwnerID,
		Status:         job.Status,
		SourceFile:     job.SourceFile,
		SourceURL:      job.SourceURL,
		TargetLanguage: job.TargetLanguage,
		TotalItems:     job.TotalItems,
		FailedItems:    job.FailedItems,
		ExportedAt:     time.Now().UTC(),
		Results:        results,
	}
	return json.MarshalIndent(doc, "", "  ")
}

// OSSStore keeps exports in an Aliyun OSS bucket.
type OSSStore struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewOSSStore(cfg *config.ArchiveConfig) (*OSSStore, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &OSSStore{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

func (s *OSSStore) SaveResults(job *model.Job, results []model.Result) (string, error) {
	data, err := marshalExport(job, results)
	if err != nil {
		return "", err
	}

	objectKey := fmt.Sprintf("results/%s/%s.json", job.OwnerID, job.ID)
	if err := s.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType("application/json")); err != nil {
		return "", fmt.Errorf("failed to upload results: %w", err)
	}

	return s.getURL(objectKey), nil
}

func (s *OSSStore) Delete(location string) error {
	objectKey := s.extractObjectKey(location)
	if err := s.bucket.DeleteObject(objectKey); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *OSSStore) getURL(objectKey string) string {
	if s.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", s.cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.%s/%s", s.bucketName, s.client.Config.Endpoint, objectKey)
}

func (s *OSSStore) extractObjectKey(url string) string {
	if s.cdnDomain != "" {
		prefix := fmt.Sprintf("https://%s/", s.cdnDomain)
		if len(url) > len(prefix) && url[:len(prefix)] == prefix {
			return url[len(prefix):]
		}
	}
	// standard OSS URL: https://bucket-name.endpoint/path/to/object
	for i, n := 0, 0; i < len(url); i++ {
		if url[i] == '/' {
			n++
			if n == 3 {
				return url[i+1:]
			}
		}
	}
	return filepath.Base(url)
}

// LocalStore keeps exports under a directory on disk.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if dir == "" {
		dir = "archive"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) SaveResults(job *model.Job, results []model.Result) (string, error) {
	data, err := marshalExport(job, results)
	if err != nil {
		return "", err
	}

	ownerDir := filepath.Join(s.dir, job.OwnerID)
	if err := os.MkdirAll(ownerDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create owner dir: %w", err)
	}

	path := filepath.Join(ownerDir, job.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write results: %w", err)
	}
	return path, nil
}

func (s *LocalStore) Delete(location string) error {
	// refuse paths outside the archive dir
	abs, err := filepath.Abs(location)
	if err != nil {
		return err
	}
	root, err := filepath.Abs(s.dir)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || filepath.IsAbs(rel) || len(rel) > 2 && rel[:3] == ".."+string(filepath.Separator) {
		return fmt.Errorf("location outside archive dir: %s", location)
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
