package services

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

const (
	MINIO_SVC = "minio_svc"

	attackPatternPrefix = "attack-patterns"
)

// MinIOService keeps attack patterns beyond their 7 day store retention for forensics.
// Archiving is disabled when MINIO_ENDPOINT is unset.
type MinIOService struct {
	appContext.DefaultService
	client     *minio.Client
	bucketName string
	endpoint   string
	accessKey  string
	secretKey  string
	useSSL     bool
}

func (svc MinIOService) Id() string {
	return MINIO_SVC
}

func (svc *MinIOService) Configure(ctx *appContext.Context) error {
	svc.endpoint = os.Getenv("MINIO_ENDPOINT")
	svc.accessKey = os.Getenv("MINIO_ACCESS_KEY")
	svc.secretKey = os.Getenv("MINIO_SECRET_KEY")
	svc.useSSL = os.Getenv("MINIO_USE_SSL") == "true"
	svc.bucketName = getEnv("MINIO_BUCKET_NAME", "lms-security-forensics")

	return svc.DefaultService.Configure(ctx)
}

func (svc *MinIOService) Start() error {
	if svc.endpoint == "" {
		log.Info().Msg("MinIO forensics archive disabled")
		return nil
	}

	client, err := minio.New(svc.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(svc.accessKey, svc.secretKey, ""),
		Secure: svc.useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %v", err)
	}

	svc.client = client

	if err := svc.ensureBucket(context.Background()); err != nil {
		return fmt.Errorf("failed to ensure bucket exists: %v", err)
	}

	log.Info().Str("endpoint", svc.endpoint).Str("bucket", svc.bucketName).Msg("MinIO forensics archive started")
	return nil
}

func (svc *MinIOService) ensureBucket(ctx context.Context) error {
	exists, err := svc.client.BucketExists(ctx, svc.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %v", err)
	}

	if !exists {
		if err = svc.client.MakeBucket(ctx, svc.bucketName, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %v", err)
		}
		log.Info().Str("bucket", svc.bucketName).Msg("Created MinIO bucket")
	}

	return nil
}

func (svc *MinIOService) Enabled() bool {
	return svc.client != nil
}

// ArchiveAttackPattern implements security.ForensicsArchive.
func (svc *MinIOService) ArchiveAttackPattern(ctx context.Context, pattern model.AttackPattern) error {
	if svc.client == nil {
		return nil
	}

	body, err := shared.JSON.Marshal(pattern)
	if err != nil {
		return err
	}

	_, err = svc.client.PutObject(ctx, svc.bucketName, attackPatternObject(pattern), bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"attack-type": string(pattern.Type),
			"severity":    string(pattern.Severity),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload attack pattern to MinIO: %v", err)
	}
	return nil
}

// attackPatternObject lays objects out by UTC day for lifecycle rules.
func attackPatternObject(pattern model.AttackPattern) string {
	day := pattern.DetectedAt.UTC().Format("2006/01/02")
	return path.Join(attackPatternPrefix, day, pattern.ID+".json")
}
