package services

import (
	stdContext "context"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/orbitschool/orbit_api/dto"
	"github.com/orbitschool/orbit_api/model"
	"github.com/orbitschool/orbit_api/shared"
)

// MediaService handles lesson media uploads: validation, the MinIO write
// and the asset row that content items reference through their file URL.
type MediaService struct {
	context.DefaultService
	sqlSvc   *PostgresService
	minioSvc *MinIOService
	redisSvc *RedisService
	baseURL  string
}

const (
	presignExpiry = 24 * time.Hour

	// Cached URLs are dropped well before the signature runs out so a
	// viewer never receives an almost-expired link.
	urlCacheExpiry = 20 * time.Hour
)

func mediaURLKey(assetID string) string {
	return "media_url:" + assetID
}

const MEDIA_SVC = "media_svc"

func (svc MediaService) Id() string {
	return MEDIA_SVC
}

func (svc *MediaService) Configure(ctx *context.Context) error {
	svc.baseURL = os.Getenv("BASE_URL")
	if svc.baseURL == "" {
		svc.baseURL = "http://localhost:8000"
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *MediaService) Start() error {
	svc.sqlSvc = svc.Service(POSTGRES_SVC).(*PostgresService)
	svc.minioSvc = svc.Service(MINIO_SVC).(*MinIOService)
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	return nil
}

// ==================== UPLOADS ====================

func (svc *MediaService) UploadVideo(uploadedBy string, file *multipart.FileHeader) (*dto.MediaUploadResponse, error) {
	if !svc.isValidVideoFile(file.Filename) {
		return nil, shared.NewBadRequestError(nil, "Invalid video file format. Supported: MP4, MOV, WEBM")
	}

	if file.Size > 500*1024*1024 {
		return nil, shared.NewBadRequestError(nil, "Video file too large. Maximum size: 500MB")
	}

	return svc.uploadFile(uploadedBy, file, "video")
}

func (svc *MediaService) UploadPDF(uploadedBy string, file *multipart.FileHeader) (*dto.MediaUploadResponse, error) {
	if strings.ToLower(filepath.Ext(file.Filename)) != ".pdf" {
		return nil, shared.NewBadRequestError(nil, "Invalid document format. Supported: PDF")
	}

	if file.Size > 50*1024*1024 {
		return nil, shared.NewBadRequestError(nil, "Document too large. Maximum size: 50MB")
	}

	return svc.uploadFile(uploadedBy, file, "pdf")
}

func (svc *MediaService) UploadThumbnail(uploadedBy string, file *multipart.FileHeader) (*dto.MediaUploadResponse, error) {
	if !svc.isValidImageFile(file.Filename) {
		return nil, shared.NewBadRequestError(nil, "Invalid image file format. Supported: JPG, PNG, WEBP")
	}

	if file.Size > 2*1024*1024 {
		return nil, shared.NewBadRequestError(nil, "Thumbnail too large. Maximum size: 2MB")
	}

	return svc.uploadFile(uploadedBy, file, "thumbnail")
}

func (svc *MediaService) uploadFile(uploadedBy string, file *multipart.FileHeader, fileType string) (*dto.MediaUploadResponse, error) {
	id, _ := uuid.NewV7()

	ext := filepath.Ext(file.Filename)
	fileName := fmt.Sprintf("%s%s", id.String(), ext)

	var subDir string
	switch fileType {
	case "video":
		subDir = "videos"
	case "pdf":
		subDir = "documents"
	case "thumbnail":
		subDir = "thumbnails"
	default:
		subDir = "misc"
	}

	storageKey := fmt.Sprintf("%s/%s", subDir, fileName)

	src, err := file.Open()
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to open uploaded file")
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	uploadInfo, err := svc.minioSvc.UploadFile(storageKey, src, file.Size, contentType)
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to upload file to storage")
	}

	fileURL, err := svc.minioSvc.GetFileURL(storageKey, presignExpiry)
	if err != nil {
		log.WithError(err).Warn("Failed to generate presigned URL, falling back to direct path")
		fileURL = fmt.Sprintf("%s/%s/%s", svc.baseURL, svc.minioSvc.GetBucketName(), storageKey)
	}

	asset := &model.MediaAsset{
		ID:          id.String(),
		FileName:    file.Filename,
		FileType:    fileType,
		ContentType: contentType,
		FileSize:    file.Size,
		StorageKey:  storageKey,
		UploadedBy:  uploadedBy,
	}

	if err := svc.sqlSvc.CreateMediaAsset(asset); err != nil {
		// Roll the blob back so the bucket holds no orphaned objects.
		if delErr := svc.minioSvc.DeleteFile(storageKey); delErr != nil {
			log.WithError(delErr).WithField("storage_key", storageKey).Warn("Failed to clean up orphaned upload")
		}
		return nil, err
	}

	log.WithFields(log.Fields{
		"asset_id": asset.ID,
		"key":      uploadInfo.Key,
	}).Info("Uploaded media asset")

	return &dto.MediaUploadResponse{
		AssetID:    asset.ID,
		FileName:   asset.FileName,
		FileType:   asset.FileType,
		FileSize:   asset.FileSize,
		StorageKey: asset.StorageKey,
		URL:        fileURL,
	}, nil
}

// ==================== RETRIEVAL & CLEANUP ====================

// GetAssetURL re-signs the download URL for an asset. Presigned URLs
// expire, so viewers ask for a fresh one rather than storing it; signing
// is amortized through Redis while the signature is still comfortably
// valid.
func (svc *MediaService) GetAssetURL(assetID string) (string, error) {
	ctx := stdContext.Background()
	if cached, err := svc.redisSvc.Get(ctx, mediaURLKey(assetID)); err == nil && cached != "" {
		return cached, nil
	}

	asset, err := svc.sqlSvc.GetMediaAsset(assetID)
	if err != nil {
		return "", err
	}

	fileURL, err := svc.minioSvc.GetFileURL(asset.StorageKey, presignExpiry)
	if err != nil {
		return "", err
	}

	if err := svc.redisSvc.Set(ctx, mediaURLKey(assetID), fileURL, urlCacheExpiry); err != nil {
		log.WithError(err).WithField("asset_id", assetID).Debug("Failed to cache media URL")
	}
	return fileURL, nil
}

func (svc *MediaService) DeleteAsset(assetID string) error {
	asset, err := svc.sqlSvc.GetMediaAsset(assetID)
	if err != nil {
		return err
	}

	if err := svc.minioSvc.DeleteFile(asset.StorageKey); err != nil {
		log.WithError(err).WithField("storage_key", asset.StorageKey).Warn("Failed to delete file from storage")
	}

	if err := svc.redisSvc.Delete(stdContext.Background(), mediaURLKey(assetID)); err != nil {
		log.WithError(err).WithField("asset_id", assetID).Debug("Failed to drop cached media URL")
	}

	return svc.sqlSvc.DeleteMediaAsset(assetID)
}

// ==================== FILE VALIDATION ====================

func (svc *MediaService) isValidVideoFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	validExts := []string{".mp4", ".mov", ".mkv", ".webm"}

	for _, validExt := range validExts {
		if ext == validExt {
			return true
		}
	}
	return false
}

func (svc *MediaService) isValidImageFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	validExts := []string{".jpg", ".jpeg", ".png", ".webp"}

	for _, validExt := range validExts {
		if ext == validExt {
			return true
		}
	}
	return false
}
