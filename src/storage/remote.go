package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/PatchWorkCreations/iriseup-foundation/src/config"
	"github.com/PatchWorkCreations/iriseup-foundation/src/imaging"
	"github.com/PatchWorkCreations/iriseup-foundation/src/mediaerr"
	"github.com/PatchWorkCreations/iriseup-foundation/src/models"
	"github.com/PatchWorkCreations/iriseup-foundation/src/oops"
	"github.com/PatchWorkCreations/iriseup-foundation/src/utils"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// The subset of *s3.Client the remote store needs.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

var _ ObjectAPI = &s3.Client{}

func NewS3Client(ctx context.Context, cfg config.RemoteConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.APIKey, cfg.APISecret, ""),
		),
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, awsconfig.WithEndpointResolver(aws.EndpointResolverFunc(func(service, region string) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL: cfg.Endpoint,
			}, nil
		})))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, oops.New(err, "failed to load object store config")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

/*
Stores images in an S3-compatible bucket fronted by an image CDN. The CDN
serves every object at <DeliveryURL>/upload/<key> and applies any
transformation placed right after the /upload/ segment, which is how the web
and thumbnail renditions are produced.

Uploads are checked against the target size again here and compressed if
needed, whatever the caller already did.
*/
type RemoteStore struct {
	client      ObjectAPI
	bucket      string
	deliveryURL string

	targetBytes int
	compressor  *imaging.Compressor

	uniqueSuffix func() string
}

var _ Store = &RemoteStore{}

func NewRemoteStore(client ObjectAPI, cfg config.RemoteConfig, targetBytes int, compressor *imaging.Compressor) *RemoteStore {
	deliveryURL := cfg.DeliveryURL
	if deliveryURL == "" {
		deliveryURL = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.CloudName
	}
	if compressor == nil {
		compressor = imaging.NewCompressor()
	}
	return &RemoteStore{
		client:       client,
		bucket:       cfg.CloudName,
		deliveryURL:  strings.TrimSuffix(deliveryURL, "/"),
		targetBytes:  targetBytes,
		compressor:   compressor,
		uniqueSuffix: randomSuffix,
	}
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
}

type UploadInput struct {
	Data     []byte
	Filename string
	Folder   string

	// Optional. When set, the object key is <folder>/<PublicID>.<ext> and no
	// unique suffix is added.
	PublicID string
	// Optional transformation applied to the canonical URL.
	Transformation string
}

type RemoteUpload struct {
	OriginalURL  string
	WebURL       string
	ThumbnailURL string
	RemoteID     string

	Width    int
	Height   int
	Format   string
	FileSize int
}

func (s *RemoteStore) Type() models.StorageType {
	return models.StorageRemote
}

func (s *RemoteStore) Upload(ctx context.Context, in UploadInput) (*RemoteUpload, error) {
	if len(in.Data) == 0 {
		return nil, mediaerr.New(mediaerr.Validation, nil, "no image data provided")
	}

	data := in.Data
	filename := SanitizeFilename(in.Filename)
	if len(data) > s.targetBytes {
		res, err := s.compressor.Compress(data, s.targetBytes)
		if err != nil {
			return nil, err
		}
		data = res.Data
		filename = imaging.ReplaceExtension(filename, res.Format)
	}

	info, err := imaging.Inspect(data)
	if err != nil {
		return nil, err
	}

	key := s.objectKey(in.Folder, filename, in.PublicID, info.Format)

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil, mediaerr.New(mediaerr.Validation, nil, "remote object %s already exists", key)
	} else if !isNotFound(err) {
		return nil, mediaerr.New(mediaerr.BackendIO, err, "failed to check for existing remote object")
	}

	if err := s.putObject(ctx, key, data, imaging.ContentType(info.Format)); err != nil {
		return nil, err
	}

	originalURL := s.BuildURL(key, in.Transformation)
	return &RemoteUpload{
		OriginalURL:  originalURL,
		WebURL:       WebURL(originalURL),
		ThumbnailURL: ThumbnailURL(originalURL),
		RemoteID:     key,
		Width:        info.Width,
		Height:       info.Height,
		Format:       info.Format,
		FileSize:     len(data),
	}, nil
}

func (s *RemoteStore) putObject(ctx context.Context, key string, data []byte, contentType string) error {
	upload := func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ACL:         types.ObjectCannedACLPublicRead,
			ContentType: aws.String(contentType),
		})
		return err
	}

	err := upload()
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) && apiError.ErrorCode() == "NoSuchBucket" {
			_, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{
				Bucket: aws.String(s.bucket),
			})
			if err != nil {
				return mediaerr.New(mediaerr.BackendIO, err, "failed to create media bucket")
			}

			err = upload()
			if err != nil {
				return mediaerr.New(mediaerr.BackendIO, err, "failed to upload image")
			}
		} else {
			return mediaerr.New(mediaerr.BackendIO, err, "failed to upload image")
		}
	}
	return nil
}

func (s *RemoteStore) objectKey(folder, filename, publicID, format string) string {
	folder = SanitizeFolder(folder)
	ext := imaging.Extension(format)
	if publicID != "" {
		return path.Join(folder, SanitizeFilename(publicID)+ext)
	}
	stem := strings.TrimSuffix(filename, path.Ext(filename))
	return path.Join(folder, fmt.Sprintf("%s_%s%s", stem, s.uniqueSuffix(), ext))
}

func (s *RemoteStore) Put(ctx context.Context, in PutInput) (*StoredObject, error) {
	up, err := s.Upload(ctx, UploadInput{
		Data:     in.Data,
		Filename: in.Filename,
		Folder:   in.Folder,
	})
	if err != nil {
		return nil, err
	}
	return &StoredObject{
		Width:    up.Width,
		Height:   up.Height,
		Format:   up.Format,
		FileSize: up.FileSize,
		Remote: &models.RemoteLocation{
			ID:           up.RemoteID,
			OriginalURL:  up.OriginalURL,
			WebURL:       up.WebURL,
			ThumbnailURL: up.ThumbnailURL,
		},
	}, nil
}

// Deleting an object that is already gone is an error; the record pointing at
// it should stay around until someone looks.
func (s *RemoteStore) Delete(ctx context.Context, asset *models.MediaAsset) (bool, error) {
	if asset.Remote == nil || asset.Remote.ID == "" {
		return false, mediaerr.New(mediaerr.Validation, nil, "asset %d has no remote id", asset.ID)
	}
	key := asset.Remote.ID

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, mediaerr.New(mediaerr.BackendIO, err, "remote object %s was not found", key)
		}
		return false, mediaerr.New(mediaerr.BackendIO, err, "failed to look up remote object %s", key)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, mediaerr.New(mediaerr.BackendIO, err, "failed to delete remote object %s", key)
	}
	return true, nil
}

func (s *RemoteStore) URLs(asset *models.MediaAsset) URLs {
	return RemoteURLs(asset)
}

// Records made before renditions were stored only have the original URL; the
// others are derived from it.
func RemoteURLs(asset *models.MediaAsset) URLs {
	if asset.Remote == nil {
		return URLs{}
	}
	r := asset.Remote
	return URLs{
		Display:   r.OriginalURL,
		Web:       utils.OrDefault(r.WebURL, WebURL(r.OriginalURL)),
		Thumbnail: utils.OrDefault(r.ThumbnailURL, ThumbnailURL(r.OriginalURL)),
	}
}

func isNotFound(err error) bool {
	var apiError smithy.APIError
	if errors.As(err, &apiError) {
		switch apiError.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
