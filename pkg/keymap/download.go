package keymap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/segmentio/cdcmerge/pkg/errs"
	"github.com/segmentio/errors-go"
	"github.com/segmentio/events/v2"
	"github.com/segmentio/stats/v4"
)

// S3Client is the subset of the S3 API the downloader needs.
type S3Client interface {
	manager.DownloadAPIClient
}

// S3Downloader fetches a key map document from S3. Keys ending in
// .gz are decompressed on the way down.
type S3Downloader struct {
	Region   string // optional
	Bucket   string
	Key      string
	S3Client S3Client
}

func (d *S3Downloader) DownloadTo(ctx context.Context, w io.Writer) (n int64, err error) {
	client, err := d.getS3Client(ctx)
	if err != nil {
		return -1, err
	}
	downloader := manager.NewDownloader(client)
	start := time.Now()
	defer stats.Observe("keymap_download_time", time.Since(start))
	buffer := manager.NewWriteAtBuffer([]byte{})
	compressedSize, err := downloader.Download(ctx, buffer, &s3.GetObjectInput{
		Bucket: aws.String(d.Bucket),
		Key:    aws.String(d.Key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if stderrors.As(err, &noSuchKey) {
			// don't bother retrying. there is no key map to load.
			return -1, errors.WithTypes(errors.Wrap(err, "get s3 data"), errs.ErrTypePermanent)
		}
		// retry
		return -1, errors.WithTypes(errors.Wrap(err, "get s3 data"), errs.ErrTypeTemporary)
	}
	var reader io.Reader = bytes.NewReader(buffer.Bytes())
	if strings.HasSuffix(d.Key, ".gz") {
		reader, err = gzip.NewReader(reader)
		if err != nil {
			return n, errors.Wrap(err, "create gzip reader")
		}
	}
	n, err = io.Copy(w, reader)
	if err != nil {
		return n, errors.Wrap(err, "copy from s3 to writer")
	}

	events.Log("Key map inflated %d -> %d bytes", compressedSize, n)

	return
}

func (d *S3Downloader) getS3Client(ctx context.Context) (S3Client, error) {
	if d.S3Client != nil {
		return d.S3Client, nil
	}
	var opts []func(*awsconfig.LoadOptions) error
	if d.Region != "" {
		opts = append(opts, awsconfig.WithRegion(d.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return s3.NewFromConfig(cfg), nil
}

// ParseURL splits an s3://bucket/key URL into its parts.
func ParseURL(rawurl string) (bucket, key string, err error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return "", "", errors.Wrapf(err, "parse url '%s'", rawurl)
	}
	if u.Scheme != "s3" {
		return "", "", errors.Errorf("unsupported scheme '%s' in url '%s'", u.Scheme, rawurl)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", errors.Errorf("no bucket/key in url '%s'", rawurl)
	}
	return bucket, key, nil
}

// Fetch downloads and parses the key map document at the given
// s3://bucket/key URL.
func Fetch(ctx context.Context, rawurl, region string, client S3Client) (KeyMap, error) {
	bucket, key, err := ParseURL(rawurl)
	if err != nil {
		return nil, err
	}
	downloader := &S3Downloader{
		Region:   region,
		Bucket:   bucket,
		Key:      key,
		S3Client: client,
	}
	var buf bytes.Buffer
	if _, err := downloader.DownloadTo(ctx, &buf); err != nil {
		return nil, errors.Wrap(err, "download key map")
	}
	var km KeyMap
	if err := json.Unmarshal(buf.Bytes(), &km); err != nil {
		return nil, errors.Wrap(err, "parse key map")
	}
	return km, nil
}
