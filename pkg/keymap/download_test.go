package keymap

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io/ioutil"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

// fakeS3Client serves a single object out of memory. The downloader
// issues ranged GetObject calls, but a response smaller than the part
// size ends the download after the first call.
type fakeS3Client struct {
	body []byte
	err  error
}

func (c *fakeS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	n := int64(len(c.body))
	return &s3.GetObjectOutput{
		Body:          ioutil.NopCloser(bytes.NewReader(c.body)),
		ContentLength: n,
		ContentRange:  aws.String(fmt.Sprintf("bytes 0-%d/%d", n-1, n)),
	}, nil
}

func TestDownloadTo(t *testing.T) {
	doc := []byte(`{"sales.orders":{"primary_keys":["order_id"],"sort_keys":["update_ts"]}}`)

	d := &S3Downloader{
		Bucket:   "my-bucket",
		Key:      "keymaps/prod.json",
		S3Client: &fakeS3Client{body: doc},
	}
	var buf bytes.Buffer
	n, err := d.DownloadTo(context.Background(), &buf)
	require.NoError(t, err)
	require.EqualValues(t, len(doc), n)
	require.Equal(t, doc, buf.Bytes())
}

func TestDownloadToGzip(t *testing.T) {
	doc := []byte(`{"sales.orders":{"primary_keys":["order_id"]}}`)
	var compressed bytes.Buffer
	gw := gzip.NewWriter(&compressed)
	_, err := gw.Write(doc)
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	d := &S3Downloader{
		Bucket:   "my-bucket",
		Key:      "keymaps/prod.json.gz",
		S3Client: &fakeS3Client{body: compressed.Bytes()},
	}
	var buf bytes.Buffer
	_, err = d.DownloadTo(context.Background(), &buf)
	require.NoError(t, err)
	require.Equal(t, doc, buf.Bytes())
}

func TestFetch(t *testing.T) {
	doc := []byte(`{"sales.orders":{"primary_keys":["order_id"],"sort_keys":["update_ts"]}}`)

	km, err := Fetch(context.Background(), "s3://my-bucket/keymaps/prod.json", "", &fakeS3Client{body: doc})
	require.NoError(t, err)
	require.Equal(t, KeyMap{
		"sales.orders": TableKeys{
			PrimaryKeys: []string{"order_id"},
			SortKeys:    []string{"update_ts"},
		},
	}, km)
}

func TestFetchBadURL(t *testing.T) {
	_, err := Fetch(context.Background(), "file:///tmp/keymap.json", "", &fakeS3Client{})
	require.Error(t, err)
}
