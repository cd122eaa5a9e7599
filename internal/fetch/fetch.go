// Package fetch resolves remote input paths to local files so the
// mmap-based block stream always has a local, seekable file to work
// with. Today this means s3://bucket/key inputs; local paths pass
// through untouched.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pwdedup/pwdedup/internal/pwerr"
	"github.com/pwdedup/pwdedup/pkg/bufpool"
)

const s3Scheme = "s3://"

// Resolve returns a path list the same length as paths, where every
// s3:// entry has been downloaded to a local file under
// {tempDir}/fetched and every other entry is returned unchanged. It
// builds one S3 client lazily, only if at least one input needs it.
func Resolve(ctx context.Context, paths []string, tempDir string) ([]string, error) {
	var client *s3.Client
	out := make([]string, len(paths))

	for i, p := range paths {
		if !strings.HasPrefix(p, s3Scheme) {
			out[i] = p
			continue
		}

		if client == nil {
			var err error
			client, err = newClient(ctx)
			if err != nil {
				return nil, err
			}
		}

		local, err := fetchOne(ctx, client, p, tempDir)
		if err != nil {
			return nil, err
		}
		out[i] = local
	}
	return out, nil
}

func newClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, pwerr.New(pwerr.KindFetchFailed, "load aws config", "", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// fetchOne downloads uri (s3://bucket/key) to a file under
// {tempDir}/fetched, named by a hash of the URI so repeated runs over
// the same input reuse a stable, collision-free local name.
func fetchOne(ctx context.Context, client *s3.Client, uri, tempDir string) (string, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return "", err
	}

	destDir := filepath.Join(tempDir, "fetched")
	if err := os.MkdirAll(destDir, 0700); err != nil {
		return "", pwerr.New(pwerr.KindFetchFailed, "create fetch directory", destDir, err)
	}
	destPath := filepath.Join(destDir, nameFor(uri))

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", pwerr.New(pwerr.KindFetchFailed, "get object", uri, err)
	}
	defer out.Body.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return "", pwerr.New(pwerr.KindFetchFailed, "create local file", destPath, err)
	}
	defer f.Close()

	buf := bufpool.Get(bufpool.DefaultLargeSize)
	defer bufpool.Put(buf)

	if _, err := io.CopyBuffer(f, out.Body, buf); err != nil {
		return "", pwerr.New(pwerr.KindFetchFailed, "download object", uri, err)
	}

	return destPath, nil
}

func parseS3URI(uri string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(uri, s3Scheme)
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", pwerr.New(pwerr.KindFetchFailed, "parse s3 uri", uri, fmt.Errorf("expected s3://bucket/key"))
	}
	return rest[:slash], rest[slash+1:], nil
}

func nameFor(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:])
}
