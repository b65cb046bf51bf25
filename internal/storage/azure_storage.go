package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

const blobHostSuffix = ".blob.core.windows.net"

// AzureBlobFetcher reads profile images from Azure Blob Storage. References
// are azblob://<container>/<blob> or the blob's https URL.
type AzureBlobFetcher struct {
	client   *azblob.Client
	account  string
	maxBytes int64
}

// NewAzureBlobFetcher authenticates with a shared key.
func NewAzureBlobFetcher(accountName, accountKey string, maxBytes int64) (*AzureBlobFetcher, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s%s", accountName, blobHostSuffix),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return newAzureBlobFetcher(client, accountName, maxBytes), nil
}

// NewAnonymousBlobFetcher reads public containers, or any endpoint given as
// serviceURL such as a local emulator.
func NewAnonymousBlobFetcher(serviceURL, accountName string, maxBytes int64) (*AzureBlobFetcher, error) {
	client, err := azblob.NewClientWithNoCredential(serviceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}
	return newAzureBlobFetcher(client, accountName, maxBytes), nil
}

func newAzureBlobFetcher(client *azblob.Client, account string, maxBytes int64) *AzureBlobFetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultHTTPOptions().MaxBytes
	}
	return &AzureBlobFetcher{client: client, account: account, maxBytes: maxBytes}
}

// Handles reports whether ref points at blob storage.
func (s *AzureBlobFetcher) Handles(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	if u.Scheme == "azblob" {
		return true
	}
	return u.Scheme == "https" && strings.HasSuffix(strings.ToLower(u.Hostname()), blobHostSuffix)
}

func (s *AzureBlobFetcher) FetchBytes(ctx context.Context, ref string) ([]byte, error) {
	container, blob, err := parseBlobRef(ref, s.account)
	if err != nil {
		return nil, &FetchError{URL: ref, StatusCode: http.StatusBadRequest, Err: err}
	}

	resp, err := s.client.DownloadStream(ctx, container, blob, nil)
	if err != nil {
		status := 0
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound, bloberror.ResourceNotFound) {
			status = http.StatusNotFound
		} else if bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.AuthenticationFailed) {
			status = http.StatusForbidden
		}
		return nil, &FetchError{URL: ref, StatusCode: status, Err: fmt.Errorf("download failed: %w", err)}
	}

	body := resp.Body
	defer body.Close()

	data, err := readLimited(body, s.maxBytes)
	if err != nil {
		return nil, &FetchError{URL: ref, StatusCode: http.StatusOK, Err: err}
	}
	return data, nil
}

// parseBlobRef splits a blob reference into container and blob name. The
// legacy form https://<account>.blob.core.windows.net/<container>?blob=<name>
// is accepted too.
func parseBlobRef(ref, account string) (container, blob string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", fmt.Errorf("invalid blob URL: %w", err)
	}

	var path string
	switch u.Scheme {
	case "azblob":
		path = u.Host + u.Path
	case "https":
		host := strings.ToLower(u.Hostname())
		if !strings.HasSuffix(host, blobHostSuffix) {
			return "", "", fmt.Errorf("not a blob storage host: %s", u.Host)
		}
		if account != "" && strings.TrimSuffix(host, blobHostSuffix) != strings.ToLower(account) {
			return "", "", fmt.Errorf("blob account %q does not match configured account", strings.TrimSuffix(host, blobHostSuffix))
		}
		path = strings.TrimPrefix(u.Path, "/")
	default:
		return "", "", fmt.Errorf("unsupported blob scheme %q", u.Scheme)
	}

	container, blob, _ = strings.Cut(path, "/")
	if blob == "" {
		blob = u.Query().Get("blob")
	}
	if container == "" || blob == "" {
		return "", "", fmt.Errorf("blob reference %q needs a container and a blob name", ref)
	}
	return container, blob, nil
}
