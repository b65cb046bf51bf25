package repository

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	name  string
	calls []string
}

func (f *fakeFetcher) FetchBytes(_ context.Context, ref string) ([]byte, error) {
	f.calls = append(f.calls, ref)
	return []byte(f.name), nil
}

type fakeBlobFetcher struct {
	fakeFetcher
}

func (f *fakeBlobFetcher) Handles(ref string) bool {
	return strings.Contains(ref, ".blob.core.windows.net")
}

func newTestRepo() (*RoutingImageRepository, *fakeFetcher, *fakeBlobFetcher, *fakeFetcher) {
	web := &fakeFetcher{name: "web"}
	blob := &fakeBlobFetcher{fakeFetcher{name: "blob"}}
	data := &fakeFetcher{name: "data"}

	repo := NewRoutingImageRepository().
		Register(web, "http", "https").
		Register(blob, "azblob").
		Register(data, "data")
	return repo, web, blob, data
}

func TestRoutingImageRepository_Routes(t *testing.T) {
	tests := []struct {
		ref  string
		want string
	}{
		{"http://example.com/a.png", "web"},
		{"https://example.com/a.png", "web"},
		{"HTTPS://example.com/a.png", "web"},
		{"azblob://profiles/a.png", "blob"},
		{"https://acct.blob.core.windows.net/profiles/a.png", "blob"},
		{"data:image/png;base64,AAAA", "data"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			repo, _, _, _ := newTestRepo()
			got, err := repo.FetchBytes(context.Background(), tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestRoutingImageRepository_Errors(t *testing.T) {
	repo, _, _, _ := newTestRepo()

	_, err := repo.FetchBytes(context.Background(), "  ")
	assert.True(t, errors.Is(err, ErrInvalidImageURL))

	_, err = repo.FetchBytes(context.Background(), "ftp://example.com/a.png")
	assert.True(t, errors.Is(err, ErrUnsupportedScheme))

	_, err = repo.FetchBytes(context.Background(), "http://[::1")
	assert.True(t, errors.Is(err, ErrInvalidImageURL))
}

func TestRoutingImageRepository_Validate(t *testing.T) {
	repo, _, _, _ := newTestRepo()

	assert.Equal(t, []string{"azblob", "data", "http", "https"}, repo.Schemes())
	assert.NoError(t, repo.ValidateImageURL("https://example.com/a.png"))
	assert.NoError(t, repo.ValidateImageURL("azblob://c/b.png"))
	assert.Error(t, repo.ValidateImageURL("ftp://example.com/a.png"))
	assert.Error(t, repo.ValidateImageURL(""))

	assert.Error(t, NewRoutingImageRepository().ValidateImageURL("https://example.com/a.png"))
}

func TestRoutingImageRepository_AllowHosts(t *testing.T) {
	// order of AllowHosts and Register does not matter
	before := NewRoutingImageRepository().AllowHosts("cdn.example.com").
		Register(&fakeFetcher{name: "web"}, "http", "https").
		Register(&fakeFetcher{name: "data"}, "data")
	after, _, _, _ := newTestRepo()
	after.AllowHosts("cdn.example.com")

	for name, repo := range map[string]*RoutingImageRepository{"before": before, "after": after} {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, repo.ValidateImageURL("https://cdn.example.com/a.png"))
			assert.NoError(t, repo.ValidateImageURL("data:image/png;base64,AAAA"))
			assert.ErrorContains(t, repo.ValidateImageURL("https://other.example.com/a.png"), "URL host not allowed")
		})
	}

	after.AllowHosts()
	assert.NoError(t, after.ValidateImageURL("https://other.example.com/a.png"))
}
