// Package util - Loads input pictures from the local filesystem or over HTTP.
package util

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/tuhinmallick/grounded-sam-replicate/images"
)

// MaxImageBytes bounds the size of a fetched or read picture.
const MaxImageBytes = 64 << 20

// ErrImageTooLarge is returned when a picture exceeds MaxImageBytes.
var ErrImageTooLarge = errors.New("image exceeds size limit")

// HTTPClient fetches remote pictures. Tests swap it for an httptest client.
var HTTPClient = http.DefaultClient

// ImageFile represents an image file.
type ImageFile struct {
	// Ref is the local path or URL the file was loaded from.
	Ref string
	// Data is the raw bytes of the image file.
	Data []byte
	// Format is the detected encoding.
	Format images.ImageFormat
}

// IsRemote reports whether ref is an http or https URL.
func IsRemote(ref string) bool {
	u, err := url.Parse(ref)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// LoadImageFile reads the raw bytes of the picture at ref.
//
// Arguments:
// - ctx: Cancels a remote fetch.
// - ref: A local path or an http(s) URL.
//
// Returns:
// - *ImageFile: The raw bytes.
// - error: Error if reading fails, the server does not answer 200, or the
// picture is larger than MaxImageBytes.
func LoadImageFile(ctx context.Context, ref string) (*ImageFile, error) {
	if strings.TrimSpace(ref) == "" {
		return nil, errors.New("image reference is empty")
	}

	var (
		data []byte
		err  error
	)
	if IsRemote(ref) {
		data, err = fetch(ctx, ref)
	} else {
		data, err = read(ref)
	}
	if err != nil {
		return nil, err
	}
	return &ImageFile{Ref: ref, Data: data, Format: sniff(data)}, nil
}

// LoadImage loads and decodes the picture at ref. PNG, JPEG, GIF and WebP
// are supported.
func LoadImage(ctx context.Context, ref string) (image.Image, error) {
	file, err := LoadImageFile(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, _, err := images.Decode(file.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return img, nil
}

func fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", ref, err)
	}
	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", ref, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: unexpected status %s", ref, resp.Status)
	}
	return readLimited(resp.Body, ref)
}

func read(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = file.Close()
	}()
	return readLimited(file, path)
}

func readLimited(r io.Reader, ref string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", ref, err)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("%s: %w", ref, ErrImageTooLarge)
	}
	return data, nil
}

// sniff detects the encoding from the leading bytes without decoding.
func sniff(data []byte) images.ImageFormat {
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return images.ImageFormat(name)
}
