package pictures

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// CloudinaryStore keeps pictures in a Cloudinary folder, one asset per
// member, addressed by the member id.
type CloudinaryStore struct {
	cld        *cloudinary.Cloudinary
	folder     string
	httpClient *http.Client
	maxBytes   int64
}

// NewCloudinaryStore creates a store from a cloudinary:// URL. An empty
// URL falls back to the CLOUDINARY_URL environment variable.
func NewCloudinaryStore(cloudinaryURL, folder string, maxBytes int64) (*CloudinaryStore, error) {
	var (
		cld *cloudinary.Cloudinary
		err error
	)
	if cloudinaryURL != "" {
		cld, err = cloudinary.NewFromURL(cloudinaryURL)
	} else {
		cld, err = cloudinary.New()
	}
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true

	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &CloudinaryStore{
		cld:        cld,
		folder:     folder,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		maxBytes:   maxBytes,
	}, nil
}

func (s *CloudinaryStore) publicID(memberID uuid.UUID) string {
	if s.folder == "" {
		return memberID.String()
	}
	return s.folder + "/" + memberID.String()
}

func (s *CloudinaryStore) Put(ctx context.Context, pic *Picture) error {
	resp, err := s.cld.Upload.Upload(ctx, bytes.NewReader(pic.Data), uploader.UploadParams{
		PublicID:       s.publicID(pic.MemberID),
		Overwrite:      api.Bool(true),
		Invalidate:     api.Bool(true),
		UniqueFilename: api.Bool(false),
		ResourceType:   "image",
	})
	if err != nil {
		return fmt.Errorf("cloudinary upload: %w", err)
	}
	if resp.Error.Message != "" {
		return fmt.Errorf("cloudinary upload: %s", resp.Error.Message)
	}
	return nil
}

func (s *CloudinaryStore) Get(ctx context.Context, memberID uuid.UUID) (*Picture, error) {
	img, err := s.cld.Image(s.publicID(memberID))
	if err != nil {
		return nil, fmt.Errorf("cloudinary asset: %w", err)
	}
	assetURL, err := img.String()
	if err != nil {
		return nil, fmt.Errorf("cloudinary asset url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch picture: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch picture: cloudinary returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read picture: %w", err)
	}
	return &Picture{
		MemberID:    memberID,
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        ETag(data),
	}, nil
}

func (s *CloudinaryStore) Delete(ctx context.Context, memberID uuid.UUID) error {
	resp, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:   s.publicID(memberID),
		Invalidate: api.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("cloudinary destroy: %w", err)
	}
	if resp.Result != "ok" && resp.Result != "not found" {
		return fmt.Errorf("cloudinary destroy returned %q", resp.Result)
	}
	return nil
}
