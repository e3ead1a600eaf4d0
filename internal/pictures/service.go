package pictures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxBytes is the upload size bound when none is configured.
const DefaultMaxBytes int64 = 5 << 20

var (
	// ErrUnsupportedMediaType is returned when an upload is not an accepted image.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrPayloadTooLarge is returned when an upload exceeds the size bound.
	ErrPayloadTooLarge = errors.New("payload too large")
)

var acceptedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// flagWriter records whether storage holds a picture for a member.
type flagWriter interface {
	SetHasPicture(ctx context.Context, id uuid.UUID, has bool) error
}

// MetricsRecordFunc is an optional callback for picture operation outcomes.
type MetricsRecordFunc func(op string, err error)

// Service coordinates picture storage with the member's picture flag so that
// a failed upload or delete leaves both exactly as they were.
type Service struct {
	store     Store
	flags     flagWriter
	maxBytes  int64
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// NewService creates a picture Service. maxBytes <= 0 selects DefaultMaxBytes.
func NewService(store Store, flags flagWriter, maxBytes int64, logger *zap.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{store: store, flags: flags, maxBytes: maxBytes, logger: logger}
}

// SetMetricsRecord configures the metrics callback.
func (s *Service) SetMetricsRecord(fn MetricsRecordFunc) { s.onMetrics = fn }

// MaxBytes returns the upload size bound.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Upload replaces the member's picture with the image read from r.
func (s *Service) Upload(ctx context.Context, memberID uuid.UUID, r io.Reader) (err error) {
	defer func() { s.record("upload", err) }()

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return ErrPayloadTooLarge
	}

	mt := mimetype.Detect(data)
	if len(data) == 0 || !mimetype.EqualsAny(mt.String(), acceptedTypes...) {
		return fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mt.String())
	}

	prior, err := s.store.Get(ctx, memberID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("load current picture: %w", err)
	}

	pic := &Picture{
		MemberID:    memberID,
		Data:        data,
		ContentType: mt.String(),
		ETag:        ETag(data),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := s.store.Put(ctx, pic); err != nil {
		return err
	}

	if err := s.flags.SetHasPicture(ctx, memberID, true); err != nil {
		s.restore(ctx, memberID, prior)
		return fmt.Errorf("set picture flag: %w", err)
	}

	s.logger.Info("picture uploaded",
		zap.String("member_id", memberID.String()),
		zap.String("content_type", pic.ContentType),
		zap.Int("bytes", len(data)),
	)
	return nil
}

// Delete removes the member's picture. Deleting when there is no picture
// succeeds and leaves the flag false.
func (s *Service) Delete(ctx context.Context, memberID uuid.UUID) (err error) {
	defer func() { s.record("delete", err) }()

	prior, err := s.store.Get(ctx, memberID)
	if errors.Is(err, ErrNotFound) {
		return s.flags.SetHasPicture(ctx, memberID, false)
	}
	if err != nil {
		return fmt.Errorf("load current picture: %w", err)
	}

	if err := s.store.Delete(ctx, memberID); err != nil {
		return err
	}
	if err := s.flags.SetHasPicture(ctx, memberID, false); err != nil {
		s.restore(ctx, memberID, prior)
		return fmt.Errorf("clear picture flag: %w", err)
	}

	s.logger.Info("picture deleted", zap.String("member_id", memberID.String()))
	return nil
}

// Get returns the member's stored picture.
func (s *Service) Get(ctx context.Context, memberID uuid.UUID) (*Picture, error) {
	return s.store.Get(ctx, memberID)
}

// restore puts storage back to its state before a failed operation.
// prior == nil means there was no picture.
func (s *Service) restore(ctx context.Context, memberID uuid.UUID, prior *Picture) {
	var err error
	if prior == nil {
		err = s.store.Delete(ctx, memberID)
	} else {
		err = s.store.Put(ctx, prior)
	}
	if err != nil {
		s.logger.Error("restore picture after failed flag update",
			zap.String("member_id", memberID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) record(op string, err error) {
	if s.onMetrics != nil {
		s.onMetrics(op, err)
	}
}
