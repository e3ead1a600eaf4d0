package pictures_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jmerrifield20/roster/internal/pictures"
	"go.uber.org/zap"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	gifBytes = []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
)

// ── Stubs ─────────────────────────────────────────────────────────────────

type stubFlags struct {
	mu    sync.Mutex
	flags map[uuid.UUID]bool
	err   error
	calls int
}

func newStubFlags() *stubFlags { return &stubFlags{flags: make(map[uuid.UUID]bool)} }

func (f *stubFlags) SetHasPicture(_ context.Context, id uuid.UUID, has bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.flags[id] = has
	return nil
}

type failingStore struct {
	*pictures.MemoryStore
	putErr error
}

func (s *failingStore) Put(ctx context.Context, pic *pictures.Picture) error {
	if s.putErr != nil {
		return s.putErr
	}
	return s.MemoryStore.Put(ctx, pic)
}

func newTestService(store pictures.Store, flags *stubFlags) *pictures.Service {
	return pictures.NewService(store, flags, 1024, zap.NewNop())
}

// ── Upload ────────────────────────────────────────────────────────────────

func TestUpload_storesImageAndSetsFlag(t *testing.T) {
	store := pictures.NewMemoryStore()
	flags := newStubFlags()
	svc := newTestService(store, flags)
	id := uuid.New()

	if err := svc.Upload(context.Background(), id, bytes.NewReader(pngBytes)); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !flags.flags[id] {
		t.Error("expected hasProfilePicture = true")
	}
	pic, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if pic.ContentType != "image/png" {
		t.Errorf("content type: got %q", pic.ContentType)
	}
	if pic.ETag != pictures.ETag(pngBytes) {
		t.Error("etag mismatch")
	}
}

func TestUpload_rejectsNonImage(t *testing.T) {
	store := pictures.NewMemoryStore()
	flags := newStubFlags()
	svc := newTestService(store, flags)

	err := svc.Upload(context.Background(), uuid.New(), strings.NewReader("just some text"))
	if !errors.Is(err, pictures.ErrUnsupportedMediaType) {
		t.Fatalf("expected ErrUnsupportedMediaType, got %v", err)
	}
	if flags.calls != 0 {
		t.Error("flag must not change on rejected upload")
	}
}

func TestUpload_rejectsEmptyPayload(t *testing.T) {
	svc := newTestService(pictures.NewMemoryStore(), newStubFlags())
	err := svc.Upload(context.Background(), uuid.New(), bytes.NewReader(nil))
	if !errors.Is(err, pictures.ErrUnsupportedMediaType) {
		t.Fatalf("expected ErrUnsupportedMediaType, got %v", err)
	}
}

func TestUpload_rejectsOversize(t *testing.T) {
	store := pictures.NewMemoryStore()
	flags := newStubFlags()
	svc := newTestService(store, flags)
	id := uuid.New()

	big := append(append([]byte{}, pngBytes...), make([]byte, 2048)...)
	err := svc.Upload(context.Background(), id, bytes.NewReader(big))
	if !errors.Is(err, pictures.ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := store.Get(context.Background(), id); !errors.Is(err, pictures.ErrNotFound) {
		t.Error("oversize upload must not be stored")
	}
}

func TestUpload_flagFailureRestoresPriorPicture(t *testing.T) {
	store := pictures.NewMemoryStore()
	flags := newStubFlags()
	svc := newTestService(store, flags)
	id := uuid.New()

	if err := svc.Upload(context.Background(), id, bytes.NewReader(pngBytes)); err != nil {
		t.Fatal(err)
	}

	flags.err = errors.New("db down")
	if err := svc.Upload(context.Background(), id, bytes.NewReader(gifBytes)); err == nil {
		t.Fatal("expected error when flag update fails")
	}

	pic, err := store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("prior picture should be restored: %v", err)
	}
	if !bytes.Equal(pic.Data, pngBytes) {
		t.Error("stored picture should be the prior PNG")
	}
}

func TestUpload_flagFailureWithoutPriorLeavesNoPicture(t *testing.T) {
	store := pictures.NewMemoryStore()
	flags := newStubFlags()
	flags.err = errors.New("db down")
	svc := newTestService(store, flags)
	id := uuid.New()

	if err := svc.Upload(context.Background(), id, bytes.NewReader(pngBytes)); err == nil {
		t.Fatal("expected error")
	}
	if _, err := store.Get(context.Background(), id); !errors.Is(err, pictures.ErrNotFound) {
		t.Error("storage should be empty after failed upload")
	}
}

func TestUpload_storeFailureLeavesFlag(t *testing.T) {
	store := &failingStore{MemoryStore: pictures.NewMemoryStore(), putErr: errors.New("bucket unavailable")}
	flags := newStubFlags()
	svc := newTestService(store, flags)

	if err := svc.Upload(context.Background(), uuid.New(), bytes.NewReader(pngBytes)); err == nil {
		t.Fatal("expected error")
	}
	if flags.calls != 0 {
		t.Error("flag must not be touched when storage fails")
	}
}

// ── Delete ────────────────────────────────────────────────────────────────

func TestDelete_withoutPictureIsNoop(t *testing.T) {
	flags := newStubFlags()
	svc := newTestService(pictures.NewMemoryStore(), flags)
	id := uuid.New()

	if err := svc.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if flags.flags[id] {
		t.Error("hasProfilePicture should remain false")
	}
}

func TestDelete_removesPictureAndClearsFlag(t *testing.T) {
	store := pictures.NewMemoryStore()
	flags := newStubFlags()
	svc := newTestService(store, flags)
	id := uuid.New()
	svc.Upload(context.Background(), id, bytes.NewReader(pngBytes))

	if err := svc.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if flags.flags[id] {
		t.Error("expected flag cleared")
	}
	if _, err := store.Get(context.Background(), id); !errors.Is(err, pictures.ErrNotFound) {
		t.Error("picture should be gone")
	}

	if err := svc.Delete(context.Background(), id); err != nil {
		t.Errorf("second delete should succeed, got %v", err)
	}
}

func TestDelete_flagFailureRestoresPicture(t *testing.T) {
	store := pictures.NewMemoryStore()
	flags := newStubFlags()
	svc := newTestService(store, flags)
	id := uuid.New()
	svc.Upload(context.Background(), id, bytes.NewReader(pngBytes))

	flags.err = errors.New("db down")
	if err := svc.Delete(context.Background(), id); err == nil {
		t.Fatal("expected error")
	}
	if _, err := store.Get(context.Background(), id); err != nil {
		t.Errorf("picture should be restored, got %v", err)
	}
}

func TestMetricsCallback(t *testing.T) {
	var ops []string
	svc := newTestService(pictures.NewMemoryStore(), newStubFlags())
	svc.SetMetricsRecord(func(op string, err error) {
		result := "ok"
		if err != nil {
			result = "error"
		}
		ops = append(ops, op+":"+result)
	})

	svc.Upload(context.Background(), uuid.New(), strings.NewReader("nope"))
	svc.Delete(context.Background(), uuid.New())

	if strings.Join(ops, ",") != "upload:error,delete:ok" {
		t.Errorf("unexpected metrics: %v", ops)
	}
}
