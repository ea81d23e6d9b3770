// Package archive keeps completed seed SQL in object storage so it can be
// downloaded again after the stream has ended.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supaseed/supaseed/internal/observability"
	"github.com/supaseed/supaseed/internal/seedgen"
	"github.com/supaseed/supaseed/internal/storage"
)

var ErrNotFound = errors.New("archive: seed not found")

const contentType = "application/sql; charset=utf-8"

type Seed struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type Archiver struct {
	store  storage.ObjectStore
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func New(store storage.ObjectStore, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
}

// Save writes text under a fresh id. A surrounding markdown fence is removed
// so the stored object is directly executable.
func (a *Archiver) Save(ctx context.Context, ownerID, text string) (Seed, error) {
	body := seedgen.StripSQLFence(text)
	if body == "" {
		return Seed{}, fmt.Errorf("%w: nothing to archive", seedgen.ErrInvalidInput)
	}
	createdAt := a.now().UTC()
	id := a.newID()
	key, err := storage.BuildSeedKey(ownerID, createdAt, id)
	if err != nil {
		return Seed{}, fmt.Errorf("%w: %w", seedgen.ErrInvalidInput, err)
	}

	info, err := a.store.Put(ctx, key, strings.NewReader(body), int64(len(body)), storage.PutOptions{
		ContentType:        contentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", id+".sql"),
		Metadata:           map[string]string{"owner-id": ownerID, "seed-id": id},
	})
	observability.ObserveArchiveWrite(err)
	if err != nil {
		return Seed{}, fmt.Errorf("archive seed: %w", err)
	}
	size := info.Size
	if size <= 0 {
		size = int64(len(body))
	}
	a.logger.InfoContext(ctx, "seed_archived",
		slog.String("owner_id", ownerID),
		slog.String("seed_id", id),
		slog.String("key", key),
		slog.Int64("bytes", size),
	)
	return Seed{ID: id, OwnerID: ownerID, Key: key, Size: size, CreatedAt: createdAt}, nil
}

// List returns the owner's seeds, newest first.
func (a *Archiver) List(ctx context.Context, ownerID string) ([]Seed, error) {
	prefix, err := storage.SeedPrefix(ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", seedgen.ErrInvalidInput, err)
	}
	objects, err := a.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list seeds: %w", err)
	}
	seeds := make([]Seed, 0, len(objects))
	for _, object := range objects {
		owner, id, err := storage.ParseSeedKey(object.Key)
		if err != nil || owner != ownerID {
			continue
		}
		seeds = append(seeds, Seed{ID: id, OwnerID: owner, Key: object.Key, Size: object.Size, CreatedAt: object.LastModified})
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].CreatedAt.Equal(seeds[j].CreatedAt) {
			return seeds[i].Key > seeds[j].Key
		}
		return seeds[i].CreatedAt.After(seeds[j].CreatedAt)
	})
	return seeds, nil
}

// Get returns the seed metadata and SQL body.
func (a *Archiver) Get(ctx context.Context, ownerID, id string) (Seed, []byte, error) {
	seed, err := a.find(ctx, ownerID, id)
	if err != nil {
		return Seed{}, nil, err
	}
	reader, err := a.store.Get(ctx, seed.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return Seed{}, nil, ErrNotFound
		}
		return Seed{}, nil, fmt.Errorf("get seed: %w", err)
	}
	defer func() { _ = reader.Close() }()
	body, err := io.ReadAll(reader)
	if err != nil {
		return Seed{}, nil, fmt.Errorf("read seed: %w", err)
	}
	return seed, body, nil
}

func (a *Archiver) Delete(ctx context.Context, ownerID, id string) error {
	seed, err := a.find(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := a.store.Delete(ctx, seed.Key); err != nil {
		return fmt.Errorf("delete seed: %w", err)
	}
	a.logger.InfoContext(ctx, "seed_deleted", slog.String("owner_id", ownerID), slog.String("seed_id", id))
	return nil
}

func (a *Archiver) find(ctx context.Context, ownerID, id string) (Seed, error) {
	if err := storage.ValidatePathComponent(id, "seed id"); err != nil {
		return Seed{}, fmt.Errorf("%w: %w", seedgen.ErrInvalidInput, err)
	}
	seeds, err := a.List(ctx, ownerID)
	if err != nil {
		return Seed{}, err
	}
	for _, seed := range seeds {
		if seed.ID == id {
			return seed, nil
		}
	}
	return Seed{}, ErrNotFound
}
