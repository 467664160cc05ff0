package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/addonhub/addonhub/internal/config"
	"github.com/addonhub/addonhub/internal/content"
	"github.com/addonhub/addonhub/internal/db/models"
	"github.com/addonhub/addonhub/internal/db/repositories"
	"github.com/addonhub/addonhub/internal/storage"
	"github.com/addonhub/addonhub/internal/storage/local"
)

var (
	zipBytes = append([]byte{0x50, 0x4B, 0x03, 0x04}, []byte("addon payload")...)
	pngBytes = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}
	gifBytes = []byte("GIF89a-icon")
)

// ---------------------------------------------------------------------------
// In-memory catalog
// ---------------------------------------------------------------------------

type fakeCategories struct {
	bySlug map[string]*models.Category
}

func newFakeCategories() *fakeCategories {
	return &fakeCategories{bySlug: map[string]*models.Category{
		"maps":   {ID: 2, Name: "Maps", Slug: "maps"},
		"skins":  {ID: 4, Name: "Skins", Slug: "skins"},
		"addons": {ID: 1, Name: "Addons", Slug: "addons"},
	}}
}

func (f *fakeCategories) GetBySlug(_ context.Context, slug string) (*models.Category, error) {
	c, ok := f.bySlug[slug]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCategories) byID(id int64) *models.Category {
	for _, c := range f.bySlug {
		if c.ID == id {
			return c
		}
	}
	return nil
}

type fakeCatalog struct {
	mu         sync.Mutex
	nextID     int64
	rows       map[int64]*models.Package
	users      map[int64]string
	categories *fakeCategories

	failArtifact error
	failUpdate   error
}

func newFakeCatalog(categories *fakeCategories) *fakeCatalog {
	return &fakeCatalog{
		rows:       map[int64]*models.Package{},
		users:      map[int64]string{1: "steve", 2: "alex", 3: "mod"},
		categories: categories,
	}
}

func (f *fakeCatalog) nameTaken(name string, except int64) bool {
	for id, p := range f.rows {
		if id != except && p.Name == name {
			return true
		}
	}
	return false
}

func (f *fakeCatalog) Create(_ context.Context, p *models.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.nameTaken(p.Name, 0) {
		return fmt.Errorf("%w: %s", repositories.ErrDuplicateName, p.Name)
	}
	f.nextID++
	p.ID = f.nextID
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	p.StoragePath, p.FileHash, p.IconURL = "", "", nil
	cp := *p
	f.rows[p.ID] = &cp
	return nil
}

func (f *fakeCatalog) GetByID(_ context.Context, id int64) (*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeCatalog) GetByName(_ context.Context, name string) (*models.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) GetEntry(ctx context.Context, id int64) (*models.PackageEntry, error) {
	p, _ := f.GetByID(ctx, id)
	if p == nil {
		return nil, nil
	}
	entry := &models.PackageEntry{
		Package: *p,
		Author:  models.AuthorSummary{ID: p.AuthorID, Username: f.users[p.AuthorID]},
	}
	if p.CategoryID != nil {
		entry.Category = f.categories.byID(*p.CategoryID).Summary()
	}
	return entry, nil
}

func (f *fakeCatalog) ExistsByName(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nameTaken(name, 0), nil
}

func (f *fakeCatalog) UpdateArtifact(_ context.Context, id int64, storagePath, fileHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failArtifact != nil {
		return f.failArtifact
	}
	p, ok := f.rows[id]
	if !ok {
		return repositories.ErrPackageNotFound
	}
	p.StoragePath, p.FileHash = storagePath, fileHash
	return nil
}

func (f *fakeCatalog) SetIconURL(_ context.Context, id int64, iconURL *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[id]
	if !ok {
		return repositories.ErrPackageNotFound
	}
	p.IconURL = iconURL
	return nil
}

func (f *fakeCatalog) Update(_ context.Context, p *models.Package) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	if _, ok := f.rows[p.ID]; !ok {
		return repositories.ErrPackageNotFound
	}
	if f.nameTaken(p.Name, p.ID) {
		return repositories.ErrDuplicateName
	}
	p.UpdatedAt = time.Now()
	cp := *p
	f.rows[p.ID] = &cp
	return nil
}

func (f *fakeCatalog) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return repositories.ErrPackageNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeCatalog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// ---------------------------------------------------------------------------
// Storage failure injection
// ---------------------------------------------------------------------------

var errDiskFull = errors.New("no space left on device")

// failingBackend fails every upload whose path starts with prefix.
type failingBackend struct {
	storage.Storage
	prefix string
}

func (b *failingBackend) Upload(ctx context.Context, p string, r io.Reader, size int64) (*storage.UploadResult, error) {
	if strings.HasPrefix(p, b.prefix) {
		return nil, errDiskFull
	}
	return b.Storage.Upload(ctx, p, r, size)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	svc     *PackageService
	catalog *fakeCatalog
	store   *content.Store
	base    string
}

func newHarness(t *testing.T, failPrefix string) *harness {
	t.Helper()
	backend, err := local.New(&config.LocalStorageConfig{BasePath: t.TempDir(), ServeDirectly: true}, "http://localhost:8080")
	if err != nil {
		t.Fatal(err)
	}
	var b storage.Storage = backend
	if failPrefix != "" {
		b = &failingBackend{Storage: backend, prefix: failPrefix}
	}

	cats := newFakeCategories()
	catalog := newFakeCatalog(cats)
	store := content.NewStore(b, content.Limits{MaxArchiveSize: 1024, MaxIconSize: 256})
	return &harness{
		svc:     NewPackageService(catalog, cats, store),
		catalog: catalog,
		store:   store,
		base:    backend.BasePath(),
	}
}

var (
	author    = Actor{UserID: 1, Role: models.RoleUser}
	stranger  = Actor{UserID: 2, Role: models.RoleUser}
	moderator = Actor{UserID: 3, Role: models.RoleModerator}
)

func named(name string) PackageMetadata {
	return PackageMetadata{Name: models.Some(name)}
}
