package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

var categoryCols = []string{"id", "name", "slug", "created_at"}

func newSqlxMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func TestCategoryGetBySlug(t *testing.T) {
	db, mock := newSqlxMock(t)
	repo := NewCategoryRepository(db)
	mock.ExpectQuery("SELECT id, name, slug, created_at FROM categories WHERE slug").
		WithArgs("maps").
		WillReturnRows(sqlmock.NewRows(categoryCols).AddRow(int64(2), "Maps", "maps", time.Now()))

	c, err := repo.GetBySlug(context.Background(), "maps")
	if err != nil || c == nil {
		t.Fatalf("GetBySlug() = %v, %v", c, err)
	}
	if c.ID != 2 || c.Name != "Maps" {
		t.Errorf("category = %+v", c)
	}
}

func TestCategoryGetBySlug_NotFound(t *testing.T) {
	db, mock := newSqlxMock(t)
	repo := NewCategoryRepository(db)
	mock.ExpectQuery("FROM categories WHERE slug").
		WillReturnRows(sqlmock.NewRows(categoryCols))

	c, err := repo.GetBySlug(context.Background(), "nope")
	if err != nil || c != nil {
		t.Errorf("GetBySlug() = %v, %v, want nil, nil", c, err)
	}
}

func TestCategoryGetBySlug_DBError(t *testing.T) {
	db, mock := newSqlxMock(t)
	repo := NewCategoryRepository(db)
	mock.ExpectQuery("FROM categories WHERE slug").WillReturnError(errDB)

	if _, err := repo.GetBySlug(context.Background(), "maps"); !errors.Is(err, errDB) {
		t.Errorf("error = %v, want wrapped errDB", err)
	}
}
