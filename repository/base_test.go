/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/uptrace/bun"

	"github.com/tomoncle/prism/database"
	"github.com/tomoncle/prism/repository"
	"github.com/tomoncle/prism/types"
)

type Project struct {
	bun.BaseModel `bun:"table:projects"`

	ID    int64  `bun:"id,pk,autoincrement"`
	Name  string `bun:"name,notnull"`
	Stars int    `bun:"stars,notnull,default:0"`
}

func openHandle(c *qt.C) *database.Handle {
	cfg := database.DefaultConnectionConfig()
	cfg.URL = fmt.Sprintf("file:%s?mode=memory&cache=shared", c.Name())
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	cfg.ConnMaxLifetime = 0
	cfg.ConnMaxIdleTime = 0
	cfg.SlowQueryTime = 0

	h, err := database.Open(cfg, nil)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { h.Close() })

	_, err = h.DB().NewCreateTable().Model((*Project)(nil)).Exec(context.Background())
	c.Assert(err, qt.IsNil)
	return h
}

func newRepo(c *qt.C) (repository.Repository[Project], *database.Handle) {
	h := openHandle(c)
	return repository.NewRepository[Project](h.DB(), repository.WithContextBounder(h.WithTimeout)), h
}

func seed(c *qt.C, repo repository.Repository[Project], n int) {
	projects := make([]*Project, n)
	for i := range projects {
		projects[i] = &Project{Name: fmt.Sprintf("project-%02d", i+1), Stars: i}
	}
	c.Assert(repo.Create(context.Background(), projects...), qt.IsNil)
}

func TestCrud(t *testing.T) {
	c := qt.New(t)
	repo, _ := newRepo(c)
	ctx := context.Background()

	p := &Project{Name: "prism", Stars: 5}
	c.Assert(repo.Create(ctx, p), qt.IsNil)
	c.Assert(p.ID, qt.Not(qt.Equals), int64(0))

	got, err := repo.GetOne(ctx, p.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, p)

	got.Stars = 42
	c.Assert(repo.Update(ctx, got), qt.IsNil)
	got, err = repo.GetOne(ctx, p.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Stars, qt.Equals, 42)

	c.Assert(repo.Delete(ctx, p.ID), qt.IsNil)
	_, err = repo.GetOne(ctx, p.ID)
	c.Assert(err, qt.ErrorIs, sql.ErrNoRows)

	c.Assert(repo.Create(ctx), qt.IsNil)
}

func TestListAndQuery(t *testing.T) {
	c := qt.New(t)
	repo, _ := newRepo(c)
	ctx := context.Background()
	seed(c, repo, 5)

	all, err := repo.GetAll(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 5)

	popular, err := repo.List(ctx, types.NewQueryFilter("stars >= ?", 3))
	c.Assert(err, qt.IsNil)
	c.Assert(popular, qt.HasLen, 2)

	named, err := repo.Query(ctx, "name = ?", "project-01")
	c.Assert(err, qt.IsNil)
	c.Assert(named, qt.HasLen, 1)
	c.Assert(named[0].Stars, qt.Equals, 0)

	everything, err := repo.List(ctx, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(everything, qt.HasLen, 5)
}

func TestPage(t *testing.T) {
	c := qt.New(t)
	repo, _ := newRepo(c)
	ctx := context.Background()
	seed(c, repo, 12)

	page, err := repo.Page(ctx, types.NewPageRequestWithOrders(2, 5, []string{"stars DESC", "1; DROP TABLE projects"}))
	c.Assert(err, qt.IsNil)
	c.Assert(page.Total, qt.Equals, 12)
	c.Assert(page.TotalPages(), qt.Equals, 3)
	c.Assert(page.HasNext(), qt.IsTrue)
	c.Assert(page.Items, qt.HasLen, 5)
	c.Assert(page.Items[0].Stars, qt.Equals, 6)

	last, err := repo.Page(ctx, types.NewPageRequest(3, 5, types.NewQueryFilter("stars >= ?", 0), []string{"id"}))
	c.Assert(err, qt.IsNil)
	c.Assert(last.Items, qt.HasLen, 2)
	c.Assert(last.HasNext(), qt.IsFalse)

	empty, err := repo.Page(ctx, types.NewPageRequestWithFilter(1, 5, types.NewQueryFilter("stars > ?", 100)))
	c.Assert(err, qt.IsNil)
	c.Assert(empty.Total, qt.Equals, 0)
	c.Assert(empty.Items, qt.HasLen, 0)

	def, err := repo.Page(ctx, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(def.PageSize, qt.Equals, types.DefaultPageSize)
	c.Assert(def.Items, qt.HasLen, types.DefaultPageSize)
}

func TestPageCountError(t *testing.T) {
	c := qt.New(t)
	repo, _ := newRepo(c)
	seed(c, repo, 3)

	page, err := repo.Page(context.Background(), types.NewPageRequestWithFilter(1, 5, types.NewQueryFilter("missing_col = ?", 1)))
	c.Assert(err, qt.ErrorMatches, ".*missing_col.*")
	c.Assert(page, qt.IsNil)
}

func TestUpsert(t *testing.T) {
	c := qt.New(t)
	repo, _ := newRepo(c)
	ctx := context.Background()

	p := &Project{ID: 7, Name: "prism", Stars: 1}
	c.Assert(repo.Upsert(ctx, []string{"stars"}, nil, p), qt.IsNil)
	p.Stars = 9
	p.Name = "ignored"
	c.Assert(repo.Upsert(ctx, []string{"stars"}, []string{"id"}, p), qt.IsNil)

	got, err := repo.GetOne(ctx, 7)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Stars, qt.Equals, 9)
	c.Assert(got.Name, qt.Equals, "prism")

	c.Assert(repo.Upsert(ctx, nil, nil, p), qt.ErrorIs, repository.ErrEmptyFields)
}

func TestTransactions(t *testing.T) {
	c := qt.New(t)
	repo, h := newRepo(c)
	ctx := context.Background()
	boom := errors.New("boom")

	err := h.DB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := repo.CreateWithTx(ctx, tx, &Project{Name: "rolled-back"}); err != nil {
			return err
		}
		return boom
	})
	c.Assert(err, qt.ErrorIs, boom)
	all, err := repo.GetAll(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 0)

	err = h.DB().RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		p := &Project{ID: 1, Name: "kept"}
		if err := repo.CreateWithTx(ctx, tx, p); err != nil {
			return err
		}
		p.Stars = 3
		if err := repo.UpdateWithTx(ctx, tx, p); err != nil {
			return err
		}
		if err := repo.UpsertWithTx(ctx, tx, []string{"name"}, nil, &Project{ID: 2, Name: "second"}); err != nil {
			return err
		}
		return repo.DeleteWithTx(ctx, tx, 2)
	})
	c.Assert(err, qt.IsNil)
	all, err = repo.GetAll(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(all, qt.HasLen, 1)
	c.Assert(all[0].Stars, qt.Equals, 3)
}

func TestContextBounder(t *testing.T) {
	c := qt.New(t)
	h := openHandle(c)
	var bounded int
	repo := repository.NewRepository[Project](h.DB(), repository.WithContextBounder(
		func(ctx context.Context) (context.Context, context.CancelFunc) {
			bounded++
			return context.WithTimeout(ctx, time.Second)
		}))

	_, err := repo.GetAll(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(bounded, qt.Equals, 1)

	expired := func(ctx context.Context) (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		return ctx, cancel
	}
	repo = repository.NewRepository[Project](h.DB(), repository.WithContextBounder(expired))
	_, err = repo.GetAll(context.Background())
	c.Assert(err, qt.ErrorIs, context.Canceled)
}

func TestBuilders(t *testing.T) {
	c := qt.New(t)
	repo, _ := newRepo(c)
	seed(c, repo, 3)

	var names []string
	err := repo.NewSelect().Model((*Project)(nil)).Column("name").Order("id").Scan(context.Background(), &names)
	c.Assert(err, qt.IsNil)
	c.Assert(names, qt.DeepEquals, []string{"project-01", "project-02", "project-03"})
	c.Assert(repo.Dialect().Name().String(), qt.Equals, "sqlite")
}
