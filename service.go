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

package prism

import (
	"context"
	"database/sql"

	"github.com/tomoncle/prism/database"
	"github.com/tomoncle/prism/repository"
	"github.com/tomoncle/prism/types"
	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Get returns a single entity by its identifier.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Query returns entities matching a WHERE clause with Bun placeholders.
	Query(ctx context.Context, where string, args ...interface{}) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Update modifies an existing entity.
	Update(ctx context.Context, model *T) error

	// Delete removes an entity by its identifier.
	Delete(ctx context.Context, id any) error

	// Save inserts one or more new entities.
	Save(ctx context.Context, model ...*T) error

	// SaveOrUpdate upserts entities based on fields and conflict keys.
	SaveOrUpdate(ctx context.Context, fields []string, conflictKeys []string, model ...*T) error

	// InTx runs fn in a transaction, committing if it returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx, repo repository.TransactionRepository[T]) error) error

	// SelectBuilder returns a Bun select query builder.
	SelectBuilder() *bun.SelectQuery
}

type baseService[T any] struct {
	handle *database.Handle
	repo   repository.Repository[T]
}

// NewService returns a Service over the repository of h. Every operation is
// bounded by the handle's query timeout.
func NewService[T any](h *database.Handle) Service[T] {
	return &baseService[T]{
		handle: h,
		repo:   repository.NewRepository[T](h.DB(), repository.WithContextBounder(h.WithTimeout)),
	}
}

func (s *baseService[T]) Get(ctx context.Context, id any) (*T, error) {
	return s.repo.GetOne(ctx, id)
}

func (s *baseService[T]) All(ctx context.Context) ([]*T, error) {
	return s.repo.GetAll(ctx)
}

func (s *baseService[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	return s.repo.List(ctx, filter)
}

func (s *baseService[T]) Query(ctx context.Context, where string, args ...interface{}) ([]*T, error) {
	return s.repo.Query(ctx, where, args...)
}

func (s *baseService[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.repo.Page(ctx, page)
}

func (s *baseService[T]) Update(ctx context.Context, model *T) error {
	return s.repo.Update(ctx, model)
}

func (s *baseService[T]) Delete(ctx context.Context, id any) error {
	return s.repo.Delete(ctx, id)
}

func (s *baseService[T]) Save(ctx context.Context, model ...*T) error {
	return s.repo.Create(ctx, model...)
}

func (s *baseService[T]) SaveOrUpdate(ctx context.Context, fields []string, conflictKeys []string, model ...*T) error {
	return s.repo.Upsert(ctx, fields, conflictKeys, model...)
}

func (s *baseService[T]) InTx(ctx context.Context, fn func(ctx context.Context, tx bun.Tx, repo repository.TransactionRepository[T]) error) error {
	ctx, cancel := s.handle.WithTimeout(ctx)
	defer cancel()
	return s.handle.DB().RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, tx, s.repo)
	})
}

func (s *baseService[T]) SelectBuilder() *bun.SelectQuery {
	return s.repo.NewSelect()
}
