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

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomoncle/prism/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// ErrEmptyFields is returned by Upsert when no column to update is given.
var ErrEmptyFields = errors.New("upsert fields cannot be empty")

type baseRepository[T any] struct {
	db    bun.IDB
	bound ContextBounder
}

// NewRepository returns a generic repository over db, which is usually the
// *bun.DB of a database.Handle.
func NewRepository[T any](db bun.IDB, opts ...Option) Repository[T] {
	o := options{bound: context.WithCancel}
	for _, opt := range opts {
		opt(&o)
	}
	return &baseRepository[T]{db: db, bound: o.bound}
}

func (r *baseRepository[T]) Dialect() schema.Dialect { return r.db.Dialect() }

func (r *baseRepository[T]) NewSelect() *bun.SelectQuery { return r.db.NewSelect() }

func (r *baseRepository[T]) NewInsert() *bun.InsertQuery { return r.db.NewInsert() }

func (r *baseRepository[T]) NewUpdate() *bun.UpdateQuery { return r.db.NewUpdate() }

func (r *baseRepository[T]) NewDelete() *bun.DeleteQuery { return r.db.NewDelete() }

func (r *baseRepository[T]) GetOne(ctx context.Context, id any) (*T, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	entity := new(T)
	if err := r.db.NewSelect().Model(entity).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepository[T]) GetAll(ctx context.Context) ([]*T, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	entities := make([]*T, 0)
	err := r.db.NewSelect().Model(&entities).Scan(ctx)
	return entities, err
}

func (r *baseRepository[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	entities := make([]*T, 0)
	query := r.db.NewSelect().Model(&entities)
	if filter != nil {
		query = query.Where(filter.Schema, filter.Args...)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepository[T]) Query(ctx context.Context, where string, args ...interface{}) ([]*T, error) {
	return r.List(ctx, types.NewQueryFilter(where, args...))
}

func (r *baseRepository[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewDefaultPageRequest(1, types.DefaultPageSize)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	entities := make([]*T, 0)
	query := r.db.NewSelect().Model(&entities)
	if f := page.GetFilter(); f != nil {
		query = query.Where(f.Schema, f.Args...)
	}
	pagination := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return pagination, nil
	}
	if orders := page.GetOrders(); len(orders) > 0 {
		query = query.Order(orders...)
	}
	if err := query.
		Offset(page.GetOffset()).
		Limit(page.GetPageSize()).
		Scan(ctx); err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepository[T]) Create(ctx context.Context, entity ...*T) error {
	return r.create(ctx, r.db, entity)
}

func (r *baseRepository[T]) Upsert(ctx context.Context, fields []string, conflictKeys []string, entity ...*T) error {
	return r.upsert(ctx, r.db, fields, conflictKeys, entity)
}

func (r *baseRepository[T]) Update(ctx context.Context, entity *T) error {
	return r.update(ctx, r.db, entity)
}

func (r *baseRepository[T]) Delete(ctx context.Context, id any) error {
	return r.delete(ctx, r.db, id)
}

func (r *baseRepository[T]) CreateWithTx(ctx context.Context, tx bun.Tx, entity ...*T) error {
	return r.create(ctx, tx, entity)
}

func (r *baseRepository[T]) UpsertWithTx(ctx context.Context, tx bun.Tx, fields []string, conflictKeys []string, entity ...*T) error {
	return r.upsert(ctx, tx, fields, conflictKeys, entity)
}

func (r *baseRepository[T]) UpdateWithTx(ctx context.Context, tx bun.Tx, entity *T) error {
	return r.update(ctx, tx, entity)
}

func (r *baseRepository[T]) DeleteWithTx(ctx context.Context, tx bun.Tx, id any) error {
	return r.delete(ctx, tx, id)
}

func (r *baseRepository[T]) create(ctx context.Context, db bun.IDB, entities []*T) error {
	if len(entities) == 0 {
		return nil
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := db.NewInsert().Model(&entities).Exec(ctx)
	return err
}

func (r *baseRepository[T]) update(ctx context.Context, db bun.IDB, entity *T) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := db.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return err
}

func (r *baseRepository[T]) delete(ctx context.Context, db bun.IDB, id any) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	_, err := db.NewDelete().Model(new(T)).Where("id = ?", id).Exec(ctx)
	return err
}

func (r *baseRepository[T]) upsert(ctx context.Context, db bun.IDB, fields []string, conflictKeys []string, entities []*T) error {
	if len(fields) == 0 {
		return ErrEmptyFields
	}
	if len(entities) == 0 {
		return nil
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()

	features := db.Dialect().Features()
	switch {
	case features.Has(feature.InsertOnConflict):
		return upsertOnConflict(ctx, db, fields, conflictKeys, entities)
	case features.Has(feature.InsertOnDuplicateKey):
		return upsertOnDuplicateKey(ctx, db, fields, entities)
	default:
		return upsertFallback(ctx, db, entities)
	}
}

func upsertOnDuplicateKey[T any](ctx context.Context, db bun.IDB, fields []string, entities []*T) error {
	sets := make([]string, 0, len(fields))
	for _, field := range fields {
		sets = append(sets, fmt.Sprintf("%[1]s = VALUES(%[1]s)", field))
	}
	_, err := db.NewInsert().
		Model(&entities).
		On("DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")).
		Exec(ctx)
	return err
}

func upsertOnConflict[T any](ctx context.Context, db bun.IDB, fields []string, conflictKeys []string, entities []*T) error {
	if len(conflictKeys) == 0 {
		conflictKeys = []string{"id"}
	}
	query := db.NewInsert().
		Model(&entities).
		On("CONFLICT (" + strings.Join(conflictKeys, ", ") + ") DO UPDATE")
	for _, field := range fields {
		query = query.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := query.Exec(ctx)
	return err
}

func upsertFallback[T any](ctx context.Context, db bun.IDB, entities []*T) error {
	for _, entity := range entities {
		if _, err := db.NewInsert().Model(entity).Exec(ctx); err != nil {
			if _, updateErr := db.NewUpdate().Model(entity).WherePK().Exec(ctx); updateErr != nil {
				return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %w", err, updateErr)
			}
		}
	}
	return nil
}
