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

package database

import (
	"reflect"
	"sort"
	"sync"
)

var defaultRegistry = NewModelRegistry()

// SQLModel is a Bun model whose table is created by the base-table migration.
// Lower priorities are created first, so referenced tables go before
// referencing ones.
type SQLModel interface {
	Instance() interface{}
	Priority() int
}

// ModelRegistry stores SQL models, one per Go type, in a deterministic order.
type ModelRegistry struct {
	mu     sync.RWMutex
	models map[reflect.Type]SQLModel
	order  []reflect.Type
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{models: make(map[reflect.Type]SQLModel)}
}

// Register adds model, replacing an earlier registration of the same type.
func (r *ModelRegistry) Register(model SQLModel) {
	typ := reflect.TypeOf(model.Instance())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[typ]; !ok {
		r.order = append(r.order, typ)
	}
	r.models[typ] = model
}

// Models returns registered models by ascending priority, ties in
// registration order.
func (r *ModelRegistry) Models() []SQLModel {
	r.mu.RLock()
	result := make([]SQLModel, 0, len(r.order))
	for _, typ := range r.order {
		result = append(result, r.models[typ])
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Priority() < result[j].Priority()
	})
	return result
}

// Instances returns the model instances in Models order.
func (r *ModelRegistry) Instances() []interface{} {
	models := r.Models()
	instances := make([]interface{}, len(models))
	for i, model := range models {
		instances[i] = model.Instance()
	}
	return instances
}

type modelAdapter struct {
	instance interface{}
	priority int
}

// NewModelAdapter wraps a struct pointer and priority into an SQLModel.
func NewModelAdapter(instance interface{}, priority int) SQLModel {
	return &modelAdapter{instance: instance, priority: priority}
}

func (a *modelAdapter) Instance() interface{} { return a.instance }

func (a *modelAdapter) Priority() int { return a.priority }

// RegisterModel adds a model to the default registry. Call it from init
// functions, before the handle is opened.
func RegisterModel(instance interface{}, priority int) {
	defaultRegistry.Register(NewModelAdapter(instance, priority))
}

func RegisteredModels() []SQLModel {
	return defaultRegistry.Models()
}

func RegisteredModelInstances() []interface{} {
	return defaultRegistry.Instances()
}
