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

package types

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestPageRequestClamps(t *testing.T) {
	c := qt.New(t)

	p := NewDefaultPageRequest(0, 0)
	c.Assert(p.GetPage(), qt.Equals, 1)
	c.Assert(p.GetPageSize(), qt.Equals, DefaultPageSize)
	c.Assert(p.GetOffset(), qt.Equals, 0)

	p = NewDefaultPageRequest(3, 10_000)
	c.Assert(p.GetPageSize(), qt.Equals, MaxPageSize)
	c.Assert(p.GetOffset(), qt.Equals, 2*MaxPageSize)

	p = NewDefaultPageRequest(4, 25)
	c.Assert(p.GetOffset(), qt.Equals, 75)
	c.Assert(p.GetFilter(), qt.IsNil)
}

func TestPageRequestOrders(t *testing.T) {
	c := qt.New(t)
	p := NewPageRequestWithOrders(1, 10, []string{
		"created_at DESC",
		" name ",
		"projects.id asc",
		"id; DELETE FROM projects",
		"lower(name)",
		"",
	})
	c.Assert(p.GetOrders(), qt.DeepEquals, []string{"created_at DESC", "name", "projects.id asc"})
}

func TestPagination(t *testing.T) {
	c := qt.New(t)
	p := NewDefaultPagination[int](1, 10)
	c.Assert(p.Items, qt.HasLen, 0)
	c.Assert(p.TotalPages(), qt.Equals, 0)
	c.Assert(p.HasNext(), qt.IsFalse)

	p.Total = 21
	c.Assert(p.TotalPages(), qt.Equals, 3)
	c.Assert(p.HasNext(), qt.IsTrue)
	p.Page = 3
	c.Assert(p.HasNext(), qt.IsFalse)
}
