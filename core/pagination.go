// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import "time"

const (
	// DefaultPage is used when a caller leaves the page unset.
	DefaultPage = 1
	// DefaultPerPage is used when a caller leaves the page size unset.
	DefaultPerPage = 20
)

// SortDirection orders query results.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// OrderBy names the field and direction a listing is sorted by.
type OrderBy struct {
	Field     string
	Direction SortDirection
}

// Pagination selects one page of a listing. Page is 1-indexed.
// Zero values mean "unspecified" and fall back to DefaultPage and DefaultPerPage.
type Pagination struct {
	Page    int
	PerPage int
}

// DateRange bounds a listing by time. A zero Start or End leaves that side open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// PaginationInfo describes the page that was returned.
type PaginationInfo struct {
	Page    int  `json:"page"`
	PerPage int  `json:"perPage"`
	Total   int  `json:"total"`
	HasMore bool `json:"hasMore"`
}

// Page is a window of records plus the pagination that produced it.
type Page[T any] struct {
	Items      []*T
	Pagination PaginationInfo
}

// Offset returns the number of records skipped before this page.
func (p PaginationInfo) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// NewPaginationInfo computes HasMore for a page of size perPage over total records.
func NewPaginationInfo(page, perPage, total int) PaginationInfo {
	return PaginationInfo{
		Page:    page,
		PerPage: perPage,
		Total:   total,
		HasMore: total > (page-1)*perPage+perPage,
	}
}
