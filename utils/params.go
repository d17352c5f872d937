package utils

import (
	"net/http"
	"strconv"
	"strings"
)

type QueryOptions struct {
	Page   int
	Limit  int
	Status string
	From   string // "YYYY-MM-DD"
	To     string
}

func ParseQueryOptions(r *http.Request) QueryOptions {
	q := r.URL.Query()

	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = 50
	}

	return QueryOptions{
		Page:   page,
		Limit:  limit,
		Status: q.Get("status"),
		From:   q.Get("from"),
		To:     q.Get("to"),
	}
}

func ContainsIgnoreCase(str, substr string) bool {
	return strings.Contains(strings.ToLower(str), strings.ToLower(substr))
}
