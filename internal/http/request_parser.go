// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// chat bodies sent as form data by htmx or as JSON by API clients, and the
// summary query parameters shared by the dashboard and the JSON API.

package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
)

// maxBodyBytes bounds request bodies. A chat message is a sentence.
const maxBodyBytes = 16 << 10

// maxTextLength bounds the text forwarded to the language model.
const maxTextLength = 500

// ParseSummaryQuery reads group_by, from and to. Empty values keep their
// defaults: grouping by category over the whole ledger.
func ParseSummaryQuery(query url.Values) (analytics.Query, error) {
	var q analytics.Query

	groupBy, err := analytics.ParseGroupBy(query.Get("group_by"))
	if err != nil {
		return q, err
	}
	q.GroupBy = groupBy

	if v := strings.TrimSpace(query.Get("from")); v != "" {
		if q.From, err = core.ParseDate(v); err != nil {
			return q, fmt.Errorf("from: %w", err)
		}
	}
	if v := strings.TrimSpace(query.Get("to")); v != "" {
		if q.To, err = core.ParseDate(v); err != nil {
			return q, fmt.Errorf("to: %w", err)
		}
	}
	return q, q.Validate()
}

// wantsJSON reports whether the client asked for a JSON response.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") &&
		r.Header.Get("HX-Request") == ""
}

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data, commonly used with HTMX.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body once
// and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}

	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	if len(p.body) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if strings.HasPrefix(p.contentType, "application/json") || p.body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal(p.body, &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(string(p.body))
	return p.err
}

// Get returns a sanitized string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts an interface{} to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput trims whitespace, drops control characters other than tab
// and newline, and truncates to maxTextLength runes.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' {
			return -1
		}
		return r
	}, s)
	if runes := []rune(s); len(runes) > maxTextLength {
		s = string(runes[:maxTextLength])
	}
	return s
}
