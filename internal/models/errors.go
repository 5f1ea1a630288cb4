package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrJobNotTerminal is returned when an action requires a completed or failed job.
var ErrJobNotTerminal = errors.New("video is still processing")

// ValidationError is a client-side rejection; no request was sent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// RequestError is a non-2xx backend response. Detail is already flattened
// into a single human-readable message.
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("request failed with status %d (%s)", e.Status, http.StatusText(e.Status))
}

// TimeoutError is returned when a call exceeds its deadline.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	if e.After > 0 {
		return fmt.Sprintf("%s timed out after %s", e.Op, e.After)
	}
	return e.Op + " timed out"
}

// NotFoundError is returned for status or delete calls on an unknown video.
type NotFoundError struct {
	VideoName string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("video not found: %s", e.VideoName)
}

// StorageError wraps a local persistence failure. It is never fatal.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTimeout reports whether err is a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// locationPrefixes are FastAPI parameter sources that prefix a field path.
var locationPrefixes = map[string]bool{
	"body":   true,
	"query":  true,
	"path":   true,
	"header": true,
	"form":   true,
	"cookie": true,
}

type fieldDetail struct {
	Loc []interface{} `json:"loc"`
	Msg string        `json:"msg"`
}

// FlattenDetail converts a backend "detail" payload into one message.
// A string is returned as-is; a list of {loc, msg} becomes "field: msg" pairs
// joined with "; "; anything else is rendered as compact JSON.
func FlattenDetail(raw json.RawMessage) string {
	raw = json.RawMessage(strings.TrimSpace(string(raw)))
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []fieldDetail
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, d := range list {
			field := fieldPath(d.Loc)
			switch {
			case field == "" && d.Msg == "":
				continue
			case field == "":
				parts = append(parts, d.Msg)
			default:
				parts = append(parts, field+": "+d.Msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	var single fieldDetail
	if err := json.Unmarshal(raw, &single); err == nil && single.Msg != "" {
		if field := fieldPath(single.Loc); field != "" {
			return field + ": " + single.Msg
		}
		return single.Msg
	}
	return string(raw)
}

func fieldPath(loc []interface{}) string {
	segs := make([]string, 0, len(loc))
	for _, l := range loc {
		switch v := l.(type) {
		case string:
			segs = append(segs, v)
		case float64:
			segs = append(segs, fmt.Sprintf("%d", int(v)))
		}
	}
	if len(segs) > 1 && locationPrefixes[segs[0]] {
		segs = segs[1:]
	}
	return strings.Join(segs, ".")
}
