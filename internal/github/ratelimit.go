package github

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/mchan/issuelens/internal/retry"
)

// classifyError translates go-github errors into the retry engine's taxonomy
// so rate limits carry their server-provided wait and server errors are
// retried while plain 4xx responses fail fast.
func classifyError(resp *gogithub.Response, err error) error {
	if err == nil {
		return nil
	}

	var rle *gogithub.RateLimitError
	if errors.As(err, &rle) {
		return &retry.RateLimitError{
			RetryAfter: time.Until(rle.Rate.Reset.Time),
			Err:        err,
		}
	}

	var arle *gogithub.AbuseRateLimitError
	if errors.As(err, &arle) {
		var after time.Duration
		if arle.RetryAfter != nil {
			after = *arle.RetryAfter
		}
		return &retry.RateLimitError{RetryAfter: after, Err: err}
	}

	var ghErr *gogithub.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		if code == http.StatusForbidden || code == http.StatusTooManyRequests {
			return &retry.RateLimitError{
				RetryAfter: retryAfterHeader(ghErr.Response),
				Err:        err,
			}
		}
		return &retry.HTTPError{StatusCode: code, Err: err}
	}

	if resp != nil && resp.Response != nil && resp.StatusCode >= 400 {
		return &retry.HTTPError{StatusCode: resp.StatusCode, Err: err}
	}

	return err
}

// retryAfterHeader extracts a concrete wait from a rate-limited response:
// the Retry-After header (seconds) first, then the X-RateLimit-Reset
// timestamp. Returns 0 when neither yields a usable value.
func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if unix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			if d := time.Until(time.Unix(unix, 0)); d > 0 {
				return d
			}
		}
	}

	return 0
}

// IsNotFound reports whether err is a GitHub 404 response.
func IsNotFound(err error) bool {
	var ghErr *gogithub.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	var he *retry.HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusNotFound
	}
	return false
}

// estimateTotal derives an advisory total issue count from the first page's
// pagination metadata. GitHub exposes the last page number in the Link
// header; go-github parses it into Response.LastPage.
func estimateTotal(resp *gogithub.Response, perPage, fetched int) int {
	if resp == nil || resp.LastPage <= 1 {
		return fetched
	}
	if perPage <= 0 {
		return fetched
	}
	return resp.LastPage * perPage
}

// pageError annotates a pagination failure with the page number for logs.
func pageError(page int, err error) error {
	return fmt.Errorf("page %d: %w", page, err)
}
