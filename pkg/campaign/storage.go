package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the retry behavior of one storage operation call site.
// Policies are constructed per call site, not per campaign.
type RetryPolicy struct {
	MaxAttempts int                   // Total attempts including the first (must be >= 1)
	BaseDelay   time.Duration         // Delay before the second attempt
	MaxDelay    time.Duration         // Cap for the exponential schedule
	Retryable   func(err error) bool  // Classification predicate; nil means IsRetryable
}

// DefaultRetryPolicy returns the policy used by the campaign store:
// 3 attempts, 50ms base delay doubling up to 1s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   50 * time.Millisecond,
		MaxDelay:    time.Second,
	}
}

// Validate checks if the RetryPolicy has usable field values.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("base delay cannot be negative")
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("max delay %v is below base delay %v", p.MaxDelay, p.BaseDelay)
	}
	return nil
}

// retryable resolves the classification predicate.
func (p RetryPolicy) retryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return IsRetryable(err)
}

// newBackOff builds the delay schedule for this policy:
// min(base * 2^(attempt-1), max), no jitter.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.BaseDelay
	bo.MaxInterval = p.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // attempts are bounded by MaxAttempts, not wall clock
	bo.Reset()
	return bo
}

// withRetry runs fn under the policy. Non-retryable failures return
// immediately. Once MaxAttempts is exhausted, the last error is wrapped as a
// fatal FileOperationError carrying the attempt count and every per-attempt
// message, so callers only ever observe a final success or a fatal failure.
//
// Cancellation is honored between attempts only: an in-flight operation
// (in particular an atomic write) is always allowed to complete.
func withRetry(ctx context.Context, op string, policy RetryPolicy, fn func() error) error {
	if err := policy.Validate(); err != nil {
		return NewConfigurationError("invalid retry policy for %s", op).WithCause(err)
	}

	bo := policy.newBackOff()
	var attemptMessages []string
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		attemptMessages = append(attemptMessages, fmt.Sprintf("attempt %d: %v", attempt, lastErr))

		if !policy.retryable(lastErr) {
			return lastErr
		}

		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return NewFileOperationError("%s cancelled after %d attempts", op, attempt).
				Fatal().
				WithContext("attempts", strconv.Itoa(attempt)).
				WithCause(ctx.Err())
		case <-time.After(bo.NextBackOff()):
		}
	}

	return NewFileOperationError("%s failed after %d attempts", op, policy.MaxAttempts).
		Fatal().
		WithContext("attempts", strconv.Itoa(policy.MaxAttempts)).
		WithContext("attempt_errors", strings.Join(attemptMessages, "; ")).
		WithCause(lastErr)
}

// Read reads a file under the campaign root with retries.
func Read(ctx context.Context, path string, policy RetryPolicy) ([]byte, error) {
	var data []byte

	err := withRetry(ctx, fmt.Sprintf("read %s", path), policy, func() error {
		b, err := os.ReadFile(path)
		if err != nil {
			return NewFileOperationError("failed to read file").
				WithContext("path", path).
				WithCause(err)
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	return data, nil
}

// ReadStructured reads a JSON file and decodes it into out. Read failures
// retry under the policy; a decode failure is a fatal DataExtractionError
// and is never retried, since re-reading malformed content cannot help.
func ReadStructured(ctx context.Context, path string, policy RetryPolicy, out any) error {
	data, err := Read(ctx, path, policy)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, out); err != nil {
		return NewDataExtractionError("failed to decode %s", filepath.Base(path)).
			WithContext("path", path).
			WithCause(err)
	}

	return nil
}

// WriteAtomic writes data to path via a temp file in the same directory
// followed by a rename, so a concurrent reader never observes a partial
// file. All artifact and metadata writes that gate a stage transition go
// through this function.
func WriteAtomic(ctx context.Context, path string, data []byte, policy RetryPolicy) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	return withRetry(ctx, fmt.Sprintf("write %s", path), policy, func() error {
		tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
		if err != nil {
			return NewFileOperationError("failed to create temp file").
				WithContext("path", path).
				WithCause(err)
		}
		tmpName := tmp.Name()

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return NewFileOperationError("failed to write temp file").
				WithContext("path", path).
				WithCause(err)
		}

		if err := tmp.Close(); err != nil {
			os.Remove(tmpName)
			return NewFileOperationError("failed to close temp file").
				WithContext("path", path).
				WithCause(err)
		}

		if err := os.Chmod(tmpName, 0644); err != nil {
			os.Remove(tmpName)
			return NewFileOperationError("failed to set temp file permissions").
				WithContext("path", path).
				WithCause(err)
		}

		if err := os.Rename(tmpName, path); err != nil {
			os.Remove(tmpName)
			return NewFileOperationError("failed to rename temp file into place").
				WithContext("path", path).
				WithCause(err)
		}

		return nil
	})
}

// WriteStructuredAtomic marshals v as indented JSON and writes it atomically.
func WriteStructuredAtomic(ctx context.Context, path string, v any, policy RetryPolicy) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return NewDataExtractionError("failed to encode %s", filepath.Base(path)).
			WithContext("path", path).
			WithCause(err)
	}
	return WriteAtomic(ctx, path, append(data, '\n'), policy)
}

// Copy duplicates src to dst with retries. The destination write is atomic.
func Copy(ctx context.Context, src, dst string, policy RetryPolicy) error {
	data, err := Read(ctx, src, policy)
	if err != nil {
		return err
	}
	return WriteAtomic(ctx, dst, data, policy)
}

// Exists checks whether path exists with retries. A clean "not found" is
// (false, nil); only genuine stat failures are retried and reported.
func Exists(ctx context.Context, path string, policy RetryPolicy) (bool, error) {
	var found bool

	err := withRetry(ctx, fmt.Sprintf("stat %s", path), policy, func() error {
		_, err := os.Stat(path)
		if err == nil {
			found = true
			return nil
		}
		if os.IsNotExist(err) {
			found = false
			return nil
		}
		return NewFileOperationError("failed to stat file").
			WithContext("path", path).
			WithCause(err)
	})
	if err != nil {
		return false, err
	}

	return found, nil
}
