package campaign

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPolicy keeps delays tiny so retry tests run fast.
func testPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    4 * time.Millisecond,
	}
}

func TestRetryPolicyValidate(t *testing.T) {
	t.Run("valid policy", func(t *testing.T) {
		assert.NoError(t, DefaultRetryPolicy().Validate())
	})

	t.Run("zero attempts rejected", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 0, BaseDelay: time.Millisecond, MaxDelay: time.Second}
		assert.Error(t, p.Validate())
	})

	t.Run("max delay below base delay rejected", func(t *testing.T) {
		p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Millisecond}
		assert.Error(t, p.Validate())
	})
}

func TestRetryPolicyBackOffSchedule(t *testing.T) {
	// Delays must follow min(base * 2^(attempt-1), max): non-decreasing and capped.
	p := RetryPolicy{
		MaxAttempts: 6,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    40 * time.Millisecond,
	}

	bo := p.newBackOff()
	expected := []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
		40 * time.Millisecond,
		40 * time.Millisecond,
	}

	var prev time.Duration
	for i, want := range expected {
		got := bo.NextBackOff()
		assert.Equal(t, want, got, "delay after attempt %d", i+1)
		assert.GreaterOrEqual(t, got, prev, "delays must be non-decreasing")
		assert.LessOrEqual(t, got, p.MaxDelay, "delays must be capped at max delay")
		prev = got
	}
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("transient failure twice then success records exactly 3 attempts", func(t *testing.T) {
		attempts := 0
		err := withRetry(ctx, "write test", testPolicy(3), func() error {
			attempts++
			if attempts < 3 {
				return NewFileOperationError("transient failure %d", attempts)
			}
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
	})

	t.Run("permanent failure with max_attempts=2 preserves both messages", func(t *testing.T) {
		attempts := 0
		err := withRetry(ctx, "write test", testPolicy(2), func() error {
			attempts++
			return NewFileOperationError("failure number %d", attempts)
		})

		require.Error(t, err)
		assert.Equal(t, 2, attempts)
		assert.True(t, IsKind(err, KindFileOperation))
		assert.False(t, IsRetryable(err), "exhausted retries must surface as fatal")

		var coreErr *Error
		require.ErrorAs(t, err, &coreErr)
		assert.Equal(t, "2", coreErr.Context["attempts"])
		assert.Contains(t, coreErr.Context["attempt_errors"], "failure number 1")
		assert.Contains(t, coreErr.Context["attempt_errors"], "failure number 2")
	})

	t.Run("non-retryable error fails immediately", func(t *testing.T) {
		attempts := 0
		err := withRetry(ctx, "read test", testPolicy(5), func() error {
			attempts++
			return NewDataExtractionError("missing subject")
		})

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.True(t, IsKind(err, KindDataExtraction))
	})

	t.Run("attempts never exceed max_attempts", func(t *testing.T) {
		for _, maxAttempts := range []int{1, 2, 5} {
			attempts := 0
			_ = withRetry(ctx, "op", testPolicy(maxAttempts), func() error {
				attempts++
				return NewFileOperationError("always failing")
			})
			assert.Equal(t, maxAttempts, attempts, "max_attempts=%d", maxAttempts)
		}
	})

	t.Run("custom predicate overrides classification", func(t *testing.T) {
		p := testPolicy(4)
		p.Retryable = func(err error) bool { return false }

		attempts := 0
		err := withRetry(ctx, "op", p, func() error {
			attempts++
			return NewFileOperationError("would normally retry")
		})

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("cancellation between attempts stops the loop", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		attempts := 0
		err := withRetry(cancelCtx, "op", testPolicy(3), func() error {
			attempts++
			return NewFileOperationError("transient")
		})

		require.Error(t, err)
		assert.Equal(t, 1, attempts, "in-flight attempt completes, no new attempt starts")
		assert.True(t, IsKind(err, KindFileOperation))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("invalid policy is a configuration error", func(t *testing.T) {
		err := withRetry(ctx, "op", RetryPolicy{}, func() error { return nil })
		require.Error(t, err)
		assert.True(t, IsKind(err, KindConfiguration))
	})
}

func TestWriteAtomicAndRead(t *testing.T) {
	ctx := context.Background()
	policy := testPolicy(3)

	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "content.json")
		payload := []byte(`{"subject":"Paris in spring"}`)

		require.NoError(t, WriteAtomic(ctx, path, payload, policy))

		data, err := Read(ctx, path, policy)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
	})

	t.Run("no temp files left behind", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "content.json")

		require.NoError(t, WriteAtomic(ctx, path, []byte("{}"), policy))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "content.json", entries[0].Name())
	})

	t.Run("overwrite replaces content whole", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "content.json")

		require.NoError(t, WriteAtomic(ctx, path, []byte("first"), policy))
		require.NoError(t, WriteAtomic(ctx, path, []byte("second"), policy))

		data, err := Read(ctx, path, policy)
		require.NoError(t, err)
		assert.Equal(t, "second", string(data))
	})

	t.Run("write to missing directory exhausts retries as fatal", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "missing", "content.json")

		err := WriteAtomic(ctx, path, []byte("{}"), testPolicy(2))
		require.Error(t, err)
		assert.True(t, IsKind(err, KindFileOperation))
		assert.False(t, IsRetryable(err))

		var coreErr *Error
		require.ErrorAs(t, err, &coreErr)
		assert.Equal(t, "2", coreErr.Context["attempts"])
	})
}

func TestReadStructured(t *testing.T) {
	ctx := context.Background()
	policy := testPolicy(3)

	t.Run("decodes valid JSON", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "content.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"subject":"Paris in spring"}`), 0644))

		var out struct {
			Subject string `json:"subject"`
		}
		require.NoError(t, ReadStructured(ctx, path, policy, &out))
		assert.Equal(t, "Paris in spring", out.Subject)
	})

	t.Run("malformed JSON is a fatal extraction error, not retried", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "content.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"subject":`), 0644))

		var out map[string]any
		err := ReadStructured(ctx, path, policy, &out)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindDataExtraction))
	})

	t.Run("missing file surfaces as file operation error", func(t *testing.T) {
		var out map[string]any
		err := ReadStructured(ctx, filepath.Join(t.TempDir(), "nope.json"), testPolicy(1), &out)
		require.Error(t, err)
		assert.True(t, IsKind(err, KindFileOperation))
	})
}

func TestCopy(t *testing.T) {
	ctx := context.Background()
	policy := testPolicy(3)

	dir := t.TempDir()
	src := filepath.Join(dir, "brief.json")
	dst := filepath.Join(dir, "brief-copy.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"topic":"spring"}`), 0644))

	require.NoError(t, Copy(ctx, src, dst, policy))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, `{"topic":"spring"}`, string(data))
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	policy := testPolicy(3)
	dir := t.TempDir()

	t.Run("existing file", func(t *testing.T) {
		path := filepath.Join(dir, "here.json")
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0644))

		found, err := Exists(ctx, path, policy)
		require.NoError(t, err)
		assert.True(t, found)
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		found, err := Exists(ctx, filepath.Join(dir, "missing.json"), policy)
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestWriteStructuredAtomic(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "meta.json")

	in := map[string]string{"topic": "Paris in spring"}
	require.NoError(t, WriteStructuredAtomic(ctx, path, in, testPolicy(2)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"), "structured writes are newline-terminated")

	var out map[string]string
	require.NoError(t, ReadStructured(ctx, path, testPolicy(2), &out))
	assert.Equal(t, in, out)
}
