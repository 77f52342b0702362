package tools

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucasmvf/pergola/internal/ratelimit"
	"github.com/lucasmvf/pergola/pkg/domain"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	limiter := ratelimit.New(ratelimit.Config{
		Window:            time.Hour,
		GlobalCapacity:    1000,
		ClientCapacity:    1000,
		ExpensiveCapacity: 1000,
	})
	return NewRegistry(&Context{Limiter: limiter})
}

func echoDef() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echo a message back.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{"type": "string"},
			},
			"required": []any{"message"},
		},
	}
}

func echoHandler(ctx context.Context, tc *Context, args map[string]any) (string, error) {
	return args["message"].(string), nil
}

func TestCallExecutesHandler(t *testing.T) {
	reg := testRegistry(t)
	require.NoError(t, reg.Register(echoDef(), echoHandler))

	out, err := reg.Call(context.Background(), "test", "echo", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestCallUnknownToolIsSpecific(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.Call(context.Background(), "test", "does_not_exist", nil)
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrUnknownTool)

	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "does_not_exist", unknown.Tool)
}

func TestCallValidatesSchema(t *testing.T) {
	reg := testRegistry(t)
	require.NoError(t, reg.Register(echoDef(), echoHandler))

	_, err := reg.Call(context.Background(), "test", "echo", map[string]any{})
	require.Error(t, err)

	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "echo", schemaErr.Tool)
	assert.NotEmpty(t, schemaErr.Violations)

	// Wrong type is also a schema error, not a handler panic.
	_, err = reg.Call(context.Background(), "test", "echo", map[string]any{"message": 42})
	require.ErrorAs(t, err, &schemaErr)
}

func TestCallHandlerFailureIsWrapped(t *testing.T) {
	reg := testRegistry(t)
	require.NoError(t, reg.Register(Definition{Name: "broken"}, func(ctx context.Context, tc *Context, args map[string]any) (string, error) {
		return "", fmt.Errorf("disk on fire")
	}))

	_, err := reg.Call(context.Background(), "test", "broken", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `tool "broken" failed`)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestCallConsultsRateLimiter(t *testing.T) {
	limiter := ratelimit.New(ratelimit.Config{
		Window:         time.Hour,
		GlobalCapacity: 1000,
		ClientCapacity: 2,
	})
	reg := NewRegistry(&Context{Limiter: limiter})
	require.NoError(t, reg.Register(Definition{Name: "noop"}, func(ctx context.Context, tc *Context, args map[string]any) (string, error) {
		return "ok", nil
	}))

	_, err := reg.Call(context.Background(), "cli", "noop", nil)
	require.NoError(t, err)
	_, err = reg.Call(context.Background(), "cli", "noop", nil)
	require.NoError(t, err)

	_, err = reg.Call(context.Background(), "cli", "noop", nil)
	require.ErrorIs(t, err, domain.ErrRateLimited)

	var rlErr *ratelimit.Error
	require.ErrorAs(t, err, &rlErr)
	assert.Greater(t, rlErr.RetryAfter, time.Duration(0))
}

func TestCatalogIsSortedAndIdempotent(t *testing.T) {
	reg := testRegistry(t)
	require.NoError(t, reg.Register(Definition{Name: "zeta"}, echoHandler))
	require.NoError(t, reg.Register(Definition{Name: "alpha"}, echoHandler))
	require.NoError(t, reg.Register(echoDef(), echoHandler))

	first := reg.Catalog()
	second := reg.Catalog()

	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	assert.Equal(t, "alpha", first[0].Name)
	assert.Equal(t, "echo", first[1].Name)
	assert.Equal(t, "zeta", first[2].Name)
}

func TestCallTimeoutIsAuthoritative(t *testing.T) {
	reg := NewRegistry(&Context{}, WithCallTimeout(20*time.Millisecond))
	require.NoError(t, reg.Register(Definition{Name: "slow"}, func(ctx context.Context, tc *Context, args map[string]any) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}))

	_, err := reg.Call(context.Background(), "test", "slow", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleRoutesIntoRegistry(t *testing.T) {
	reg := testRegistry(t)
	require.NoError(t, reg.Register(echoDef(), echoHandler))

	handle := reg.Handle("local-model", func() string { return "http://127.0.0.1:9400" })

	catalog := handle.Catalog()
	require.Len(t, catalog, 1)
	assert.Equal(t, "echo", catalog[0].Name)
	assert.Equal(t, "http://127.0.0.1:9400", handle.Endpoint())

	out, err := handle.CallTool(context.Background(), "echo", map[string]any{"message": "routed"})
	require.NoError(t, err)
	assert.Equal(t, "routed", out)
}

func TestRegisterNotifiesWatchers(t *testing.T) {
	reg := testRegistry(t)
	require.NoError(t, reg.Register(Definition{Name: "early"}, echoHandler))

	var seen []string
	reg.OnRegister(func(def Definition) { seen = append(seen, def.Name) })

	// Only additions after subscription are reported; the construction-time
	// catalog is read directly.
	require.NoError(t, reg.Register(echoDef(), echoHandler))
	require.NoError(t, reg.Register(Definition{Name: "late"}, echoHandler))

	assert.Equal(t, []string{"echo", "late"}, seen)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	reg := testRegistry(t)
	assert.Error(t, reg.Register(Definition{}, echoHandler))
	assert.Error(t, reg.Register(Definition{Name: "x"}, nil))
}
