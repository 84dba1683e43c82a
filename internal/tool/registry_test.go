package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soyeahso/actionloop/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func silentLog() *logging.Logger {
	return logging.New(nil, "silent")
}

func echoSpec(name string) Spec {
	return Spec{
		Name:        name,
		Description: "echoes its text argument",
		Params: Schema{
			"text":  {Type: "string", Description: "text to echo", Required: true},
			"times": {Type: "integer"},
		},
		Action: func(ctx context.Context, args map[string]any) (string, error) {
			s, _ := args["text"].(string)
			return s, nil
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	reg := NewRegistry(silentLog())
	require.NoError(t, reg.Register(echoSpec("echo")))

	spec, err := reg.Lookup("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", spec.Name)
	assert.Equal(t, 1, reg.Len())
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry(silentLog())
	require.NoError(t, reg.Register(echoSpec("echo")))

	err := reg.Register(echoSpec("echo"))
	var dup *DuplicateToolError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "echo", dup.Name)
	assert.Equal(t, 1, reg.Len())
}

func TestRegisterInvalid(t *testing.T) {
	reg := NewRegistry(silentLog())

	assert.ErrorIs(t, reg.Register(Spec{Action: echoSpec("x").Action}), ErrInvalidSpec)
	assert.ErrorIs(t, reg.Register(Spec{Name: "noop"}), ErrInvalidSpec)
	assert.Zero(t, reg.Len())
}

func TestFreeze(t *testing.T) {
	reg := NewRegistry(silentLog())
	require.NoError(t, reg.Register(echoSpec("echo")))
	reg.Freeze()

	assert.ErrorIs(t, reg.Register(echoSpec("other")), ErrFrozen)
	_, err := reg.Lookup("echo")
	assert.NoError(t, err)
}

func TestLookupUnknown(t *testing.T) {
	reg := NewRegistry(silentLog())

	_, err := reg.Lookup("nope")
	var unk *UnknownToolError
	require.ErrorAs(t, err, &unk)
	assert.Equal(t, "nope", unk.Name)
}

func TestListKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry(silentLog())
	for _, n := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.Register(echoSpec(n)))
	}

	var names []string
	for _, s := range reg.List() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestValidate(t *testing.T) {
	reg := NewRegistry(silentLog())
	require.NoError(t, reg.Register(echoSpec("echo")))

	assert.NoError(t, reg.Validate("echo", map[string]any{"text": "hi"}))
	assert.NoError(t, reg.Validate("echo", map[string]any{"text": nil}), "presence is enough")

	err := reg.Validate("echo", map[string]any{"times": 2})
	var miss *MissingArgumentError
	require.ErrorAs(t, err, &miss)
	assert.Equal(t, []string{"text"}, miss.Missing)
	assert.Contains(t, err.Error(), "text")

	var unk *UnknownToolError
	assert.ErrorAs(t, reg.Validate("missing", nil), &unk)
}

func TestInvokeSuccess(t *testing.T) {
	reg := NewRegistry(silentLog())
	require.NoError(t, reg.Register(echoSpec("echo")))

	out, err := reg.Invoke(context.Background(), "echo", map[string]any{"text": "42"})
	require.NoError(t, err)
	assert.Equal(t, "42", out)
}

func TestInvokeFailure(t *testing.T) {
	reg := NewRegistry(silentLog())
	boom := errors.New("upstream 500")
	require.NoError(t, reg.Register(Spec{
		Name:   "flaky",
		Action: func(ctx context.Context, args map[string]any) (string, error) { return "", boom },
	}))

	_, err := reg.Invoke(context.Background(), "flaky", nil)
	var te *ToolExecutionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindFailure, te.Kind)
	assert.ErrorIs(t, err, boom)
}

func TestInvokePanicIsFailure(t *testing.T) {
	reg := NewRegistry(silentLog())
	require.NoError(t, reg.Register(Spec{
		Name:   "panicky",
		Action: func(ctx context.Context, args map[string]any) (string, error) { panic("nil map") },
	}))

	_, err := reg.Invoke(context.Background(), "panicky", nil)
	var te *ToolExecutionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindFailure, te.Kind)
	assert.Contains(t, err.Error(), "nil map")
}

func TestInvokeTimeoutIgnoringContext(t *testing.T) {
	reg := NewRegistry(silentLog())
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, reg.Register(Spec{
		Name: "stuck",
		Action: func(ctx context.Context, args map[string]any) (string, error) {
			<-release
			return "late", nil
		},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := reg.Invoke(ctx, "stuck", nil)
	assert.Less(t, time.Since(start), time.Second)

	var te *ToolExecutionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, KindTimeout, te.Kind)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvokeUnknown(t *testing.T) {
	reg := NewRegistry(silentLog())
	_, err := reg.Invoke(context.Background(), "ghost", nil)
	var unk *UnknownToolError
	assert.ErrorAs(t, err, &unk)
}

func TestDefinitions(t *testing.T) {
	reg := NewRegistry(silentLog())
	require.NoError(t, reg.Register(echoSpec("echo")))

	defs := reg.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "echo", defs[0].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])
	assert.Equal(t, []string{"text"}, defs[0].Parameters["required"])

	props := defs[0].Parameters["properties"].(map[string]any)
	assert.Equal(t, map[string]any{"type": "string", "description": "text to echo"}, props["text"])
	assert.Equal(t, map[string]any{"type": "integer"}, props["times"])
}

func TestSchemaNoRequired(t *testing.T) {
	s := Schema{"q": {Type: "string"}}
	assert.Empty(t, s.RequiredNames())
	assert.Equal(t, []string{}, s.JSONSchema()["required"])
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, `duplicate tool: "a" is already registered`, (&DuplicateToolError{Name: "a"}).Error())
	assert.Equal(t, `unknown tool: "b"`, (&UnknownToolError{Name: "b"}).Error())
	assert.Equal(t, `tool "c": missing required argument(s): x, y`, (&MissingArgumentError{Tool: "c", Missing: []string{"x", "y"}}).Error())
	assert.Contains(t, (&ToolExecutionError{Tool: "d", Kind: KindTimeout, Err: context.DeadlineExceeded}).Error(), "timed out")
}
