package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	ctx = WithQueryID(ctx, "q_abc123")
	ctx = WithSessionID(ctx, "sess_456")
	ctx = WithRequestID(ctx, "req_789")

	fields := ContextFields(ctx)

	keys := make(map[string]string)
	for _, f := range fields {
		keys[f.Key] = f.String
	}
	assert.Equal(t, "q_abc123", keys["query.id"])
	assert.Equal(t, "sess_456", keys["session.id"])
	assert.Equal(t, "req_789", keys["request.id"])
}

func TestContextFieldsEmpty(t *testing.T) {
	fields := ContextFields(context.Background())
	assert.Empty(t, fields)
}

func TestWithQueryIDValidation(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		wantPanic bool
	}{
		{name: "valid", id: "q_abc-123"},
		{name: "empty", id: "", wantPanic: true},
		{name: "invalid chars", id: "q abc;drop", wantPanic: true},
		{name: "too long", id: string(make([]byte, 200)), wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantPanic {
				assert.Panics(t, func() { WithQueryID(context.Background(), tt.id) })
			} else {
				assert.NotPanics(t, func() { WithQueryID(context.Background(), tt.id) })
			}
		})
	}
}

func TestMemberHash(t *testing.T) {
	f := MemberHash("member", "member-0042")
	assert.Equal(t, "member", f.Key)
	assert.Len(t, f.String, 12)
	assert.NotContains(t, f.String, "0042")

	// Stable across calls
	f2 := MemberHash("member", "member-0042")
	assert.Equal(t, f.String, f2.String)

	// Empty input stays empty
	empty := MemberHash("member", "")
	assert.Equal(t, "", empty.String)
}
