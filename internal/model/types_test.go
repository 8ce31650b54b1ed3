package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNodeType_IsValid checks that only defined node types pass validation.
func TestNodeType_IsValid(t *testing.T) {
	assert.True(t, NodeFolder.IsValid())
	assert.True(t, NodeDocument.IsValid())
	assert.True(t, NodeOther.IsValid())
	assert.False(t, NodeType("cabinet").IsValid())
	assert.False(t, NodeType("").IsValid())
}

// TestParseNodeType verifies string-to-type conversion, including case
// normalization and error cases.
func TestParseNodeType(t *testing.T) {
	tests := []struct {
		input    string
		expected NodeType
		hasError bool
	}{
		{"folder", NodeFolder, false},
		{"document", NodeDocument, false},
		{"other", NodeOther, false},
		{"Folder", NodeFolder, false},
		{" DOCUMENT ", NodeDocument, false},
		{"cabinet", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseNodeType(tt.input)
			if tt.hasError {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

// TestNode_ImplicitVersion verifies that the first version label is the
// implicit one and that a node without labels yields an empty string.
func TestNode_ImplicitVersion(t *testing.T) {
	n := &Node{ID: "0900000180001234", Name: "Report", VersionLabels: []string{"1.2", "CURRENT"}}
	assert.Equal(t, "1.2", n.ImplicitVersion())

	n.VersionLabels = nil
	assert.Equal(t, "", n.ImplicitVersion())
}

// TestNode_String verifies the "name (id)" log representation.
func TestNode_String(t *testing.T) {
	n := &Node{ID: "0b00000180000001", Name: "Finance"}
	assert.Equal(t, "Finance (0b00000180000001)", n.String())
}

// TestContent_IsParked verifies that any non-zero parked state counts as parked.
func TestContent_IsParked(t *testing.T) {
	assert.False(t, (&Content{ParkedState: 0}).IsParked())
	assert.True(t, (&Content{ParkedState: 1}).IsParked())
	assert.True(t, (&Content{ParkedState: 2}).IsParked())
}

// TestSkipReason_Message verifies every skip reason has a distinct log message.
func TestSkipReason_Message(t *testing.T) {
	reasons := []SkipReason{
		SkipNoContentAssociation,
		SkipUnresolvableContent,
		SkipParkedContent,
		SkipNoContent,
		SkipNotADocument,
	}

	seen := make(map[string]SkipReason)
	for _, r := range reasons {
		msg := r.Message()
		assert.NotEqual(t, r.String(), msg, "reason %s should have a readable message", r)
		if prev, dup := seen[msg]; dup {
			t.Fatalf("reasons %s and %s share message %q", prev, r, msg)
		}
		seen[msg] = r
	}
}

// TestCounters_Add verifies that counters fold field by field.
func TestCounters_Add(t *testing.T) {
	c := Counters{Folders: 1, Documents: 2, Exported: 1, Skipped: 1, Bytes: 10}
	c.Add(Counters{Folders: 2, Documents: 3, Exported: 2, Failed: 1, Bytes: 5})

	assert.Equal(t, Counters{Folders: 3, Documents: 5, Exported: 3, Skipped: 1, Failed: 1, Bytes: 15}, c)
}

// TestExitCodeFor verifies that wrapped fatal errors map to their exit codes.
func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ExitCode
	}{
		{"nil", nil, ExitSuccess},
		{"config", fmt.Errorf("target path: %w", ErrConfig), ExitConfigError},
		{"precondition", fmt.Errorf("source: %w", ErrPrecondition), ExitPreconditionFailed},
		{"auth", fmt.Errorf("connect: %w", ErrAuth), ExitAuthFailed},
		{"query", fmt.Errorf("children: %w", ErrQuery), ExitQueryFailed},
		{"other", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

// TestCLIError verifies CLIError formatting and unwrapping.
func TestCLIError(t *testing.T) {
	t.Run("without underlying error", func(t *testing.T) {
		err := NewCLIError(ExitConfigError, "target path missing")
		assert.Equal(t, "target path missing", err.Error())
		assert.Nil(t, err.Unwrap())
		assert.Equal(t, ExitConfigError, err.Code)
	})

	t.Run("with underlying error", func(t *testing.T) {
		inner := fmt.Errorf("lookup /Temp: %w", ErrPrecondition)
		err := WrapCLIError(ExitPreconditionFailed, "source path not found", inner)
		assert.Equal(t, "source path not found: lookup /Temp: precondition failed", err.Error())
		assert.True(t, errors.Is(err, ErrPrecondition))

		var cliErr *CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, ExitPreconditionFailed, cliErr.Code)
	})
}
