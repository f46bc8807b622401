package validation

import (
	"testing"

	"github.com/fyrsmithlabs/memoryforge/internal/memory"
	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"removes NUL bytes", "hello\x00world", "helloworld"},
		{"normalizes CRLF", "line1\r\nline2", "line1\nline2"},
		{"normalizes lone CR", "line1\rline2", "line1\nline2"},
		{"trims surrounding whitespace", "  content  \n", "content"},
		{"combination", "\x00  text\r\nmore\x00  ", "text\nmore"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.input))
		})
	}
}

func TestValidateContent(t *testing.T) {
	assert.NoError(t, ValidateContent("valid content"))

	err := ValidateContent("")
	assert.Error(t, err)
	assert.Equal(t, memory.KindValidation, memory.KindOf(err))

	err = ValidateContent("   ")
	assert.Error(t, err)

	long := make([]byte, MaxContentLength+1)
	for i := range long {
		long[i] = 'a'
	}
	err = ValidateContent(string(long))
	assert.Error(t, err)
}

func TestValidateType(t *testing.T) {
	assert.NoError(t, ValidateType(memory.TypeStack))
	assert.Error(t, ValidateType(memory.Type("bogus")))
}

func TestValidateSource(t *testing.T) {
	assert.NoError(t, ValidateSource(memory.SourceManual))
	assert.Error(t, ValidateSource(memory.Source("bogus")))
}

func TestValidateMemoryCreate(t *testing.T) {
	assert.NoError(t, ValidateMemoryCreate("content", memory.TypeNote, memory.SourceChat))
	assert.Error(t, ValidateMemoryCreate("", memory.TypeNote, memory.SourceChat))
	assert.Error(t, ValidateMemoryCreate("content", memory.Type("bogus"), memory.SourceChat))
	assert.Error(t, ValidateMemoryCreate("content", memory.TypeNote, memory.Source("bogus")))
}

func TestValidateSearchQuery(t *testing.T) {
	assert.NoError(t, ValidateSearchQuery("search terms"))
	assert.Error(t, ValidateSearchQuery(""))
	assert.Error(t, ValidateSearchQuery("   "))

	long := make([]byte, MaxContentLength+1)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, ValidateSearchQuery(string(long)))
}
