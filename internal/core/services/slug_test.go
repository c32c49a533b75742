package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Helper Bot", "helper-bot"},
		{"  My   Agent  ", "my-agent"},
		{"ALL CAPS", "all-caps"},
		{"dots.and.dashes-ok", "dots-and-dashes-ok"},
		{"émoji 🤖 name", "moji-name"},
		{"already-clean", "already-clean"},
		{"!!!", "agent"},
		{"", "agent"},
		{"a-very-long-name-that-keeps-going-and-going-and-going", "a-very-long-name-that-keeps-going-and-go"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, slugify(tt.name))
		})
	}
}
