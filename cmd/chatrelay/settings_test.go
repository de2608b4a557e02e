package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettings_Lists(t *testing.T) {
	settings := Settings{
		APIKeys:        " key-1, key-2,,",
		AllowedOrigins: "",
	}

	assert.Equal(t, []string{"key-1", "key-2"}, settings.apiKeys())
	assert.Empty(t, settings.allowedOrigins())
}
