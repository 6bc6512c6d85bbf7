package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterKeys(t *testing.T) {
	kv := map[string]string{"BINANCE_API_KEY": "k", "BINANCE_API_SECRET": "s", "OTHER": "x"}
	assert.Equal(t, kv, filterKeys(kv, ""))
	assert.Equal(t, map[string]string{"BINANCE_API_KEY": "k"}, filterKeys(kv, "BINANCE_API_KEY, MISSING"))
}
