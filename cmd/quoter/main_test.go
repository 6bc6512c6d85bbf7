package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/ladderquote/internal/domain"
)

func TestParsePaperQuote(t *testing.T) {
	q, err := parsePaperQuote("99, 101")
	require.NoError(t, err)
	assert.Equal(t, domain.ReferenceQuote{Bid: 99, Ask: 101}, q)

	q, err = parsePaperQuote("99,101,100")
	require.NoError(t, err)
	assert.Equal(t, 100.0, q.Last)

	for _, bad := range []string{"", "99", "a,b", "1,2,3,4"} {
		_, err := parsePaperQuote(bad)
		assert.Error(t, err, bad)
	}
}
