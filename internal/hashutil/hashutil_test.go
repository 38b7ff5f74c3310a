package hashutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"replistore/internal/hashutil"
)

func TestHexIsDeterministic(t *testing.T) {
	assert.Equal(t, hashutil.Hex("A"), hashutil.Hex("A"))
	assert.NotEqual(t, hashutil.Hex("A"), hashutil.Hex("B"))
}

func TestHexKnownVector(t *testing.T) {
	// md5("") is a well-known constant digest.
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", hashutil.Hex(""))
}
