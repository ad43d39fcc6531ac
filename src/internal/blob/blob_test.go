package blob

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateImage(t *testing.T) {
	ext, err := ValidateImage("image/PNG", 1024)
	require.NoError(t, err)
	assert.Equal(t, "png", ext)

	_, err = ValidateImage("application/pdf", 1024)
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = ValidateImage("image/jpeg", MaxImageSize+1)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = ValidateImage("image/gif", 0)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestKeys(t *testing.T) {
	now := time.Unix(1700000000, 0)

	assert.Equal(t, "challenges/c1/banner/two-sum-showdown-1700000000.webp", BannerKey("c1", "Two Sum Showdown!", "webp", now))
	assert.Equal(t, "challenges/c1/banner/banner-1700000000.png", BannerKey("c1", "???", "png", now))
	assert.Equal(t, "users/u1/avatar/avatar-1700000000.jpg", AvatarKey("u1", "jpg", now))
	assert.Equal(t, "challenges/c1/submissions/u1/my-solution-1700000000.zip", SubmissionKey("c1", "u1", "My Solution.zip", now))
	assert.Equal(t, "challenges/c1/submissions/u1/submission-1700000000", SubmissionKey("c1", "u1", "", now))
}

func TestMemory_PutDeleteKeyOf(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("https://cdn.test")

	url, err := m.Put(ctx, "users/u1/avatar/a.png", strings.NewReader("img"), 3, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/users/u1/avatar/a.png", url)

	key, ok := m.KeyOf(url)
	require.True(t, ok)
	obj, ok := m.Object(key)
	require.True(t, ok)
	assert.Equal(t, "img", string(obj.Data))

	_, ok = m.KeyOf("https://elsewhere.test/a.png")
	assert.False(t, ok)

	require.NoError(t, m.Delete(ctx, key))
	_, ok = m.Object(key)
	assert.False(t, ok)
}
