package bird_test

import (
	"testing"

	"github.com/philippseith/gobird/bird"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorPersists(t *testing.T) {
	dir := t.TempDir()

	mirror, err := bird.OpenMirror[bird.RoomMemberSet]("room-member", dir)
	require.NoError(t, err)
	require.NoError(t, mirror.Set("r1@chatroom", bird.RoomMemberSet{
		"wxid_a": {WechatID: "wxid_a", Nick: "alice"},
	}))
	require.NoError(t, mirror.Set("r2@chatroom", bird.RoomMemberSet{}))
	require.NoError(t, mirror.Close())

	mirror, err = bird.OpenMirror[bird.RoomMemberSet]("room-member", dir)
	require.NoError(t, err)
	defer func() { _ = mirror.Close() }()

	members, ok, err := mirror.Get("r1@chatroom")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", members["wxid_a"].Nick)

	keys, err := mirror.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"r1@chatroom", "r2@chatroom"}, keys)
}

func TestMirrorInMemory(t *testing.T) {
	mirror, err := bird.OpenMirror[bird.ContactPayload]("contact", "")
	require.NoError(t, err)
	defer func() { _ = mirror.Close() }()

	_, ok, err := mirror.Get("wxid_a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mirror.Set("wxid_a", bird.ContactPayload{ID: "wxid_a", IsFriend: 1}))
	require.NoError(t, mirror.Set("wxid_b", bird.ContactPayload{ID: "wxid_b"}))

	has, err := mirror.Has("wxid_a")
	require.NoError(t, err)
	assert.True(t, has)

	values, err := mirror.Values()
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, 1, values[0].IsFriend)

	require.NoError(t, mirror.Delete("wxid_a"))
	n, err := mirror.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
