package database

import (
	"path/filepath"
	"testing"

	"featurestore/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndLoadImage(t *testing.T) {
	db, err := InitDatabase(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	info := types.ImageInfo{
		Directory:   "/survey/flight1",
		Name:        "DJI_0001.JPG",
		Pose:        types.Pose{Lon: -93.25, Lat: 45.125, MSL: 300.5, Roll: 0.5, Pitch: -1.25, Yaw: 92},
		Bias:        types.Bias{Yaw: 1.5, Alt: -2},
		Keypoints:   1200,
		Descriptors: 1200,
		MatchPairs:  340,
	}
	require.NoError(t, StoreImage(db, info))

	got, ok, err := LoadImage(db, info.Directory, info.Name)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, info.Pose, got.Pose)
	assert.Equal(t, info.Bias, got.Bias)
	assert.Equal(t, 1200, got.Keypoints)
	assert.Equal(t, 340, got.MatchPairs)
	assert.NotEmpty(t, got.UpdatedAt)

	_, ok, err = LoadImage(db, info.Directory, "absent.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreImageUpdatesExistingRow(t *testing.T) {
	db, err := InitDatabase(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	info := types.ImageInfo{Directory: "/d", Name: "a.jpg", Keypoints: 10}
	require.NoError(t, StoreImage(db, info))
	info.Keypoints = 20
	info.Pose.Lat = 44
	require.NoError(t, StoreImage(db, info))

	images, err := ListImages(db, "/d")
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, 20, images[0].Keypoints)
	assert.Equal(t, 44.0, images[0].Pose.Lat)
}

func TestListImagesAndStats(t *testing.T) {
	db, err := InitDatabase(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	defer db.Close()

	for _, info := range []types.ImageInfo{
		{Directory: "/d", Name: "b.jpg", Keypoints: 5, MatchPairs: 2, Pose: types.Pose{Lat: 1}},
		{Directory: "/d", Name: "a.jpg", Keypoints: 7, MatchPairs: 2},
		{Directory: "/other", Name: "c.jpg", Keypoints: 100},
	} {
		require.NoError(t, StoreImage(db, info))
	}

	images, err := ListImages(db, "/d")
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "a.jpg", images[0].Name)
	assert.Equal(t, "b.jpg", images[1].Name)

	all, err := ListImages(db, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	stats, err := GetCatalogStats(db, "/d")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalImages)
	assert.Equal(t, 1, stats.GeotaggedCount)
	assert.Equal(t, 12, stats.TotalKeypoints)
	assert.Equal(t, 4, stats.TotalPairs)
}

func TestInitDatabaseIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := InitDatabase(path)
	require.NoError(t, err)
	require.NoError(t, StoreImage(db, types.ImageInfo{Directory: "/d", Name: "a.jpg"}))
	db.Close()

	db, err = InitDatabase(path)
	require.NoError(t, err)
	defer db.Close()
	images, err := ListImages(db, "")
	require.NoError(t, err)
	assert.Len(t, images, 1)
}
