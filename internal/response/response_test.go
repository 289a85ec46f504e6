package response

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mapcache-go/mapcache/internal/apperr"
)

func TestForTile_ReturnsOKWithNoConditional(t *testing.T) {
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	resp := ForTile(time.Time{}, []byte("data"), TileOptions{ContentType: "image/png", MTime: mtime})
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []byte("data"), resp.Body)
	assert.Equal(t, "image/png", resp.Headers.Get("Content-Type"))
	assert.NotEmpty(t, resp.Headers.Get("Last-Modified"))
}

func TestForTile_ReturnsNotModifiedWhenMTimeNotAfterCondition(t *testing.T) {
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	condition := mtime // equal, not "after", so still 304 per spec ("<=")
	resp := ForTile(condition, []byte("data"), TileOptions{ContentType: "image/png", MTime: mtime})
	assert.Equal(t, http.StatusNotModified, resp.Status)
	assert.Nil(t, resp.Body)
}

func TestForTile_ReturnsOKWhenMTimeAfterCondition(t *testing.T) {
	mtime := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	condition := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	resp := ForTile(condition, []byte("data"), TileOptions{ContentType: "image/png", MTime: mtime})
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, []byte("data"), resp.Body)
}

func TestFromError_MapsAppErrorCode(t *testing.T) {
	err := apperr.NotFound("tileset %q unknown", "l1")
	resp := FromError(err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Contains(t, string(resp.Body), "l1")
}

func TestFromError_DefaultsToInternalServerErrorForPlainErrors(t *testing.T) {
	resp := FromError(assertError{"boom"})
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }

func TestParseIfModifiedSince_InvalidHeaderReturnsZero(t *testing.T) {
	assert.True(t, ParseIfModifiedSince("not-a-date").IsZero())
	assert.True(t, ParseIfModifiedSince("").IsZero())
}

func TestParseIfModifiedSince_ValidHeaderParses(t *testing.T) {
	mtime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	header := mtime.Format(http.TimeFormat)
	parsed := ParseIfModifiedSince(header)
	assert.False(t, parsed.IsZero())
	assert.True(t, parsed.Equal(mtime))
}
