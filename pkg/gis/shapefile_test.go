package gis

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePointShapefile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "placements.shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(t, err)

	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("NAME", 25)}))
	names := []string{"site-a", "site-b"}
	points := []shp.Point{{X: 36.5, Y: -0.5}, {X: 37.1, Y: 0.2}}
	for i := range points {
		w.Write(&points[i])
		// Space-pad to the field width: go-shp's writer otherwise leaves
		// NUL padding, which its reader does not trim (dBASE uses spaces).
		w.WriteAttribute(i, 0, fmt.Sprintf("%-25s", names[i]))
	}
	w.Close()
	// go-shp v0.1.1's Writer.SetFields creates the dbf at filename+"dbf"
	// (no dot), while the Reader opens filename+".dbf"; rename so the
	// reader finds the attributes.
	base := strings.TrimSuffix(path, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return path
}

func TestReadShapefilePoints(t *testing.T) {
	records, err := ReadShapefile(writePointShapefile(t))
	require.NoError(t, err)
	require.Len(t, records, 2)

	p, ok := records[0].Geometry.(orb.Point)
	require.True(t, ok)
	assert.InDelta(t, 36.5, p[0], 1e-9)
	assert.InDelta(t, -0.5, p[1], 1e-9)
	assert.Equal(t, "site-a", records[0].Attrs["NAME"])
	assert.Equal(t, "site-b", records[1].Attrs["NAME"])
}

func TestReadShapefilePolygonWinding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "areas.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("ID", 10)}))

	// Shapefile convention: outer ring clockwise, hole counterclockwise.
	outer := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 4}, {X: 4, Y: 4}, {X: 4, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 1, Y: 1}, {X: 3, Y: 1}, {X: 3, Y: 3}, {X: 1, Y: 3}, {X: 1, Y: 1}}
	poly := &shp.Polygon{
		Box:       shp.Box{MinX: 0, MinY: 0, MaxX: 4, MaxY: 4},
		NumParts:  2,
		NumPoints: int32(len(outer) + len(hole)),
		Parts:     []int32{0, int32(len(outer))},
		Points:    append(append([]shp.Point{}, outer...), hole...),
	}
	w.Write(poly)
	w.WriteAttribute(0, 0, "a1")
	w.Close()

	records, err := ReadShapefile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)

	mp, ok := records[0].Geometry.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 1)
	require.Len(t, mp[0], 2, "hole grouped under its outer ring")
}

func TestReadShapefileMissing(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "nope.shp"))
	require.Error(t, err)
}
