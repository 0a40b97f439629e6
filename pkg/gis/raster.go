package gis

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// AsciiGrid is an ESRI ASCII-grid raster. Cells are stored row-major from the
// top row down, matching the on-disk layout.
type AsciiGrid struct {
	NCols     int
	NRows     int
	XLLCorner float64
	YLLCorner float64
	CellSize  float64
	NoData    float64
	Cells     []float64
}

// NewAsciiGrid allocates a grid with every cell set to the no-data value.
func NewAsciiGrid(ncols, nrows int, xll, yll, cellSize, noData float64) *AsciiGrid {
	cells := make([]float64, ncols*nrows)
	for i := range cells {
		cells[i] = noData
	}
	return &AsciiGrid{
		NCols:     ncols,
		NRows:     nrows,
		XLLCorner: xll,
		YLLCorner: yll,
		CellSize:  cellSize,
		NoData:    noData,
		Cells:     cells,
	}
}

// Set assigns a cell value. Row 0 is the top row.
func (g *AsciiGrid) Set(row, col int, v float64) {
	g.Cells[row*g.NCols+col] = v
}

// Get returns a cell value. Row 0 is the top row.
func (g *AsciiGrid) Get(row, col int) float64 {
	return g.Cells[row*g.NCols+col]
}

// CellCenter returns the map coordinates of a cell's center.
func (g *AsciiGrid) CellCenter(row, col int) (x, y float64) {
	x = g.XLLCorner + (float64(col)+0.5)*g.CellSize
	y = g.YLLCorner + (float64(g.NRows-1-row)+0.5)*g.CellSize
	return x, y
}

// Write serializes the grid in ESRI ASCII format, creating parent
// directories as needed.
func (g *AsciiGrid) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating raster directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating raster %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "ncols %d\n", g.NCols)
	fmt.Fprintf(w, "nrows %d\n", g.NRows)
	fmt.Fprintf(w, "xllcorner %g\n", g.XLLCorner)
	fmt.Fprintf(w, "yllcorner %g\n", g.YLLCorner)
	fmt.Fprintf(w, "cellsize %g\n", g.CellSize)
	fmt.Fprintf(w, "NODATA_value %g\n", g.NoData)
	for row := 0; row < g.NRows; row++ {
		for col := 0; col < g.NCols; col++ {
			if col > 0 {
				if err := w.WriteByte(' '); err != nil {
					return err
				}
			}
			fmt.Fprintf(w, "%g", g.Get(row, col))
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing raster %s: %w", path, err)
	}
	return nil
}
