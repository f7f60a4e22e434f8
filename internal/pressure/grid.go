package pressure

// summarizeGrid splits the image into GridRows x GridCols cells of
// H/rows by W/cols pixels (integer division, so trailing pixels fall outside
// every cell) and averages raw gray values per cell. A zero-sized cell
// reports 0. The global mean covers every pixel.
func (a *Analyzer) summarizeGrid(gray *GrayImage) GridSummary {
	rows, cols := a.cfg.GridRows, a.cfg.GridCols
	cellH := gray.Height / rows
	cellW := gray.Width / cols

	summary := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		summary[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			summary[i][j] = meanRect(gray, j*cellW, i*cellH, cellW, cellH)
		}
	}

	var total uint64
	for _, v := range gray.Pix {
		total += uint64(v)
	}
	return GridSummary{
		AveragePressure:    float64(total) / float64(len(gray.Pix)),
		PressureMapSummary: summary,
		Message:            completedMessage,
	}
}

func meanRect(gray *GrayImage, x0, y0, w, h int) float64 {
	if w <= 0 || h <= 0 {
		return 0
	}
	var total uint64
	for y := y0; y < y0+h; y++ {
		row := gray.Pix[y*gray.Width+x0 : y*gray.Width+x0+w]
		for _, v := range row {
			total += uint64(v)
		}
	}
	return float64(total) / float64(w*h)
}
