package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece glyphs are drawn from a 100x100 viewBox. Each type gets its own silhouette
// so the board reads without any font assets.
var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn:   `<circle cx="50" cy="34" r="14"/><path d="M36 50 L64 50 L72 84 L28 84 Z"/>`,
	nchess.Knight: `<path d="M30 84 L30 62 L44 44 L34 40 L40 22 L60 18 L72 34 L70 84 Z"/>`,
	nchess.Bishop: `<ellipse cx="50" cy="40" rx="14" ry="20"/><circle cx="50" cy="16" r="5"/><path d="M32 84 L40 58 L60 58 L68 84 Z"/>`,
	nchess.Rook:   `<path d="M28 84 L28 74 L34 74 L34 36 L28 36 L28 18 L38 18 L38 26 L46 26 L46 18 L54 18 L54 26 L62 26 L62 18 L72 18 L72 36 L66 36 L66 74 L72 74 L72 84 Z"/>`,
	nchess.Queen:  `<path d="M24 84 L20 30 L36 52 L42 22 L50 48 L58 22 L64 52 L80 30 L76 84 Z"/><circle cx="50" cy="18" r="5"/>`,
	nchess.King:   `<path d="M46 8 L54 8 L54 16 L62 16 L62 24 L54 24 L54 32 L46 32 L46 24 L38 24 L38 16 L46 16 Z"/><path d="M24 84 L28 44 L50 36 L72 44 L76 84 Z"/>`,
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func pieceSVG(piece nchess.Piece) (string, error) {
	shape, ok := pieceShapes[piece.Type()]
	if !ok {
		return "", fmt.Errorf("no glyph for piece %v", piece)
	}
	fill, stroke := "#f8f6f0", "#222222"
	if piece.Color() == nchess.Black {
		fill, stroke = "#2b2b2b", "#f0f0f0"
	}
	var b strings.Builder
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 100 100" width="100" height="100">`)
	fmt.Fprintf(&b, `<g fill="%s" stroke="%s" stroke-width="3">`, fill, stroke)
	b.WriteString(shape)
	b.WriteString(`</g></svg>`)
	return b.String(), nil
}

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	src, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}
