package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"github.com/park285/chess-duel/internal/rules"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrNilBoard = errors.New("render: board is nil")

// Highlight marks the last move.
type Highlight struct {
	From string
	To   string
}

type Options struct {
	// Orientation is the side drawn at the bottom.
	Orientation rules.Color
	Highlight   *Highlight
	Caption     string
}

// Renderer draws boards to PNG. The zero value is not usable; call New.
type Renderer struct {
	squareSize int
	margin     int
}

func New(squareSize int) *Renderer {
	if squareSize < 16 {
		squareSize = 64
	}
	return &Renderer{squareSize: squareSize, margin: squareSize / 2}
}

// RenderFEN parses fen and draws the position. Parse failures wrap rules.ErrInvalidFEN.
func (r *Renderer) RenderFEN(ctx context.Context, fen string, opts Options) ([]byte, error) {
	g, err := rules.FromFEN(fen)
	if err != nil {
		return nil, err
	}
	return r.RenderBoard(ctx, g.Board(), opts)
}

func (r *Renderer) RenderBoard(ctx context.Context, board *nchess.Board, opts Options) ([]byte, error) {
	if board == nil {
		return nil, ErrNilBoard
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	captionH := 0
	if strings.TrimSpace(opts.Caption) != "" {
		captionH = r.margin
	}
	boardSize := r.squareSize * 8
	img := image.NewRGBA(image.Rect(0, 0, boardSize+r.margin*2, boardSize+r.margin*2+captionH))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)
	origin := image.Point{X: r.margin, Y: r.margin + captionH}

	flip := opts.Orientation == rules.Black
	r.drawSquares(img, origin, flip)
	r.drawHighlight(img, opts.Highlight, origin, flip)
	if err := r.drawPieces(img, board, origin, flip); err != nil {
		return nil, err
	}
	r.drawCoordinates(img, origin, flip)
	if captionH > 0 {
		drawCenteredText(img, strings.TrimSpace(opts.Caption), img.Bounds().Dx()/2, r.margin/2+5, captionColor)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	lightSquare     = color.RGBA{233, 207, 163, 255}
	darkSquare      = color.RGBA{187, 136, 96, 255}
	highlightFill   = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	backgroundColor = color.RGBA{28, 31, 46, 255}
	coordinateColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
	captionColor    = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
)

// cell maps a square to its top-left pixel for the chosen orientation.
func (r *Renderer) cell(sq nchess.Square, origin image.Point, flip bool) image.Point {
	col, row := int(sq.File()), 7-int(sq.Rank())
	if flip {
		col, row = 7-col, 7-row
	}
	return image.Point{X: origin.X + col*r.squareSize, Y: origin.Y + row*r.squareSize}
}

func (r *Renderer) squareRect(sq nchess.Square, origin image.Point, flip bool) image.Rectangle {
	p := r.cell(sq, origin, flip)
	return image.Rect(p.X, p.Y, p.X+r.squareSize, p.Y+r.squareSize)
}

func allSquares() []nchess.Square {
	out := make([]nchess.Square, 0, 64)
	for rank := nchess.Rank1; rank <= nchess.Rank8; rank++ {
		for file := nchess.FileA; file <= nchess.FileH; file++ {
			out = append(out, nchess.NewSquare(file, rank))
		}
	}
	return out
}

func (r *Renderer) drawSquares(dst *image.RGBA, origin image.Point, flip bool) {
	for _, sq := range allSquares() {
		clr := lightSquare
		if (int(sq.File())+int(sq.Rank()))%2 == 0 {
			clr = darkSquare
		}
		imagedraw.Draw(dst, r.squareRect(sq, origin, flip), image.NewUniform(clr), image.Point{}, imagedraw.Src)
	}
}

func (r *Renderer) drawHighlight(dst *image.RGBA, h *Highlight, origin image.Point, flip bool) {
	if h == nil {
		return
	}
	for _, name := range []string{h.From, h.To} {
		sq, ok := parseSquare(name)
		if !ok {
			continue
		}
		imagedraw.Draw(dst, r.squareRect(sq, origin, flip), image.NewUniform(highlightFill), image.Point{}, imagedraw.Over)
	}
}

func (r *Renderer) drawPieces(dst *image.RGBA, board *nchess.Board, origin image.Point, flip bool) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		img, err := renderPieceImage(piece, r.squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, r.squareRect(sq, origin, flip), img, image.Point{}, imagedraw.Over)
	}
	return nil
}

func (r *Renderer) drawCoordinates(dst *image.RGBA, origin image.Point, flip bool) {
	ascent := basicfont.Face7x13.Metrics().Ascent.Ceil()
	boardEnd := origin.Y + 8*r.squareSize
	for i := 0; i < 8; i++ {
		file, rank := nchess.File(i), nchess.Rank(i)
		fileSq := r.cell(nchess.NewSquare(file, nchess.Rank1), origin, flip)
		drawCenteredText(dst, file.String(), fileSq.X+r.squareSize/2, boardEnd+(r.margin+ascent)/2, coordinateColor)
		rankSq := r.cell(nchess.NewSquare(nchess.FileA, rank), origin, flip)
		drawCenteredText(dst, rank.String(), origin.X-r.margin/2, rankSq.Y+(r.squareSize+ascent)/2, coordinateColor)
	}
}

func drawCenteredText(dst imagedraw.Image, text string, centerX, baseline int, clr color.Color) {
	if text == "" {
		return
	}
	d := &font.Drawer{Dst: dst, Src: image.NewUniform(clr), Face: basicfont.Face7x13}
	width := d.MeasureString(text).Round()
	d.Dot = fixed.P(centerX-width/2, baseline)
	d.DrawString(text)
}

func parseSquare(s string) (nchess.Square, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, false
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), true
}
