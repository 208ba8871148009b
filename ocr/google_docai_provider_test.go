package ocr

import (
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentToBlocks(t *testing.T) {
	doc := &documentaipb.Document{
		Text: "品名: 餅乾\n淨重: 100g\n",
		Pages: []*documentaipb.Document_Page{
			{
				Dimension: &documentaipb.Document_Page_Dimension{Width: 800, Height: 600},
				Lines: []*documentaipb.Document_Page_Line{
					{
						Layout: &documentaipb.Document_Page_Layout{
							TextAnchor: &documentaipb.Document_TextAnchor{
								TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
									{StartIndex: 0, EndIndex: int64(len("品名: 餅乾\n"))},
								},
							},
							BoundingPoly: &documentaipb.BoundingPoly{
								NormalizedVertices: []*documentaipb.NormalizedVertex{
									{X: 0.1, Y: 0.1}, {X: 0.5, Y: 0.1}, {X: 0.5, Y: 0.2}, {X: 0.1, Y: 0.2},
								},
							},
						},
					},
					{
						Layout: &documentaipb.Document_Page_Layout{
							TextAnchor: &documentaipb.Document_TextAnchor{
								TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
									{StartIndex: int64(len("品名: 餅乾\n")), EndIndex: int64(len("品名: 餅乾\n淨重: 100g\n"))},
								},
							},
							BoundingPoly: &documentaipb.BoundingPoly{
								Vertices: []*documentaipb.Vertex{
									{X: 80, Y: 300}, {X: 400, Y: 300}, {X: 400, Y: 320}, {X: 80, Y: 320},
								},
							},
						},
					},
					{
						// anchor out of range is ignored
						Layout: &documentaipb.Document_Page_Layout{
							TextAnchor: &documentaipb.Document_TextAnchor{
								TextSegments: []*documentaipb.Document_TextAnchor_TextSegment{
									{StartIndex: 0, EndIndex: 1000},
								},
							},
						},
					},
				},
			},
		},
	}

	blocks := documentToBlocks(doc)
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Lines, 2)

	assert.Equal(t, "品名: 餅乾", blocks[0].Lines[0].Text)
	assert.InDelta(t, 80, blocks[0].Lines[0].BoundingPolygon[0].X, 0.01)
	assert.InDelta(t, 60, blocks[0].Lines[0].BoundingPolygon[0].Y, 0.01)

	assert.Equal(t, "淨重: 100g", blocks[0].Lines[1].Text)
	assert.Equal(t, Point{X: 80, Y: 300}, blocks[0].Lines[1].BoundingPolygon[0])

	assert.Equal(t, "品名: 餅乾\n淨重: 100g", Reassemble(blocks, nil))
}

func TestDocumentToBlocksEmpty(t *testing.T) {
	assert.Empty(t, documentToBlocks(&documentaipb.Document{}))
}

func TestIsImageMIMEType(t *testing.T) {
	assert.True(t, isImageMIMEType("image/png"))
	assert.True(t, isImageMIMEType("image/webp"))
	assert.False(t, isImageMIMEType("application/pdf"))
}
